package main

import (
	"bufio"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/textprep/textprep/align"
	"github.com/textprep/textprep/pipeline"
	"github.com/textprep/textprep/tokenizers/api"
)

func NewWindowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "windows VOCAB [FILE...]",
		Short: "Emit aligned input/target training pairs",
		Long: "Emit aligned input/target training pairs, one per line as three " +
			"tab-separated columns: input ids, target ids, trailing pad count.",
		Args: cobra.MinimumNArgs(1),
		RunE: windowsHandler,
	}

	cmd.Flags().Int("window", 128, "Window length in tokens")
	cmd.Flags().Int("stride", 0, "Step between window starts (0 = window length)")
	cmd.Flags().String("boundary", "drop", "Final partial window policy: drop or pad")
	cmd.Flags().Bool("concat", false, "Join documents with a separator instead of windowing each alone")
	cmd.Flags().Int("separator", -1, "Separator id for --concat (-1 = the <EOS> special)")
	cmd.Flags().Int("workers", 0, "Worker goroutines (0 = GOMAXPROCS)")
	registerCorpusFlags(cmd)

	return cmd
}

func windowsHandler(cmd *cobra.Command, args []string) error {
	tok, v, err := loadTokenizer(args[0])
	if err != nil {
		return err
	}
	docs, err := corpusFromFlags(cmd, args[1:])
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	window, err := flags.GetInt("window")
	if err != nil {
		return err
	}
	stride, err := flags.GetInt("stride")
	if err != nil {
		return err
	}
	if stride == 0 {
		stride = window
	}
	boundary, err := flags.GetString("boundary")
	if err != nil {
		return err
	}
	policy, err := align.ParsePolicy(boundary)
	if err != nil {
		return err
	}
	concat, err := flags.GetBool("concat")
	if err != nil {
		return err
	}
	separator, err := flags.GetInt("separator")
	if err != nil {
		return err
	}
	if concat && separator < 0 {
		separator, err = v.SpecialTokenID(api.TokEndOfSequence)
		if err != nil {
			return errors.WithMessage(err, "pass --separator explicitly")
		}
	}
	workers, err := flags.GetInt("workers")
	if err != nil {
		return err
	}

	aligner, err := align.New(align.Config{
		Window:          window,
		Stride:          stride,
		Policy:          policy,
		PadID:           v.PadID(),
		ConcatDocuments: concat,
		SeparatorID:     separator,
	})
	if err != nil {
		return err
	}

	pairs, err := pipeline.AlignAll(cmd.Context(), tok, docs, aligner, workers)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	for _, p := range pairs {
		writeIDs(out, p.Input)
		out.WriteByte('\t')
		writeIDs(out, p.Target)
		out.WriteByte('\t')
		out.WriteString(strconv.Itoa(p.Padding))
		out.WriteByte('\n')
	}
	if err := out.Flush(); err != nil {
		return err
	}

	summarize("emitted %d training pairs (window %d, stride %d, %s boundaries)",
		len(pairs), window, stride, policy)
	return nil
}
