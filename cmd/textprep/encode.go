package main

import (
	"bufio"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/textprep/textprep/pipeline"
)

func NewEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode VOCAB [FILE...]",
		Short: "Encode documents to token ids, one line per document",
		Args:  cobra.MinimumNArgs(1),
		RunE:  encodeHandler,
	}

	cmd.Flags().Int("workers", 0, "Worker goroutines (0 = GOMAXPROCS)")
	registerCorpusFlags(cmd)

	return cmd
}

func encodeHandler(cmd *cobra.Command, args []string) error {
	tok, _, err := loadTokenizer(args[0])
	if err != nil {
		return err
	}
	docs, err := corpusFromFlags(cmd, args[1:])
	if err != nil {
		return err
	}
	workers, err := cmd.Flags().GetInt("workers")
	if err != nil {
		return err
	}

	seqs, err := pipeline.EncodeAll(cmd.Context(), tok, docs, workers)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	total := 0
	for _, seq := range seqs {
		writeIDs(out, seq)
		out.WriteByte('\n')
		total += len(seq)
	}
	if err := out.Flush(); err != nil {
		return err
	}

	summarize("encoded %d documents into %d ids", len(seqs), total)
	return nil
}

func writeIDs(out *bufio.Writer, ids []int) {
	for i, id := range ids {
		if i > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(strconv.Itoa(id))
	}
}
