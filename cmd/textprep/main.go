// Command textprep trains tokenizer vocabularies and turns text corpora into
// id sequences and aligned training pairs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/textprep/textprep/tokenizers/api"
	"github.com/textprep/textprep/tokenizers/bpe"
	"github.com/textprep/textprep/tokenizers/wordpiece"
	"github.com/textprep/textprep/tokenizers/words"
	"github.com/textprep/textprep/vocab"
)

func main() {
	cobra.CheckErr(NewCLI().ExecuteContext(context.Background()))
}

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "textprep",
		Short:         "Prepare text corpora for language model training",
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
		},
	}

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(
		NewTrainCmd(),
		NewEncodeCmd(),
		NewDecodeCmd(),
		NewWindowsCmd(),
		NewInfoCmd(),
	)

	return rootCmd
}

var (
	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	labelStyle = lipgloss.NewStyle().
			Bold(true)
)

// summarize prints the human-readable result line on stderr, keeping stdout
// for data.
func summarize(format string, args ...any) {
	fmt.Fprintln(os.Stderr, summaryStyle.Render(fmt.Sprintf(format, args...)))
}

// loadTokenizer reads a stored vocabulary and builds the tokenizer for its
// algorithm.
func loadTokenizer(path string) (api.Tokenizer, *vocab.Vocabulary, error) {
	v, err := vocab.Load(path)
	if err != nil {
		return nil, nil, err
	}
	tok, err := newTokenizer(v)
	if err != nil {
		return nil, nil, err
	}
	return tok, v, nil
}

func newTokenizer(v *vocab.Vocabulary) (api.Tokenizer, error) {
	switch v.Algorithm() {
	case vocab.AlgorithmBPE:
		return bpe.New(v)
	case vocab.AlgorithmWordPiece:
		return wordpiece.New(v)
	case vocab.AlgorithmWords:
		return words.New(v)
	}
	return nil, errors.Wrapf(api.ErrInvalidConfig, "vocabulary algorithm %q has no tokenizer", v.Algorithm())
}
