package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/textprep/textprep/vocab"
)

func NewInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info VOCAB",
		Short: "Describe a stored vocabulary",
		Args:  cobra.ExactArgs(1),
		RunE:  infoHandler,
	}

	return cmd
}

func infoHandler(cmd *cobra.Command, args []string) error {
	v, err := vocab.Load(args[0])
	if err != nil {
		return err
	}

	out := os.Stdout
	row := func(label, value string) {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-15s", label)), value)
	}

	row("Fingerprint", v.Fingerprint())
	row("Algorithm", v.Algorithm())
	row("Normalizer", orNone(v.Normalizer()))
	row("Pretokenizer", orNone(v.Pretokenizer()))
	if prefix := v.SubwordPrefix(); prefix != "" {
		row("Subword prefix", prefix)
	}
	merged := v.Size() - v.NumSpecials() - v.NumBase()
	row("Tokens", fmt.Sprintf("%d (%d special, %d base, %d merged)",
		v.Size(), v.NumSpecials(), v.NumBase(), merged))
	row("Specials", strings.Join(v.Specials(), " "))
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
