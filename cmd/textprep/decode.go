package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode VOCAB [ID...]",
		Short: "Decode token ids back to text",
		Long: "Decode token ids back to text. Ids are taken from the arguments, " +
			"or from stdin with one id sequence per line.",
		Args: cobra.MinimumNArgs(1),
		RunE: decodeHandler,
	}

	return cmd
}

func decodeHandler(cmd *cobra.Command, args []string) error {
	tok, _, err := loadTokenizer(args[0])
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	if len(args) > 1 {
		ids, err := parseIDs(args[1:])
		if err != nil {
			return err
		}
		text, err := tok.Decode(ids)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
		if err := out.Flush(); err != nil {
			return err
		}
		summarize("decoded %d ids", len(ids))
		return nil
	}

	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	sequences := 0
	for sc.Scan() {
		ids, err := parseIDs(strings.Fields(sc.Text()))
		if err != nil {
			return err
		}
		text, err := tok.Decode(ids)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
		sequences++
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(err, "reading ids from stdin")
	}
	if err := out.Flush(); err != nil {
		return err
	}

	summarize("decoded %d sequences", sequences)
	return nil
}

func parseIDs(fields []string) ([]int, error) {
	ids := make([]int, len(fields))
	for i, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Errorf("token id %q is not an integer", f)
		}
		ids[i] = id
	}
	return ids, nil
}
