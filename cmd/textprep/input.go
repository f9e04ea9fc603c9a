package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/textprep/textprep/corpus"
	"github.com/textprep/textprep/tokenizers/api"
)

// registerCorpusFlags adds the flags shared by every command that reads a
// corpus. File arguments are turned into documents per --reader; --text
// supplies inline documents instead of files.
func registerCorpusFlags(cmd *cobra.Command) {
	cmd.Flags().String("reader", "lines", "How files become documents: lines, file, chunks or parquet")
	cmd.Flags().Int("chunk-bytes", 1<<20, "Document size for the chunks reader")
	cmd.Flags().String("parquet-column", "text", "Column read by the parquet reader")
	cmd.Flags().StringArray("text", nil, "Inline document (repeatable), instead of files")
}

func corpusFromFlags(cmd *cobra.Command, paths []string) (corpus.Stream, error) {
	texts, err := cmd.Flags().GetStringArray("text")
	if err != nil {
		return nil, err
	}
	if len(texts) > 0 {
		if len(paths) > 0 {
			return nil, errors.Wrap(api.ErrInvalidConfig, "pass file arguments or --text, not both")
		}
		return corpus.FromStrings(texts...), nil
	}
	if len(paths) == 0 {
		return nil, errors.Wrap(api.ErrInvalidConfig, "no input documents: pass files or --text")
	}

	reader, err := cmd.Flags().GetString("reader")
	if err != nil {
		return nil, err
	}
	streams := make([]corpus.Stream, len(paths))
	for i, path := range paths {
		switch reader {
		case "lines":
			streams[i] = corpus.Lines(path)
		case "file":
			streams[i] = corpus.WholeFile(path)
		case "chunks":
			size, err := cmd.Flags().GetInt("chunk-bytes")
			if err != nil {
				return nil, err
			}
			streams[i] = corpus.Chunks(path, size)
		case "parquet":
			column, err := cmd.Flags().GetString("parquet-column")
			if err != nil {
				return nil, err
			}
			streams[i] = corpus.Parquet(path, column)
		default:
			return nil, errors.Wrapf(api.ErrInvalidConfig, "unknown reader %q (want lines, file, chunks or parquet)", reader)
		}
	}
	if len(streams) == 1 {
		return streams[0], nil
	}
	return corpus.Concat(streams...), nil
}
