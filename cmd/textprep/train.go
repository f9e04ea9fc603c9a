package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/textprep/textprep/tokenizers/api"
	"github.com/textprep/textprep/tokenizers/bpe"
	"github.com/textprep/textprep/tokenizers/wordpiece"
	"github.com/textprep/textprep/tokenizers/words"
	"github.com/textprep/textprep/vocab"
)

func NewTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train [FILE...]",
		Short: "Learn a tokenizer vocabulary from a corpus",
		RunE:  trainHandler,
	}

	cmd.Flags().String("algorithm", "bpe", "Training algorithm: bpe, wordpiece or words")
	cmd.Flags().Int("vocab-size", 0, "Target vocabulary size (required for bpe, caps words, ignored by wordpiece)")
	cmd.Flags().Int("merges", 0, "Merge budget for wordpiece (0 = default)")
	cmd.Flags().StringArray("special", nil, "Special token literal (repeatable), in id order; default <UNK> <PAD> <BOS> <EOS>")
	cmd.Flags().String("normalizer", "", "Text normalization: lower, nfc, nfd, nfkc or nfkd, optionally with +lower")
	cmd.Flags().String("pretokenizer", "", "RE2 pattern bounding bpe merges (empty = whole documents)")
	cmd.Flags().Int("workers", 0, "Worker goroutines for counting passes (0 = GOMAXPROCS)")
	cmd.Flags().String("out", "vocab.json", "Output vocabulary path")
	cmd.Flags().String("format", "json", "Vocabulary encoding: json or binary")
	registerCorpusFlags(cmd)

	return cmd
}

func trainHandler(cmd *cobra.Command, args []string) error {
	docs, err := corpusFromFlags(cmd, args)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	algorithm, err := flags.GetString("algorithm")
	if err != nil {
		return err
	}
	vocabSize, err := flags.GetInt("vocab-size")
	if err != nil {
		return err
	}
	merges, err := flags.GetInt("merges")
	if err != nil {
		return err
	}
	specials, err := flags.GetStringArray("special")
	if err != nil {
		return err
	}
	normalizer, err := flags.GetString("normalizer")
	if err != nil {
		return err
	}
	pretokenizer, err := flags.GetString("pretokenizer")
	if err != nil {
		return err
	}
	workers, err := flags.GetInt("workers")
	if err != nil {
		return err
	}

	var v *vocab.Vocabulary
	switch algorithm {
	case vocab.AlgorithmBPE:
		v, err = bpe.Train(cmd.Context(), docs, bpe.Config{
			TargetVocabSize: vocabSize,
			SpecialTokens:   specials,
			Normalizer:      normalizer,
			Pretokenizer:    pretokenizer,
			Workers:         workers,
		})
	case vocab.AlgorithmWordPiece:
		v, err = wordpiece.Train(cmd.Context(), docs, wordpiece.Config{
			MaxMerges:     merges,
			SpecialTokens: specials,
			Normalizer:    normalizer,
			Workers:       workers,
		})
	case vocab.AlgorithmWords:
		v, err = words.Train(cmd.Context(), docs, words.Config{
			MaxVocabSize:  vocabSize,
			SpecialTokens: specials,
			Normalizer:    normalizer,
		})
	default:
		err = errors.Wrapf(api.ErrInvalidConfig, "unknown algorithm %q (want bpe, wordpiece or words)", algorithm)
	}
	if err != nil {
		return err
	}

	formatName, err := flags.GetString("format")
	if err != nil {
		return err
	}
	format, err := vocab.ParseFormat(formatName)
	if err != nil {
		return err
	}
	out, err := flags.GetString("out")
	if err != nil {
		return err
	}
	if err := vocab.Save(out, v, format); err != nil {
		return err
	}

	summarize("trained %s vocabulary %s: %d tokens (%d special, %d base) saved to %s",
		v.Algorithm(), v.Fingerprint(), v.Size(), v.NumSpecials(), v.NumBase(), out)
	return nil
}
