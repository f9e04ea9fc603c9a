package words

import (
	"cmp"
	"context"
	"slices"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/textprep/textprep/corpus"
	"github.com/textprep/textprep/internal/textsplit"
	"github.com/textprep/textprep/tokenizers/api"
	"github.com/textprep/textprep/vocab"
)

// Config controls vocabulary collection.
type Config struct {
	// MaxVocabSize caps the vocabulary including the special tokens. The
	// most frequent tokens survive the cut, ties resolving to the
	// lexicographically smaller token. Zero means no cap.
	MaxVocabSize int

	// SpecialTokens are pinned, in order, at the lowest ids. Defaults to
	// api.DefaultSpecialSymbols when empty.
	SpecialTokens []string

	// Normalizer is recorded in the vocabulary and replayed at encode time.
	// See vocab.NormalizerFunc for the accepted names.
	Normalizer string
}

var tokenRe = regexp2.MustCompile(TokenPattern, regexp2.RE2)

// Train collects a word-level vocabulary from the corpus. Documents are
// split around special-token literals, normalized, and segmented by
// TokenPattern; every distinct token becomes a vocabulary entry unless
// MaxVocabSize forces a frequency-ranked cut.
func Train(ctx context.Context, docs corpus.Stream, cfg Config) (*vocab.Vocabulary, error) {
	if cfg.MaxVocabSize < 0 {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "negative vocabulary cap %d", cfg.MaxVocabSize)
	}
	specials := cfg.SpecialTokens
	if len(specials) == 0 {
		specials = api.DefaultSpecialSymbols()
	}
	if cfg.MaxVocabSize > 0 && cfg.MaxVocabSize <= len(specials) {
		return nil, errors.Wrapf(api.ErrInvalidConfig,
			"vocabulary cap %d cannot hold the %d special tokens", cfg.MaxVocabSize, len(specials))
	}
	// Reject malformed special-token sets before touching the corpus.
	if _, err := vocab.Build(vocab.Spec{Algorithm: vocab.AlgorithmWords, Specials: specials}); err != nil {
		return nil, err
	}
	normalize, err := vocab.NormalizerFunc(cfg.Normalizer)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	literals := textsplit.OrderedLiterals(specials)
	for doc, err := range docs {
		if err != nil {
			return nil, errors.WithMessage(err, "reading corpus")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, frag := range textsplit.SplitSpecials(doc, literals) {
			if frag.Special {
				continue
			}
			for _, tok := range textsplit.Matches(tokenRe, normalize(frag.Text)) {
				counts[tok]++
			}
		}
	}
	if len(counts) == 0 {
		return nil, errors.Wrap(api.ErrInsufficientData, "corpus contains no tokens")
	}

	base := ranked(counts)
	if cfg.MaxVocabSize > 0 {
		if keep := cfg.MaxVocabSize - len(specials); keep < len(base) {
			base = base[:keep]
		}
	}

	v, err := vocab.Build(vocab.Spec{
		Algorithm:    vocab.AlgorithmWords,
		Normalizer:   cfg.Normalizer,
		Pretokenizer: TokenPattern,
		Specials:     specials,
		Base:         base,
	})
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("words: %d distinct tokens, %d kept, vocabulary size %d", len(counts), len(base), v.Size())
	return v, nil
}

// ranked orders tokens by frequency, highest first, breaking ties toward
// the lexicographically smaller token.
func ranked(counts map[string]int) []string {
	toks := make([]string, 0, len(counts))
	for tok := range counts {
		toks = append(toks, tok)
	}
	slices.SortFunc(toks, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return toks
}
