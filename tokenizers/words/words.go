// Package words implements word-level tokenization: text splits into word,
// punctuation and whitespace tokens, each mapping to a single id. Whitespace
// survives as tokens of its own, so decoding known ids reproduces the
// original text exactly.
package words

import (
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"

	"github.com/textprep/textprep/internal/textsplit"
	"github.com/textprep/textprep/tokenizers/api"
	"github.com/textprep/textprep/vocab"
)

// TokenPattern is the segmentation recorded in word-level vocabularies:
// maximal runs of word characters, single punctuation characters, and
// single whitespace characters. Every input character lands in exactly one
// token.
const TokenPattern = `[\w]+|[^\w\s]|\s`

// Tokenizer encodes and decodes text against a word-level vocabulary
// snapshot. It is immutable after New and safe for concurrent use.
type Tokenizer struct {
	vocab     *vocab.Vocabulary
	normalize func(string) string
	tokens    *regexp2.Regexp
	literals  []string
}

var _ api.Tokenizer = (*Tokenizer)(nil)

// New returns a tokenizer looking tokens up in the given vocabulary.
func New(v *vocab.Vocabulary) (*Tokenizer, error) {
	if v.Algorithm() != vocab.AlgorithmWords {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "vocabulary was built by %q, want %q", v.Algorithm(), vocab.AlgorithmWords)
	}
	normalize, err := vocab.NormalizerFunc(v.Normalizer())
	if err != nil {
		return nil, err
	}
	pattern := v.Pretokenizer()
	if pattern == "" {
		pattern = TokenPattern
	}
	tokens, err := regexp2.Compile(pattern, regexp2.RE2)
	if err != nil {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "pretokenizer pattern %q: %v", pattern, err)
	}
	return &Tokenizer{
		vocab:     v,
		normalize: normalize,
		tokens:    tokens,
		literals:  textsplit.OrderedLiterals(v.Specials()),
	}, nil
}

// Encode converts text to token ids. Special-token literals map to their
// pinned ids; everything else is normalized, segmented, and looked up, with
// out-of-vocabulary tokens degrading to the unknown id.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	for _, frag := range textsplit.SplitSpecials(text, t.literals) {
		if frag.Special {
			if id, ok := t.vocab.TokenID(frag.Text); ok {
				ids = append(ids, id)
			}
			continue
		}
		for _, tok := range textsplit.Matches(t.tokens, t.normalize(frag.Text)) {
			id, ok := t.vocab.TokenID(tok)
			if !ok {
				id = t.vocab.UnknownID()
			}
			ids = append(ids, id)
		}
	}
	return ids
}

// Decode concatenates the tokens behind the ids. Whitespace tokens carry
// the original spacing, so text encoded without unknown substitutions
// round-trips exactly. Ids outside the vocabulary fail with
// api.ErrUnknownID.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for i, id := range ids {
		token, err := t.vocab.Token(id)
		if err != nil {
			return "", errors.WithMessagef(err, "position %d", i)
		}
		sb.WriteString(token)
	}
	return sb.String(), nil
}

// VocabSize returns the number of ids in the vocabulary.
func (t *Tokenizer) VocabSize() int { return t.vocab.Size() }

// SpecialTokenID returns the pinned id of a reserved special token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	return t.vocab.SpecialTokenID(token)
}

// Vocab returns the vocabulary snapshot the tokenizer reads from.
func (t *Tokenizer) Vocab() *vocab.Vocabulary { return t.vocab }
