// Package wordpiece implements WordPiece tokenization. Train learns a piece
// inventory by greedily merging the adjacent pair with the highest likelihood
// score inside whitespace-delimited units; Tokenizer segments words against
// that inventory by longest prefix match, marking continuation pieces with
// the subword prefix.
package wordpiece

import (
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"

	"github.com/textprep/textprep/internal/textsplit"
	"github.com/textprep/textprep/tokenizers/api"
	"github.com/textprep/textprep/vocab"
)

// WordPattern is the unit split recorded in wordpiece vocabularies: maximal
// runs of word characters or of punctuation. Whitespace separates units and
// is dropped, which makes decoding join pieces back with single spaces.
const WordPattern = `[\w]+|[^\w\s]+`

// subwordPrefix marks pieces continuing a word.
const subwordPrefix = "##"

// maxWordChars bounds piece matching; anything longer maps to the unknown id.
const maxWordChars = 100

// Tokenizer encodes and decodes text against a WordPiece vocabulary
// snapshot. It is immutable after New and safe for concurrent use.
type Tokenizer struct {
	vocab     *vocab.Vocabulary
	normalize func(string) string
	words     *regexp2.Regexp
	literals  []string
	prefix    string
}

var _ api.Tokenizer = (*Tokenizer)(nil)

// New returns a tokenizer matching pieces from the given vocabulary.
func New(v *vocab.Vocabulary) (*Tokenizer, error) {
	if v.Algorithm() != vocab.AlgorithmWordPiece {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "vocabulary was built by %q, want %q", v.Algorithm(), vocab.AlgorithmWordPiece)
	}
	normalize, err := vocab.NormalizerFunc(v.Normalizer())
	if err != nil {
		return nil, err
	}
	pattern := v.Pretokenizer()
	if pattern == "" {
		pattern = WordPattern
	}
	words, err := regexp2.Compile(pattern, regexp2.RE2)
	if err != nil {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "pretokenizer pattern %q: %v", pattern, err)
	}
	return &Tokenizer{
		vocab:     v,
		normalize: normalize,
		words:     words,
		literals:  textsplit.OrderedLiterals(v.Specials()),
		prefix:    v.SubwordPrefix(),
	}, nil
}

// Encode converts text to piece ids. Special-token literals map to their
// pinned ids; the remaining text is normalized and split into units, and
// each unit is matched greedily against the longest known piece. A unit
// with no piece match at some position encodes as a single unknown id, so
// Encode never fails.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	for _, frag := range textsplit.SplitSpecials(text, t.literals) {
		if frag.Special {
			if id, ok := t.vocab.TokenID(frag.Text); ok {
				ids = append(ids, id)
			}
			continue
		}
		for _, word := range textsplit.Matches(t.words, t.normalize(frag.Text)) {
			ids = t.appendWord(ids, word)
		}
	}
	return ids
}

func (t *Tokenizer) appendWord(ids []int, word string) []int {
	if word == "" {
		return ids
	}
	if utf8.RuneCountInString(word) > maxWordChars {
		return append(ids, t.vocab.UnknownID())
	}
	var pieces []int
	for start := 0; start < len(word); {
		end := len(word)
		found := false
		for start < end {
			piece := word[start:end]
			if start > 0 {
				piece = t.prefix + piece
			}
			if id, ok := t.vocab.TokenID(piece); ok {
				pieces = append(pieces, id)
				found = true
				break
			}
			end--
		}
		if !found {
			// the whole word degrades, not just the unmatched tail
			return append(ids, t.vocab.UnknownID())
		}
		start = end
	}
	return append(ids, pieces...)
}

// Decode rebuilds text from piece ids: continuation pieces attach to the
// piece before them, everything else is joined with single spaces. The
// original spacing between units is not recorded, so decoding is lossy
// about whitespace. Ids outside the vocabulary fail with api.ErrUnknownID.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for i, id := range ids {
		token, err := t.vocab.Token(id)
		if err != nil {
			return "", errors.WithMessagef(err, "position %d", i)
		}
		if rest, ok := strings.CutPrefix(token, t.prefix); ok {
			sb.WriteString(rest)
			continue
		}
		if i > 0 {
			sb.WriteString(" ")
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

// Vocab returns the vocabulary snapshot the tokenizer matches against.
func (t *Tokenizer) Vocab() *vocab.Vocabulary { return t.vocab }
