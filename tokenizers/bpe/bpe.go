// Package bpe implements byte-pair-encoding tokenization. Train induces an
// ordered merge-rule vocabulary from a corpus stream; Tokenizer replays those
// rules to convert text to token ids and back.
//
// Training and encoding share the same text preparation: special-token
// literals are carved out first, the remaining text is normalized and split
// by the recorded pretokenizer pattern, and merges never cross a boundary.
// Replaying the rules in induction order therefore reproduces the exact
// segmentation reached at the end of training.
package bpe

import (
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"

	"github.com/textprep/textprep/internal/textsplit"
	"github.com/textprep/textprep/tokenizers/api"
	"github.com/textprep/textprep/vocab"
)

// Tokenizer encodes and decodes text against a BPE vocabulary snapshot. It
// is immutable after New and safe for concurrent use.
type Tokenizer struct {
	vocab     *vocab.Vocabulary
	normalize func(string) string
	pretok    *regexp2.Regexp
	rules     []rule
	literals  []string
}

var _ api.Tokenizer = (*Tokenizer)(nil)

// rule is a merge rule resolved to vocabulary ids.
type rule struct {
	left   int
	right  int
	merged int
}

// unknownSym stands in for base symbols missing from the vocabulary. It
// never equals a real id, so merges cannot absorb an unknown position.
const unknownSym = -1

// New returns a tokenizer replaying the vocabulary's merge rules.
func New(v *vocab.Vocabulary) (*Tokenizer, error) {
	if v.Algorithm() != vocab.AlgorithmBPE {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "vocabulary was built by %q, want %q", v.Algorithm(), vocab.AlgorithmBPE)
	}
	normalize, err := vocab.NormalizerFunc(v.Normalizer())
	if err != nil {
		return nil, err
	}
	t := &Tokenizer{
		vocab:     v,
		normalize: normalize,
		literals:  textsplit.OrderedLiterals(v.Specials()),
	}
	if pattern := v.Pretokenizer(); pattern != "" {
		if t.pretok, err = regexp2.Compile(pattern, regexp2.RE2); err != nil {
			return nil, errors.Wrapf(api.ErrInvalidConfig, "pretokenizer pattern %q: %v", pattern, err)
		}
	}
	for i, mr := range v.Merges() {
		left, lok := v.TokenID(mr.Left)
		right, rok := v.TokenID(mr.Right)
		merged, mok := v.TokenID(mr.Token())
		if !lok || !rok || !mok {
			return nil, errors.Wrapf(api.ErrInvalidConfig, "merge rule %d (%q, %q) does not resolve to vocabulary ids", i, mr.Left, mr.Right)
		}
		t.rules = append(t.rules, rule{left: left, right: right, merged: merged})
	}
	return t, nil
}

// Encode converts text to token ids. Special-token literals map to their
// pinned ids; the remaining text is normalized, pretokenized, split into
// base symbols and rewritten by the merge rules in induction order, each
// applied leftmost first until it no longer matches. Base symbols absent
// from the vocabulary degrade to the unknown id, so Encode never fails.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	for _, frag := range textsplit.SplitSpecials(text, t.literals) {
		if frag.Special {
			if id, ok := t.vocab.TokenID(frag.Text); ok {
				ids = append(ids, id)
			}
			continue
		}
		for _, piece := range textsplit.Pretokenize(t.pretok, t.normalize(frag.Text)) {
			ids = t.appendPiece(ids, piece)
		}
	}
	return ids
}

func (t *Tokenizer) appendPiece(ids []int, piece string) []int {
	syms := make([]int, 0, utf8.RuneCountInString(piece))
	unknown := false
	for _, r := range piece {
		id, ok := t.vocab.TokenID(string(r))
		if !ok {
			id = unknownSym
			unknown = true
		}
		syms = append(syms, id)
	}
	for _, rl := range t.rules {
		if len(syms) < 2 {
			break
		}
		syms = rl.apply(syms)
	}
	if unknown {
		unk := t.vocab.UnknownID()
		for i, s := range syms {
			if s == unknownSym {
				syms[i] = unk
			}
		}
	}
	return append(ids, syms...)
}

// apply fuses every (left, right) adjacency in one leftmost pass. The fused
// symbol never matches its own rule again and later rules only consume
// symbols older than their own product, so one pass per rule in induction
// order reaches the fixed point.
func (rl rule) apply(syms []int) []int {
	out := syms[:0]
	for i := 0; i < len(syms); {
		if i+1 < len(syms) && syms[i] == rl.left && syms[i+1] == rl.right {
			out = append(out, rl.merged)
			i += 2
			continue
		}
		out = append(out, syms[i])
		i++
	}
	return out
}

// Decode maps each id back to its symbol and concatenates them. An id
// outside the vocabulary fails with api.ErrUnknownID.
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

// Vocab returns the vocabulary snapshot the tokenizer replays.
func (t *Tokenizer) Vocab() *vocab.Vocabulary { return t.vocab }
