// Package vocab holds the immutable vocabulary snapshot produced by the
// trainers and consumed by the tokenizers, together with its JSON and binary
// persistence formats and a file store with locked atomic writes.
//
// A Vocabulary assigns contiguous ids in [0, Size()): the special tokens
// first, pinned in their configured order, then the base symbols sorted
// lexicographically, then one merged symbol per merge rule in induction
// order. Snapshots are immutable once Build returns; training again produces
// a new snapshot with a new fingerprint.
package vocab

import (
	"slices"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/textprep/textprep/tokenizers/api"
)

// Algorithm names recorded in snapshots.
const (
	AlgorithmBPE       = "bpe"
	AlgorithmWordPiece = "wordpiece"
	AlgorithmWords     = "words"
)

// MergeRule records one learned merge: occurrences of Left immediately
// followed by Right combine into the symbol Left+Right.
type MergeRule struct {
	Left  string
	Right string
}

// Token returns the symbol the rule produces.
func (r MergeRule) Token() string { return r.Left + r.Right }

// Spec is the raw material Build assembles a Vocabulary from.
type Spec struct {
	// Fingerprint identifies the snapshot. Build assigns a fresh UUID when empty.
	Fingerprint string

	// Algorithm is one of AlgorithmBPE, AlgorithmWordPiece or AlgorithmWords.
	Algorithm string

	// Normalizer names the text normalization applied before symbol
	// extraction, replayed at encode time. See NormalizerFunc for the
	// accepted names; empty means none.
	Normalizer string

	// Pretokenizer is an optional regexp pattern splitting text before
	// merging; merges never cross the resulting boundaries.
	Pretokenizer string

	// SubwordPrefix marks continuation pieces ("##" for wordpiece).
	SubwordPrefix string

	// Specials are pinned to ids 0..len(Specials)-1 in the given order.
	// The unknown and pad symbols must be present.
	Specials []string

	// Base symbols receive the ids following the specials, sorted
	// lexicographically. Build sorts a copy, so the order here is free.
	Base []string

	// Merges in induction order. Only AlgorithmBPE carries merges; each
	// rule's sides must resolve to a base symbol or an earlier rule's token.
	Merges []MergeRule
}

// Vocabulary is an immutable id<->token table plus the metadata needed to
// reproduce encoding exactly after a reload.
type Vocabulary struct {
	fingerprint   string
	algorithm     string
	normalizer    string
	pretokenizer  string
	subwordPrefix string

	tokens  []string
	ids     map[string]int
	numSpec int
	numBase int
	merges  []MergeRule
	ranks   map[MergeRule]int

	specialIDs [api.TokSpecialTokensCount]int
}

// Build validates the spec and assembles the snapshot. All violations are
// reported wrapping api.ErrInvalidConfig.
func Build(spec Spec) (*Vocabulary, error) {
	switch spec.Algorithm {
	case AlgorithmBPE, AlgorithmWordPiece, AlgorithmWords:
	default:
		return nil, errors.Wrapf(api.ErrInvalidConfig, "unknown algorithm %q", spec.Algorithm)
	}
	if _, err := NormalizerFunc(spec.Normalizer); err != nil {
		return nil, err
	}
	if spec.Fingerprint != "" {
		if err := uuid.Validate(spec.Fingerprint); err != nil {
			return nil, errors.Wrapf(api.ErrInvalidConfig, "fingerprint %q is not a UUID", spec.Fingerprint)
		}
	}
	if spec.SubwordPrefix != "" && spec.Algorithm != AlgorithmWordPiece {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "subword prefix %q only applies to the wordpiece algorithm", spec.SubwordPrefix)
	}
	if spec.SubwordPrefix == "" && spec.Algorithm == AlgorithmWordPiece {
		return nil, errors.Wrap(api.ErrInvalidConfig, "wordpiece vocabulary requires a subword prefix")
	}
	if len(spec.Merges) > 0 && spec.Algorithm != AlgorithmBPE {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "algorithm %q does not take merge rules", spec.Algorithm)
	}
	if len(spec.Specials) == 0 {
		return nil, errors.Wrap(api.ErrInvalidConfig, "no special tokens; the unknown and pad symbols are required")
	}

	v := &Vocabulary{
		fingerprint:   spec.Fingerprint,
		algorithm:     spec.Algorithm,
		normalizer:    spec.Normalizer,
		pretokenizer:  spec.Pretokenizer,
		subwordPrefix: spec.SubwordPrefix,
		numSpec:       len(spec.Specials),
		numBase:       len(spec.Base),
		ids:           make(map[string]int, len(spec.Specials)+len(spec.Base)+len(spec.Merges)),
	}
	if v.fingerprint == "" {
		v.fingerprint = uuid.NewString()
	}

	add := func(token string) error {
		if token == "" {
			return errors.Wrap(api.ErrInvalidConfig, "empty token")
		}
		if _, dup := v.ids[token]; dup {
			return errors.Wrapf(api.ErrInvalidConfig, "duplicate token %q", token)
		}
		v.ids[token] = len(v.tokens)
		v.tokens = append(v.tokens, token)
		return nil
	}

	for _, s := range spec.Specials {
		if err := add(s); err != nil {
			return nil, err
		}
	}
	base := slices.Clone(spec.Base)
	slices.Sort(base)
	for _, b := range base {
		if err := add(b); err != nil {
			return nil, err
		}
	}

	v.merges = slices.Clone(spec.Merges)
	v.ranks = make(map[MergeRule]int, len(v.merges))
	for i, rule := range v.merges {
		for _, side := range []string{rule.Left, rule.Right} {
			id, ok := v.ids[side]
			if !ok {
				return nil, errors.Wrapf(api.ErrInvalidConfig, "merge rule %d references unknown symbol %q", i, side)
			}
			if id < v.numSpec {
				return nil, errors.Wrapf(api.ErrInvalidConfig, "merge rule %d uses special token %q", i, side)
			}
		}
		if _, dup := v.ranks[rule]; dup {
			return nil, errors.Wrapf(api.ErrInvalidConfig, "duplicate merge rule %d (%q, %q)", i, rule.Left, rule.Right)
		}
		if err := add(rule.Token()); err != nil {
			return nil, errors.WithMessagef(err, "merge rule %d", i)
		}
		v.ranks[rule] = i
	}

	for tok := api.SpecialToken(0); tok < api.TokSpecialTokensCount; tok++ {
		v.specialIDs[tok] = -1
		if id, ok := v.ids[tok.Symbol()]; ok && id < v.numSpec {
			v.specialIDs[tok] = id
		}
	}
	if v.specialIDs[api.TokUnknown] < 0 {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "special tokens miss the unknown symbol %q", api.TokUnknown.Symbol())
	}
	if v.specialIDs[api.TokPad] < 0 {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "special tokens miss the pad symbol %q", api.TokPad.Symbol())
	}

	return v, nil
}

// Fingerprint returns the UUID identifying this snapshot.
func (v *Vocabulary) Fingerprint() string { return v.fingerprint }

// Algorithm returns the inducing algorithm name.
func (v *Vocabulary) Algorithm() string { return v.algorithm }

// Normalizer returns the recorded normalization name ("" for none).
func (v *Vocabulary) Normalizer() string { return v.normalizer }

// Pretokenizer returns the recorded pretokenizer pattern ("" for none).
func (v *Vocabulary) Pretokenizer() string { return v.pretokenizer }

// SubwordPrefix returns the continuation prefix ("" outside wordpiece).
func (v *Vocabulary) SubwordPrefix() string { return v.subwordPrefix }

// Size returns the number of ids; valid ids are in [0, Size()).
func (v *Vocabulary) Size() int { return len(v.tokens) }

// NumSpecials returns how many leading ids are special tokens.
func (v *Vocabulary) NumSpecials() int { return v.numSpec }

// NumBase returns the number of base symbols.
func (v *Vocabulary) NumBase() int { return v.numBase }

// IsSpecial reports whether id belongs to the pinned special range.
func (v *Vocabulary) IsSpecial(id int) bool { return id >= 0 && id < v.numSpec }

// TokenID returns the id for a token and whether it is present.
func (v *Vocabulary) TokenID(token string) (int, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Token returns the token for an id, or api.ErrUnknownID when the id falls
// outside the vocabulary range.
func (v *Vocabulary) Token(id int) (string, error) {
	if id < 0 || id >= len(v.tokens) {
		return "", errors.Wrapf(api.ErrUnknownID, "id %d outside vocabulary of size %d", id, len(v.tokens))
	}
	return v.tokens[id], nil
}

// Specials returns the special tokens in pinned id order.
func (v *Vocabulary) Specials() []string {
	return slices.Clone(v.tokens[:v.numSpec])
}

// BaseTokens returns the base symbols in id order.
func (v *Vocabulary) BaseTokens() []string {
	return slices.Clone(v.tokens[v.numSpec : v.numSpec+v.numBase])
}

// Merges returns the merge rules in induction order.
func (v *Vocabulary) Merges() []MergeRule {
	return slices.Clone(v.merges)
}

// MergeRank returns the induction index of the (left, right) rule and whether
// such a rule exists. Lower rank means learned earlier.
func (v *Vocabulary) MergeRank(left, right string) (int, bool) {
	rank, ok := v.ranks[MergeRule{Left: left, Right: right}]
	return rank, ok
}

// SpecialTokenID returns the id for the given special token if registered.
func (v *Vocabulary) SpecialTokenID(token api.SpecialToken) (int, error) {
	if token < 0 || token >= api.TokSpecialTokensCount {
		return 0, errors.Errorf("special token %d out of range", token)
	}
	if id := v.specialIDs[token]; id >= 0 {
		return id, nil
	}
	return 0, errors.Errorf("special token %q not registered", token.Symbol())
}

// UnknownID returns the pinned unknown id. Build guarantees it exists.
func (v *Vocabulary) UnknownID() int { return v.specialIDs[api.TokUnknown] }

// PadID returns the pinned pad id. Build guarantees it exists.
func (v *Vocabulary) PadID() int { return v.specialIDs[api.TokPad] }
