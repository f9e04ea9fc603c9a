package vocab

import (
	"slices"

	"github.com/pkg/errors"
)

// tokenID pairs a token with its persisted id.
type tokenID struct {
	Token string
	ID    int
}

// sections is the persisted shape shared by the JSON and binary codecs:
// metadata, the special table, the base table and the merge list, in that
// order. Section order and the order within each section are semantically
// significant.
type sections struct {
	Fingerprint   string
	Algorithm     string
	Normalizer    string
	Pretokenizer  string
	SubwordPrefix string
	VocabSize     int
	Specials      []tokenID
	Base          []tokenID
	Merges        []MergeRule
}

// split decomposes a vocabulary into its persisted sections.
func split(v *Vocabulary) sections {
	s := sections{
		Fingerprint:   v.fingerprint,
		Algorithm:     v.algorithm,
		Normalizer:    v.normalizer,
		Pretokenizer:  v.pretokenizer,
		SubwordPrefix: v.subwordPrefix,
		VocabSize:     v.Size(),
		Specials:      make([]tokenID, 0, v.numSpec),
		Base:          make([]tokenID, 0, v.numBase),
		Merges:        slices.Clone(v.merges),
	}
	for id := 0; id < v.numSpec; id++ {
		s.Specials = append(s.Specials, tokenID{Token: v.tokens[id], ID: id})
	}
	for id := v.numSpec; id < v.numSpec+v.numBase; id++ {
		s.Base = append(s.Base, tokenID{Token: v.tokens[id], ID: id})
	}
	return s
}

// join rebuilds a Vocabulary from persisted sections and verifies the
// recorded ids match the canonical assignment, so a tampered or corrupted
// file cannot produce a vocabulary that silently encodes differently.
func join(s sections) (*Vocabulary, error) {
	spec := Spec{
		Fingerprint:   s.Fingerprint,
		Algorithm:     s.Algorithm,
		Normalizer:    s.Normalizer,
		Pretokenizer:  s.Pretokenizer,
		SubwordPrefix: s.SubwordPrefix,
		Specials:      make([]string, 0, len(s.Specials)),
		Base:          make([]string, 0, len(s.Base)),
		Merges:        slices.Clone(s.Merges),
	}
	for _, t := range s.Specials {
		spec.Specials = append(spec.Specials, t.Token)
	}
	for _, t := range s.Base {
		spec.Base = append(spec.Base, t.Token)
	}

	v, err := Build(spec)
	if err != nil {
		return nil, errors.WithMessage(err, "rebuilding persisted vocabulary")
	}
	if v.Size() != s.VocabSize {
		return nil, errors.Errorf("vocabulary size mismatch: header says %d, sections carry %d", s.VocabSize, v.Size())
	}
	for _, t := range s.Specials {
		if id, ok := v.TokenID(t.Token); !ok || id != t.ID {
			return nil, errors.Errorf("special token %q persisted with id %d, canonical id is %d", t.Token, t.ID, id)
		}
	}
	for _, t := range s.Base {
		if id, ok := v.TokenID(t.Token); !ok || id != t.ID {
			return nil, errors.Errorf("base token %q persisted with id %d, canonical id is %d", t.Token, t.ID, id)
		}
	}
	return v, nil
}
