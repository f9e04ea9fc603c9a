package vocab

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// jsonFormatVersion is bumped on incompatible changes to the JSON layout.
const jsonFormatVersion = 1

type jsonTokenID struct {
	Token string `json:"token"`
	ID    int    `json:"id"`
}

type jsonVocabulary struct {
	FormatVersion int           `json:"format_version"`
	Fingerprint   string        `json:"fingerprint"`
	Algorithm     string        `json:"algorithm"`
	Normalizer    string        `json:"normalizer,omitempty"`
	Pretokenizer  string        `json:"pretokenizer,omitempty"`
	SubwordPrefix string        `json:"subword_prefix,omitempty"`
	VocabSize     int           `json:"vocab_size"`
	SpecialTokens []jsonTokenID `json:"special_tokens"`
	BaseTokens    []jsonTokenID `json:"base_tokens"`
	Merges        [][2]string   `json:"merges"`
}

// WriteJSON writes the vocabulary as an indented JSON document. The merge
// array order is the induction order and must be preserved by any tool that
// touches the file.
func WriteJSON(w io.Writer, v *Vocabulary) error {
	s := split(v)
	doc := jsonVocabulary{
		FormatVersion: jsonFormatVersion,
		Fingerprint:   s.Fingerprint,
		Algorithm:     s.Algorithm,
		Normalizer:    s.Normalizer,
		Pretokenizer:  s.Pretokenizer,
		SubwordPrefix: s.SubwordPrefix,
		VocabSize:     s.VocabSize,
		SpecialTokens: make([]jsonTokenID, 0, len(s.Specials)),
		BaseTokens:    make([]jsonTokenID, 0, len(s.Base)),
		Merges:        make([][2]string, 0, len(s.Merges)),
	}
	for _, t := range s.Specials {
		doc.SpecialTokens = append(doc.SpecialTokens, jsonTokenID(t))
	}
	for _, t := range s.Base {
		doc.BaseTokens = append(doc.BaseTokens, jsonTokenID(t))
	}
	for _, rule := range s.Merges {
		doc.Merges = append(doc.Merges, [2]string{rule.Left, rule.Right})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encoding vocabulary JSON")
	}
	return nil
}

// ReadJSON parses a JSON vocabulary document, rebuilding and validating the
// snapshot. Reload reproduces encoding bit-identically: ids, merge order and
// metadata all survive the round trip.
func ReadJSON(r io.Reader) (*Vocabulary, error) {
	var doc jsonVocabulary
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "parsing vocabulary JSON")
	}
	if doc.FormatVersion != jsonFormatVersion {
		return nil, errors.Errorf("unsupported vocabulary JSON format version %d (want %d)", doc.FormatVersion, jsonFormatVersion)
	}

	s := sections{
		Fingerprint:   doc.Fingerprint,
		Algorithm:     doc.Algorithm,
		Normalizer:    doc.Normalizer,
		Pretokenizer:  doc.Pretokenizer,
		SubwordPrefix: doc.SubwordPrefix,
		VocabSize:     doc.VocabSize,
		Specials:      make([]tokenID, 0, len(doc.SpecialTokens)),
		Base:          make([]tokenID, 0, len(doc.BaseTokens)),
		Merges:        make([]MergeRule, 0, len(doc.Merges)),
	}
	for _, t := range doc.SpecialTokens {
		s.Specials = append(s.Specials, tokenID(t))
	}
	for _, t := range doc.BaseTokens {
		s.Base = append(s.Base, tokenID(t))
	}
	for _, pair := range doc.Merges {
		s.Merges = append(s.Merges, MergeRule{Left: pair[0], Right: pair[1]})
	}
	return join(s)
}
