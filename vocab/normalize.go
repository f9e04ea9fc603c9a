package vocab

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/textprep/textprep/tokenizers/api"
)

// NormalizerFunc returns the normalization function for the given name.
//
// Accepted names: "" (identity), "lower", and the Unicode normalization forms
// "nfc", "nfd", "nfkc", "nfkd", each optionally suffixed with "+lower".
// Normalization runs before symbol extraction both at training and at encode
// time; anything other than the identity trades exact round-trips for a
// smaller base alphabet.
func NormalizerFunc(name string) (func(string) string, error) {
	base := name
	lower := false
	if stripped, ok := strings.CutSuffix(base, "+lower"); ok {
		base = stripped
		lower = true
	}
	if base == "lower" {
		base = ""
		lower = true
	}

	var form norm.Form
	hasForm := true
	switch base {
	case "":
		hasForm = false
	case "nfc":
		form = norm.NFC
	case "nfd":
		form = norm.NFD
	case "nfkc":
		form = norm.NFKC
	case "nfkd":
		form = norm.NFKD
	default:
		return nil, errors.Wrapf(api.ErrInvalidConfig, "unknown normalizer %q", name)
	}

	if !hasForm && !lower {
		return func(s string) string { return s }, nil
	}
	return func(s string) string {
		if hasForm {
			s = form.String(s)
		}
		if lower {
			s = strings.ToLower(s)
		}
		return s
	}, nil
}
