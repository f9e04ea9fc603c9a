// Package textsplit prepares raw text for the tokenizers: carving out
// special-token literals and splitting the remainder into the units that
// merges and piece matching may not cross.
package textsplit

import (
	"slices"
	"strings"

	"github.com/dlclark/regexp2"
)

// Fragment is a run of plain text or one recognized special-token literal.
type Fragment struct {
	Text    string
	Special bool
}

// OrderedLiterals returns the special-token literals longest first, so that
// overlapping literals split the same way regardless of configured order.
func OrderedLiterals(specials []string) []string {
	literals := slices.Clone(specials)
	slices.SortFunc(literals, func(a, b string) int {
		if d := len(b) - len(a); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	return literals
}

// SplitSpecials carves special-token literals out of text. Each literal
// becomes a standalone fragment; the surrounding text is handled as if the
// literal were a document boundary, so no unit ever crosses it.
func SplitSpecials(text string, literals []string) []Fragment {
	frags := []Fragment{{Text: text}}
	for _, literal := range literals {
		for i := 0; i < len(frags); i++ {
			frag := frags[i]
			if frag.Special {
				continue
			}
			idx := strings.Index(frag.Text, literal)
			if idx < 0 {
				continue
			}
			var middle []Fragment
			if idx > 0 {
				middle = append(middle, Fragment{Text: frag.Text[:idx]})
			}
			middle = append(middle, Fragment{Text: literal, Special: true})
			if rest := frag.Text[idx+len(literal):]; rest != "" {
				middle = append(middle, Fragment{Text: rest})
			}
			frags = append(frags[:i], append(middle, frags[i+1:]...)...)
		}
	}
	return frags
}

// Pretokenize splits text into units at the pattern's match edges. Both the
// matches and the gaps between them are kept, in order, so the split loses
// no text. A nil pattern keeps the text whole.
func Pretokenize(re *regexp2.Regexp, text string) []string {
	if text == "" {
		return nil
	}
	if re == nil {
		return []string{text}
	}
	runes := []rune(text)
	var parts []string
	var offset int
	for m, _ := re.FindRunesMatch(runes); m != nil; m, _ = re.FindNextMatch(m) {
		if m.Length == 0 {
			break
		}
		if m.Index > offset {
			parts = append(parts, string(runes[offset:m.Index]))
		}
		parts = append(parts, m.String())
		offset = m.Index + m.Length
	}
	if offset < len(runes) {
		parts = append(parts, string(runes[offset:]))
	}
	return parts
}

// Matches returns only the pattern's matches, dropping the gaps. This is the
// split used by the word-level tokenizers, where the pattern decides what
// counts as a unit and everything between units is discarded.
func Matches(re *regexp2.Regexp, text string) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var parts []string
	for m, _ := re.FindRunesMatch(runes); m != nil; m, _ = re.FindNextMatch(m) {
		if m.Length == 0 {
			break
		}
		parts = append(parts, m.String())
	}
	return parts
}
