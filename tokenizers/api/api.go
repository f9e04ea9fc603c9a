// Package api defines the Tokenizer API.
// It holds the definitions shared by every concrete tokenizer (bpe, wordpiece, words),
// so that users can depend on the interface without pulling in any implementation.
package api

import "github.com/pkg/errors"

// Tokenizer converts text to a sequence of integer ids and back.
//
// Encode never fails: base symbols absent from the vocabulary degrade to the
// unknown id. Decode fails when an id falls outside the vocabulary range.
//
// Implementations are pure functions over an immutable vocabulary snapshot and
// are safe for concurrent use without locking.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) (string, error)

	// VocabSize returns the number of ids in the vocabulary; valid ids are in [0, VocabSize()).
	VocabSize() int

	// SpecialTokenID returns the id for the given special token if registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)
}

// SpecialToken is an enum of the special tokens reserved in every vocabulary.
type SpecialToken int

const (
	TokUnknown SpecialToken = iota
	TokPad
	TokBeginningOfSequence
	TokEndOfSequence
	TokSpecialTokensCount
)

//go:generate enumer -type=SpecialToken -trimprefix=Tok -transform=snake -values -text -json -yaml api.go

// Symbol returns the default literal used for the special token in a vocabulary.
func (t SpecialToken) Symbol() string {
	switch t {
	case TokUnknown:
		return "<UNK>"
	case TokPad:
		return "<PAD>"
	case TokBeginningOfSequence:
		return "<BOS>"
	case TokEndOfSequence:
		return "<EOS>"
	}
	return ""
}

// DefaultSpecialSymbols returns the reserved symbols in their pinned id order:
// vocabularies built with the default configuration assign ids 0..3 to them.
func DefaultSpecialSymbols() []string {
	return []string{
		TokUnknown.Symbol(),
		TokPad.Symbol(),
		TokBeginningOfSequence.Symbol(),
		TokEndOfSequence.Symbol(),
	}
}

// Sentinel errors shared across the tokenizer implementations and the aligner.
// Callers match them with errors.Is; the wrapped message carries the detail.
var (
	// ErrInvalidConfig reports a configuration rejected before any data pass.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInsufficientData reports a training corpus with no usable symbols.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrUnknownID reports a decode id outside the vocabulary range.
	ErrUnknownID = errors.New("unknown token id")
)
