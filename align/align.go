// Package align turns encoded id sequences into input/target training
// pairs for next-token prediction, using sliding windows with a
// configurable stride and boundary policy.
package align

import (
	"iter"

	"github.com/pkg/errors"

	"github.com/textprep/textprep/tokenizers/api"
)

// Policy selects how the trailing partial window of a sequence is handled.
type Policy int

const (
	// Drop discards the trailing partial window. The default; avoids
	// padding bias during training.
	Drop Policy = iota
	// Pad emits the trailing partial window, extended to full length with
	// the padding id.
	Pad
)

func (p Policy) String() string {
	switch p {
	case Drop:
		return "drop"
	case Pad:
		return "pad"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a policy name to its value.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "drop":
		return Drop, nil
	case "pad":
		return Pad, nil
	default:
		return 0, errors.Wrapf(api.ErrInvalidConfig, "unknown boundary policy %q", s)
	}
}

// Pair is one training example for next-token prediction: Target is Input
// shifted left by one position. Padding counts the trailing Target
// positions holding the padding id, so a loss mask can be derived
// downstream. Both slices are copies and never alias the source sequence.
type Pair struct {
	Input   []int
	Target  []int
	Padding int
}

// Config controls window generation.
type Config struct {
	// Window is the pair length, Stride the distance between consecutive
	// window starts. Both must be positive.
	Window int
	Stride int

	// Policy governs the trailing partial window. Defaults to Drop.
	Policy Policy

	// PadID fills the target lookahead past the end of data and, under
	// Pad, the trailing partial window. Usually vocab.PadID().
	PadID int

	// ConcatDocuments makes WindowsAll join documents with SeparatorID
	// between them, letting windows cross document boundaries. Off,
	// windows never cross a document.
	ConcatDocuments bool
	SeparatorID     int
}

// Aligner generates training pairs. It is immutable after New and safe for
// concurrent use; windowing independent sequences in parallel needs no
// coordination.
type Aligner struct {
	window    int
	stride    int
	policy    Policy
	padID     int
	concat    bool
	separator int
}

// New validates the configuration before any data is touched.
func New(cfg Config) (*Aligner, error) {
	if cfg.Window <= 0 {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "window length %d must be positive", cfg.Window)
	}
	if cfg.Stride <= 0 {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "stride %d must be positive", cfg.Stride)
	}
	if cfg.Policy != Drop && cfg.Policy != Pad {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "unknown boundary policy %d", cfg.Policy)
	}
	if cfg.PadID < 0 {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "padding id %d must be a vocabulary id", cfg.PadID)
	}
	if cfg.ConcatDocuments && cfg.SeparatorID < 0 {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "separator id %d must be a vocabulary id", cfg.SeparatorID)
	}
	return &Aligner{
		window:    cfg.Window,
		stride:    cfg.Stride,
		policy:    cfg.Policy,
		padID:     cfg.PadID,
		concat:    cfg.ConcatDocuments,
		separator: cfg.SeparatorID,
	}, nil
}

// ConcatDocuments reports whether WindowsAll joins documents instead of
// windowing them independently.
func (a *Aligner) ConcatDocuments() bool { return a.concat }

// Windows yields the training pairs of one sequence: window starts run
// 0, S, 2S, ... while start+L stays within the sequence, and under Pad one
// trailing partial window follows. The sequence is lazy and restartable;
// re-ranging starts over. A sequence shorter than the window yields
// nothing under Drop.
func (a *Aligner) Windows(seq []int) iter.Seq[Pair] {
	return func(yield func(Pair) bool) {
		n := len(seq)
		s := 0
		for ; s+a.window <= n; s += a.stride {
			if !yield(a.pairWindow(seq, 0, s, n)) {
				return
			}
		}
		if a.policy == Pad && s < n {
			yield(a.pairWindow(seq, 0, s, n))
		}
	}
}

// Pairs materializes Windows.
func (a *Aligner) Pairs(seq []int) []Pair {
	pairs := make([]Pair, 0, a.Count(len(seq)))
	for p := range a.Windows(seq) {
		pairs = append(pairs, p)
	}
	return pairs
}

// Count returns the number of pairs Windows yields for a sequence of
// length n, in closed form: max(0, (n-L)/S + 1) full windows, plus one
// under Pad when the next stride start still falls inside the sequence.
func (a *Aligner) Count(n int) int {
	full := 0
	if n >= a.window {
		full = (n-a.window)/a.stride + 1
	}
	if a.policy == Pad && full*a.stride < n {
		return full + 1
	}
	return full
}

// WindowsAll windows a stream of encoded documents. Without
// ConcatDocuments every document is windowed on its own and no pair ever
// spans two documents; with it, documents are joined with the separator id
// between them and windows slide over the joined stream, crossing
// boundaries. Restartable when seqs is.
func (a *Aligner) WindowsAll(seqs iter.Seq[[]int]) iter.Seq[Pair] {
	if !a.concat {
		return func(yield func(Pair) bool) {
			for seq := range seqs {
				for p := range a.Windows(seq) {
					if !yield(p) {
						return
					}
				}
			}
		}
	}
	return func(yield func(Pair) bool) {
		// Buffered ids from position base onward; windows are emitted as
		// soon as their target lookahead is in the buffer, and the consumed
		// prefix is compacted away between documents.
		var buf []int
		base, start, n := 0, 0, 0
		first := true
		for seq := range seqs {
			if !first {
				buf = append(buf, a.separator)
				n++
			}
			first = false
			buf = append(buf, seq...)
			n += len(seq)
			for start+a.window+1 <= n {
				if !yield(a.pairWindow(buf, base, start, n)) {
					return
				}
				start += a.stride
			}
			if start > base {
				buf = append(buf[:0], buf[start-base:]...)
				base = start
			}
		}
		for ; start+a.window <= n; start += a.stride {
			if !yield(a.pairWindow(buf, base, start, n)) {
				return
			}
		}
		if a.policy == Pad && start < n {
			yield(a.pairWindow(buf, base, start, n))
		}
	}
}

// pairWindow builds the pair starting at absolute position s. buf holds
// positions base..base+len(buf) of the source; n is the source length.
// Positions at n and beyond read as the padding id.
func (a *Aligner) pairWindow(buf []int, base, s, n int) Pair {
	input := make([]int, a.window)
	target := make([]int, a.window)
	padding := 0
	for j := 0; j < a.window; j++ {
		if k := s + j; k < n {
			input[j] = buf[k-base]
		} else {
			input[j] = a.padID
		}
		if k := s + 1 + j; k < n {
			target[j] = buf[k-base]
		} else {
			target[j] = a.padID
			padding++
		}
	}
	return Pair{Input: input, Target: target, Padding: padding}
}
