package align

import (
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textprep/textprep/tokenizers/api"
)

const pad = 1

func mustAligner(t *testing.T, cfg Config) *Aligner {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

func seqOf(ids ...int) []int { return ids }

func TestWindowsDropPolicy(t *testing.T) {
	a := mustAligner(t, Config{Window: 4, Stride: 2, PadID: pad})
	source := seqOf(10, 11, 12, 13, 14, 15, 16, 17, 18, 19)

	pairs := a.Pairs(source)
	require.Len(t, pairs, 4)

	assert.Equal(t, []int{10, 11, 12, 13}, pairs[0].Input)
	assert.Equal(t, []int{11, 12, 13, 14}, pairs[0].Target)
	assert.Zero(t, pairs[0].Padding)

	assert.Equal(t, []int{12, 13, 14, 15}, pairs[1].Input)
	assert.Equal(t, []int{14, 15, 16, 17}, pairs[2].Input)

	// The final full window has no lookahead id left for its last target
	// position, so that one position pads.
	assert.Equal(t, []int{16, 17, 18, 19}, pairs[3].Input)
	assert.Equal(t, []int{17, 18, 19, pad}, pairs[3].Target)
	assert.Equal(t, 1, pairs[3].Padding)
}

func TestWindowsPadPolicy(t *testing.T) {
	a := mustAligner(t, Config{Window: 4, Stride: 2, Policy: Pad, PadID: pad})
	source := seqOf(10, 11, 12, 13, 14, 15, 16, 17, 18, 19)

	pairs := a.Pairs(source)
	require.Len(t, pairs, 5)

	last := pairs[4]
	assert.Equal(t, []int{18, 19, pad, pad}, last.Input)
	assert.Equal(t, []int{19, pad, pad, pad}, last.Target)
	assert.Equal(t, 3, last.Padding)
}

func TestWindowsShortSequence(t *testing.T) {
	drop := mustAligner(t, Config{Window: 4, Stride: 2, PadID: pad})
	assert.Empty(t, drop.Pairs(seqOf(7, 8, 9)))
	assert.Empty(t, drop.Pairs(nil))

	padded := mustAligner(t, Config{Window: 4, Stride: 2, Policy: Pad, PadID: pad})
	pairs := padded.Pairs(seqOf(7, 8, 9))
	require.Len(t, pairs, 1)
	assert.Equal(t, []int{7, 8, 9, pad}, pairs[0].Input)
	assert.Equal(t, []int{8, 9, pad, pad}, pairs[0].Target)
	assert.Equal(t, 2, pairs[0].Padding)

	assert.Empty(t, padded.Pairs(nil))
}

func TestWindowsTargetShift(t *testing.T) {
	source := seqOf(4, 9, 6, 8, 5, 7, 4, 6, 9, 5, 8)
	for _, policy := range []Policy{Drop, Pad} {
		a := mustAligner(t, Config{Window: 5, Stride: 3, Policy: policy, PadID: pad})
		for p := range a.Windows(source) {
			for i := 0; i+1 < len(p.Input); i++ {
				assert.Equal(t, p.Input[i+1], p.Target[i], "policy %v position %d", policy, i)
			}
		}
	}
}

func TestWindowsRestartable(t *testing.T) {
	a := mustAligner(t, Config{Window: 3, Stride: 1, Policy: Pad, PadID: pad})
	source := seqOf(10, 11, 12, 13, 14)

	windows := a.Windows(source)
	var first, second []Pair
	for p := range windows {
		first = append(first, p)
	}
	for p := range windows {
		second = append(second, p)
	}
	assert.Equal(t, first, second)
}

func TestWindowsCopiesDoNotAlias(t *testing.T) {
	a := mustAligner(t, Config{Window: 3, Stride: 1, PadID: pad})
	source := seqOf(10, 11, 12, 13)

	pairs := a.Pairs(source)
	pairs[0].Input[0] = 999
	pairs[0].Target[0] = 999

	assert.Equal(t, []int{10, 11, 12, 13}, source)
	again := a.Pairs(source)
	assert.Equal(t, 10, again[0].Input[0])
	assert.Equal(t, 11, again[0].Target[0])
}

func TestCountMatchesWindows(t *testing.T) {
	source := make([]int, 23)
	for i := range source {
		source[i] = 100 + i
	}
	for _, policy := range []Policy{Drop, Pad} {
		for window := 1; window <= 6; window++ {
			for stride := 1; stride <= 5; stride++ {
				a := mustAligner(t, Config{Window: window, Stride: stride, Policy: policy, PadID: pad})
				for n := 0; n <= len(source); n++ {
					want := len(a.Pairs(source[:n]))
					assert.Equal(t, want, a.Count(n), "policy %v L=%d S=%d N=%d", policy, window, stride, n)
				}
			}
		}
	}
}

func TestNewConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero window", Config{Window: 0, Stride: 1, PadID: pad}},
		{"negative stride", Config{Window: 4, Stride: -2, PadID: pad}},
		{"unknown policy", Config{Window: 4, Stride: 2, Policy: Policy(7), PadID: pad}},
		{"negative pad id", Config{Window: 4, Stride: 2, PadID: -1}},
		{"negative separator", Config{Window: 4, Stride: 2, PadID: pad, ConcatDocuments: true, SeparatorID: -3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, api.ErrInvalidConfig)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("drop")
	require.NoError(t, err)
	assert.Equal(t, Drop, p)

	p, err = ParsePolicy("pad")
	require.NoError(t, err)
	assert.Equal(t, Pad, p)

	_, err = ParsePolicy("wrap")
	assert.ErrorIs(t, err, api.ErrInvalidConfig)

	assert.Equal(t, "drop", Drop.String())
	assert.Equal(t, "pad", Pad.String())
}

func collect(seq iter.Seq[Pair]) []Pair {
	var pairs []Pair
	for p := range seq {
		pairs = append(pairs, p)
	}
	return pairs
}

func TestWindowsAllPerDocument(t *testing.T) {
	a := mustAligner(t, Config{Window: 4, Stride: 2, PadID: pad})
	docs := [][]int{
		{10, 11, 12, 13, 14},
		{20, 21, 22, 23},
	}

	pairs := collect(a.WindowsAll(slices.Values(docs)))
	require.Len(t, pairs, 2)
	// No pair mixes ids from both documents.
	assert.Equal(t, []int{10, 11, 12, 13}, pairs[0].Input)
	assert.Equal(t, []int{20, 21, 22, 23}, pairs[1].Input)
	assert.Equal(t, []int{21, 22, 23, pad}, pairs[1].Target)
}

func TestWindowsAllConcatenated(t *testing.T) {
	sep := 9
	a := mustAligner(t, Config{Window: 4, Stride: 1, PadID: pad, ConcatDocuments: true, SeparatorID: sep})
	docs := [][]int{
		{70, 71, 72},
		{80, 81, 82},
	}

	// Joined stream: 70 71 72 9 80 81 82.
	pairs := collect(a.WindowsAll(slices.Values(docs)))
	require.Len(t, pairs, 4)
	assert.Equal(t, []int{70, 71, 72, sep}, pairs[0].Input)
	assert.Equal(t, []int{71, 72, sep, 80}, pairs[0].Target)
	assert.Equal(t, []int{sep, 80, 81, 82}, pairs[3].Input)
	assert.Equal(t, []int{80, 81, 82, pad}, pairs[3].Target)
	assert.Equal(t, 1, pairs[3].Padding)
}

func TestWindowsAllConcatMatchesManualJoin(t *testing.T) {
	sep := 9
	docs := [][]int{
		{10, 11, 12, 13, 14},
		{20},
		nil,
		{30, 31, 32, 33, 34, 35},
	}
	var joined []int
	for i, d := range docs {
		if i > 0 {
			joined = append(joined, sep)
		}
		joined = append(joined, d...)
	}

	for _, policy := range []Policy{Drop, Pad} {
		a := mustAligner(t, Config{Window: 4, Stride: 3, Policy: policy, PadID: pad, ConcatDocuments: true, SeparatorID: sep})
		want := a.Pairs(joined)
		got := collect(a.WindowsAll(slices.Values(docs)))
		assert.Equal(t, want, got, "policy %v", policy)
	}
}

func TestWindowsAllRestartable(t *testing.T) {
	a := mustAligner(t, Config{Window: 2, Stride: 2, Policy: Pad, PadID: pad, ConcatDocuments: true, SeparatorID: 9})
	docs := [][]int{{10, 11, 12}, {20, 21}}

	windows := a.WindowsAll(slices.Values(docs))
	assert.Equal(t, collect(windows), collect(windows))
}
