package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textprep/textprep/tokenizers/api"
)

func testSpec() Spec {
	return Spec{
		Algorithm: AlgorithmBPE,
		Specials:  api.DefaultSpecialSymbols(),
		Base:      []string{"b", "a", "c", "d"},
		Merges:    []MergeRule{{"a", "a"}, {"aa", "a"}, {"aaa", "b"}},
	}
}

func TestBuildAssignsCanonicalIDs(t *testing.T) {
	v, err := Build(testSpec())
	require.NoError(t, err)

	assert.Equal(t, 11, v.Size())
	assert.Equal(t, 4, v.NumSpecials())
	assert.Equal(t, 4, v.NumBase())

	// Specials pinned in configuration order.
	for i, symbol := range []string{"<UNK>", "<PAD>", "<BOS>", "<EOS>"} {
		id, ok := v.TokenID(symbol)
		require.True(t, ok, symbol)
		assert.Equal(t, i, id)
		assert.True(t, v.IsSpecial(id))
	}
	// Base symbols sorted lexicographically after the specials.
	for i, symbol := range []string{"a", "b", "c", "d"} {
		id, ok := v.TokenID(symbol)
		require.True(t, ok, symbol)
		assert.Equal(t, 4+i, id)
		assert.False(t, v.IsSpecial(id))
	}
	// Merged symbols appended in induction order.
	for i, symbol := range []string{"aa", "aaa", "aaab"} {
		id, ok := v.TokenID(symbol)
		require.True(t, ok, symbol)
		assert.Equal(t, 8+i, id)
	}
}

func TestTokenInverseOfTokenID(t *testing.T) {
	v, err := Build(testSpec())
	require.NoError(t, err)

	for id := 0; id < v.Size(); id++ {
		token, err := v.Token(id)
		require.NoError(t, err)
		back, ok := v.TokenID(token)
		require.True(t, ok)
		assert.Equal(t, id, back)
	}
}

func TestTokenOutOfRange(t *testing.T) {
	v, err := Build(testSpec())
	require.NoError(t, err)

	_, err = v.Token(-1)
	assert.ErrorIs(t, err, api.ErrUnknownID)
	_, err = v.Token(v.Size())
	assert.ErrorIs(t, err, api.ErrUnknownID)
	_, err = v.Token(999)
	assert.ErrorIs(t, err, api.ErrUnknownID)
}

func TestBuildRejectsInvalidSpecs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"unknown algorithm", func(s *Spec) { s.Algorithm = "unigram" }},
		{"unknown normalizer", func(s *Spec) { s.Normalizer = "nfz" }},
		{"bad fingerprint", func(s *Spec) { s.Fingerprint = "not-a-uuid" }},
		{"no specials", func(s *Spec) { s.Specials = nil }},
		{"missing unknown symbol", func(s *Spec) { s.Specials = []string{"<PAD>"} }},
		{"missing pad symbol", func(s *Spec) { s.Specials = []string{"<UNK>"} }},
		{"duplicate base token", func(s *Spec) { s.Base = append(s.Base, "a") }},
		{"base clashes with special", func(s *Spec) { s.Base = append(s.Base, "<PAD>") }},
		{"empty token", func(s *Spec) { s.Base = append(s.Base, "") }},
		{"merge references unknown symbol", func(s *Spec) { s.Merges = []MergeRule{{"a", "z"}} }},
		{"merge uses special token", func(s *Spec) { s.Merges = []MergeRule{{"<BOS>", "a"}} }},
		{"merge out of dependency order", func(s *Spec) { s.Merges = []MergeRule{{"aa", "a"}, {"a", "a"}} }},
		{"duplicate merge rule", func(s *Spec) { s.Merges = []MergeRule{{"a", "a"}, {"a", "a"}} }},
		{"merge result duplicates base", func(s *Spec) { s.Base = append(s.Base, "aa"); s.Merges = s.Merges[:1] }},
		{"merges on words algorithm", func(s *Spec) { s.Algorithm = AlgorithmWords }},
		{"subword prefix outside wordpiece", func(s *Spec) { s.SubwordPrefix = "##"; s.Merges = nil }},
		{"wordpiece without prefix", func(s *Spec) { s.Algorithm = AlgorithmWordPiece; s.Merges = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testSpec()
			tt.mutate(&spec)
			_, err := Build(spec)
			assert.ErrorIs(t, err, api.ErrInvalidConfig)
		})
	}
}

func TestSpecialTokenID(t *testing.T) {
	v, err := Build(testSpec())
	require.NoError(t, err)

	id, err := v.SpecialTokenID(api.TokBeginningOfSequence)
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	assert.Equal(t, 0, v.UnknownID())
	assert.Equal(t, 1, v.PadID())

	// Without <EOS> in the special set the lookup must fail.
	spec := testSpec()
	spec.Specials = []string{"<UNK>", "<PAD>"}
	v2, err := Build(spec)
	require.NoError(t, err)
	_, err = v2.SpecialTokenID(api.TokEndOfSequence)
	assert.Error(t, err)
}

func TestMergeRank(t *testing.T) {
	v, err := Build(testSpec())
	require.NoError(t, err)

	rank, ok := v.MergeRank("a", "a")
	require.True(t, ok)
	assert.Equal(t, 0, rank)

	rank, ok = v.MergeRank("aaa", "b")
	require.True(t, ok)
	assert.Equal(t, 2, rank)

	_, ok = v.MergeRank("a", "b")
	assert.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	v1, err := Build(testSpec())
	require.NoError(t, err)
	v2, err := Build(testSpec())
	require.NoError(t, err)
	// Every Build produces a distinct snapshot identity.
	assert.NotEqual(t, v1.Fingerprint(), v2.Fingerprint())

	spec := testSpec()
	spec.Fingerprint = "7d444840-9dc0-11d1-b245-5ffdce74fad2"
	v3, err := Build(spec)
	require.NoError(t, err)
	assert.Equal(t, spec.Fingerprint, v3.Fingerprint())
}

func TestNormalizerFunc(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"", "Héllo", "Héllo"},
		{"lower", "Héllo", "héllo"},
		{"nfc", "é", "é"},
		{"nfd", "é", "é"},
		{"nfkc", "ﬁ", "fi"},
		{"nfkc+lower", "ﬁX", "fix"},
	}
	for _, tt := range tests {
		t.Run("name="+tt.name, func(t *testing.T) {
			fn, err := NormalizerFunc(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fn(tt.in))
		})
	}

	_, err := NormalizerFunc("latin1")
	assert.ErrorIs(t, err, api.ErrInvalidConfig)
}
