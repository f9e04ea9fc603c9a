package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textprep/textprep/align"
	"github.com/textprep/textprep/corpus"
	"github.com/textprep/textprep/tokenizers/api"
	"github.com/textprep/textprep/tokenizers/words"
)

var testDocs = []string{
	"the cat sat on the mat",
	"a dog ate the bone",
	"the bird flew over the cat",
	"mats and bones all over",
	"one more line about the dog",
	"and a short one",
	"cats chase birds",
	"dogs chase cats",
}

func testTokenizer(t *testing.T) *words.Tokenizer {
	t.Helper()
	v, err := words.Train(context.Background(), corpus.FromStrings(testDocs...), words.Config{})
	require.NoError(t, err)
	tok, err := words.New(v)
	require.NoError(t, err)
	return tok
}

func TestEncodeAllPreservesOrder(t *testing.T) {
	tok := testTokenizer(t)

	got, err := EncodeAll(context.Background(), tok, corpus.FromStrings(testDocs...), 4)
	require.NoError(t, err)
	require.Len(t, got, len(testDocs))
	for i, doc := range testDocs {
		assert.Equal(t, tok.Encode(doc), got[i], "document %d", i)
	}
}

func TestEncodeAllDefaultWorkers(t *testing.T) {
	tok := testTokenizer(t)

	got, err := EncodeAll(context.Background(), tok, corpus.FromStrings("the cat", "a dog"), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, tok.Encode("the cat"), got[0])
}

func TestEncodeAllEmptyStream(t *testing.T) {
	tok := testTokenizer(t)

	got, err := EncodeAll(context.Background(), tok, corpus.FromStrings(), 2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncodeAllCorpusError(t *testing.T) {
	tok := testTokenizer(t)
	cause := errors.New("stream broken")
	docs := corpus.Stream(func(yield func(string, error) bool) {
		if !yield("the cat", nil) {
			return
		}
		yield("", cause)
	})

	_, err := EncodeAll(context.Background(), tok, docs, 2)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "reading corpus")
}

func TestEncodeAllCancelled(t *testing.T) {
	tok := testTokenizer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := EncodeAll(ctx, tok, corpus.FromStrings(testDocs...), 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAlignAllPerDocument(t *testing.T) {
	tok := testTokenizer(t)
	aligner, err := align.New(align.Config{Window: 4, Stride: 2, PadID: tok.Vocab().PadID()})
	require.NoError(t, err)

	got, err := AlignAll(context.Background(), tok, corpus.FromStrings(testDocs...), aligner, 3)
	require.NoError(t, err)

	var want []align.Pair
	for _, doc := range testDocs {
		want = append(want, aligner.Pairs(tok.Encode(doc))...)
	}
	assert.Equal(t, want, got)
}

func TestAlignAllConcatenated(t *testing.T) {
	tok := testTokenizer(t)
	sep, err := tok.Vocab().SpecialTokenID(api.TokEndOfSequence)
	require.NoError(t, err)
	aligner, err := align.New(align.Config{
		Window: 4, Stride: 4, PadID: tok.Vocab().PadID(),
		ConcatDocuments: true, SeparatorID: sep,
	})
	require.NoError(t, err)

	got, err := AlignAll(context.Background(), tok, corpus.FromStrings(testDocs...), aligner, 3)
	require.NoError(t, err)

	seqs := make([][]int, len(testDocs))
	for i, doc := range testDocs {
		seqs[i] = tok.Encode(doc)
	}
	var want []align.Pair
	for p := range aligner.WindowsAll(slices.Values(seqs)) {
		want = append(want, p)
	}
	assert.Equal(t, want, got)
}
