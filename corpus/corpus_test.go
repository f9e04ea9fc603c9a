package corpus

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStrings(t *testing.T) {
	s := FromStrings("one", "two", "three")

	docs, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, docs)
}

// TestStreamRestartable checks that a second pass sees the same documents.
func TestStreamRestartable(t *testing.T) {
	s := FromStrings("a", "b")

	first, err := Collect(s)
	require.NoError(t, err)
	second, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStreamEarlyStop(t *testing.T) {
	s := FromStrings("a", "b", "c")

	var got []string
	for doc, err := range s {
		require.NoError(t, err)
		got = append(got, doc)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestConcat(t *testing.T) {
	s := Concat(FromStrings("a"), FromStrings(), FromStrings("b", "c"))

	docs, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, docs)
}

// failing is a stream that yields one document and then an error.
func failing(cause error) Stream {
	return func(yield func(string, error) bool) {
		if !yield("ok", nil) {
			return
		}
		yield("", cause)
	}
}

func TestConcatStopsOnError(t *testing.T) {
	cause := errors.New("disk on fire")
	s := Concat(failing(cause), FromStrings("never"))

	var docs []string
	var got error
	for doc, err := range s {
		if err != nil {
			got = err
			continue
		}
		docs = append(docs, doc)
	}
	assert.Equal(t, []string{"ok"}, docs)
	assert.ErrorIs(t, got, cause)
}

func TestCollectPropagatesError(t *testing.T) {
	cause := errors.New("boom")
	_, err := Collect(failing(cause))
	assert.ErrorIs(t, err, cause)
}
