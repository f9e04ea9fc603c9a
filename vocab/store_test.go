package vocab

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textprep/textprep/tokenizers/api"
)

func TestSaveLoadJSON(t *testing.T) {
	v := buildTestVocabulary(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.json")

	require.NoError(t, Save(path, v, FormatJSON))

	// No lock or temporary files survive a successful save.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "vocab.json", entries[0].Name())

	got, err := Load(path)
	require.NoError(t, err)
	assertSameVocabulary(t, v, got)
}

func TestSaveLoadBinary(t *testing.T) {
	v := buildTestVocabulary(t)
	path := filepath.Join(t.TempDir(), "vocab.tpvb")

	require.NoError(t, Save(path, v, FormatBinary))

	got, err := Load(path)
	require.NoError(t, err)
	assertSameVocabulary(t, v, got)
}

func TestSaveCreatesParentDirectories(t *testing.T) {
	v := buildTestVocabulary(t)
	path := filepath.Join(t.TempDir(), "nested", "dir", "vocab.json")

	require.NoError(t, Save(path, v, FormatJSON))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, v.Fingerprint(), got.Fingerprint())
}

func TestSaveReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")

	v1 := buildTestVocabulary(t)
	require.NoError(t, Save(path, v1, FormatJSON))

	v2 := buildTestVocabulary(t)
	require.NotEqual(t, v1.Fingerprint(), v2.Fingerprint())
	require.NoError(t, Save(path, v2, FormatBinary))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, v2.Fingerprint(), got.Fingerprint())
}

func TestSaveConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")

	snapshots := make([]*Vocabulary, 4)
	fingerprints := make(map[string]bool, len(snapshots))
	for i := range snapshots {
		snapshots[i] = buildTestVocabulary(t)
		fingerprints[snapshots[i].Fingerprint()] = true
	}

	var wg sync.WaitGroup
	errs := make([]error, len(snapshots))
	for i, v := range snapshots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = Save(path, v, FormatJSON)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "saver %d", i)
	}

	// Whichever rename landed last, the file holds one complete snapshot.
	got, err := Load(path)
	require.NoError(t, err)
	assert.True(t, fingerprints[got.Fingerprint()], "fingerprint %s not among the saved snapshots", got.Fingerprint())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorContains(t, err, "opening vocabulary file")
}

func TestSaveUnknownFormat(t *testing.T) {
	v := buildTestVocabulary(t)
	err := Save(filepath.Join(t.TempDir(), "vocab.bin"), v, Format(42))
	assert.ErrorIs(t, err, api.ErrInvalidConfig)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("binary")
	require.NoError(t, err)
	assert.Equal(t, FormatBinary, f)

	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, api.ErrInvalidConfig)
}
