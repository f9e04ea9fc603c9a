package corpus

import (
	"bufio"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/textprep/textprep/tokenizers/api"
)

// maxLineBytes bounds a single line in Lines; longer lines fail the stream.
const maxLineBytes = 16 << 20

// WholeFile returns a single-document stream holding the entire file content.
func WholeFile(path string) Stream {
	return func(yield func(string, error) bool) {
		data, err := os.ReadFile(path)
		if err != nil {
			yield("", errors.Wrapf(err, "reading %q", path))
			return
		}
		yield(string(data), nil)
	}
}

// Lines returns one document per line of the file. Line endings are trimmed
// (LF and CRLF) and blank lines are skipped. Each pass re-opens the file.
func Lines(path string) Stream {
	return func(yield func(string, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield("", errors.Wrapf(err, "opening %q", path))
			return
		}
		defer func() { _ = f.Close() }()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := strings.TrimSuffix(scanner.Text(), "\r")
			if line == "" {
				continue
			}
			if !yield(line, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", errors.Wrapf(err, "scanning %q", path))
		}
	}
}

// Chunks returns documents of roughly chunkBytes bytes each, reading the file
// through a memory mapping. Chunk boundaries are pushed forward to the next
// rune start, so no document ever splits a UTF-8 sequence. Each pass re-opens
// and re-maps the file.
func Chunks(path string, chunkBytes int) Stream {
	return func(yield func(string, error) bool) {
		if chunkBytes <= 0 {
			yield("", errors.Wrapf(api.ErrInvalidConfig, "chunk size %d must be positive", chunkBytes))
			return
		}
		f, err := os.Open(path)
		if err != nil {
			yield("", errors.Wrapf(err, "opening %q", path))
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			yield("", errors.Wrapf(err, "stating %q", path))
			return
		}
		if info.Size() == 0 {
			return
		}

		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			yield("", errors.Wrapf(err, "memory-mapping %q", path))
			return
		}
		defer func() {
			if err := m.Unmap(); err != nil {
				klog.Warningf("Failed unmapping %q: %v", path, err)
			}
		}()

		for start := 0; start < len(m); {
			end := start + chunkBytes
			if end >= len(m) {
				end = len(m)
			} else {
				for end < len(m) && !utf8.RuneStart(m[end]) {
					end++
				}
			}
			if !yield(string(m[start:end]), nil) {
				return
			}
			start = end
		}
	}
}
