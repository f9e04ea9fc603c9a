// Package corpus provides restartable document streams over the supported
// source shapes: in-memory strings, plain text files (whole, per line or in
// fixed-size chunks) and parquet datasets.
//
// A Stream is a finite sequence of (document, error) pairs. Ranging over a
// stream again re-opens the underlying source, so consumers may take multiple
// passes and always observe the same documents in the same order. I/O
// failures surface through the error side of the sequence; after yielding a
// non-nil error a stream produces nothing further.
package corpus

import "iter"

// Stream is a finite, restartable sequence of documents.
type Stream = iter.Seq2[string, error]

// FromStrings returns a stream over in-memory documents.
func FromStrings(docs ...string) Stream {
	return func(yield func(string, error) bool) {
		for _, doc := range docs {
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// Concat chains streams in order. A failing stream ends the whole sequence:
// the error is yielded and no later stream is visited.
func Concat(streams ...Stream) Stream {
	return func(yield func(string, error) bool) {
		for _, s := range streams {
			for doc, err := range s {
				if !yield(doc, err) {
					return
				}
				if err != nil {
					return
				}
			}
		}
	}
}

// Collect materializes a stream, failing on the first error.
func Collect(s Stream) ([]string, error) {
	var docs []string
	for doc, err := range s {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
