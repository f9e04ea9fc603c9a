// Package pipeline wires the stages together: corpus documents through a
// tokenizer into encoded sequences, and encoded sequences through an
// aligner into training pairs. Documents are processed in parallel while
// outputs keep corpus order.
package pipeline

import (
	"context"
	"runtime"
	"slices"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/textprep/textprep/align"
	"github.com/textprep/textprep/corpus"
	"github.com/textprep/textprep/tokenizers/api"
)

// EncodeAll encodes every document of the stream, fanning the work out
// over at most workers goroutines (GOMAXPROCS when workers is zero or
// negative). Results land at their document's position, so the output
// order matches the corpus order regardless of scheduling. Encoding is
// lock-free over the immutable vocabulary, which is what makes the fan-out
// safe.
func EncodeAll(ctx context.Context, tok api.Tokenizer, docs corpus.Stream, workers int) ([][]int, error) {
	texts, err := corpus.Collect(docs)
	if err != nil {
		return nil, errors.WithMessage(err, "reading corpus")
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([][]int, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, text := range texts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = tok.Encode(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	klog.V(1).Infof("pipeline: encoded %d documents", len(out))
	return out, nil
}

// AlignAll encodes the stream and windows the encoded sequences into
// training pairs. Documents window in parallel and the pairs come back in
// corpus order; when the aligner concatenates documents the windowing
// stage runs sequentially instead, since windows then cross document
// boundaries.
func AlignAll(ctx context.Context, tok api.Tokenizer, docs corpus.Stream, aligner *align.Aligner, workers int) ([]align.Pair, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	seqs, err := EncodeAll(ctx, tok, docs, workers)
	if err != nil {
		return nil, err
	}

	var pairs []align.Pair
	if aligner.ConcatDocuments() {
		for p := range aligner.WindowsAll(slices.Values(seqs)) {
			pairs = append(pairs, p)
		}
		klog.V(1).Infof("pipeline: %d training pairs from %d joined documents", len(pairs), len(seqs))
		return pairs, nil
	}

	perDoc := make([][]align.Pair, len(seqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, seq := range seqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perDoc[i] = aligner.Pairs(seq)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, ps := range perDoc {
		pairs = append(pairs, ps...)
	}
	klog.V(1).Infof("pipeline: %d training pairs from %d documents", len(pairs), len(seqs))
	return pairs, nil
}
