package bpe

import (
	"cmp"
	"context"
	"runtime"
	"slices"

	"github.com/dlclark/regexp2"
	heap "github.com/emirpasic/gods/v2/trees/binaryheap"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/textprep/textprep/corpus"
	"github.com/textprep/textprep/internal/shards"
	"github.com/textprep/textprep/internal/textsplit"
	"github.com/textprep/textprep/tokenizers/api"
	"github.com/textprep/textprep/vocab"
)

// Config controls vocabulary induction.
type Config struct {
	// TargetVocabSize caps the vocabulary: special tokens plus base alphabet
	// plus merged symbols. Induction stops earlier when no pair occurs more
	// than once, so the resulting vocabulary may be smaller than the target.
	TargetVocabSize int

	// SpecialTokens are pinned, in order, at the lowest ids. Defaults to
	// api.DefaultSpecialSymbols when empty.
	SpecialTokens []string

	// Normalizer and Pretokenizer are recorded in the vocabulary and
	// replayed at encode time. See vocab.NormalizerFunc for the accepted
	// normalizer names. The pretokenizer is an RE2 pattern whose matches
	// (and the gaps between them) bound the units merges may not cross;
	// empty treats each document as a single unit.
	Normalizer   string
	Pretokenizer string

	// Workers bounds the parallelism of the counting passes. Zero means
	// GOMAXPROCS.
	Workers int
}

// sym indexes the trainer's symbol table. The boundary marker separates
// pretokenization units so that no pair spans two of them.
type sym int32

const boundary sym = -1

type pair struct {
	left  sym
	right sym
}

// candidate is a heap snapshot of a pair's count. Snapshots go stale when a
// later merge changes the count; stale entries are dropped when popped.
type candidate struct {
	p     pair
	count int
}

type trainer struct {
	workers  int
	symbols  []string
	ids      map[string]sym
	reserved map[string]bool
	docs     [][]sym
	counts   map[pair]int
	pairs    *heap.Heap[candidate]
	skipped  map[pair]bool
	merges   []vocab.MergeRule
	numBase  int
}

// Train induces a byte-pair-encoding vocabulary from the corpus. Documents
// are split around special-token literals, normalized and pretokenized, then
// repeatedly rewritten by fusing the most frequent adjacent symbol pair until
// the vocabulary reaches cfg.TargetVocabSize or no pair occurs more than
// once. Equal counts resolve in favor of the pair whose first occurrence
// comes earliest in the corpus, so runs over the same stream produce
// identical vocabularies regardless of cfg.Workers.
func Train(ctx context.Context, docs corpus.Stream, cfg Config) (*vocab.Vocabulary, error) {
	specials := cfg.SpecialTokens
	if len(specials) == 0 {
		specials = api.DefaultSpecialSymbols()
	}
	if cfg.TargetVocabSize <= len(specials) {
		return nil, errors.Wrapf(api.ErrInvalidConfig,
			"target vocabulary size %d cannot hold the %d special tokens", cfg.TargetVocabSize, len(specials))
	}
	// Reject malformed special-token sets before touching the corpus.
	if _, err := vocab.Build(vocab.Spec{Algorithm: vocab.AlgorithmBPE, Specials: specials}); err != nil {
		return nil, err
	}
	normalize, err := vocab.NormalizerFunc(cfg.Normalizer)
	if err != nil {
		return nil, err
	}
	var pretok *regexp2.Regexp
	if cfg.Pretokenizer != "" {
		if pretok, err = regexp2.Compile(cfg.Pretokenizer, regexp2.RE2); err != nil {
			return nil, errors.Wrapf(api.ErrInvalidConfig, "pretokenizer pattern %q: %v", cfg.Pretokenizer, err)
		}
	}

	t := &trainer{
		workers:  cfg.Workers,
		ids:      make(map[string]sym),
		reserved: make(map[string]bool, len(specials)),
		skipped:  make(map[pair]bool),
	}
	if t.workers <= 0 {
		t.workers = runtime.GOMAXPROCS(0)
	}
	for _, s := range specials {
		t.reserved[s] = true
	}

	if err := t.ingest(ctx, docs, normalize, pretok, specials); err != nil {
		return nil, err
	}
	if t.numBase == 0 {
		return nil, errors.Wrap(api.ErrInsufficientData, "corpus contains no symbols")
	}
	if minSize := len(specials) + t.numBase; cfg.TargetVocabSize < minSize {
		return nil, errors.Wrapf(api.ErrInvalidConfig,
			"target vocabulary size %d below %d special tokens plus %d base symbols",
			cfg.TargetVocabSize, len(specials), t.numBase)
	}

	if err := t.countInitial(ctx); err != nil {
		return nil, err
	}
	t.seedHeap()
	budget := cfg.TargetVocabSize - len(specials) - t.numBase
	if err := t.mergeRounds(ctx, budget); err != nil {
		return nil, err
	}

	v, err := vocab.Build(vocab.Spec{
		Algorithm:    vocab.AlgorithmBPE,
		Normalizer:   cfg.Normalizer,
		Pretokenizer: cfg.Pretokenizer,
		Specials:     specials,
		Base:         slices.Clone(t.symbols[:t.numBase]),
		Merges:       t.merges,
	})
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("bpe: trained on %d documents: %d base symbols, %d merges, vocabulary size %d",
		len(t.docs), t.numBase, len(t.merges), v.Size())
	return v, nil
}

func (t *trainer) ingest(ctx context.Context, docs corpus.Stream, normalize func(string) string, pretok *regexp2.Regexp, specials []string) error {
	literals := textsplit.OrderedLiterals(specials)
	for doc, err := range docs {
		if err != nil {
			return errors.WithMessage(err, "reading corpus")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if seq := t.internDocument(doc, literals, normalize, pretok); len(seq) > 0 {
			t.docs = append(t.docs, seq)
		}
	}
	t.numBase = len(t.symbols)
	return nil
}

// internDocument maps one document to its symbol sequence. Special-token
// literals and pretokenization unit edges leave a boundary marker behind, so
// counting and merging stay within a single unit.
func (t *trainer) internDocument(text string, literals []string, normalize func(string) string, pretok *regexp2.Regexp) []sym {
	var seq []sym
	for _, frag := range textsplit.SplitSpecials(text, literals) {
		if frag.Special {
			seq = appendBoundary(seq)
			continue
		}
		for _, piece := range textsplit.Pretokenize(pretok, normalize(frag.Text)) {
			for _, r := range piece {
				seq = append(seq, t.intern(string(r)))
			}
			seq = appendBoundary(seq)
		}
	}
	if n := len(seq); n > 0 && seq[n-1] == boundary {
		seq = seq[:n-1]
	}
	return seq
}

func appendBoundary(seq []sym) []sym {
	if n := len(seq); n > 0 && seq[n-1] != boundary {
		seq = append(seq, boundary)
	}
	return seq
}

func (t *trainer) intern(token string) sym {
	if id, ok := t.ids[token]; ok {
		return id
	}
	id := sym(len(t.symbols))
	t.symbols = append(t.symbols, token)
	t.ids[token] = id
	return id
}

func (t *trainer) mergedToken(p pair) string {
	return t.symbols[p.left] + t.symbols[p.right]
}

// countInitial takes the one full counting pass over the corpus, sharded
// across workers. Later rounds only apply deltas around each merge.
func (t *trainer) countInitial(ctx context.Context) error {
	ranges := shards.Ranges(len(t.docs), t.workers)
	partials := make([]map[pair]int, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		g.Go(func() error {
			local := make(map[pair]int)
			for d := r.Lo; d < r.Hi; d++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				countPairs(t.docs[d], local)
			}
			partials[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	t.counts = make(map[pair]int)
	for _, local := range partials {
		for p, n := range local {
			t.counts[p] += n
		}
	}
	return nil
}

func countPairs(seq []sym, counts map[pair]int) {
	for i := 0; i+1 < len(seq); i++ {
		if seq[i] == boundary || seq[i+1] == boundary {
			continue
		}
		counts[pair{seq[i], seq[i+1]}]++
	}
}

func (t *trainer) seedHeap() {
	t.pairs = heap.NewWith(func(a, b candidate) int {
		return cmp.Compare(b.count, a.count)
	})
	for p, n := range t.counts {
		if n > 1 {
			t.pairs.Push(candidate{p: p, count: n})
		}
	}
}

func (t *trainer) mergeRounds(ctx context.Context, budget int) error {
	for len(t.merges) < budget {
		if err := ctx.Err(); err != nil {
			return err
		}
		winner, ok, err := t.selectPair()
		if err != nil {
			return err
		}
		if !ok {
			// No pair occurs more than once; the vocabulary stays below target.
			break
		}
		if err := t.applyMerge(ctx, winner); err != nil {
			return err
		}
		if n := len(t.merges); n%512 == 0 {
			klog.V(2).Infof("bpe: %d/%d merges", n, budget)
		}
	}
	return nil
}

// selectPair picks the highest-count pair, resolving equal counts in favor of
// the pair whose first occurrence comes earliest in the current corpus
// layout. Pairs whose fused token would collide with an existing symbol are
// retired, keeping token ids bijective. ok is false when no pair occurs more
// than once.
func (t *trainer) selectPair() (pair, bool, error) {
	for {
		tied, count := t.popTied()
		if len(tied) == 0 {
			return pair{}, false, nil
		}
		winner := tied[0]
		if len(tied) > 1 {
			var err error
			if winner, err = t.earliest(tied); err != nil {
				return pair{}, false, err
			}
		}
		for _, p := range tied {
			if p != winner {
				t.pairs.Push(candidate{p: p, count: count})
			}
		}
		token := t.mergedToken(winner)
		if _, taken := t.ids[token]; taken || t.reserved[token] {
			t.skipped[winner] = true
			continue
		}
		return winner, true, nil
	}
}

// popTied collects every pair currently holding the highest count. Snapshots
// that no longer match the live count are discarded; the first lower-count
// candidate is pushed back and ends the collection.
func (t *trainer) popTied() ([]pair, int) {
	var tied []pair
	var best int
	for {
		top, ok := t.pairs.Pop()
		if !ok {
			return tied, best
		}
		if t.counts[top.p] != top.count || top.count < 2 || t.skipped[top.p] {
			continue
		}
		if len(tied) == 0 {
			best = top.count
		} else if top.count < best {
			t.pairs.Push(top)
			return tied, best
		}
		if !slices.Contains(tied, top.p) {
			tied = append(tied, top.p)
		}
	}
}

// earliest scans the corpus in document order and returns the tied pair hit
// first. Every tied pair occurs at least twice, so the scan stops well before
// the end on any realistic corpus.
func (t *trainer) earliest(tied []pair) (pair, error) {
	want := make(map[pair]bool, len(tied))
	for _, p := range tied {
		want[p] = true
	}
	for _, seq := range t.docs {
		for i := 0; i+1 < len(seq); i++ {
			if seq[i] == boundary || seq[i+1] == boundary {
				continue
			}
			if p := (pair{seq[i], seq[i+1]}); want[p] {
				return p, nil
			}
		}
	}
	return pair{}, errors.Errorf("bpe: pair counts out of sync with corpus (%d tied pairs unseen)", len(tied))
}

// applyMerge records the rule, rewrites every document fusing the pair, and
// folds the workers' count deltas back into the aggregate table. Only the
// coordinating goroutine ever writes the table.
func (t *trainer) applyMerge(ctx context.Context, target pair) error {
	merged := t.intern(t.mergedToken(target))
	t.merges = append(t.merges, vocab.MergeRule{
		Left:  t.symbols[target.left],
		Right: t.symbols[target.right],
	})

	ranges := shards.Ranges(len(t.docs), t.workers)
	partials := make([]map[pair]int, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		g.Go(func() error {
			delta := make(map[pair]int)
			for d := r.Lo; d < r.Hi; d++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				t.docs[d] = rewriteDoc(t.docs[d], target, merged, delta)
			}
			partials[i] = delta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	changed := make(map[pair]int)
	for _, delta := range partials {
		for p, d := range delta {
			changed[p] += d
		}
	}
	for p, d := range changed {
		if d == 0 {
			continue
		}
		n := t.counts[p] + d
		if n > 0 {
			t.counts[p] = n
		} else {
			delete(t.counts, p)
		}
		if n > 1 && !t.skipped[p] {
			t.pairs.Push(candidate{p: p, count: n})
		}
	}
	return nil
}

// rewriteDoc fuses every occurrence of target into the merged symbol and
// accumulates the resulting pair-count deltas. Matches are taken leftmost;
// an occurrence overlapping the previous match is skipped, and the shared
// neighbor pair between two adjacent matches is only decremented once.
// Rewriting reuses the sequence's backing array.
func rewriteDoc(seq []sym, target pair, merged sym, delta map[pair]int) []sym {
	if !containsPair(seq, target) {
		return seq
	}
	out := seq[:0]
	fresh := false
	prevEnd := -1
	for i := 0; i < len(seq); {
		if i+1 < len(seq) && seq[i] == target.left && seq[i+1] == target.right {
			delta[target]--
			if i > 0 && prevEnd != i && seq[i-1] != boundary {
				delta[pair{seq[i-1], target.left}]--
			}
			if i+2 < len(seq) && seq[i+2] != boundary {
				delta[pair{target.right, seq[i+2]}]--
			}
			if n := len(out); n > 0 && out[n-1] != boundary {
				delta[pair{out[n-1], merged}]++
			}
			out = append(out, merged)
			fresh = true
			prevEnd = i + 2
			i += 2
			continue
		}
		if fresh && seq[i] != boundary {
			delta[pair{merged, seq[i]}]++
		}
		out = append(out, seq[i])
		fresh = false
		i++
	}
	return out
}

func containsPair(seq []sym, p pair) bool {
	for i := 0; i+1 < len(seq); i++ {
		if seq[i] == p.left && seq[i+1] == p.right {
			return true
		}
	}
	return false
}
