package wordpiece

import (
	"cmp"
	"context"
	"math/bits"
	"runtime"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/textprep/textprep/corpus"
	"github.com/textprep/textprep/internal/shards"
	"github.com/textprep/textprep/internal/textsplit"
	"github.com/textprep/textprep/tokenizers/api"
	"github.com/textprep/textprep/vocab"
)

// Config controls piece induction.
type Config struct {
	// MaxMerges caps the merge rounds. Zero means DefaultMaxMerges; induction
	// stops earlier when no adjacent pair is left to fuse.
	MaxMerges int

	// SpecialTokens are pinned, in order, at the lowest ids. Defaults to
	// api.DefaultSpecialSymbols when empty.
	SpecialTokens []string

	// Normalizer is recorded in the vocabulary and replayed at encode time.
	// See vocab.NormalizerFunc for the accepted names.
	Normalizer string

	// Workers bounds the parallelism of the counting passes. Zero means
	// GOMAXPROCS.
	Workers int
}

// DefaultMaxMerges bounds induction when Config.MaxMerges is zero.
const DefaultMaxMerges = 10000

var wordRe = regexp2.MustCompile(WordPattern, regexp2.RE2)

// unit is one distinct word-level string, weighted by how often it appears
// in the corpus. Merging happens inside units and never across them.
type unit struct {
	toks []string
	freq int
}

type piecePair struct {
	left  string
	right string
}

// pairStat carries a pair's weighted count and the position of its first
// occurrence over the unit list. Positions are unique per pair and break
// score ties.
type pairStat struct {
	count int
	unit  int
	off   int
}

func (s pairStat) earlierThan(o pairStat) bool {
	return s.unit < o.unit || (s.unit == o.unit && s.off < o.off)
}

type trainer struct {
	workers  int
	units    []*unit
	index    map[string]int
	freqs    map[string]int
	reserved map[string]bool
	applied  int
}

// Train induces a WordPiece vocabulary from the corpus. Documents are split
// around special-token literals, normalized, and divided into word-level
// units by WordPattern; each round fuses the adjacent token pair with the
// highest likelihood score count(pair) / (count(left)*count(right)),
// resolving equal scores in favor of the pair occurring first in the
// corpus. The surviving unit segmentations become the piece inventory, with
// continuation pieces carrying the subword prefix.
func Train(ctx context.Context, docs corpus.Stream, cfg Config) (*vocab.Vocabulary, error) {
	maxMerges := cfg.MaxMerges
	if maxMerges < 0 {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "negative merge budget %d", maxMerges)
	}
	if maxMerges == 0 {
		maxMerges = DefaultMaxMerges
	}
	specials := cfg.SpecialTokens
	if len(specials) == 0 {
		specials = api.DefaultSpecialSymbols()
	}
	// Reject malformed special-token sets before touching the corpus.
	if _, err := vocab.Build(vocab.Spec{Algorithm: vocab.AlgorithmWordPiece, SubwordPrefix: subwordPrefix, Specials: specials}); err != nil {
		return nil, err
	}
	normalize, err := vocab.NormalizerFunc(cfg.Normalizer)
	if err != nil {
		return nil, err
	}

	t := &trainer{
		workers:  cfg.Workers,
		index:    make(map[string]int),
		reserved: make(map[string]bool, len(specials)),
	}
	if t.workers <= 0 {
		t.workers = runtime.GOMAXPROCS(0)
	}
	for _, s := range specials {
		t.reserved[s] = true
	}

	if err := t.ingest(ctx, docs, normalize, specials); err != nil {
		return nil, err
	}
	if len(t.units) == 0 {
		return nil, errors.Wrap(api.ErrInsufficientData, "corpus contains no units")
	}
	t.seedFreqs()
	if err := t.mergeRounds(ctx, maxMerges); err != nil {
		return nil, err
	}

	v, err := vocab.Build(vocab.Spec{
		Algorithm:     vocab.AlgorithmWordPiece,
		Normalizer:    cfg.Normalizer,
		Pretokenizer:  WordPattern,
		SubwordPrefix: subwordPrefix,
		Specials:      specials,
		Base:          t.pieceSet(),
	})
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("wordpiece: trained on %d distinct units: %d merges, vocabulary size %d",
		len(t.units), t.applied, v.Size())
	return v, nil
}

func (t *trainer) ingest(ctx context.Context, docs corpus.Stream, normalize func(string) string, specials []string) error {
	literals := textsplit.OrderedLiterals(specials)
	for doc, err := range docs {
		if err != nil {
			return errors.WithMessage(err, "reading corpus")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, frag := range textsplit.SplitSpecials(doc, literals) {
			if frag.Special {
				continue
			}
			for _, word := range textsplit.Matches(wordRe, normalize(frag.Text)) {
				t.addUnit(word)
			}
		}
	}
	return nil
}

// addUnit registers one occurrence of a unit. The first occurrence fixes
// the unit's position, so later tie-breaks see units in corpus order.
func (t *trainer) addUnit(word string) {
	if i, ok := t.index[word]; ok {
		t.units[i].freq++
		return
	}
	toks := make([]string, 0, len(word))
	for _, r := range word {
		toks = append(toks, string(r))
	}
	t.index[word] = len(t.units)
	t.units = append(t.units, &unit{toks: toks, freq: 1})
}

func (t *trainer) seedFreqs() {
	t.freqs = make(map[string]int)
	for _, u := range t.units {
		for _, tok := range u.toks {
			t.freqs[tok] += u.freq
		}
	}
}

func (t *trainer) mergeRounds(ctx context.Context, budget int) error {
	for t.applied < budget {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats, err := t.countPairs(ctx)
		if err != nil {
			return err
		}
		best, ok := t.selectPair(stats)
		if !ok {
			// Every unit is a single token, or only reserved collisions remain.
			break
		}
		if err := t.applyMerge(ctx, best); err != nil {
			return err
		}
		t.applied++
		if t.applied%512 == 0 {
			klog.V(2).Infof("wordpiece: %d/%d merges", t.applied, budget)
		}
	}
	return nil
}

// countPairs takes one full counting pass over the units, sharded across
// workers. Shards cover increasing unit ranges, so the first shard
// reporting a pair holds its earliest position.
func (t *trainer) countPairs(ctx context.Context) (map[piecePair]pairStat, error) {
	ranges := shards.Ranges(len(t.units), t.workers)
	partials := make([]map[piecePair]pairStat, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		g.Go(func() error {
			local := make(map[piecePair]pairStat)
			for n := r.Lo; n < r.Hi; n++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				u := t.units[n]
				for off := 0; off+1 < len(u.toks); off++ {
					p := piecePair{left: u.toks[off], right: u.toks[off+1]}
					st, seen := local[p]
					if !seen {
						st = pairStat{unit: n, off: off}
					}
					st.count += u.freq
					local[p] = st
				}
			}
			partials[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	total := make(map[piecePair]pairStat)
	for _, local := range partials {
		for p, st := range local {
			agg, seen := total[p]
			if !seen {
				total[p] = st
				continue
			}
			agg.count += st.count
			total[p] = agg
		}
	}
	return total, nil
}

// selectPair picks the candidate maximizing count(pair) over
// count(left)*count(right). Scores compare exactly by cross multiplication,
// ties resolve to the earliest position, and pairs whose fused token would
// collide with a reserved literal are ignored. The outcome is independent
// of map iteration order because (score, position) totally orders the
// candidates.
func (t *trainer) selectPair(stats map[piecePair]pairStat) (piecePair, bool) {
	var best piecePair
	var bestStat pairStat
	var bestDenom uint64
	found := false
	for p, st := range stats {
		token := p.left + p.right
		if t.reserved[token] || t.reserved[subwordPrefix+token] {
			continue
		}
		denom := uint64(t.freqs[p.left]) * uint64(t.freqs[p.right])
		if found {
			switch c := scoreCmp(st.count, denom, bestStat.count, bestDenom); {
			case c < 0:
				continue
			case c == 0 && !st.earlierThan(bestStat):
				continue
			}
		}
		best, bestStat, bestDenom, found = p, st, denom, true
	}
	return best, found
}

// scoreCmp orders c1/d1 against c2/d2 by cross multiplication in 128 bits,
// so equal rationals always compare equal regardless of magnitude.
func scoreCmp(c1 int, d1 uint64, c2 int, d2 uint64) int {
	h1, l1 := bits.Mul64(uint64(c1), d2)
	h2, l2 := bits.Mul64(uint64(c2), d1)
	if h1 != h2 {
		return cmp.Compare(h1, h2)
	}
	return cmp.Compare(l1, l2)
}

// applyMerge fuses the pair inside every unit and shifts the weighted token
// counts: each fused occurrence moves the unit's weight from both operands
// onto the new token. Only the coordinating goroutine writes the table.
func (t *trainer) applyMerge(ctx context.Context, target piecePair) error {
	merged := target.left + target.right
	ranges := shards.Ranges(len(t.units), t.workers)
	partials := make([]map[string]int, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		g.Go(func() error {
			delta := make(map[string]int)
			for n := r.Lo; n < r.Hi; n++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				u := t.units[n]
				if k := rewriteUnit(u, target, merged); k > 0 {
					w := k * u.freq
					delta[merged] += w
					delta[target.left] -= w
					delta[target.right] -= w
				}
			}
			partials[i] = delta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	changed := make(map[string]int)
	for _, delta := range partials {
		for tok, d := range delta {
			changed[tok] += d
		}
	}
	for tok, d := range changed {
		if d == 0 {
			continue
		}
		if n := t.freqs[tok] + d; n > 0 {
			t.freqs[tok] = n
		} else {
			delete(t.freqs, tok)
		}
	}
	return nil
}

// rewriteUnit fuses every occurrence of target, leftmost first, reusing the
// token slice. Returns the number of fused occurrences.
func rewriteUnit(u *unit, target piecePair, merged string) int {
	if !containsAdjacent(u.toks, target) {
		return 0
	}
	out := u.toks[:0]
	fused := 0
	for i := 0; i < len(u.toks); {
		if i+1 < len(u.toks) && u.toks[i] == target.left && u.toks[i+1] == target.right {
			out = append(out, merged)
			fused++
			i += 2
			continue
		}
		out = append(out, u.toks[i])
		i++
	}
	u.toks = out
	return fused
}

func containsAdjacent(toks []string, p piecePair) bool {
	for i := 0; i+1 < len(toks); i++ {
		if toks[i] == p.left && toks[i+1] == p.right {
			return true
		}
	}
	return false
}

// pieceSet collects the final inventory from the unit segmentations: a
// unit's first token stays bare, later tokens carry the continuation
// prefix.
func (t *trainer) pieceSet() []string {
	seen := make(map[string]bool)
	var pieces []string
	for _, u := range t.units {
		for i, tok := range u.toks {
			if i > 0 {
				tok = subwordPrefix + tok
			}
			if !seen[tok] {
				seen[tok] = true
				pieces = append(pieces, tok)
			}
		}
	}
	return pieces
}
