// Package shards splits index ranges for data-parallel passes.
package shards

// Range is a half-open index interval.
type Range struct {
	Lo int
	Hi int
}

// Ranges splits n items into at most workers contiguous, near equal ranges.
// Fewer ranges come back when there are fewer items than workers; n of zero
// yields none.
func Ranges(n, workers int) []Range {
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	ranges := make([]Range, 0, workers)
	for i := 0; i < workers; i++ {
		lo := i * n / workers
		hi := (i + 1) * n / workers
		if lo < hi {
			ranges = append(ranges, Range{Lo: lo, Hi: hi})
		}
	}
	return ranges
}
