package layout

import (
	"math"
	"sort"

	"github.com/markdave123-py/Pagewise/internal/models"
)

// Band is a horizontal region of a page read as one text stream.
// Start is inclusive, End exclusive.
type Band struct {
	Start float64
	End   float64
}

func (b Band) width() float64 { return b.End - b.Start }

// distance is the horizontal space between two bands, zero when they touch.
func (b Band) distance(o Band) float64 {
	switch {
	case b.End <= o.Start:
		return o.Start - b.End
	case o.End <= b.Start:
		return b.Start - o.End
	}
	return 0
}

// DetectColumns partitions the page horizontally using a histogram of token
// left edges. Runs of empty buckets at least MinGap wide separate bands;
// bands narrower than MinColumnWidth are folded into their nearest neighbour
// when they carry more than TrivialTokens tokens and dropped otherwise.
// The result is sorted left to right and never empty for a non-empty input.
func DetectColumns(tokens []models.Token, opts Options) []Band {
	if len(tokens) == 0 {
		return nil
	}
	opts = opts.withDefaults()
	bw := opts.BucketWidth

	minX, maxX := math.Inf(1), math.Inf(-1)
	for _, t := range tokens {
		minX = math.Min(minX, t.X0)
		maxX = math.Max(maxX, t.X1)
	}
	single := []Band{{Start: minX - 1, End: maxX + 1}}

	first := math.Floor(minX / bw)
	last := math.Floor(maxX / bw)
	n := int(last-first) + 1
	counts := make([]int, n)
	for _, t := range tokens {
		i := int(math.Floor(t.X0/bw) - first)
		if i >= 0 && i < n {
			counts[i]++
		}
	}

	var gaps []Band
	run := -1
	for i := 0; i <= n; i++ {
		if i < n && counts[i] == 0 {
			if run < 0 {
				run = i
			}
			continue
		}
		if run >= 0 {
			g := Band{Start: (first + float64(run)) * bw, End: (first + float64(i)) * bw}
			if g.width() >= opts.MinGap {
				gaps = append(gaps, g)
			}
			run = -1
		}
	}
	if len(gaps) == 0 {
		return single
	}

	var bands []Band
	prev := first * bw
	for _, g := range gaps {
		if g.Start > prev {
			bands = append(bands, Band{Start: prev, End: g.Start})
		}
		prev = g.End
	}
	if end := (last + 1) * bw; end > prev {
		bands = append(bands, Band{Start: prev, End: end})
	}

	var wide, narrow []Band
	for _, b := range bands {
		if b.width() >= opts.MinColumnWidth {
			wide = append(wide, b)
		} else {
			narrow = append(narrow, b)
		}
	}
	if len(wide) == 0 {
		return single
	}

	for _, nb := range narrow {
		if countIn(tokens, nb) <= opts.TrivialTokens {
			continue
		}
		best := 0
		for i := range wide {
			if nb.distance(wide[i]) < nb.distance(wide[best]) {
				best = i
			}
		}
		wide[best].Start = math.Min(wide[best].Start, nb.Start)
		wide[best].End = math.Max(wide[best].End, nb.End)
	}

	sort.Slice(wide, func(i, j int) bool { return wide[i].Start < wide[j].Start })
	wide[0].Start = math.Min(wide[0].Start, minX-1)
	wide[len(wide)-1].End = math.Max(wide[len(wide)-1].End, maxX+1)
	return wide
}

func countIn(tokens []models.Token, b Band) int {
	n := 0
	for _, t := range tokens {
		if t.X0 >= b.Start && t.X0 < b.End {
			n++
		}
	}
	return n
}

// assign buckets every token into the first band whose range, widened by
// tol on both sides, contains its left edge. Tokens outside every band are
// dropped.
func assign(tokens []models.Token, bands []Band, tol float64) [][]models.Token {
	out := make([][]models.Token, len(bands))
	for _, t := range tokens {
		for i, b := range bands {
			if t.X0 >= b.Start-tol && t.X0 < b.End+tol {
				out[i] = append(out[i], t)
				break
			}
		}
	}
	return out
}
