// Package layout rebuilds reading-order text from the positioned tokens of a
// single page. It knows nothing about PDF parsing: callers hand it geometry.
package layout

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/Pagewise/internal/models"
)

// Options tunes reconstruction. Units match the token coordinates (PDF points).
type Options struct {
	HeaderMargin      float64 // tokens above this line are header content
	FooterMargin      float64 // tokens this close to the bottom edge are dropped
	BucketWidth       float64
	MinGap            float64
	MinColumnWidth    float64
	BoundaryTolerance float64
	LineTolerance     float64
	TrivialTokens     int
}

func DefaultOptions() Options {
	return Options{
		HeaderMargin:      40,
		FooterMargin:      12,
		BucketWidth:       5,
		MinGap:            5,
		MinColumnWidth:    50,
		BoundaryTolerance: 2,
		LineTolerance:     4,
		TrivialTokens:     3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BucketWidth <= 0 {
		o.BucketWidth = d.BucketWidth
	}
	if o.MinGap <= 0 {
		o.MinGap = d.MinGap
	}
	if o.MinColumnWidth <= 0 {
		o.MinColumnWidth = d.MinColumnWidth
	}
	if o.LineTolerance <= 0 {
		o.LineTolerance = d.LineTolerance
	}
	if o.BoundaryTolerance < 0 {
		o.BoundaryTolerance = d.BoundaryTolerance
	}
	if o.TrivialTokens < 0 {
		o.TrivialTokens = d.TrivialTokens
	}
	return o
}

// Reconstruct turns one page of tokens into text. It never fails: bad
// geometry is skipped and anything unexpected yields an empty page that
// still carries its index.
func Reconstruct(geom models.PageGeometry, opts Options) (page models.Page) {
	page.Index = geom.Index
	defer func() {
		if r := recover(); r != nil {
			page = models.Page{Index: geom.Index}
		}
	}()
	opts = opts.withDefaults()

	tokens := usable(geom.Tokens)
	if len(tokens) == 0 {
		return page
	}

	header, body := splitHeader(tokens, opts.HeaderMargin)
	page.PrintedLabel, page.Section = ParseHeader(header)

	if geom.Height > 0 && opts.FooterMargin > 0 {
		if page.PrintedLabel == "" {
			page.PrintedLabel = cornerLabel(tokens, geom.Height)
		}
		cutoff := geom.Height - opts.FooterMargin
		kept := body[:0:0]
		for _, t := range body {
			if t.Top < cutoff {
				kept = append(kept, t)
			}
		}
		body = kept
	}

	bands := DetectColumns(body, opts)
	var columns []string
	for _, col := range assign(body, bands, opts.BoundaryTolerance) {
		if text := columnText(col, opts.LineTolerance); strings.TrimSpace(text) != "" {
			columns = append(columns, text)
		}
	}

	page.Text = CleanText(strings.Join(columns, "\n\n"))
	page.CharCount = utf8.RuneCountInString(page.Text)
	return page
}

// usable drops tokens with no text or non-finite coordinates and normalises
// inverted boxes.
func usable(in []models.Token) []models.Token {
	out := make([]models.Token, 0, len(in))
	for _, t := range in {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		if !finite(t.X0) || !finite(t.X1) || !finite(t.Top) || !finite(t.Bottom) {
			continue
		}
		if t.X1 < t.X0 {
			t.X0, t.X1 = t.X1, t.X0
		}
		if t.Bottom < t.Top {
			t.Top, t.Bottom = t.Bottom, t.Top
		}
		out = append(out, t)
	}
	return out
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// splitHeader separates the header band from the body. A page with nothing
// below the band has no header: all of it is body.
func splitHeader(tokens []models.Token, margin float64) (header, body []models.Token) {
	if margin <= 0 {
		return nil, tokens
	}
	for _, t := range tokens {
		if t.Top < margin {
			header = append(header, t)
		} else {
			body = append(body, t)
		}
	}
	if len(body) == 0 {
		return nil, tokens
	}
	return header, body
}

// groupLines orders tokens top to bottom and clusters them into lines. A new
// line starts whenever a token sits more than tol below the line's first
// token. Tokens inside a line are ordered left to right.
func groupLines(tokens []models.Token, tol float64) [][]models.Token {
	if len(tokens) == 0 {
		return nil
	}
	sorted := make([]models.Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := math.Round(sorted[i].Top/tol), math.Round(sorted[j].Top/tol)
		if ri != rj {
			return ri < rj
		}
		return sorted[i].X0 < sorted[j].X0
	})

	var lines [][]models.Token
	var cur []models.Token
	var top float64
	for _, t := range sorted {
		if len(cur) == 0 || math.Abs(t.Top-top) > tol {
			if len(cur) > 0 {
				lines = append(lines, cur)
			}
			cur = []models.Token{t}
			top = t.Top
			continue
		}
		cur = append(cur, t)
	}
	lines = append(lines, cur)

	for _, l := range lines {
		sort.SliceStable(l, func(i, j int) bool { return l[i].X0 < l[j].X0 })
	}
	return lines
}

func columnText(tokens []models.Token, tol float64) string {
	lines := groupLines(tokens, tol)
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		words := make([]string, len(l))
		for i, t := range l {
			words[i] = strings.TrimSpace(t.Text)
		}
		out = append(out, strings.Join(words, " "))
	}
	return strings.Join(out, "\n")
}
