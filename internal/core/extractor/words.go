package extractor

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/markdave123-py/Pagewise/internal/models"
)

// glyph is one positioned text run as the PDF content stream draws it.
// Y is the baseline measured from the bottom of the page.
type glyph struct {
	X, Y, W, Size float64
	S             string
}

// wordGap is the horizontal gap, relative to the font size, that separates
// two words drawn without an explicit space.
const wordGap = 0.25

// tokensFromGlyphs groups glyphs into words and converts them to top-origin
// boxes on a page of the given height.
func tokensFromGlyphs(glyphs []glyph, height float64) []models.Token {
	gs := make([]glyph, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S == "" || math.IsNaN(g.X) || math.IsNaN(g.Y) {
			continue
		}
		if g.Size <= 0 {
			g.Size = 10
		}
		gs = append(gs, g)
	}
	// baseline descending, then left to right
	sort.SliceStable(gs, func(i, j int) bool {
		if !sameLine(gs[i], gs[j]) {
			return gs[i].Y > gs[j].Y
		}
		return gs[i].X < gs[j].X
	})

	var (
		out  []models.Token
		cur  strings.Builder
		word models.Token
		last glyph
		open bool
	)
	flush := func() {
		if open && strings.TrimSpace(cur.String()) != "" {
			word.Text = strings.TrimSpace(cur.String())
			out = append(out, word)
		}
		cur.Reset()
		open = false
	}

	for _, g := range gs {
		if strings.TrimFunc(g.S, unicode.IsSpace) == "" {
			flush()
			last = g
			continue
		}
		if open && (!sameLine(last, g) || g.X-(last.X+last.W) > wordGap*g.Size) {
			flush()
		}
		top := height - g.Y - g.Size
		bottom := height - g.Y
		if !open {
			word = models.Token{X0: g.X, X1: g.X + g.W, Top: top, Bottom: bottom}
			open = true
		} else {
			word.X1 = math.Max(word.X1, g.X+g.W)
			word.Top = math.Min(word.Top, top)
			word.Bottom = math.Max(word.Bottom, bottom)
		}
		cur.WriteString(g.S)
		last = g
	}
	flush()
	return out
}

func sameLine(a, b glyph) bool {
	return math.Abs(a.Y-b.Y) <= 0.5*math.Max(a.Size, b.Size)
}
