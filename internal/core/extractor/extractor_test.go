package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/models"
)

// run lays out s as one glyph per rune starting at x on baseline y.
func run(s string, x, y float64) []glyph {
	var out []glyph
	for _, r := range s {
		out = append(out, glyph{X: x, Y: y, W: 5, Size: 10, S: string(r)})
		x += 5
	}
	return out
}

func TestTokensFromGlyphs(t *testing.T) {
	var gs []glyph
	gs = append(gs, run("world", 140, 700)...)
	gs = append(gs, run("Hello world", 100, 750)...)
	gs = append(gs, run("Hello", 100, 700)...)

	toks := tokensFromGlyphs(gs, 800)
	require.Len(t, toks, 4)

	texts := make([]string, len(toks))
	for i, tk := range toks {
		texts[i] = tk.Text
	}
	assert.Equal(t, []string{"Hello", "world", "Hello", "world"}, texts)

	first := toks[0]
	assert.Equal(t, 100.0, first.X0)
	assert.Equal(t, 125.0, first.X1)
	assert.Equal(t, 40.0, first.Top)
	assert.Equal(t, 50.0, first.Bottom)
	assert.Equal(t, 90.0, toks[2].Top)
}

func TestTokensFromGlyphsSplitsOnGap(t *testing.T) {
	gs := append(run("ab", 10, 500), run("cd", 30, 500)...)
	toks := tokensFromGlyphs(gs, 600)
	require.Len(t, toks, 2)
	assert.Equal(t, "ab", toks[0].Text)
	assert.Equal(t, "cd", toks[1].Text)

	// adjacent glyphs with no gap join into one word
	joined := tokensFromGlyphs(append(run("ab", 10, 500), run("cd", 20, 500)...), 600)
	require.Len(t, joined, 1)
	assert.Equal(t, "abcd", joined[0].Text)
}

func TestTokensFromGlyphsSkipsEmpty(t *testing.T) {
	assert.Empty(t, tokensFromGlyphs(nil, 100))
	assert.Empty(t, tokensFromGlyphs([]glyph{{S: " ", X: 1, Y: 1, Size: 10}, {S: ""}}, 100))
}

func TestFlatDocument(t *testing.T) {
	doc := newFlatDocument("page one\fpage two\f", models.DocumentMetadata{Title: "T"})
	assert.Equal(t, 2, doc.NumPages())
	assert.Equal(t, 2, doc.Metadata().NumPages)
	assert.Equal(t, "T", doc.Metadata().Title)

	p, err := doc.Page(2)
	require.NoError(t, err)
	assert.Nil(t, p.Geometry)
	assert.Equal(t, "page two", p.Text)

	_, err = doc.Page(3)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	_, err = doc.Page(0)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
}

func TestOpenRejectsGarbageWithoutFallback(t *testing.T) {
	_, err := NewPDFExtractor(nil, nil).Open([]byte("not a pdf at all"))
	assert.Error(t, err)
}

type stubExtractor struct{ called bool }

func (s *stubExtractor) Open([]byte) (core.ExtractedDocument, error) {
	s.called = true
	return newFlatDocument("flat text", models.DocumentMetadata{}), nil
}

func TestOpenUsesFallback(t *testing.T) {
	fb := &stubExtractor{}
	doc, err := NewPDFExtractor(fb, nil).Open([]byte("not a pdf at all"))
	require.NoError(t, err)
	assert.True(t, fb.called)
	assert.Equal(t, 1, doc.NumPages())
}

func TestInferTitle(t *testing.T) {
	cases := []struct {
		name, text, want string
	}{
		{"empty", "", ""},
		{"combined", "Off target\nContinued collective inaction\nEmissions Gap Report 2025\nBody text follows here.", "Off target Continued collective inaction Emissions Gap Report 2025"},
		{"skips page numbers", "12\nPage 3 of 9\nService Manual", "Service Manual"},
		{"single", "Owner's Handbook", "Owner's Handbook"},
		{"nothing usable", "1234\nab\nxyz", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InferTitle(tc.text))
		})
	}
}

func TestResolveTitle(t *testing.T) {
	assert.Equal(t, "From Meta", ResolveTitle("  From Meta ", "Page Title Here", "f.pdf"))
	assert.Equal(t, "Page Title Here", ResolveTitle("", "Page Title Here", "f.pdf"))
	assert.Equal(t, "workshop-manual", ResolveTitle("", "", "uploads/workshop-manual.pdf"))
}
