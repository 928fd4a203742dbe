// Package extractor opens PDF bytes and hands out positioned tokens per page,
// falling back to flat text when the layout reader cannot parse the file.
package extractor

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/models"
)

var ErrPageOutOfRange = errors.New("page out of range")

// PDFExtractor reads glyph positions with ledongthuc/pdf. Files it cannot
// open go to the fallback, when one is set.
type PDFExtractor struct {
	fallback core.DocumentExtractor
	logger   *zap.Logger
}

func NewPDFExtractor(fallback core.DocumentExtractor, logger *zap.Logger) *PDFExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFExtractor{fallback: fallback, logger: logger}
}

func (e *PDFExtractor) Open(data []byte) (doc core.ExtractedDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("pdf reader panic: %v", r)
		}
		if err != nil && e.fallback != nil {
			e.logger.Warn("layout reader failed, using flat text fallback", zap.Error(err))
			doc, err = e.fallback.Open(data)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	return &pdfDocument{r: r, meta: readMetadata(r)}, nil
}

type pdfDocument struct {
	r    *pdf.Reader
	meta models.DocumentMetadata
}

func (d *pdfDocument) NumPages() int { return d.r.NumPage() }

func (d *pdfDocument) Metadata() models.DocumentMetadata { return d.meta }

// Page reads the glyphs of a 1-based page. A malformed content stream is an
// error for that page only.
func (d *pdfDocument) Page(index int) (pc core.PageContent, err error) {
	if index < 1 || index > d.r.NumPage() {
		return core.PageContent{}, fmt.Errorf("%w: %d", ErrPageOutOfRange, index)
	}
	defer func() {
		if r := recover(); r != nil {
			pc, err = core.PageContent{}, fmt.Errorf("page %d: unreadable content: %v", index, r)
		}
	}()

	page := d.r.Page(index)
	geom := &models.PageGeometry{Index: index}
	if page.V.IsNull() {
		return core.PageContent{Geometry: geom}, nil
	}
	geom.Width, geom.Height = mediaBox(page.V)

	content := page.Content()
	glyphs := make([]glyph, 0, len(content.Text))
	for _, t := range content.Text {
		glyphs = append(glyphs, glyph{X: t.X, Y: t.Y, W: t.W, Size: t.FontSize, S: t.S})
	}
	geom.Tokens = tokensFromGlyphs(glyphs, geom.Height)
	return core.PageContent{Geometry: geom}, nil
}

// mediaBox walks up the page tree until it finds a MediaBox.
func mediaBox(v pdf.Value) (width, height float64) {
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			return box.Index(2).Float64() - box.Index(0).Float64(),
				box.Index(3).Float64() - box.Index(1).Float64()
		}
		v = v.Key("Parent")
	}
	// US Letter
	return 612, 792
}

func readMetadata(r *pdf.Reader) models.DocumentMetadata {
	info := r.Trailer().Key("Info")
	return models.DocumentMetadata{
		Title:            info.Key("Title").Text(),
		Author:           info.Key("Author").Text(),
		Subject:          info.Key("Subject").Text(),
		Creator:          info.Key("Creator").Text(),
		Producer:         info.Key("Producer").Text(),
		CreationDate:     info.Key("CreationDate").Text(),
		ModificationDate: info.Key("ModDate").Text(),
		NumPages:         r.NumPage(),
		Encrypted:        !r.Trailer().Key("Encrypt").IsNull(),
	}
}

var _ core.DocumentExtractor = (*PDFExtractor)(nil)
