package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/models"
)

// DocconvExtractor gets whole-document text through docconv. It has no
// glyph positions, so pages come back as flat text.
type DocconvExtractor struct{}

func NewDocconvExtractor() *DocconvExtractor { return &DocconvExtractor{} }

func (e *DocconvExtractor) Open(data []byte) (core.ExtractedDocument, error) {
	res, err := docconv.Convert(bytes.NewReader(data), "application/pdf", false)
	if err != nil {
		return nil, fmt.Errorf("docconv: %w", err)
	}
	meta := models.DocumentMetadata{
		Title:    res.Meta["Title"],
		Author:   res.Meta["Author"],
		Subject:  res.Meta["Subject"],
		Creator:  res.Meta["Creator"],
		Producer: res.Meta["Producer"],
	}
	return newFlatDocument(res.Body, meta), nil
}

// flatDocument splits pdftotext output on form feeds, one per page break.
type flatDocument struct {
	pages []string
	meta  models.DocumentMetadata
}

func newFlatDocument(body string, meta models.DocumentMetadata) *flatDocument {
	pages := strings.Split(body, "\f")
	// pdftotext ends the last page with a form feed too
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	meta.NumPages = len(pages)
	return &flatDocument{pages: pages, meta: meta}
}

func (d *flatDocument) NumPages() int { return len(d.pages) }

func (d *flatDocument) Metadata() models.DocumentMetadata { return d.meta }

func (d *flatDocument) Page(index int) (core.PageContent, error) {
	if index < 1 || index > len(d.pages) {
		return core.PageContent{}, fmt.Errorf("%w: %d", ErrPageOutOfRange, index)
	}
	return core.PageContent{Text: d.pages[index-1]}, nil
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)
