package core

import "github.com/markdave123-py/Pagewise/internal/models"

// PageContent is one page as the extractor sees it. Geometry is set when
// positioned tokens are available; otherwise Text holds a flat rendering.
type PageContent struct {
	Geometry *models.PageGeometry
	Text     string
}

// ExtractedDocument gives page-level access to a parsed file.
type ExtractedDocument interface {
	NumPages() int
	Metadata() models.DocumentMetadata
	// Page returns the content of a 1-based page.
	Page(index int) (PageContent, error)
}

// DocumentExtractor parses raw file bytes.
type DocumentExtractor interface {
	Open(data []byte) (ExtractedDocument, error)
}
