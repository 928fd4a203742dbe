package ingestion_engine

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/core/extractor"
	"github.com/markdave123-py/Pagewise/internal/core/layout"
	"github.com/markdave123-py/Pagewise/internal/models"
)

// Extraction is a document read into reconstructed pages.
type Extraction struct {
	Title    string                  `json:"title"`
	Metadata models.DocumentMetadata `json:"metadata"`
	Pages    []models.Page           `json:"pages"`
}

// Reader turns PDF bytes into reading-order pages.
type Reader struct {
	extractor core.DocumentExtractor
	layout    layout.Options
	maxPages  int
	logger    *zap.Logger
}

func NewReader(ext core.DocumentExtractor, opts layout.Options, maxPages int, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{extractor: ext, layout: opts, maxPages: maxPages, logger: logger}
}

// Read reconstructs every page, or only the 1-based pages listed in only.
// A page that cannot be read becomes an empty page; progress, when set, is
// called after each page.
func (r *Reader) Read(data []byte, fileName string, only []int, progress func(done, total int)) (*Extraction, error) {
	doc, err := r.extractor.Open(data)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	n := doc.NumPages()
	if r.maxPages > 0 && n > r.maxPages {
		return nil, fmt.Errorf("%w: %d pages, maximum is %d", ErrTooManyPages, n, r.maxPages)
	}

	indices := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		if len(only) == 0 || slices.Contains(only, i) {
			indices = append(indices, i)
		}
	}

	ex := &Extraction{Metadata: doc.Metadata(), Pages: make([]models.Page, 0, len(indices))}
	ex.Metadata.NumPages = n
	for k, i := range indices {
		ex.Pages = append(ex.Pages, r.page(doc, i))
		if progress != nil {
			progress(k+1, len(indices))
		}
	}

	var first string
	if len(ex.Pages) > 0 {
		first = ex.Pages[0].Text
	}
	ex.Title = extractor.ResolveTitle(ex.Metadata.Title, first, fileName)
	return ex, nil
}

func (r *Reader) page(doc core.ExtractedDocument, index int) models.Page {
	pc, err := doc.Page(index)
	if err != nil {
		r.logger.Warn("page unreadable, keeping it empty", zap.Int("page", index), zap.Error(err))
		return models.Page{Index: index}
	}
	if pc.Geometry != nil {
		geom := *pc.Geometry
		geom.Index = index
		return layout.Reconstruct(geom, r.layout)
	}
	text := layout.CleanText(pc.Text)
	return models.Page{Index: index, Text: text, CharCount: len([]rune(text))}
}
