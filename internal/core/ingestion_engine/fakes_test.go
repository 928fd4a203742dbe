package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/models"
)

type fakeDB struct {
	mu        sync.Mutex
	docs      map[string]*models.Document
	chunks    map[string][]models.DocumentChunk
	createErr error
	insertErr error
	// shortBy makes every insert report that many fewer rows
	shortBy     int
	embeddedErr error
	statusCalls []models.DocumentStatus
}

func newFakeDB() *fakeDB {
	return &fakeDB{docs: map[string]*models.Document{}, chunks: map[string][]models.DocumentChunk{}}
}

func (f *fakeDB) CreateDocument(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *doc
	cp.UpdatedAt = time.Now()
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDB) UpdateDocumentStatus(_ context.Context, id string, status models.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, status)
	if status == models.DocumentEmbedded && f.embeddedErr != nil {
		return f.embeddedErr
	}
	d, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	d.Status = status
	return nil
}

func (f *fakeDB) InsertDocumentChunks(_ context.Context, chunks []models.DocumentChunk) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	for _, ch := range chunks {
		f.chunks[ch.DocumentID] = append(f.chunks[ch.DocumentID], ch)
	}
	return int64(len(chunks) - f.shortBy), nil
}

func (f *fakeDB) CountChunks(_ context.Context, documentID string) (models.ChunkStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := models.ChunkStats{MaxIndex: -1}
	for _, ch := range f.chunks[documentID] {
		s.Total++
		s.MaxIndex = max(s.MaxIndex, ch.Index)
		if len(ch.Embedding) > 0 && ch.EmbeddingModel != nil {
			s.Embedded++
		}
	}
	return s, nil
}

func (f *fakeDB) ListStuckDocuments(_ context.Context, before time.Time) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, d := range f.docs {
		if d.Status == models.DocumentProcessing && d.UpdatedAt.Before(before) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) onlyDoc() *models.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		cp := *d
		return &cp
	}
	return nil
}

func (f *fakeDB) chunkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, cs := range f.chunks {
		n += len(cs)
	}
	return n
}

type fakeIdentity struct {
	mu         sync.Mutex
	disableErr error
	disabled   []string
	revoked    []models.BanRecord
}

func (f *fakeIdentity) DisableUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled = append(f.disabled, userID)
	return f.disableErr
}

func (f *fakeIdentity) RevokeProfile(_ context.Context, _ string, ban models.BanRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, ban)
	return nil
}

type fakeObjects struct {
	mu        sync.Mutex
	uploadErr error
	uploaded  []string
	deleted   []string
}

func (f *fakeObjects) UploadFile(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = append(f.uploaded, key)
	return "https://bucket.example/" + key, nil
}

func (f *fakeObjects) DeleteFile(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeEmbedder struct {
	err   error
	panic bool
	block chan struct{}
	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed-3" }

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panic {
		panic("embedding backend exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{float32(i), 0.5, 0.25}
	}
	return out, nil
}

type fakeExtractor struct {
	pages []string
	err   error
}

func (f fakeExtractor) Open([]byte) (core.ExtractedDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return fakeDoc{pages: f.pages}, nil
}

type fakeDoc struct{ pages []string }

func (d fakeDoc) NumPages() int { return len(d.pages) }

func (d fakeDoc) Metadata() models.DocumentMetadata {
	return models.DocumentMetadata{Author: "Workshop", NumPages: len(d.pages)}
}

func (d fakeDoc) Page(i int) (core.PageContent, error) {
	if d.pages[i-1] == "!broken" {
		return core.PageContent{}, errors.New("bad content stream")
	}
	return core.PageContent{Text: d.pages[i-1]}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []core.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev core.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return errors.New("mail relay down")
}

// manualPages builds n pages of numbered sentences.
func manualPages(n, sentencesPerPage int) []string {
	var pages []string
	for p := 1; p <= n; p++ {
		var ss []string
		for s := 1; s <= sentencesPerPage; s++ {
			ss = append(ss, fmt.Sprintf("Page %d step %d tightens the caliper bolts to the listed torque.", p, s))
		}
		pages = append(pages, strings.Join(ss, " "))
	}
	return pages
}
