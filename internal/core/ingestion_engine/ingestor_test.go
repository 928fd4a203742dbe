package ingestion_engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/core/chunker"
	"github.com/markdave123-py/Pagewise/internal/core/jobstore"
	"github.com/markdave123-py/Pagewise/internal/core/layout"
	"github.com/markdave123-py/Pagewise/internal/core/sanitizer"
	"github.com/markdave123-py/Pagewise/internal/models"
)

type harness struct {
	ing      *DocumentIngestor
	db       *fakeDB
	identity *fakeIdentity
	objects  *fakeObjects
	embedder *fakeEmbedder
	jobs     *jobstore.MemoryStore
	notes    *recordingNotifier
}

func newHarness(t *testing.T, pages []string, capacity int) *harness {
	t.Helper()
	h := &harness{
		db:       newFakeDB(),
		identity: &fakeIdentity{},
		objects:  &fakeObjects{},
		embedder: &fakeEmbedder{},
		jobs:     jobstore.NewMemoryStore(jobstore.DefaultTTLPolicy()),
		notes:    &recordingNotifier{},
	}
	runner, err := NewRunner(2*capacity, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(runner.Release)

	ing, err := NewDocumentIngestor(Deps{
		DB:       h.db,
		Identity: h.identity,
		Objects:  h.objects,
		Embedder: h.embedder,
		Jobs:     h.jobs,
		Notifier: h.notes,
		Reader:   NewReader(fakeExtractor{pages: pages}, layout.DefaultOptions(), 50, nil),
		Chunker:  chunker.New(chunker.WithChunkSize(300), chunker.WithOverlap(100)),
		Gate:     NewGate(capacity),
		Runner:   runner,
	}, IngestConfig{MinFileSize: 8, InsertBatch: 2})
	require.NoError(t, err)
	h.ing = ing
	return h
}

var pdfBytes = []byte("%PDF-1.7\n% plain test body\n")

func (h *harness) run(t *testing.T, up Upload) (*models.Job, error) {
	t.Helper()
	job := &models.Job{ID: "job-1", Status: models.JobProcessing, Stage: models.StageFileReceived}
	require.NoError(t, h.jobs.Set(context.Background(), job))
	_, err := h.ing.Run(context.Background(), job, up)
	got, gerr := h.jobs.Get(context.Background(), "job-1")
	require.NoError(t, gerr)
	return got, err
}

func TestRunCompletesDocument(t *testing.T) {
	h := newHarness(t, manualPages(3, 6), 2)

	job, err := h.run(t, Upload{FileName: "brakes.pdf", Data: pdfBytes, OwnerID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, models.StageDone, job.Stage)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Result)

	doc := h.db.onlyDoc()
	require.NotNil(t, doc)
	assert.Equal(t, models.DocumentEmbedded, doc.Status)
	assert.Equal(t, job.Result.DocumentID, doc.ID)
	assert.Equal(t, 3, doc.PageCount)
	assert.Equal(t, "u1", *doc.OwnerID)
	require.NotNil(t, doc.SourceURL)
	assert.Contains(t, *doc.SourceURL, doc.ID+"/brakes.pdf")
	assert.Contains(t, string(doc.Metadata), `"author":"Workshop"`)

	stats, err := h.db.CountChunks(context.Background(), doc.ID)
	require.NoError(t, err)
	total := stats.Total
	assert.Greater(t, total, 2)
	assert.Equal(t, total, stats.Embedded)
	assert.Equal(t, total-1, stats.MaxIndex)
	assert.Equal(t, total, doc.ExpectedChunks)
	assert.Equal(t, total, job.Result.ChunkCount)

	h.db.mu.Lock()
	seen := map[int]bool{}
	for _, ch := range h.db.chunks[doc.ID] {
		seen[ch.Index] = true
		assert.Equal(t, "fake-embed-3", *ch.EmbeddingModel)
		assert.NotEmpty(t, ch.Pages)
	}
	h.db.mu.Unlock()
	for i := 0; i < total; i++ {
		assert.True(t, seen[i], "chunk index %d missing", i)
	}

	require.Len(t, h.notes.events, 1)
	assert.Equal(t, models.JobCompleted, h.notes.events[0].Status)
}

func TestRunEmbeddingFailureWritesNoChunks(t *testing.T) {
	h := newHarness(t, manualPages(2, 6), 1)
	h.embedder.err = errors.New("401 invalid api key")

	job, err := h.run(t, Upload{FileName: "a.pdf", Data: pdfBytes})
	require.Error(t, err)

	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, models.StageFailed, job.Stage)
	assert.Contains(t, job.Error, "invalid api key")
	assert.Zero(t, h.db.chunkCount())
	assert.Equal(t, models.DocumentFailed, h.db.onlyDoc().Status)
}

func TestRunMarkEmbeddedFailureLeavesDocumentProcessing(t *testing.T) {
	h := newHarness(t, manualPages(2, 6), 1)
	h.db.embeddedErr = errors.New("connection reset")

	job, err := h.run(t, Upload{FileName: "a.pdf", Data: pdfBytes})
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)

	doc := h.db.onlyDoc()
	assert.Equal(t, models.DocumentProcessing, doc.Status)
	stats, _ := h.db.CountChunks(context.Background(), doc.ID)
	assert.Equal(t, stats.Total, stats.Embedded)
	assert.Equal(t, stats.Total, doc.ExpectedChunks)

	// the stuck document is visible to the reconciler but left alone
	r := NewReconciler(h.db, zap.NewNop())
	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	report, err := r.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, ReconcileEmbedded, report[0].Verdict)
	assert.False(t, report[0].Healed)
	assert.Equal(t, models.DocumentProcessing, h.db.onlyDoc().Status)

	h.db.embeddedErr = nil
	r.Heal = true
	report, err = r.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.True(t, report[0].Healed)
	assert.Equal(t, models.DocumentEmbedded, h.db.onlyDoc().Status)
}

func TestRunDocumentInsertFailure(t *testing.T) {
	h := newHarness(t, manualPages(1, 4), 1)
	h.db.createErr = errors.New("duplicate key")

	job, err := h.run(t, Upload{FileName: "a.pdf", Data: pdfBytes})
	require.Error(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Error, "persist document")

	assert.Nil(t, h.db.onlyDoc())
	assert.Zero(t, h.db.chunkCount())
	assert.Empty(t, h.db.statusCalls)
	assert.Zero(t, h.embedder.calls)
	assert.Equal(t, h.objects.uploaded, h.objects.deleted)
}

func TestRunObjectStorageFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, manualPages(1, 4), 1)
	h.objects.uploadErr = errors.New("403 forbidden")

	job, err := h.run(t, Upload{FileName: "a.pdf", Data: pdfBytes})
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Nil(t, h.db.onlyDoc().SourceURL)
}

func TestRunChunkCountMismatchFails(t *testing.T) {
	h := newHarness(t, manualPages(2, 6), 1)
	h.db.shortBy = 1

	job, err := h.run(t, Upload{FileName: "a.pdf", Data: pdfBytes})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChunkCountMismatch)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, models.DocumentFailed, h.db.onlyDoc().Status)
}

func TestRunRejectsBinaryThreat(t *testing.T) {
	h := newHarness(t, manualPages(1, 3), 1)
	h.identity.disableErr = errors.New("auth store down")
	data := []byte("%PDF-1.4\n1 0 obj << /OpenAction << /S /JavaScript /JS (app.alert(1)) >> >>\n")

	job, err := h.run(t, Upload{FileName: "evil.pdf", Data: data, OwnerID: "u-bad"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sanitizer.ErrThreatDetected)

	assert.Equal(t, models.JobFailed, job.Status)
	assert.True(t, strings.HasPrefix(job.Error, "document rejected: malicious content detected"), job.Error)
	assert.Nil(t, h.db.onlyDoc())
	assert.Empty(t, h.objects.uploaded)

	// the profile write still runs when disabling the account fails
	assert.Equal(t, []string{"u-bad"}, h.identity.disabled)
	require.Len(t, h.identity.revoked, 1)
	assert.True(t, h.identity.revoked[0].Banned)
	assert.Equal(t, "account disabled, all roles stripped", h.identity.revoked[0].Action)
}

func TestRunRejectsTextThreat(t *testing.T) {
	pages := manualPages(2, 3)
	pages[1] += ` See <iframe src="https://evil.example"></iframe>`
	h := newHarness(t, pages, 1)

	job, err := h.run(t, Upload{FileName: "a.pdf", Data: pdfBytes, OwnerID: "u2"})
	require.Error(t, err)

	var te *sanitizer.ThreatError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 2, te.Page)
	assert.Contains(t, job.Error, "on page 2")
	assert.Len(t, h.identity.disabled, 1)
	assert.Zero(t, h.db.chunkCount())
}

func TestRunAnonymousThreatSkipsBan(t *testing.T) {
	h := newHarness(t, manualPages(1, 3), 1)
	_, err := h.run(t, Upload{FileName: "a.pdf", Data: []byte("%PDF-1.4 <script>alert(1)</script>")})
	require.Error(t, err)
	assert.Empty(t, h.identity.disabled)
	assert.Empty(t, h.identity.revoked)
}

func TestRunNoText(t *testing.T) {
	h := newHarness(t, []string{"", "   ", "!broken"}, 1)
	job, err := h.run(t, Upload{FileName: "scan.pdf", Data: pdfBytes})
	assert.ErrorIs(t, err, ErrNoText)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Nil(t, h.db.onlyDoc())
}

func TestRunTooManyPages(t *testing.T) {
	h := newHarness(t, manualPages(51, 1), 1)
	job, err := h.run(t, Upload{FileName: "big.pdf", Data: pdfBytes})
	assert.ErrorIs(t, err, ErrTooManyPages)
	assert.Equal(t, models.JobFailed, job.Status)
}

func TestRunRecoversPanic(t *testing.T) {
	h := newHarness(t, manualPages(1, 4), 1)
	h.embedder.panic = true

	job, err := h.run(t, Upload{FileName: "a.pdf", Data: pdfBytes})
	require.Error(t, err)
	assert.Contains(t, job.Error, "pipeline crashed")
	assert.Equal(t, models.DocumentFailed, h.db.onlyDoc().Status)
}

func TestSubmitCapacityPlusOne(t *testing.T) {
	const capacity = 10
	h := newHarness(t, manualPages(1, 4), capacity)
	h.embedder.block = make(chan struct{})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []string
		busy     []*BusyError
	)
	for n := 0; n < capacity+1; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := h.ing.Submit(context.Background(), Upload{FileName: "a.pdf", Data: pdfBytes})
			mu.Lock()
			defer mu.Unlock()
			var be *BusyError
			switch {
			case err == nil:
				accepted = append(accepted, id)
			case errors.As(err, &be):
				busy = append(busy, be)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, accepted, capacity)
	require.Len(t, busy, 1)
	assert.Equal(t, capacity, busy[0].Active)
	assert.Equal(t, capacity, busy[0].Max)
	assert.ErrorIs(t, busy[0], ErrBusy)

	close(h.embedder.block)
	require.Eventually(t, func() bool { return h.ing.Gate.Active() == 0 }, 5*time.Second, 10*time.Millisecond)
	for _, id := range accepted {
		job, err := h.jobs.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.JobCompleted, job.Status)
	}
}

func TestSubmitReleasesSlotAfterFailure(t *testing.T) {
	h := newHarness(t, manualPages(1, 4), 1)
	h.embedder.err = errors.New("model_not_found")

	id, err := h.ing.Submit(context.Background(), Upload{FileName: "a.pdf", Data: pdfBytes})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		job, err := h.jobs.Get(context.Background(), id)
		return err == nil && job.Status == models.JobFailed
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return h.ing.Gate.Active() == 0 }, time.Second, 5*time.Millisecond)

	// the slot is usable again
	h.embedder.err = nil
	_, err = h.ing.Submit(context.Background(), Upload{FileName: "b.pdf", Data: pdfBytes})
	assert.NoError(t, err)
}

func TestSubmitValidatesBeforeTakingSlot(t *testing.T) {
	h := newHarness(t, manualPages(1, 4), 1)

	_, err := h.ing.Submit(context.Background(), Upload{FileName: "a.txt", Data: []byte("hello there, not a pdf")})
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.True(t, IsRejection(err))
	assert.Zero(t, h.ing.Gate.Active())
	assert.Zero(t, h.jobs.Len())
}

func TestExtractDoesNotPersist(t *testing.T) {
	h := newHarness(t, []string{"Service Manual\nModel X200\nIntro text that is long enough."}, 1)

	ex, err := h.ing.Extract(pdfBytes, "x200.pdf", nil)
	require.NoError(t, err)
	require.Len(t, ex.Pages, 1)
	assert.Equal(t, "Service Manual Model X200 Intro text that is long enough.", ex.Title)
	assert.Nil(t, h.db.onlyDoc())
}
