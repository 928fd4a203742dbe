package ingestion_engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/core/chunker"
	objectclient "github.com/markdave123-py/Pagewise/internal/core/object-client"
	"github.com/markdave123-py/Pagewise/internal/core/sanitizer"
	"github.com/markdave123-py/Pagewise/internal/models"
)

// Deps are the collaborators of an Ingestor. Objects, Identity and Notifier
// may be nil.
type Deps struct {
	DB       core.DbClient
	Identity core.IdentityStore
	Objects  core.ObjectClient
	Embedder core.EmbeddingProvider
	Jobs     core.JobStore
	Notifier core.Notifier
	Reader   *Reader
	Chunker  *chunker.Chunker
	Scanner  *sanitizer.Scanner
	Gate     *Gate
	Runner   *Runner
	Logger   *zap.Logger
}

// Ingestor is what the HTTP layer needs from the pipeline.
type Ingestor interface {
	Submit(ctx context.Context, up Upload) (string, error)
	Extract(data []byte, fileName string, only []int) (*Extraction, error)
	Status() (active, capacity int)
	JobStore() core.JobStore
}

var _ Ingestor = (*DocumentIngestor)(nil)

// DocumentIngestor runs uploads through read, chunk, embed and persist.
type DocumentIngestor struct {
	Deps
	cfg IngestConfig
}

func NewDocumentIngestor(d Deps, cfg IngestConfig) (*DocumentIngestor, error) {
	if d.DB == nil || d.Embedder == nil || d.Jobs == nil || d.Reader == nil || d.Gate == nil || d.Runner == nil {
		return nil, errors.New("ingestor: db, embedder, job store, reader, gate and runner are required")
	}
	if d.Chunker == nil {
		d.Chunker = chunker.New()
	}
	if d.Scanner == nil {
		d.Scanner = sanitizer.NewScanner()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &DocumentIngestor{Deps: d, cfg: cfg.withDefaults()}, nil
}

// Submit validates the upload, takes a gate slot and starts the pipeline in
// the background. It returns as soon as the job record exists.
func (i *DocumentIngestor) Submit(ctx context.Context, up Upload) (string, error) {
	if err := ValidateUpload(up.Data, i.cfg.MinFileSize, i.cfg.MaxFileSize); err != nil {
		return "", err
	}
	release, err := i.Gate.TryAcquire()
	if err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	job := &models.Job{
		ID:        jobID,
		Status:    models.JobProcessing,
		Stage:     models.StageFileReceived,
		Message:   "File received",
		FileName:  up.FileName,
		UpdatedAt: time.Now().UTC(),
	}
	if err := i.Jobs.Set(ctx, job); err != nil {
		release()
		return "", fmt.Errorf("create job: %w", err)
	}

	runCtx := context.WithoutCancel(ctx)
	err = i.Runner.Go(func() {
		defer release()
		ctx, cancel := context.WithTimeout(runCtx, i.cfg.JobTimeout)
		defer cancel()
		_, _ = i.Run(ctx, job, up)
	})
	if err != nil {
		release()
		_ = i.Jobs.Delete(ctx, jobID)
		return "", err
	}

	i.Logger.Info("ingestion job accepted",
		zap.String("job_id", jobID),
		zap.String("filename", up.FileName),
		zap.Int("active_jobs", i.Gate.Active()),
		zap.Int("max_concurrent_jobs", i.Gate.Capacity()),
	)
	return jobID, nil
}

// Run drives one job to completed or failed. It never leaves the job in
// processing, even when a stage panics.
func (i *DocumentIngestor) Run(ctx context.Context, job *models.Job, up Upload) (res *models.JobResult, err error) {
	log := i.Logger.With(zap.String("job_id", job.ID))
	t := newTracker(i.Jobs, job, log)

	var docID string
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline crashed: %v", r)
		}
		if err != nil {
			res = nil
			i.abort(ctx, t, log, docID, up, err)
		}
	}()

	if v := i.Scanner.ScanBytes(up.Data); v.Dangerous {
		return nil, &sanitizer.ThreatError{Reason: v.Reason}
	}

	t.stage(ctx, models.StageReading, 5, "Reading PDF")
	ex, err := i.Reader.Read(up.Data, up.FileName, nil, func(done, total int) {
		t.progress(ctx, 5+45*done/total, fmt.Sprintf("Reading page %d of %d", done, total))
	})
	if err != nil {
		return nil, err
	}
	t.stage(ctx, models.StageReadingComplete, 50, fmt.Sprintf("Read %d pages", len(ex.Pages)))

	chunks, err := i.Chunker.Chunk(ex.Pages)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoText
	}

	t.stage(ctx, models.StageStoring, 52, fmt.Sprintf("Prepared %d chunks", len(chunks)))
	id := uuid.NewString()
	sourceURL, objectKey := i.storeOriginal(ctx, t, log, id, up)

	meta, err := json.Marshal(ex.Metadata)
	if err != nil {
		i.dropOriginal(ctx, log, objectKey)
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	doc := &models.Document{
		ID:             id,
		JobID:          job.ID,
		Title:          ex.Title,
		FileName:       up.FileName,
		SourceURL:      sourceURL,
		PageCount:      ex.Metadata.NumPages,
		ExpectedChunks: len(chunks),
		Metadata:       meta,
		Status:         models.DocumentProcessing,
		UploadDevice:   up.UploadDevice,
	}
	if up.OwnerID != "" {
		doc.OwnerID = &up.OwnerID
	}
	if err := i.DB.CreateDocument(ctx, doc); err != nil {
		i.dropOriginal(ctx, log, objectKey)
		return nil, fmt.Errorf("persist document: %w", err)
	}
	// abort only touches a document row once one exists
	docID = id
	t.stage(ctx, models.StageDocumentPersisted, 62, "Document record created")

	t.progress(ctx, 68, fmt.Sprintf("Generating embeddings for %d chunks", len(chunks)))
	vecs, err := i.Embedder.EmbedTexts(ctx, chunker.Texts(chunks))
	if err != nil {
		return nil, fmt.Errorf("generate embeddings: %w", err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrEmbeddingCountMismatch, len(vecs), len(chunks))
	}
	t.stage(ctx, models.StageEmbeddingsGenerated, 75, fmt.Sprintf("Generated %d embeddings", len(vecs)))

	rows := chunkRows(docID, i.Embedder.ModelName(), chunks, vecs)
	inserted, err := i.insertChunks(ctx, log, rows)
	if err != nil {
		return nil, err
	}
	if inserted != int64(len(rows)) {
		return nil, fmt.Errorf("%w: inserted %d, expected %d", ErrChunkCountMismatch, inserted, len(rows))
	}
	t.stage(ctx, models.StageChunksPersisted, 85, fmt.Sprintf("Stored %d chunks", inserted))

	t.progress(ctx, 95, "Finalising document record")
	if err := i.DB.UpdateDocumentStatus(ctx, docID, models.DocumentEmbedded); err != nil {
		// chunks are complete; the reconciler reports this document
		log.Error("mark embedded failed, document left processing",
			zap.String("document_id", docID), zap.Error(err))
	}

	result := models.JobResult{DocumentID: docID, ChunkCount: len(rows)}
	i.notify(ctx, log, core.Event{
		JobID:       job.ID,
		Status:      models.JobCompleted,
		DocumentID:  docID,
		ChunkCount:  len(rows),
		FileName:    up.FileName,
		OwnerID:     up.OwnerID,
		DisplayName: up.DisplayName,
	})
	t.complete(ctx, result)
	return &result, nil
}

// storeOriginal uploads the file. Failure only costs the source URL.
func (i *DocumentIngestor) storeOriginal(ctx context.Context, t *tracker, log *zap.Logger, docID string, up Upload) (*string, string) {
	t.stage(ctx, models.StageExternalUpload, 55, "Uploading original to object storage")
	if i.Objects == nil {
		return nil, ""
	}
	key := objectclient.ObjectKey(i.cfg.StorageFolder, docID, up.FileName)
	url, err := i.Objects.UploadFile(ctx, key, up.Data, "application/pdf")
	if err != nil {
		log.Warn("object storage upload failed, continuing without source url", zap.Error(err))
		return nil, ""
	}
	return &url, key
}

func (i *DocumentIngestor) dropOriginal(ctx context.Context, log *zap.Logger, key string) {
	if key == "" || i.Objects == nil {
		return
	}
	if err := i.Objects.DeleteFile(ctx, key); err != nil {
		log.Warn("could not remove uploaded original", zap.String("key", key), zap.Error(err))
	}
}

func chunkRows(docID, model string, chunks []chunker.Chunk, vecs [][]float32) []models.DocumentChunk {
	rows := make([]models.DocumentChunk, len(chunks))
	for k, ch := range chunks {
		rows[k] = models.DocumentChunk{
			ID:             uuid.NewString(),
			DocumentID:     docID,
			Index:          ch.Index,
			Text:           ch.Text,
			CharCount:      ch.CharCount,
			Pages:          ch.Pages,
			PrintedPages:   ch.PrintedPages,
			Sections:       ch.Sections,
			Embedding:      vecs[k],
			EmbeddingModel: &model,
		}
	}
	return rows
}

// insertChunks writes rows in fixed-size batches, a few transactions at a
// time, and returns the total rows inserted.
func (i *DocumentIngestor) insertChunks(ctx context.Context, log *zap.Logger, rows []models.DocumentChunk) (int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.InsertWorkers)

	var total atomic.Int64
	for start := 0; start < len(rows); start += i.cfg.InsertBatch {
		end := min(start+i.cfg.InsertBatch, len(rows))
		batch := rows[start:end]
		g.Go(func() error {
			n, err := i.DB.InsertDocumentChunks(gctx, batch)
			if err != nil {
				return fmt.Errorf("chunk insert batch %d-%d: %w", start, end-1, err)
			}
			log.Debug("chunk batch inserted", zap.Int("from", start), zap.Int("to", end-1), zap.Int64("rows", n))
			total.Add(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total.Load(), err
	}
	return total.Load(), nil
}

// abort records a failure everywhere it needs to be seen. Cleanup runs on a
// context that outlives a timed-out run.
func (i *DocumentIngestor) abort(ctx context.Context, t *tracker, log *zap.Logger, docID string, up Upload, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	var threat *sanitizer.ThreatError
	if errors.As(cause, &threat) {
		log.Warn("document rejected", zap.String("reason", threat.Reason), zap.Int("page", threat.Page))
		i.flagBadActor(ctx, log, up.OwnerID, threat.Reason)
	}
	if docID != "" {
		if err := i.DB.UpdateDocumentStatus(ctx, docID, models.DocumentFailed); err != nil {
			log.Error("could not mark document failed", zap.String("document_id", docID), zap.Error(err))
		}
	}
	t.fail(ctx, cause)
	i.notify(ctx, log, core.Event{
		JobID:       t.job.ID,
		Status:      models.JobFailed,
		DocumentID:  docID,
		FileName:    up.FileName,
		OwnerID:     up.OwnerID,
		DisplayName: up.DisplayName,
		Error:       cause.Error(),
	})
}

// flagBadActor disables the uploader and strips their profile. The two
// writes are independent; one failing does not stop the other.
func (i *DocumentIngestor) flagBadActor(ctx context.Context, log *zap.Logger, userID, reason string) {
	if userID == "" || i.Identity == nil {
		return
	}
	log = log.With(zap.String("user_id", userID))

	if err := i.Identity.DisableUser(ctx, userID); err != nil {
		log.Error("ban: disabling account failed", zap.Error(err))
	} else {
		log.Warn("ban: account disabled, default role cleared")
	}

	ban := models.BanRecord{
		Banned:    true,
		Reason:    "XSS/injection detected in uploaded PDF: " + reason,
		Timestamp: time.Now().UTC(),
		Action:    "account disabled, all roles stripped",
	}
	if err := i.Identity.RevokeProfile(ctx, userID, ban); err != nil {
		log.Error("ban: revoking profile failed", zap.Error(err))
	} else {
		log.Warn("ban: profile privileges revoked")
	}
}

func (i *DocumentIngestor) notify(ctx context.Context, log *zap.Logger, ev core.Event) {
	if i.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := i.Notifier.Notify(ctx, ev); err != nil {
		log.Warn("notification failed", zap.Error(err))
	}
}

// Extract reads a document synchronously without persisting anything.
func (i *DocumentIngestor) Extract(data []byte, fileName string, only []int) (*Extraction, error) {
	if err := ValidateUpload(data, i.cfg.MinFileSize, i.cfg.MaxFileSize); err != nil {
		return nil, err
	}
	if v := i.Scanner.ScanBytes(data); v.Dangerous {
		return nil, &sanitizer.ThreatError{Reason: v.Reason}
	}
	return i.Reader.Read(data, fileName, only, nil)
}

// Status is the gate occupancy, for health and busy responses.
func (i *DocumentIngestor) Status() (active, capacity int) {
	return i.Gate.Active(), i.Gate.Capacity()
}

func (i *DocumentIngestor) JobStore() core.JobStore { return i.Jobs }
