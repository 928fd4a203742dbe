package core

import (
	"context"
	"time"

	"github.com/markdave123-py/Pagewise/internal/models"
)

// DbClient defines the persistence operations the ingestion pipeline needs.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error

	// InsertDocumentChunks writes one batch in a single transaction and
	// reports how many rows it inserted.
	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) (int64, error)
	// CountChunks returns the number of chunk rows for a document, how many
	// of them carry a vector and model name, and the highest chunk index.
	CountChunks(ctx context.Context, documentID string) (models.ChunkStats, error)
	// ListStuckDocuments returns documents still "processing" that were last
	// touched before the cutoff.
	ListStuckDocuments(ctx context.Context, before time.Time) ([]models.Document, error)

	Close() error
}

// IdentityStore holds the accounts uploads are attributed to. The two
// mutations are deliberately separate calls with no shared transaction.
type IdentityStore interface {
	DisableUser(ctx context.Context, userID string) error
	RevokeProfile(ctx context.Context, userID string, ban models.BanRecord) error
}

// ObjectClient defines interactions with S3 or any S3-compatible storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, key string) error
}

// JobStore keeps polling records. Implementations expire records on their
// own; the TTL depends on the job status.
type JobStore interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	Set(ctx context.Context, job *models.Job) error
	Delete(ctx context.Context, id string) error
	Name() string
}

// Event is a terminal pipeline outcome handed to notifiers.
type Event struct {
	JobID       string           `json:"job_id"`
	Status      models.JobStatus `json:"status"`
	DocumentID  string           `json:"document_id,omitempty"`
	ChunkCount  int              `json:"chunk_count,omitempty"`
	FileName    string           `json:"filename,omitempty"`
	OwnerID     string           `json:"user_id,omitempty"`
	DisplayName string           `json:"user_display_name,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Notifier is told about finished jobs. Failures never affect the job.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
