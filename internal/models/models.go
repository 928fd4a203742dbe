package models

import (
	"encoding/json"
	"time"
)

// Token is one positioned word on a page. Coordinates are top-left origin.
type Token struct {
	Text   string  `json:"text"`
	X0     float64 `json:"x0"`
	X1     float64 `json:"x1"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// PageGeometry is the raw material for one page: its size and the tokens on it.
type PageGeometry struct {
	Index  int     `json:"index"` // 1-based
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Tokens []Token `json:"tokens"`
}

// Page is the reconstructed, reading-order text of one physical page.
type Page struct {
	Index        int    `json:"pdf_page"`
	PrintedLabel string `json:"printed_page,omitempty"`
	Section      string `json:"chapter,omitempty"`
	Text         string `json:"text"`
	CharCount    int    `json:"char_count"`
}

type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentEmbedded   DocumentStatus = "embedded"
	DocumentFailed     DocumentStatus = "failed"
)

// Document represents one uploaded file.
type Document struct {
	ID             string          `db:"id" json:"id"`
	JobID          string          `db:"job_id" json:"job_id"`
	Title          string          `db:"title" json:"title"`
	FileName       string          `db:"file_name" json:"file_name"`
	SourceURL      *string         `db:"source_url" json:"source_url"`           // object storage URL, nil when the upload failed
	PreviewURL     *string         `db:"preview_url" json:"preview_url"`         // never rendered here
	PageCount      int             `db:"page_count" json:"page_count"`
	ExpectedChunks int             `db:"expected_chunks" json:"expected_chunks"` // chunks the run planned to write
	Metadata       json.RawMessage `db:"metadata" json:"metadata"`
	Status         DocumentStatus  `db:"status" json:"status"`
	OwnerID        *string         `db:"owner_id" json:"owner_id"`
	UploadDevice   string          `db:"upload_device" json:"upload_device"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// DocumentMetadata is what the PDF info dictionary tells us about the file.
type DocumentMetadata struct {
	Title            string `json:"title,omitempty"`
	Author           string `json:"author,omitempty"`
	Subject          string `json:"subject,omitempty"`
	Creator          string `json:"creator,omitempty"`
	Producer         string `json:"producer,omitempty"`
	CreationDate     string `json:"creation_date,omitempty"`
	ModificationDate string `json:"modification_date,omitempty"`
	NumPages         int    `json:"num_pages"`
	Encrypted        bool   `json:"encrypted"`
}

// DocumentChunk represents one text chunk from a document.
type DocumentChunk struct {
	ID             string    `db:"id" json:"id"`
	DocumentID     string    `db:"document_id" json:"document_id"`
	Index          int       `db:"chunk_index" json:"chunk_index"`
	Text           string    `db:"text" json:"text"`
	CharCount      int       `db:"char_count" json:"char_count"`
	Pages          []int     `db:"pages" json:"pages"`
	PrintedPages   []string  `db:"printed_pages" json:"printed_pages"`
	Sections       []string  `db:"chapters" json:"chapters"`
	Embedding      []float32 `db:"embedding" json:"embedding,omitempty"` // pgvector column
	EmbeddingModel *string   `db:"embedding_model" json:"embedding_model,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Stage is a step of the ingestion state machine.
type Stage string

const (
	StageFileReceived        Stage = "file_received"
	StageReading             Stage = "reading"
	StageReadingComplete     Stage = "reading_complete"
	StageStoring             Stage = "storing"
	StageExternalUpload      Stage = "external_upload"
	StageDocumentPersisted   Stage = "document_persisted"
	StageEmbeddingsGenerated Stage = "embeddings_generated"
	StageChunksPersisted     Stage = "chunks_persisted"
	StageDone                Stage = "done"
	StageFailed              Stage = "failed"
)

// ChunkStats summarises the stored chunk rows of one document. MaxIndex is
// -1 when there are none.
type ChunkStats struct {
	Total    int `json:"total"`
	Embedded int `json:"embedded"`
	MaxIndex int `json:"max_index"`
}

// JobResult is filled once a job completes.
type JobResult struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}

// Job is the polling record for one pipeline run.
type Job struct {
	ID        string     `json:"job_id"`
	Status    JobStatus  `json:"status"`
	Stage     Stage      `json:"stage"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
	Error     string     `json:"error,omitempty"`
	FileName  string     `json:"filename,omitempty"`
	Result    *JobResult `json:"result,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so stores never share state with callers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.Result != nil {
		r := *j.Result
		out.Result = &r
	}
	return &out
}

// BanRecord is the structured reason stored when an uploader is flagged.
type BanRecord struct {
	Banned    bool      `json:"BANNED"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
}
