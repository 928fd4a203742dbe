package ingestion_engine

import "time"

// IngestConfig tunes the pipeline.
//
// InsertBatch:   chunk rows per insert transaction.
// InsertWorkers: insert transactions in flight at once.
// StorageFolder: key prefix for uploaded originals.
// JobTimeout:    upper bound on one pipeline run.
type IngestConfig struct {
	MinFileSize   int64
	MaxFileSize   int64
	InsertBatch   int
	InsertWorkers int
	StorageFolder string
	JobTimeout    time.Duration
}

func (c IngestConfig) withDefaults() IngestConfig {
	if c.InsertBatch <= 0 {
		c.InsertBatch = 100
	}
	if c.InsertWorkers <= 0 {
		c.InsertWorkers = 4
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 200 << 20
	}
	if c.StorageFolder == "" {
		c.StorageFolder = "docs_pdf_embedding_sources"
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Minute
	}
	return c
}
