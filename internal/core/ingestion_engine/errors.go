package ingestion_engine

import (
	"errors"
	"fmt"

	"github.com/markdave123-py/Pagewise/internal/core/sanitizer"
)

// Upload rejections. Nothing is persisted for any of these.
var (
	ErrInvalidSignature = errors.New("file is not a valid PDF (invalid magic bytes)")
	ErrFileTooSmall     = errors.New("file is too small to be a PDF")
	ErrFileTooLarge     = errors.New("file exceeds the maximum allowed size")
	ErrTooManyPages     = errors.New("PDF has too many pages")
	ErrNoText           = errors.New("no text could be extracted from this PDF; it may be a scanned image-only document")
)

// Consistency violations. Always fatal to the job.
var (
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
	ErrChunkCountMismatch     = errors.New("chunk insert count mismatch")
)

var ErrBusy = errors.New("server busy")

// BusyError is returned when every pipeline slot is taken.
type BusyError struct {
	Active int
	Max    int
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("server busy: %d/%d jobs running, try again shortly", e.Active, e.Max)
}

func (e *BusyError) Unwrap() error { return ErrBusy }

// IsRejection reports whether err is the caller's fault: a bad upload or a
// document carrying an injection payload.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrFileTooSmall),
		errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrTooManyPages),
		errors.Is(err, ErrNoText),
		errors.Is(err, sanitizer.ErrThreatDetected):
		return true
	}
	return false
}
