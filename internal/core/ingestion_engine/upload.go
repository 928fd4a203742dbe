package ingestion_engine

import (
	"bytes"
	"fmt"
)

var pdfMagic = []byte("%PDF")

// Upload is one file handed to the pipeline, together with who sent it.
type Upload struct {
	FileName     string
	Data         []byte
	OwnerID      string
	DisplayName  string
	UploadDevice string
}

// ValidateUpload checks size bounds and the PDF signature.
func ValidateUpload(data []byte, minSize, maxSize int64) error {
	n := int64(len(data))
	if n < minSize || n < int64(len(pdfMagic)) {
		return fmt.Errorf("%w: %d bytes", ErrFileTooSmall, n)
	}
	if maxSize > 0 && n > maxSize {
		return fmt.Errorf("%w: %d bytes, maximum is %d MB", ErrFileTooLarge, n, maxSize>>20)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return ErrInvalidSignature
	}
	return nil
}
