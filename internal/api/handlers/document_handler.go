package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	appMiddleware "github.com/markdave123-py/Pagewise/internal/api/middlewares"
	"github.com/markdave123-py/Pagewise/internal/core/ingestion_engine"
)

// DocumentHandler accepts PDF uploads.
type DocumentHandler struct {
	ingestor ingestion_engine.Ingestor
	maxBytes int64
	logger   *zap.Logger

	// trusts a user_id form field; only safe without token auth
	formIdentity bool
}

// NewDocumentHandler builds the upload handler. With formIdentity off the
// owner comes from the verified token alone.
func NewDocumentHandler(ing ingestion_engine.Ingestor, maxFileSize int64, formIdentity bool, logger *zap.Logger) *DocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentHandler{ingestor: ing, maxBytes: maxFileSize, formIdentity: formIdentity, logger: logger}
}

// ExtractAsync starts the ingestion pipeline and answers 202 with a job id.
func (h *DocumentHandler) ExtractAsync(w http.ResponseWriter, r *http.Request) {
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	jobID, err := h.ingestor.Submit(r.Context(), up)
	active, capacity := h.ingestor.Status()
	if err != nil {
		var busy *ingestion_engine.BusyError
		switch {
		case errors.As(err, &busy):
			h.logger.Warn("upload turned away, all slots busy", zap.Int("active_jobs", busy.Active))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"success":             false,
				"error":               busy.Error(),
				"active_jobs":         busy.Active,
				"max_concurrent_jobs": busy.Max,
			})
		case ingestion_engine.IsRejection(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("could not start ingestion", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not start processing")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":             true,
		"job_id":              jobID,
		"status":              "processing",
		"message":             "PDF accepted, poll /job/" + jobID + " for progress",
		"active_jobs":         active,
		"max_concurrent_jobs": capacity,
	})
}

// Extract reads the PDF and returns its pages without storing anything.
// ?pages=1,3 limits the output to those pages.
func (h *DocumentHandler) Extract(w http.ResponseWriter, r *http.Request) {
	only, err := parsePages(r.URL.Query().Get("pages"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	ex, err := h.ingestor.Extract(up.Data, up.FileName, only)
	if err != nil {
		if ingestion_engine.IsRejection(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("sync extraction failed", zap.String("filename", up.FileName), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "extraction failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"filename":    up.FileName,
		"title":       ex.Title,
		"metadata":    ex.Metadata,
		"total_pages": ex.Metadata.NumPages,
		"pages":       ex.Pages,
	})
}

func (h *DocumentHandler) readUpload(w http.ResponseWriter, r *http.Request) (ingestion_engine.Upload, bool) {
	// room for the multipart envelope on top of the largest file we accept
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusBadRequest, ingestion_engine.ErrFileTooLarge.Error())
			return ingestion_engine.Upload{}, false
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form with a file field")
		return ingestion_engine.Upload{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return ingestion_engine.Upload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return ingestion_engine.Upload{}, false
	}

	up := ingestion_engine.Upload{
		FileName:     header.Filename,
		Data:         data,
		UploadDevice: r.FormValue("upload_device"),
		DisplayName:  r.FormValue("user_display_name"),
	}
	if id, ok := appMiddleware.UserID(r.Context()); ok {
		up.OwnerID = id
		if name := appMiddleware.DisplayName(r.Context()); name != "" {
			up.DisplayName = name
		}
	} else if h.formIdentity {
		up.OwnerID = formOwner(r)
	}
	return up, true
}

func formOwner(r *http.Request) string {
	if id := strings.TrimSpace(r.FormValue("user_id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.FormValue("userId"))
}

func parsePages(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	var out []int
	for _, p := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid page number %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}
