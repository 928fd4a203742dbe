package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/core/jobstore"
	"github.com/markdave123-py/Pagewise/internal/models"
)

type JobHandler struct {
	jobs   core.JobStore
	logger *zap.Logger
}

func NewJobHandler(jobs core.JobStore, logger *zap.Logger) *JobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{jobs: jobs, logger: logger}
}

// GetJob reports the state of one pipeline run.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, jobstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"job_id": id, "error": "job not found"})
		return
	}
	if err != nil {
		h.logger.Error("job lookup failed", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, jobView(job))
}

func jobView(job *models.Job) map[string]any {
	v := map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"stage":  job.Stage,
	}
	switch job.Status {
	case models.JobFailed:
		v["error"] = job.Error
	case models.JobCompleted:
		v["progress"] = job.Progress
		v["message"] = job.Message
		v["filename"] = job.FileName
		if job.Result != nil {
			v["document_id"] = job.Result.DocumentID
			v["chunk_count"] = job.Result.ChunkCount
		}
	default:
		v["progress"] = job.Progress
		v["message"] = job.Message
	}
	return v
}
