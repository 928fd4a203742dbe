package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/core/ingestion_engine"
)

type HealthHandler struct {
	ingestor ingestion_engine.Ingestor
}

func NewHealthHandler(ing ingestion_engine.Ingestor) *HealthHandler {
	return &HealthHandler{ingestor: ing}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	active, capacity := h.ingestor.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"service":             "pagewise",
		"job_store":           h.ingestor.JobStore().Name(),
		"active_jobs":         active,
		"max_concurrent_jobs": capacity,
		"slots_available":     max(capacity-active, 0),
	})
}

// Sweeper finds documents stuck in processing.
type Sweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration) ([]ingestion_engine.ReconcileResult, error)
}

type ReconcileHandler struct {
	sweeper Sweeper
	after   time.Duration
	logger  *zap.Logger
}

func NewReconcileHandler(s Sweeper, after time.Duration, logger *zap.Logger) *ReconcileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileHandler{sweeper: s, after: after, logger: logger}
}

// Report lists stuck documents. ?older_than=30m overrides the default age;
// bare numbers are seconds.
func (h *ReconcileHandler) Report(w http.ResponseWriter, r *http.Request) {
	after := h.after
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := parseAge(raw)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "invalid older_than")
			return
		}
		after = d
	}

	docs, err := h.sweeper.Sweep(r.Context(), after)
	if err != nil {
		h.logger.Error("reconcile sweep failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reconcile failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"older_than": after.String(),
		"count":      len(docs),
		"documents":  docs,
	})
}

func parseAge(raw string) (time.Duration, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(raw)
}
