package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/models"
)

type ReconcileVerdict string

const (
	// every planned chunk is stored with its vector; only the final status write was lost
	ReconcileEmbedded ReconcileVerdict = "embedded"
	// chunk rows exist but some are missing or lack a vector
	ReconcileIncomplete ReconcileVerdict = "incomplete"
	// no chunk rows; the run died before inserting or is still going
	ReconcileEmpty ReconcileVerdict = "empty"
)

type ReconcileResult struct {
	DocumentID string           `json:"document_id"`
	JobID      string           `json:"job_id"`
	Title      string           `json:"title"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Expected   int              `json:"expected_chunks"`
	Chunks     int              `json:"chunks"`
	Embedded   int              `json:"embedded_chunks"`
	Verdict    ReconcileVerdict `json:"verdict"`
	Healed     bool             `json:"healed"`
}

// Reconciler finds documents stuck in processing. It reports by default and
// only marks complete documents embedded when Heal is set.
type Reconciler struct {
	db     core.DbClient
	logger *zap.Logger
	Heal   bool
	now    func() time.Time
}

func NewReconciler(db core.DbClient, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, logger: logger.With(zap.String("component", "reconciler")), now: time.Now}
}

// Sweep inspects documents untouched for longer than olderThan.
func (r *Reconciler) Sweep(ctx context.Context, olderThan time.Duration) ([]ReconcileResult, error) {
	docs, err := r.db.ListStuckDocuments(ctx, r.now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("list stuck documents: %w", err)
	}

	out := make([]ReconcileResult, 0, len(docs))
	for _, d := range docs {
		stats, err := r.db.CountChunks(ctx, d.ID)
		if err != nil {
			return out, fmt.Errorf("count chunks of %s: %w", d.ID, err)
		}
		res := ReconcileResult{
			DocumentID: d.ID,
			JobID:      d.JobID,
			Title:      d.Title,
			UpdatedAt:  d.UpdatedAt,
			Expected:   d.ExpectedChunks,
			Chunks:     stats.Total,
			Embedded:   stats.Embedded,
			Verdict:    verdict(d.ExpectedChunks, stats),
		}

		if res.Verdict == ReconcileEmbedded && r.Heal {
			if err := r.db.UpdateDocumentStatus(ctx, d.ID, models.DocumentEmbedded); err != nil {
				r.logger.Error("heal failed", zap.String("document_id", d.ID), zap.Error(err))
			} else {
				res.Healed = true
			}
		}
		r.logger.Info("stuck document",
			zap.String("document_id", d.ID),
			zap.String("verdict", string(res.Verdict)),
			zap.Int("expected", d.ExpectedChunks),
			zap.Int("chunks", stats.Total),
			zap.Int("embedded", stats.Embedded),
			zap.Bool("healed", res.Healed),
		)
		out = append(out, res)
	}
	return out, nil
}

// verdict only reports embedded when the stored rows form the contiguous
// run 0..n-1 and n matches what the run planned. Rows written before
// expected_chunks existed carry 0 and get the contiguity check alone.
func verdict(expected int, s models.ChunkStats) ReconcileVerdict {
	switch {
	case s.Total == 0:
		return ReconcileEmpty
	case s.Embedded != s.Total, s.MaxIndex+1 != s.Total:
		return ReconcileIncomplete
	case expected > 0 && s.Total != expected:
		return ReconcileIncomplete
	default:
		return ReconcileEmbedded
	}
}
