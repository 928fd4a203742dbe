package ingestion_engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/models"
)

// tracker owns the job record of one run. Nothing else writes that key
// while the run is alive.
type tracker struct {
	jobs   core.JobStore
	job    *models.Job
	logger *zap.Logger
}

func newTracker(jobs core.JobStore, job *models.Job, logger *zap.Logger) *tracker {
	return &tracker{jobs: jobs, job: job, logger: logger}
}

// stage moves the job forward. Progress never goes backwards.
func (t *tracker) stage(ctx context.Context, s models.Stage, progress int, msg string) {
	t.job.Stage = s
	t.job.Progress = max(t.job.Progress, progress)
	t.job.Message = msg
	t.logger.Info(msg, zap.String("stage", string(s)), zap.Int("progress", t.job.Progress))
	t.save(ctx)
}

// progress updates the percentage within the current stage, writing only
// when the number changes.
func (t *tracker) progress(ctx context.Context, progress int, msg string) {
	if progress <= t.job.Progress {
		return
	}
	t.job.Progress = progress
	t.job.Message = msg
	t.save(ctx)
}

func (t *tracker) complete(ctx context.Context, res models.JobResult) {
	t.job.Status = models.JobCompleted
	t.job.Stage = models.StageDone
	t.job.Progress = 100
	t.job.Message = "Document embedded"
	t.job.Result = &res
	t.logger.Info("job completed", zap.String("document_id", res.DocumentID), zap.Int("chunks", res.ChunkCount))
	t.save(ctx)
}

func (t *tracker) fail(ctx context.Context, err error) {
	t.job.Status = models.JobFailed
	t.job.Stage = models.StageFailed
	t.job.Error = err.Error()
	t.job.Message = ""
	t.logger.Error("job failed", zap.Error(err))
	t.save(ctx)
}

func (t *tracker) save(ctx context.Context) {
	t.job.UpdatedAt = time.Now().UTC()
	if err := t.jobs.Set(ctx, t.job); err != nil {
		t.logger.Warn("job store write failed", zap.Error(err))
	}
}
