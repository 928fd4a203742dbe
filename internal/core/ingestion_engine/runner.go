package ingestion_engine

import (
	"errors"
	"fmt"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Runner executes pipeline tasks on a fixed pool of goroutines. The Gate
// decides admission; the pool only bounds the goroutines doing the work.
// Size it above the gate capacity: a worker can still be returning from its
// previous task for a moment after that task released its slot.
type Runner struct {
	pool *ants.Pool
}

func NewRunner(size int, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			logger.Error("pipeline task panicked", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Runner{pool: pool}, nil
}

// Go hands task to an idle worker and never waits for one. A full pool
// surfaces as a BusyError.
func (r *Runner) Go(task func()) error {
	if err := r.pool.Submit(task); err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			return &BusyError{Active: r.pool.Running(), Max: r.pool.Cap()}
		}
		return fmt.Errorf("submit task: %w", err)
	}
	return nil
}

func (r *Runner) Running() int { return r.pool.Running() }

func (r *Runner) Release() { r.pool.Release() }
