// Package jobstore keeps job polling records with status-dependent expiry.
package jobstore

import (
	"errors"
	"time"

	"github.com/markdave123-py/Pagewise/internal/models"
)

var ErrNotFound = errors.New("job not found")

// TTLPolicy says how long a record lives after its last write.
type TTLPolicy struct {
	Processing time.Duration
	Completed  time.Duration
	Failed     time.Duration
}

func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Processing: 24 * time.Hour,
		Completed:  time.Hour,
		Failed:     24 * time.Hour,
	}
}

// For returns the ttl for a job in the given status. Zero or negative
// durations fall back to the defaults.
func (p TTLPolicy) For(status models.JobStatus) time.Duration {
	def := DefaultTTLPolicy()
	pick := func(v, fallback time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return fallback
	}
	switch status {
	case models.JobCompleted:
		return pick(p.Completed, def.Completed)
	case models.JobFailed:
		return pick(p.Failed, def.Failed)
	default:
		return pick(p.Processing, def.Processing)
	}
}
