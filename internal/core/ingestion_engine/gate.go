package ingestion_engine

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate admits at most capacity pipelines at once and turns the rest away
// immediately.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	active   atomic.Int64
}

func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(capacity)), capacity: capacity}
}

// TryAcquire takes a slot without waiting. The returned release func may be
// called any number of times; only the first call frees the slot.
func (g *Gate) TryAcquire() (func(), error) {
	if !g.sem.TryAcquire(1) {
		return nil, &BusyError{Active: g.capacity, Max: g.capacity}
	}
	g.active.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.active.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

func (g *Gate) Active() int { return int(g.active.Load()) }

func (g *Gate) Capacity() int { return g.capacity }

func (g *Gate) Available() int { return max(g.capacity-g.Active(), 0) }
