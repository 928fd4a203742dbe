package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/models"
)

type entry struct {
	job       *models.Job
	expiresAt time.Time
}

// MemoryStore is a process-local JobStore. Records are copied in and out so
// callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]entry
	policy TTLPolicy
	now    func() time.Time
}

func NewMemoryStore(policy TTLPolicy) *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]entry),
		policy: policy,
		now:    time.Now,
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, ErrNotFound
	}
	return e.job.Clone(), nil
}

func (s *MemoryStore) Set(_ context.Context, job *models.Job) error {
	if job == nil || job.ID == "" {
		return errInvalidJob
	}
	now := s.now()
	s.mu.Lock()
	s.jobs[job.ID] = entry{job: job.Clone(), expiresAt: now.Add(s.policy.For(job.Status))}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	return nil
}

// Len counts live records.
func (s *MemoryStore) Len() int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.jobs {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// Sweep removes expired records and returns how many it dropped.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.jobs {
		if !now.Before(e.expiresAt) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

// StartJanitor sweeps every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}

var _ core.JobStore = (*MemoryStore)(nil)
