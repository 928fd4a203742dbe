package jobstore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Pagewise/internal/models"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore() (*MemoryStore, *clock) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(TTLPolicy{Processing: time.Hour, Completed: 10 * time.Minute, Failed: 30 * time.Minute})
	s.now = c.now
	return s, c
}

func TestTTLPolicyFor(t *testing.T) {
	p := TTLPolicy{Completed: 5 * time.Minute}
	assert.Equal(t, 5*time.Minute, p.For(models.JobCompleted))
	assert.Equal(t, 24*time.Hour, p.For(models.JobFailed))
	assert.Equal(t, 24*time.Hour, p.For(models.JobProcessing))
	assert.Equal(t, time.Hour, DefaultTTLPolicy().For(models.JobCompleted))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	job := &models.Job{ID: "a", Status: models.JobProcessing, Stage: models.StageReading, Progress: 12}
	require.NoError(t, s.Set(ctx, job))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 12, got.Progress)

	// the store holds its own copy
	job.Progress = 99
	got.Progress = 50
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 12, again.Progress)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCopiesResult(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	job := &models.Job{ID: "b", Status: models.JobCompleted, Result: &models.JobResult{DocumentID: "d", ChunkCount: 3}}
	require.NoError(t, s.Set(ctx, job))
	job.Result.ChunkCount = 7

	got, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Result.ChunkCount)
}

func TestMemoryStoreExpiryFollowsStatus(t *testing.T) {
	s, c := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, &models.Job{ID: "run", Status: models.JobProcessing}))
	require.NoError(t, s.Set(ctx, &models.Job{ID: "ok", Status: models.JobCompleted}))
	require.NoError(t, s.Set(ctx, &models.Job{ID: "bad", Status: models.JobFailed}))

	c.t = c.t.Add(15 * time.Minute)
	_, err := s.Get(ctx, "ok")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "bad")
	assert.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	c.t = c.t.Add(time.Hour)
	assert.Equal(t, 3, s.Sweep())
	assert.Zero(t, s.Len())
}

func TestMemoryStoreRewriteExtendsTTL(t *testing.T) {
	s, c := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, &models.Job{ID: "j", Status: models.JobProcessing}))
	c.t = c.t.Add(50 * time.Minute)
	require.NoError(t, s.Set(ctx, &models.Job{ID: "j", Status: models.JobProcessing, Progress: 60}))
	c.t = c.t.Add(50 * time.Minute)

	got, err := s.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, 60, got.Progress)
}

func TestMemoryStoreRejectsEmptyID(t *testing.T) {
	s, _ := newTestStore()
	assert.Error(t, s.Set(context.Background(), &models.Job{}))
	assert.Error(t, s.Set(context.Background(), nil))
}

func TestMemoryStoreConcurrentWriters(t *testing.T) {
	s := NewMemoryStore(DefaultTTLPolicy())
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := string(rune('a' + w))
			for p := 0; p <= 100; p++ {
				_ = s.Set(ctx, &models.Job{ID: id, Status: models.JobProcessing, Progress: p})
				_, _ = s.Get(ctx, id)
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < 8; w++ {
		got, err := s.Get(ctx, string(rune('a'+w)))
		require.NoError(t, err)
		assert.Equal(t, 100, got.Progress)
	}
}

func TestJobKey(t *testing.T) {
	assert.Equal(t, "job:abc", jobKey("abc"))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	s := NewRedisStore(client, TTLPolicy{Completed: time.Minute})
	defer s.Close()

	id := uuid.NewString()
	require.NoError(t, s.Set(ctx, &models.Job{ID: id, Status: models.JobCompleted, Result: &models.JobResult{DocumentID: "d", ChunkCount: 2}}))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 2, got.Result.ChunkCount)

	ttl, err := client.TTL(ctx, jobKey(id)).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}
