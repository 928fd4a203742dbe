package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/models"
)

var errInvalidJob = errors.New("job without id")

// NewRedisClient dials Redis and checks it answers.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redisv9.Client, error) {
	client := redisv9.NewClient(&redisv9.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}
	return client, nil
}

// RedisStore shares job records between service instances. Expiry is left
// to Redis.
type RedisStore struct {
	client *redisv9.Client
	policy TTLPolicy
}

func NewRedisStore(client *redisv9.Client, policy TTLPolicy) *RedisStore {
	return &RedisStore{client: client, policy: policy}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Job, error) {
	raw, err := s.client.Get(ctx, jobKey(id)).Result()
	if err == redisv9.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get job failed: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job failed: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) Set(ctx context.Context, job *models.Job) error {
	if job == nil || job.ID == "" {
		return errInvalidJob
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job failed: %w", err)
	}
	if err := s.client.Set(ctx, jobKey(job.ID), payload, s.policy.For(job.Status)).Err(); err != nil {
		return fmt.Errorf("redis set job failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, jobKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete job failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func jobKey(id string) string {
	return "job:" + id
}

var _ core.JobStore = (*RedisStore)(nil)
