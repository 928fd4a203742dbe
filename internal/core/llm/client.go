package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/Pagewise/internal/core"
)

const (
	DefaultBatchSize   = 200
	DefaultMaxAttempts = 4
	DefaultBaseBackoff = 2 * time.Second
)

// Client batches texts to a provider, retries transient failures with
// exponential backoff and only ever returns a complete vector list.
type Client struct {
	provider    core.EmbeddingProvider
	logger      *zap.Logger
	batchSize   int
	maxAttempts int
	baseBackoff time.Duration
	dimensions  int
	limiter     *rate.Limiter
	sleep       func(ctx context.Context, d time.Duration) error
}

type ClientOption func(*Client)

func WithBatchSize(n int) ClientOption { return func(c *Client) { c.batchSize = n } }

// WithMaxAttempts sets how many times one batch may be tried in total.
func WithMaxAttempts(n int) ClientOption { return func(c *Client) { c.maxAttempts = n } }

func WithBaseBackoff(d time.Duration) ClientOption { return func(c *Client) { c.baseBackoff = d } }

// WithDimensions rejects vectors whose length differs from n.
func WithDimensions(n int) ClientOption { return func(c *Client) { c.dimensions = n } }

// WithRateLimit paces provider calls to rps requests per second. Zero or a
// negative value disables pacing.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func withSleep(f func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = f }
}

func NewClient(provider core.EmbeddingProvider, logger *zap.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		provider:    provider,
		logger:      logger.With(zap.String("component", "embedding-client"), zap.String("model", provider.ModelName())),
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
		baseBackoff: DefaultBaseBackoff,
		sleep:       sleepContext,
	}
	for _, o := range opts {
		o(c)
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	return c
}

func (c *Client) ModelName() string { return c.provider.ModelName() }

// EmbedTexts returns exactly one vector per text, in order, or an error. A
// partial result is never returned.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embedBatch(ctx, start/c.batchSize, texts[start:end])
		if err != nil {
			return nil, err
		}
		copy(out[start:end], vecs)
	}

	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: missing vector for text %d", ErrIncompleteVectors, i)
		}
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, n int, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("embedding batch %d: %w", n, err)
			}
		}

		vecs, err := c.provider.EmbedTexts(ctx, batch)
		if err == nil {
			if err := c.check(batch, vecs); err != nil {
				return nil, fmt.Errorf("embedding batch %d: %w", n, err)
			}
			if attempt > 1 {
				c.logger.Info("embedding batch recovered", zap.Int("batch", n), zap.Int("attempt", attempt))
			}
			return vecs, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("embedding batch %d: %w", n, ctx.Err())
		}
		if Classify(err) == Fatal {
			return nil, fmt.Errorf("embedding batch %d: %w: %w", n, ErrFatal, err)
		}

		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		delay := c.baseBackoff * time.Duration(1<<(attempt-1))
		c.logger.Warn("embedding batch failed, retrying",
			zap.Int("batch", n),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("embedding batch %d: %w", n, err)
		}
	}
	return nil, fmt.Errorf("embedding batch %d failed after %d attempts: %w", n, c.maxAttempts, lastErr)
}

func (c *Client) check(batch []string, vecs [][]float32) error {
	if len(vecs) != len(batch) {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrIncompleteVectors, len(vecs), len(batch))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at %d", ErrIncompleteVectors, i)
		}
		if c.dimensions > 0 && len(v) != c.dimensions {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrIncompleteVectors, i, len(v), c.dimensions)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ core.EmbeddingProvider = (*Client)(nil)
