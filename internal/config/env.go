package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string   `yaml:"port"`
	DatabaseURL string   `yaml:"database_url"`
	SslCertPath string   `yaml:"ssl_cert_path"`
	CorsOrigins []string `yaml:"cors_origins"`
	JWTSecret   string   `yaml:"jwt_secret"`
	Debug       bool     `yaml:"debug"`

	MaxConcurrentJobs int   `yaml:"max_concurrent_jobs"`
	MaxFileSize       int64 `yaml:"max_file_size"`
	MinFileSize       int64 `yaml:"min_file_size"`
	MaxPDFPages       int   `yaml:"max_pdf_pages"`
	MaxChunksPerPDF   int   `yaml:"max_chunks_per_pdf"`
	ChunkSize         int   `yaml:"chunk_size"`
	ChunkOverlap      int   `yaml:"chunk_overlap"`
	ChunkInsertBatch  int   `yaml:"chunk_insert_batch"`

	EmbedProvider    string        `yaml:"embed_provider"`
	OpenAIAPIKey     string        `yaml:"openai_api_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	OpenAIEmbedModel string        `yaml:"openai_embedding_model"`
	AIAPIKey         string        `yaml:"gemini_api_key"`
	EmbedModel       string        `yaml:"embed_model"`
	EmbedDim         int           `yaml:"embed_dim"`
	EmbedBatchSize   int           `yaml:"embed_batch_size"`
	EmbedMaxRetries  int           `yaml:"embed_max_retries"`
	EmbedBaseBackoff time.Duration `yaml:"embed_base_backoff"`
	EmbedRPS         float64       `yaml:"embed_rps"`

	RedisAddr       string        `yaml:"redis_addr"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`
	JobTTL          time.Duration `yaml:"job_ttl"`
	JobTTLCompleted time.Duration `yaml:"job_ttl_completed"`
	JobTTLFailed    time.Duration `yaml:"job_ttl_failed"`

	SpacesEndpoint string `yaml:"spaces_endpoint"`
	SpacesRegion   string `yaml:"spaces_region"`
	SpacesKey      string `yaml:"spaces_key"`
	SpacesSecret   string `yaml:"spaces_secret"`
	SpacesBucket   string `yaml:"spaces_bucket"`
	SpacesFolder   string `yaml:"spaces_folder"`

	WebhookURL     string        `yaml:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	ReconcileAfter time.Duration `yaml:"reconcile_after"`

	// Warnings lists env values that could not be parsed and fell back to
	// their defaults.
	Warnings []string `yaml:"-"`
}

// LoadConfig reads .env, the environment and, when PAGEWISE_CONFIG names a
// file, a YAML overlay whose keys win over the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	l := &loader{}
	cfg := &Config{
		Port:        l.getEnv("PORT", "8080"),
		DatabaseURL: l.getEnv("DATABASE_URL", ""),
		SslCertPath: l.getEnv("SSL_CERT_PATH", ""),
		CorsOrigins: splitList(l.getEnv("CORS_ORIGINS", "*")),
		JWTSecret:   l.getEnv("JWT_SECRET", ""),
		Debug:       l.getEnvBool("DEBUG", false),

		MaxConcurrentJobs: l.getEnvInt("MAX_CONCURRENT_JOBS", 10),
		MaxFileSize:       int64(l.getEnvInt("MAX_FILE_SIZE", 200<<20)),
		MinFileSize:       int64(l.getEnvInt("MIN_FILE_SIZE", 100)),
		MaxPDFPages:       l.getEnvInt("MAX_PDF_PAGES", 10000),
		MaxChunksPerPDF:   l.getEnvInt("MAX_CHUNKS_PER_PDF", 10000),
		ChunkSize:         l.getEnvInt("CHUNK_SIZE", 1500),
		ChunkOverlap:      l.getEnvInt("CHUNK_OVERLAP", 400),
		ChunkInsertBatch:  l.getEnvInt("CHUNK_INSERT_BATCH", 100),

		EmbedProvider:    strings.ToLower(l.getEnv("EMBED_PROVIDER", "openai")),
		OpenAIAPIKey:     l.getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    l.getEnv("OPENAI_BASE_URL", ""),
		OpenAIEmbedModel: l.getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		AIAPIKey:         l.getEnv("GEMINI_API_KEY", ""),
		EmbedModel:       l.getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:         l.getEnvInt("EMBED_DIM", 0),
		EmbedBatchSize:   l.getEnvInt("EMBED_BATCH_SIZE", 200),
		EmbedMaxRetries:  l.getEnvInt("EMBED_MAX_RETRIES", 4),
		EmbedBaseBackoff: l.getEnvDuration("EMBED_BASE_BACKOFF", 2*time.Second),
		EmbedRPS:         l.getEnvFloat("EMBED_RPS", 0),

		RedisAddr:       l.getEnv("REDIS_ADDR", ""),
		RedisPassword:   l.getEnv("REDIS_PASSWORD", ""),
		RedisDB:         l.getEnvInt("REDIS_DB", 0),
		JobTTL:          l.getEnvDuration("JOB_TTL", 24*time.Hour),
		JobTTLCompleted: l.getEnvDuration("JOB_TTL_COMPLETED", time.Hour),
		JobTTLFailed:    l.getEnvDuration("JOB_TTL_FAILED", 24*time.Hour),

		SpacesEndpoint: l.getEnv("SPACES_ENDPOINT", ""),
		SpacesRegion:   l.getEnv("SPACES_REGION", "fra1"),
		SpacesKey:      l.getEnv("SPACES_KEY", ""),
		SpacesSecret:   l.getEnv("SPACES_SECRET", ""),
		SpacesBucket:   l.getEnv("SPACES_BUCKET", ""),
		SpacesFolder:   l.getEnv("SPACES_FOLDER", "docs_pdf_embedding_sources"),

		WebhookURL:     l.getEnv("WEBHOOK_URL", ""),
		WebhookTimeout: l.getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		ReconcileAfter: l.getEnvDuration("RECONCILE_AFTER", time.Hour),
	}
	cfg.Warnings = l.warnings

	if path := os.Getenv("PAGEWISE_CONFIG"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}
	if cfg.EmbedDim == 0 {
		cfg.EmbedDim = DefaultEmbedDim(cfg.EmbedProvider)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Vector sizes the providers return. text-embedding-004 has no output
// dimensionality knob through the Gemini SDK, so its size is fixed.
const (
	OpenAIEmbedDim = 1536
	GeminiEmbedDim = 768
)

// DefaultEmbedDim is the vector size used when EMBED_DIM is unset.
func DefaultEmbedDim(provider string) int {
	if provider == "gemini" {
		return GeminiEmbedDim
	}
	return OpenAIEmbedDim
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	c.EmbedProvider = strings.ToLower(c.EmbedProvider)
	return nil
}

// Validate reports every setting the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	if c.MaxConcurrentJobs < 1 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1, got %d", c.MaxConcurrentJobs))
	}
	if c.MinFileSize < 0 || c.MaxFileSize <= c.MinFileSize {
		errs = append(errs, fmt.Errorf("file size bounds invalid: min %d, max %d", c.MinFileSize, c.MaxFileSize))
	}
	if c.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.EmbedDim < 1 {
		errs = append(errs, fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim))
	}
	switch c.EmbedProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	case "gemini":
		if c.AIAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY not set"))
		}
		if c.EmbedDim != GeminiEmbedDim {
			errs = append(errs, fmt.Errorf("EMBED_DIM must be %d for gemini, got %d", GeminiEmbedDim, c.EmbedDim))
		}
	default:
		errs = append(errs, fmt.Errorf("EMBED_PROVIDER must be openai or gemini, got %q", c.EmbedProvider))
	}
	return errors.Join(errs...)
}

// loader reads typed env values and remembers the ones it had to ignore.
type loader struct {
	warnings []string
}

// Helper to read environment variables with a default fallback
func (l *loader) getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func (l *loader) getEnvInt(key string, def int) int {
	v := l.getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.warn(key, v, def)
		return def
	}
	return n
}

func (l *loader) getEnvFloat(key string, def float64) float64 {
	v := l.getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.warn(key, v, def)
		return def
	}
	return f
}

func (l *loader) getEnvBool(key string, def bool) bool {
	v := l.getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.warn(key, v, def)
		return def
	}
	return b
}

// getEnvDuration accepts Go durations ("90s") and bare seconds ("90").
func (l *loader) getEnvDuration(key string, def time.Duration) time.Duration {
	v := l.getEnv(key, "")
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.warn(key, v, def)
		return def
	}
	return d
}

func (l *loader) warn(key, value string, def any) {
	l.warnings = append(l.warnings, fmt.Sprintf("%s=%q is invalid, using default %v", key, value, def))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
