// Package config reads service configuration from the environment
// once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Extraction backends
	DefaultBackend string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	GeminiAPIKey   string
	GeminiModel    string
	LayoutURL      string
	LayoutAPIKey   string
	TesseractLang  string

	// Extraction policy
	MaxConcurrentExtract int
	MaxRetries           int
	RetryBackoffBase     time.Duration
	FailureAbortFraction float64
	BackendRateLimit     float64

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Chunking defaults
	ChunkMaxSize  int
	ChunkOverlap  int
	OverlapMode   string
	ChunkSizeUnit string

	// Document store
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DocTTL        time.Duration

	// Job state
	JobTTL time.Duration

	// PDF segmentation
	PDFRenderDPI         int
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("PAGEMILL_API_KEY"),

		DefaultBackend: envOr("EXTRACT_BACKEND", "openai"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		// Model names are left empty unless set; each backend picks
		// its own default.
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    os.Getenv("GEMINI_MODEL"),
		LayoutURL:      os.Getenv("LAYOUT_URL"),
		LayoutAPIKey:   os.Getenv("LAYOUT_API_KEY"),
		TesseractLang:  envOr("TESSERACT_LANG", "eng"),

		MaxConcurrentExtract: envInt("MAX_CONCURRENT_EXTRACT", 5),
		MaxRetries:           envInt("MAX_RETRIES", 3),
		RetryBackoffBase:     envDuration("RETRY_BACKOFF_BASE", 2*time.Second),
		FailureAbortFraction: envFloat("FAILURE_ABORT_FRACTION", 0.5),
		BackendRateLimit:     envFloat("BACKEND_RATE_LIMIT", 0),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		ChunkMaxSize:  envInt("CHUNK_MAX_SIZE", 1800),
		ChunkOverlap:  envInt("CHUNK_OVERLAP", 0),
		OverlapMode:   envOr("OVERLAP_MODE", "none"),
		ChunkSizeUnit: envOr("CHUNK_SIZE_UNIT", "chars"),

		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		DocTTL:        envDuration("DOC_TTL", 720*time.Hour),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFRenderDPI:         envInt("PDF_RENDER_DPI", 150),
		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentExtract <= 0 {
		cfg.MaxConcurrentExtract = 5
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = 2 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.ChunkMaxSize <= 0 {
		cfg.ChunkMaxSize = 1800
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.PDFRenderDPI <= 0 {
		cfg.PDFRenderDPI = 150
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("PAGEMILL_API_KEY is required")
	}
	switch c.DefaultBackend {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EXTRACT_BACKEND=openai")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when EXTRACT_BACKEND=gemini")
		}
	case "layout":
		if c.LayoutURL == "" {
			return fmt.Errorf("LAYOUT_URL is required when EXTRACT_BACKEND=layout")
		}
	case "tesseract":
		// Needs only a local tesseract install.
	default:
		return fmt.Errorf("unknown EXTRACT_BACKEND: %s", c.DefaultBackend)
	}
	if c.FailureAbortFraction < 0 || c.FailureAbortFraction > 1 {
		return fmt.Errorf("FAILURE_ABORT_FRACTION must be in [0,1], got %g", c.FailureAbortFraction)
	}
	switch c.OverlapMode {
	case "none", "chars", "block":
	default:
		return fmt.Errorf("OVERLAP_MODE must be none, chars or block, got %s", c.OverlapMode)
	}
	switch c.ChunkSizeUnit {
	case "chars", "tokens":
	default:
		return fmt.Errorf("CHUNK_SIZE_UNIT must be chars or tokens, got %s", c.ChunkSizeUnit)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
