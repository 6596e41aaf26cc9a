package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		APIKey:               "secret",
		DefaultBackend:       "openai",
		OpenAIAPIKey:         "sk-test",
		FailureAbortFraction: 0.5,
		OverlapMode:          "none",
		ChunkSizeUnit:        "chars",
	}
}

func TestValidateOK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateMissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing PAGEMILL_API_KEY accepted")
	}
}

func TestValidateBackendCredentials(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"openai without key", func(c *Config) { c.OpenAIAPIKey = "" }},
		{"gemini without key", func(c *Config) { c.DefaultBackend = "gemini"; c.GeminiAPIKey = "" }},
		{"layout without url", func(c *Config) { c.DefaultBackend = "layout"; c.LayoutURL = "" }},
		{"unknown backend", func(c *Config) { c.DefaultBackend = "carrier-pigeon" }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: accepted", tc.name)
		}
	}
}

func TestValidateTesseractNeedsNoKey(t *testing.T) {
	cfg := validConfig()
	cfg.DefaultBackend = "tesseract"
	cfg.OpenAIAPIKey = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("tesseract backend rejected: %v", err)
	}
}

func TestValidateBounds(t *testing.T) {
	cfg := validConfig()
	cfg.FailureAbortFraction = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("abort fraction above 1 accepted")
	}

	cfg = validConfig()
	cfg.OverlapMode = "sideways"
	if err := cfg.Validate(); err == nil {
		t.Error("bad overlap mode accepted")
	}

	cfg = validConfig()
	cfg.ChunkSizeUnit = "furlongs"
	if err := cfg.Validate(); err == nil {
		t.Error("bad size unit accepted")
	}
}

func TestLoadModelPassThrough(t *testing.T) {
	// Model names carry no config-side default; an unset env reaches
	// the backend empty and the backend picks its own.
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("GEMINI_MODEL", "")
	cfg := Load()
	if cfg.OpenAIModel != "" || cfg.GeminiModel != "" {
		t.Errorf("unset models not passed through: %q, %q", cfg.OpenAIModel, cfg.GeminiModel)
	}

	t.Setenv("GEMINI_MODEL", "gemini-exp")
	if got := Load().GeminiModel; got != "gemini-exp" {
		t.Errorf("GEMINI_MODEL = %q, want gemini-exp", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8090" {
		t.Errorf("default port = %s", cfg.Port)
	}
	if cfg.ChunkMaxSize != 1800 {
		t.Errorf("default chunk size = %d", cfg.ChunkMaxSize)
	}
	if cfg.RetryBackoffBase != 2*time.Second {
		t.Errorf("default backoff = %s", cfg.RetryBackoffBase)
	}
	if cfg.WorkerCount <= 0 || cfg.MaxConcurrentExtract <= 0 {
		t.Error("worker defaults not clamped")
	}
}
