package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfurukawa/pagemill/internal/api"
	"github.com/mfurukawa/pagemill/internal/backend"
	"github.com/mfurukawa/pagemill/internal/config"
	"github.com/mfurukawa/pagemill/internal/convert"
	"github.com/mfurukawa/pagemill/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Document store.
	st, err := store.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.DocTTL, log)
	if err != nil {
		log.Error("store unavailable", "error", err)
		os.Exit(1)
	}

	// Extraction backends: every backend the configuration supplies
	// credentials for is registered and selectable per request.
	stats := backend.NewStats(time.Hour)
	backends, err := buildBackends(ctx, cfg, stats, log)
	if err != nil {
		log.Error("backend setup failed", "error", err)
		os.Exit(1)
	}
	if _, ok := backends[cfg.DefaultBackend]; !ok {
		log.Error("default backend not configured", "backend", cfg.DefaultBackend)
		os.Exit(1)
	}

	converter := convert.NewConverter(convert.ConverterConfig{
		MaxConcurrent: cfg.MaxConcurrentExtract,
		Attempts:      cfg.MaxRetries,
		BackoffBase:   cfg.RetryBackoffBase,
		AbortFraction: cfg.FailureAbortFraction,
		RateLimit:     cfg.BackendRateLimit,
	}, log)

	orch := convert.NewOrchestrator(cfg, converter, backends, st, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, st, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		for _, be := range backends {
			if closer, ok := be.(interface{ Close() }); ok {
				closer.Close()
			}
		}
		st.Close()
	}()

	log.Info("starting pagemill",
		"port", cfg.Port,
		"default_backend", cfg.DefaultBackend,
		"backends", backendNames(backends))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildBackends registers each extraction backend the environment has
// configured.
func buildBackends(ctx context.Context, cfg config.Config, stats *backend.Stats, log *slog.Logger) (map[string]backend.Backend, error) {
	backends := make(map[string]backend.Backend)

	if cfg.OpenAIAPIKey != "" {
		backends["openai"] = backend.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, stats, log)
	}
	if cfg.GeminiAPIKey != "" {
		g, err := backend.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, stats, log)
		if err != nil {
			return nil, err
		}
		backends["gemini"] = g
	}
	if cfg.LayoutURL != "" {
		backends["layout"] = backend.NewLayout(cfg.LayoutURL, cfg.LayoutAPIKey, stats, log)
	}
	// Tesseract needs only the local binary; always available.
	backends["tesseract"] = backend.NewTesseract(cfg.TesseractLang, stats, log)

	return backends, nil
}

func backendNames(backends map[string]backend.Backend) []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	return names
}
