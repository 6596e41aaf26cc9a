// Package convert drives document conversion: bounded-concurrency
// extraction with retry and abort policies, reassembly of the ordered
// fragments, and the async job layer around the whole pipeline.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"github.com/mfurukawa/pagemill/internal/backend"
	"github.com/mfurukawa/pagemill/internal/document"
	"github.com/mfurukawa/pagemill/internal/metrics"
)

// AbortedError reports that a conversion was cancelled because too
// many units failed.
type AbortedError struct {
	Source string
	Failed int
	Total  int
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("conversion of %s aborted: %d of %d units failed", e.Source, e.Failed, e.Total)
}

// ConverterConfig tunes the per-document extraction policy.
type ConverterConfig struct {
	// MaxConcurrent bounds in-flight backend calls per conversion.
	MaxConcurrent int
	// Attempts is the total number of tries per unit, first call
	// included.
	Attempts int
	// BackoffBase is the delay before the first retry; subsequent
	// delays grow exponentially with jitter.
	BackoffBase time.Duration
	// AbortFraction aborts the conversion when the failed fraction of
	// units exceeds it. 1 disables aborting, 0 aborts on the first
	// failure.
	AbortFraction float64
	// RateLimit caps backend calls per second across all units.
	// Zero means unlimited.
	RateLimit float64
	RateBurst int
}

// Converter runs the extraction fan-out for one document at a time
// per call. It is safe for concurrent use across documents.
type Converter struct {
	cfg     ConverterConfig
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewConverter(cfg ConverterConfig, log *slog.Logger) *Converter {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Converter{cfg: cfg, limiter: limiter, log: log}
}

// Convert extracts every unit of doc through be and reassembles the
// fragments in source order. Unit failures degrade individually;
// crossing the abort fraction cancels outstanding calls and fails the
// whole conversion with an AbortedError.
func (c *Converter) Convert(ctx context.Context, doc *document.Document, be backend.Backend) (*document.Reassembled, error) {
	total := len(doc.Units)
	if total == 0 {
		return nil, fmt.Errorf("document %s has no units", doc.Source)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]document.ExtractionResult, total)
	sem := make(chan struct{}, c.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	var mu sync.Mutex
	failed := 0
	aborted := false
	abortFailed := 0

	for i := range doc.Units {
		unit := doc.Units[i]

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[unit.Index] = document.NewFailed(unit.Index, "conversion cancelled before extraction")
			continue
		}

		wg.Add(1)
		go func(unit document.Unit) {
			defer wg.Done()
			defer func() { <-sem }()

			res := c.extractUnit(ctx, unit, be)
			results[unit.Index] = res

			if res.Status == document.StatusFailed {
				mu.Lock()
				failed++
				if !aborted && float64(failed) > c.cfg.AbortFraction*float64(total) {
					aborted = true
					abortFailed = failed
					cancel()
				}
				mu.Unlock()
			}
		}(unit)
	}
	wg.Wait()

	if aborted {
		c.log.Error("conversion aborted",
			"source", doc.Source,
			"failed", abortFailed,
			"total", total)
		return nil, &AbortedError{Source: doc.Source, Failed: abortFailed, Total: total}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conversion of %s cancelled: %w", doc.Source, err)
	}

	return Reassemble(results, doc.Units), nil
}

// extractUnit runs one unit through the backend with the retry
// policy. It never returns an error: failures become failed or
// skipped results.
func (c *Converter) extractUnit(ctx context.Context, unit document.Unit, be backend.Backend) document.ExtractionResult {
	start := time.Now()
	var res document.ExtractionResult

	err := retry.Do(
		func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			r, err := be.Extract(ctx, unit)
			if err != nil {
				return err
			}
			res = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.Attempts)),
		retry.RetryIf(backend.IsUnavailable),
		retry.Delay(c.cfg.BackoffBase),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(c.cfg.BackoffBase/2),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("retrying unit extraction",
				"backend", be.Name(),
				"unit", unit.Index,
				"attempt", n+1,
				"error", err)
		}),
	)

	if err != nil {
		var rej *backend.RejectedError
		switch {
		case errors.As(err, &rej):
			c.log.Info("unit rejected by backend",
				"backend", be.Name(),
				"unit", unit.Index,
				"reason", rej.Reason)
			res = document.NewSkipped(unit.Index, rej.Reason)
		default:
			c.log.Warn("unit extraction failed",
				"backend", be.Name(),
				"unit", unit.Index,
				"error", err)
			res = document.NewFailed(unit.Index, err.Error())
		}
	}

	metrics.UnitProcessed(be.Name(), string(res.Status))
	metrics.ObserveExtraction(be.Name(), time.Since(start))
	return res
}
