package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mfurukawa/pagemill/internal/backend"
	"github.com/mfurukawa/pagemill/internal/document"
)

// scriptedBackend drives extraction outcomes per unit for tests.
type scriptedBackend struct {
	mu    sync.Mutex
	calls map[int]int
	fn    func(unit document.Unit, attempt int) (document.ExtractionResult, error)
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Extract(ctx context.Context, unit document.Unit) (document.ExtractionResult, error) {
	b.mu.Lock()
	b.calls[unit.Index]++
	attempt := b.calls[unit.Index]
	b.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return document.ExtractionResult{}, &backend.UnavailableError{Message: err.Error()}
	}
	return b.fn(unit, attempt)
}

func (b *scriptedBackend) callCount(unit int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[unit]
}

func newScripted(fn func(unit document.Unit, attempt int) (document.ExtractionResult, error)) *scriptedBackend {
	return &scriptedBackend{calls: make(map[int]int), fn: fn}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDoc(n int) *document.Document {
	units := make([]document.Unit, n)
	for i := range units {
		units[i] = document.Unit{Index: i, Text: fmt.Sprintf("raw text of unit %d", i)}
	}
	return &document.Document{Source: "test.pdf", Units: units}
}

func testConverter(cfg ConverterConfig) *Converter {
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Millisecond
	}
	if cfg.AbortFraction == 0 {
		cfg.AbortFraction = 1
	}
	return NewConverter(cfg, testLogger())
}

func TestConvertPreservesUnitOrder(t *testing.T) {
	// Later units finish first; the output must still follow source
	// order.
	be := newScripted(func(unit document.Unit, attempt int) (document.ExtractionResult, error) {
		time.Sleep(time.Duration(5-unit.Index) * 5 * time.Millisecond)
		return document.NewSuccess(unit.Index, fmt.Sprintf("page %d content", unit.Index)), nil
	})

	c := testConverter(ConverterConfig{MaxConcurrent: 5, Attempts: 1})
	re, err := c.Convert(context.Background(), testDoc(5), be)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	for i, b := range re.Boundaries {
		if b.UnitIndex != i {
			t.Errorf("boundary %d has unit index %d", i, b.UnitIndex)
		}
	}
	last := -1
	for i := range 5 {
		pos := strings.Index(re.Markdown, fmt.Sprintf("page %d content", i))
		if pos < 0 {
			t.Fatalf("page %d missing from output", i)
		}
		if pos < last {
			t.Errorf("page %d appears out of order", i)
		}
		last = pos
	}
}

func TestConvertRejectedUnitEmbedsRaw(t *testing.T) {
	// The middle page is rejected permanently: its raw content must
	// appear verbatim in a marked fallback block, in position.
	be := newScripted(func(unit document.Unit, attempt int) (document.ExtractionResult, error) {
		if unit.Index == 1 {
			return document.ExtractionResult{}, &backend.RejectedError{Reason: "unsupported content"}
		}
		return document.NewSuccess(unit.Index, fmt.Sprintf("page %d content", unit.Index)), nil
	})

	c := testConverter(ConverterConfig{MaxConcurrent: 3, Attempts: 3})
	re, err := c.Convert(context.Background(), testDoc(3), be)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if be.callCount(1) != 1 {
		t.Errorf("rejected unit retried %d times", be.callCount(1))
	}
	marker := "<!-- unit 1 unavailable -->"
	mpos := strings.Index(re.Markdown, marker)
	if mpos < 0 {
		t.Fatalf("marker missing:\n%s", re.Markdown)
	}
	if !strings.Contains(re.Markdown, "raw text of unit 1") {
		t.Errorf("raw fallback content missing:\n%s", re.Markdown)
	}
	if p0 := strings.Index(re.Markdown, "page 0 content"); p0 > mpos {
		t.Error("fallback block placed before page 0")
	}
	if p2 := strings.Index(re.Markdown, "page 2 content"); p2 < mpos {
		t.Error("fallback block placed after page 2")
	}
	if re.Boundaries[1].Status != document.StatusSkipped {
		t.Errorf("unit 1 status = %s, want skipped", re.Boundaries[1].Status)
	}
}

func TestConvertRetriesTransientThenSucceeds(t *testing.T) {
	be := newScripted(func(unit document.Unit, attempt int) (document.ExtractionResult, error) {
		if unit.Index == 0 && attempt < 3 {
			return document.ExtractionResult{}, &backend.UnavailableError{StatusCode: 429, Message: "slow down"}
		}
		return document.NewSuccess(unit.Index, "recovered content"), nil
	})

	c := testConverter(ConverterConfig{MaxConcurrent: 1, Attempts: 3})
	re, err := c.Convert(context.Background(), testDoc(1), be)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if be.callCount(0) != 3 {
		t.Errorf("attempts = %d, want 3", be.callCount(0))
	}
	if re.Boundaries[0].Status != document.StatusSuccess {
		t.Errorf("status = %s, want success", re.Boundaries[0].Status)
	}
}

func TestConvertRetriesExhaustedMarksFailed(t *testing.T) {
	be := newScripted(func(unit document.Unit, attempt int) (document.ExtractionResult, error) {
		if unit.Index == 1 {
			return document.ExtractionResult{}, &backend.UnavailableError{StatusCode: 503, Message: "down"}
		}
		return document.NewSuccess(unit.Index, fmt.Sprintf("page %d content", unit.Index)), nil
	})

	c := testConverter(ConverterConfig{MaxConcurrent: 3, Attempts: 2, AbortFraction: 1})
	re, err := c.Convert(context.Background(), testDoc(3), be)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if be.callCount(1) != 2 {
		t.Errorf("attempts = %d, want 2", be.callCount(1))
	}
	if re.Boundaries[1].Status != document.StatusFailed {
		t.Errorf("status = %s, want failed", re.Boundaries[1].Status)
	}
	if !strings.Contains(re.Markdown, "<!-- unit 1 unavailable -->") {
		t.Error("failed unit left no marker")
	}
	// Failed units have no trustworthy content to embed.
	if strings.Contains(re.Markdown, "raw text of unit 1") {
		t.Error("failed unit embedded raw content")
	}
}

func TestConvertAbortsOverThreshold(t *testing.T) {
	be := newScripted(func(unit document.Unit, attempt int) (document.ExtractionResult, error) {
		if unit.Index < 4 {
			return document.ExtractionResult{}, &backend.UnavailableError{StatusCode: 500, Message: "boom"}
		}
		time.Sleep(10 * time.Millisecond)
		return document.NewSuccess(unit.Index, "late page"), nil
	})

	c := testConverter(ConverterConfig{MaxConcurrent: 6, Attempts: 1, AbortFraction: 0.25})
	_, err := c.Convert(context.Background(), testDoc(6), be)
	if err == nil {
		t.Fatal("conversion did not abort")
	}
	var aborted *AbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("error = %T %v, want AbortedError", err, err)
	}
	if aborted.Source != "test.pdf" || aborted.Total != 6 {
		t.Errorf("aborted error fields: %+v", aborted)
	}
}

func TestConvertFractionOneNeverAborts(t *testing.T) {
	be := newScripted(func(unit document.Unit, attempt int) (document.ExtractionResult, error) {
		return document.ExtractionResult{}, &backend.UnavailableError{Message: "always down"}
	})

	c := testConverter(ConverterConfig{MaxConcurrent: 2, Attempts: 1, AbortFraction: 1})
	re, err := c.Convert(context.Background(), testDoc(3), be)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for i, b := range re.Boundaries {
		if b.Status != document.StatusFailed {
			t.Errorf("unit %d status = %s, want failed", i, b.Status)
		}
	}
}

func TestConvertEmptyDocument(t *testing.T) {
	c := testConverter(ConverterConfig{})
	be := newScripted(func(unit document.Unit, attempt int) (document.ExtractionResult, error) {
		return document.NewSuccess(unit.Index, "x"), nil
	})
	if _, err := c.Convert(context.Background(), testDoc(0), be); err == nil {
		t.Fatal("empty document accepted")
	}
}
