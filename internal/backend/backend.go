// Package backend converts extraction units into Markdown fragments.
// Implementations wrap a generative model, a layout-analysis service
// or a local OCR engine behind one contract.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mfurukawa/pagemill/internal/document"
)

// Backend converts one unit into a Markdown fragment. Implementations
// must be safe for concurrent use; the converter calls Extract from
// many goroutines.
type Backend interface {
	Name() string
	Extract(ctx context.Context, unit document.Unit) (document.ExtractionResult, error)
}

// UnavailableError indicates a transient failure: the backend could
// not be reached or answered with a retryable status.
type UnavailableError struct {
	StatusCode int
	Message    string
}

func (e *UnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend unavailable (status %d): %s", e.StatusCode, truncate(e.Message, 200))
	}
	return fmt.Sprintf("backend unavailable: %s", truncate(e.Message, 200))
}

// RejectedError indicates the backend refused this unit's content.
// Retrying cannot help; the unit degrades to skipped.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("backend rejected unit: %s", truncate(e.Reason, 200))
}

// IsUnavailable reports whether err is a transient backend failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// IsRejected reports whether err is a permanent per-unit rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// classifyStatus maps an HTTP status to the error taxonomy. 429 and
// 5xx are transient; everything else non-200 is a rejection.
func classifyStatus(status int, body string) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return &UnavailableError{StatusCode: status, Message: body}
	}
	return &RejectedError{Reason: fmt.Sprintf("status %d: %s", status, truncate(body, 200))}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
