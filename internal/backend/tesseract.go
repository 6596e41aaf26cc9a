package backend

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/mfurukawa/pagemill/internal/document"
)

// TesseractBackend runs local OCR over page images. It needs no
// credentials and no network; output is plain paragraphs without
// table reconstruction.
type TesseractBackend struct {
	lang  string
	stats *Stats
	log   *slog.Logger
}

func NewTesseract(lang string, stats *Stats, log *slog.Logger) *TesseractBackend {
	return &TesseractBackend{lang: lang, stats: stats, log: log.With("backend", "tesseract")}
}

func (b *TesseractBackend) Name() string { return "tesseract" }

func (b *TesseractBackend) Extract(ctx context.Context, unit document.Unit) (document.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return document.ExtractionResult{}, &UnavailableError{Message: err.Error()}
	}
	if len(unit.Image) == 0 {
		return document.ExtractionResult{}, &RejectedError{Reason: "unit has no image for OCR"}
	}

	// A gosseract client is not safe for concurrent use; each call
	// gets its own.
	client := gosseract.NewClient()
	defer client.Close()
	if b.lang != "" {
		if err := client.SetLanguage(b.lang); err != nil {
			return document.ExtractionResult{}, &RejectedError{Reason: "set language: " + err.Error()}
		}
	}
	if err := client.SetImageFromBytes(unit.Image); err != nil {
		return document.ExtractionResult{}, &RejectedError{Reason: "load image: " + err.Error()}
	}

	start := time.Now()
	text, err := client.Text()
	if err != nil {
		return document.ExtractionResult{}, &RejectedError{Reason: "ocr: " + err.Error()}
	}
	b.stats.Record(b.Name(), time.Since(start))

	fragment := ocrParagraphs(text)
	if fragment == "" {
		return document.ExtractionResult{}, &RejectedError{Reason: "ocr produced no text"}
	}
	return document.NewSuccess(unit.Index, fragment), nil
}

// ocrParagraphs groups OCR output lines into blank-line separated
// paragraphs.
func ocrParagraphs(text string) string {
	var paragraphs []string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(cur) > 0 {
				paragraphs = append(paragraphs, strings.Join(cur, " "))
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		paragraphs = append(paragraphs, strings.Join(cur, " "))
	}
	return strings.Join(paragraphs, "\n\n")
}
