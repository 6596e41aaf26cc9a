package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/mfurukawa/pagemill/internal/document"
)

// defaultGeminiModel applies when GEMINI_MODEL is unset; the backend
// owns this default, config passes the env value through untouched.
const defaultGeminiModel = "gemini-2.5-flash"

func geminiModel(model string) string {
	if model == "" {
		return defaultGeminiModel
	}
	return model
}

// GeminiBackend converts units with a Gemini multimodal model.
type GeminiBackend struct {
	client *genai.Client
	model  string
	stats  *Stats
	log    *slog.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, stats *Stats, log *slog.Logger) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiBackend{
		client: client,
		model:  geminiModel(model),
		stats:  stats,
		log:    log.With("backend", "gemini"),
	}, nil
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) Extract(ctx context.Context, unit document.Unit) (document.ExtractionResult, error) {
	if len(unit.Image) == 0 && strings.TrimSpace(unit.Text) == "" {
		return document.ExtractionResult{}, &RejectedError{Reason: "unit has no image or text"}
	}

	parts := []*genai.Part{genai.NewPartFromText(BuildUnitPrompt(unit))}
	if len(unit.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(unit.Image, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	result, err := b.client.Models.GenerateContent(ctx, b.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: ConversionPrompt}}},
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return document.ExtractionResult{}, classifyStatus(apiErr.Code, apiErr.Message)
		}
		return document.ExtractionResult{}, &UnavailableError{Message: err.Error()}
	}
	b.stats.Record(b.Name(), time.Since(start))

	fragment := Sanitize(result.Text())
	if fragment == "" {
		return document.ExtractionResult{}, &RejectedError{Reason: "model returned empty output"}
	}
	return document.NewSuccess(unit.Index, fragment), nil
}
