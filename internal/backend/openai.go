package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/mfurukawa/pagemill/internal/document"
)

// OpenAIBackend converts units with an OpenAI vision chat model. The
// unit's page image goes in as a data URL; the text layer rides along
// in the prompt.
type OpenAIBackend struct {
	client openai.Client
	model  openai.ChatModel
	stats  *Stats
	log    *slog.Logger
}

func NewOpenAI(apiKey, baseURL, model string, stats *Stats, log *slog.Logger) *OpenAIBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries belong to the converter's policy, not the SDK.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	m := openai.ChatModelGPT4o
	if model != "" {
		m = openai.ChatModel(model)
	}
	return &OpenAIBackend{
		client: openai.NewClient(opts...),
		model:  m,
		stats:  stats,
		log:    log.With("backend", "openai"),
	}
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Extract(ctx context.Context, unit document.Unit) (document.ExtractionResult, error) {
	if len(unit.Image) == 0 && strings.TrimSpace(unit.Text) == "" {
		return document.ExtractionResult{}, &RejectedError{Reason: "unit has no image or text"}
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(BuildUnitPrompt(unit)),
	}
	if len(unit.Image) > 0 {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(unit.Image),
		}))
	}

	start := time.Now()
	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: b.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(ConversionPrompt),
			openai.UserMessage(parts),
		},
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return document.ExtractionResult{}, classifyStatus(apierr.StatusCode, apierr.Error())
		}
		return document.ExtractionResult{}, &UnavailableError{Message: err.Error()}
	}
	b.stats.Record(b.Name(), time.Since(start))

	if len(resp.Choices) == 0 {
		return document.ExtractionResult{}, &RejectedError{Reason: "model returned no choices"}
	}
	fragment := Sanitize(resp.Choices[0].Message.Content)
	if fragment == "" {
		return document.ExtractionResult{}, &RejectedError{Reason: "model returned empty output"}
	}
	return document.NewSuccess(unit.Index, fragment), nil
}
