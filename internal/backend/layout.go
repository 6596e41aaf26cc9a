package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mfurukawa/pagemill/internal/document"
)

// LayoutBackend calls a document layout analysis service that returns
// typed page elements, then renders them to Markdown with a fixed
// algorithm. Unlike the model backends its output is deterministic for
// a given response.
type LayoutBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	stats      *Stats
	log        *slog.Logger
}

func NewLayout(baseURL, apiKey string, stats *Stats, log *slog.Logger) *LayoutBackend {
	return &LayoutBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		stats: stats,
		log:   log.With("backend", "layout"),
	}
}

type layoutRequest struct {
	Image []byte `json:"image,omitempty"`
	HTML  string `json:"html,omitempty"`
	Text  string `json:"text,omitempty"`
}

type layoutElement struct {
	Type  string     `json:"type"`
	Level int        `json:"level,omitempty"`
	Text  string     `json:"text,omitempty"`
	Items []string   `json:"items,omitempty"`
	Cells [][]string `json:"cells,omitempty"`
	BBox  []float64  `json:"bbox,omitempty"`
	// ContinuesNext marks a table cut off by the unit edge.
	ContinuesNext bool `json:"continues_next,omitempty"`
	// ContinuesPrev marks rows continuing a table from the unit before.
	ContinuesPrev bool `json:"continues_prev,omitempty"`
}

type layoutResponse struct {
	Elements []layoutElement `json:"elements"`
	Error    string          `json:"error,omitempty"`
}

func (b *LayoutBackend) Name() string { return "layout" }

func (b *LayoutBackend) Extract(ctx context.Context, unit document.Unit) (document.ExtractionResult, error) {
	req := layoutRequest{Image: unit.Image, Text: unit.Text}
	if len(unit.Raw) > 0 && utf8.Valid(unit.Raw) {
		req.HTML = string(unit.Raw)
	}
	if len(req.Image) == 0 && req.HTML == "" && strings.TrimSpace(req.Text) == "" {
		return document.ExtractionResult{}, &RejectedError{Reason: "unit has no analyzable content"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return document.ExtractionResult{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return document.ExtractionResult{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	start := time.Now()
	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return document.ExtractionResult{}, &UnavailableError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return document.ExtractionResult{}, &UnavailableError{Message: "read response: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return document.ExtractionResult{}, classifyStatus(resp.StatusCode, string(respBody))
	}
	b.stats.Record(b.Name(), time.Since(start))

	var apiResp layoutResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return document.ExtractionResult{}, &RejectedError{Reason: "decode response: " + err.Error()}
	}
	if apiResp.Error != "" {
		return document.ExtractionResult{}, &RejectedError{Reason: apiResp.Error}
	}
	if len(apiResp.Elements) == 0 {
		return document.ExtractionResult{}, &RejectedError{Reason: "no elements recognized"}
	}

	fragment := renderElements(apiResp.Elements)
	if fragment == "" {
		return document.ExtractionResult{}, &RejectedError{Reason: "elements rendered empty"}
	}

	return document.ExtractionResult{
		UnitIndex: unit.Index,
		Status:    document.StatusSuccess,
		Fragment:  fragment,
		Hints:     layoutHints(apiResp.Elements),
	}, nil
}

// Close releases idle connections.
func (b *LayoutBackend) Close() {
	b.httpClient.CloseIdleConnections()
}

// layoutHints maps element geometry flags to boundary hints, instead
// of deriving them from the rendered text.
func layoutHints(elements []layoutElement) document.Hints {
	var h document.Hints
	if first := elements[0]; first.Type == "table" && first.ContinuesPrev {
		h.StartsContinuation = true
	}
	if last := elements[len(elements)-1]; last.Type == "table" && last.ContinuesNext {
		h.EndsMidTable = true
	}
	return h
}

func renderElements(elements []layoutElement) string {
	var blocks []string
	for _, el := range elements {
		switch el.Type {
		case "heading":
			level := el.Level
			if level < 1 {
				level = 1
			}
			if level > 6 {
				level = 6
			}
			if t := strings.TrimSpace(el.Text); t != "" {
				blocks = append(blocks, strings.Repeat("#", level)+" "+t)
			}
		case "paragraph":
			if t := strings.TrimSpace(el.Text); t != "" {
				blocks = append(blocks, t)
			}
		case "list":
			var sb strings.Builder
			for _, item := range el.Items {
				if item = strings.TrimSpace(item); item == "" {
					continue
				}
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString("- " + item)
			}
			if sb.Len() > 0 {
				blocks = append(blocks, sb.String())
			}
		case "table":
			if t := renderTable(el.Cells, el.ContinuesPrev); t != "" {
				blocks = append(blocks, t)
			}
		case "figure":
			caption := strings.TrimSpace(el.Text)
			if caption == "" {
				caption = "figure"
			}
			blocks = append(blocks, "- [image] "+caption)
		}
	}
	return strings.Join(blocks, "\n\n")
}

// renderTable renders cell rows as a pipe table. Continuation tables
// get no header separator so reassembly can join their rows to the
// table they continue.
func renderTable(cells [][]string, continuation bool) string {
	if len(cells) == 0 || len(cells[0]) == 0 {
		return ""
	}
	cols := len(cells[0])
	var sb strings.Builder
	writeRow := func(row []string) {
		sb.WriteString("|")
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cell = strings.ReplaceAll(cell, "|", "\\|")
			cell = strings.ReplaceAll(cell, "\n", " ")
			sb.WriteString(" " + strings.TrimSpace(cell) + " |")
		}
		sb.WriteString("\n")
	}
	writeRow(cells[0])
	if !continuation {
		sb.WriteString("|" + strings.Repeat(" --- |", cols) + "\n")
	}
	for _, row := range cells[1:] {
		writeRow(row)
	}
	return strings.TrimRight(sb.String(), "\n")
}
