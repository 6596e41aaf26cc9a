package backend

import (
	"strings"
	"testing"

	"github.com/mfurukawa/pagemill/internal/document"
)

func TestGeminiModelDefault(t *testing.T) {
	if got := geminiModel(""); got != defaultGeminiModel {
		t.Errorf("empty model resolved to %q", got)
	}
	if got := geminiModel("gemini-exp"); got != "gemini-exp" {
		t.Errorf("explicit model overridden to %q", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	if err := classifyStatus(429, "rate limited"); !IsUnavailable(err) {
		t.Errorf("429 should be unavailable, got %v", err)
	}
	if err := classifyStatus(503, "down"); !IsUnavailable(err) {
		t.Errorf("503 should be unavailable, got %v", err)
	}
	if err := classifyStatus(400, "bad image"); !IsRejected(err) {
		t.Errorf("400 should be rejected, got %v", err)
	}
	if err := classifyStatus(422, "unsupported"); IsUnavailable(err) {
		t.Errorf("422 must not be retryable, got %v", err)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "# Title\n\nBody.", "# Title\n\nBody."},
		{"wrapped bare", "```\n# Title\n\nBody.\n```", "# Title\n\nBody."},
		{"wrapped markdown", "```markdown\n# Title\n```", "# Title"},
		{"wrapped md with spaces", "  ```md\n# Title\n```  ", "# Title"},
		{"legit code block survives", "```go\nfmt.Println(1)\n```", "```go\nfmt.Println(1)\n```"},
		{"inner fences survive unwrap", "```markdown\ntext\n\n```py\nx = 1\n```\n```", "text\n\n```py\nx = 1\n```"},
		{"whitespace only", "   \n\t", ""},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("%s: Sanitize(%q) = %q, want %q", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestBuildUnitPromptIncludesTextLayer(t *testing.T) {
	p := BuildUnitPrompt(document.Unit{Index: 2, Text: "page text here"})
	if !strings.Contains(p, "Convert page 3") {
		t.Errorf("prompt should use 1-based page numbers: %q", p)
	}
	if !strings.Contains(p, "page text here") {
		t.Errorf("prompt missing text layer: %q", p)
	}

	p = BuildUnitPrompt(document.Unit{Index: 0, Image: []byte{1}})
	if strings.Contains(p, "Extracted text layer") {
		t.Errorf("image-only prompt should not mention a text layer: %q", p)
	}
}

func TestRenderTable(t *testing.T) {
	got := renderTable([][]string{{"name", "qty"}, {"ap|ple", "3"}}, false)
	want := "| name | qty |\n| --- | --- |\n| ap\\|ple | 3 |"
	if got != want {
		t.Errorf("renderTable = %q, want %q", got, want)
	}

	got = renderTable([][]string{{"4", "d"}, {"5", "e"}}, true)
	if strings.Contains(got, "---") {
		t.Errorf("continuation table must not emit a separator: %q", got)
	}
}

func TestRenderElements(t *testing.T) {
	elements := []layoutElement{
		{Type: "heading", Level: 2, Text: "Results"},
		{Type: "paragraph", Text: "Summary of findings."},
		{Type: "list", Items: []string{"first", "second"}},
		{Type: "figure", Text: "revenue chart"},
		{Type: "table", Cells: [][]string{{"a", "b"}, {"1", "2"}}},
	}
	got := renderElements(elements)
	for _, want := range []string{
		"## Results",
		"Summary of findings.",
		"- first\n- second",
		"- [image] revenue chart",
		"| a | b |",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered output missing %q:\n%s", want, got)
		}
	}
}

func TestLayoutHints(t *testing.T) {
	h := layoutHints([]layoutElement{
		{Type: "table", ContinuesPrev: true, Cells: [][]string{{"1"}}},
		{Type: "paragraph", Text: "x"},
		{Type: "table", ContinuesNext: true, Cells: [][]string{{"2"}}},
	})
	if !h.StartsContinuation || !h.EndsMidTable {
		t.Errorf("hints = %+v", h)
	}

	h = layoutHints([]layoutElement{{Type: "paragraph", Text: "x"}})
	if h.StartsContinuation || h.EndsMidTable {
		t.Errorf("prose page should carry no table hints: %+v", h)
	}
}

func TestOCRParagraphs(t *testing.T) {
	got := ocrParagraphs("line one\nline two\n\nnext para\n\n\n")
	want := "line one line two\n\nnext para"
	if got != want {
		t.Errorf("ocrParagraphs = %q, want %q", got, want)
	}
}
