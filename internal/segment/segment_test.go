package segment

import (
	"strings"
	"testing"
)

func TestForSource(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"report.pdf", "*segment.PDFSegmenter"},
		{"page.html", "*segment.HTMLSegmenter"},
		{"page.HTM", "*segment.HTMLSegmenter"},
		{"doc.docx", "*segment.DOCXSegmenter"},
		{"data.csv", "*segment.CSVSegmenter"},
		{"notes.txt", "*segment.TextSegmenter"},
		{"readme.md", "*segment.TextSegmenter"},
	}
	for _, tt := range tests {
		seg, err := ForSource(tt.name, Options{})
		if err != nil {
			t.Fatalf("ForSource(%s): %v", tt.name, err)
		}
		got := typeName(seg)
		if got != tt.want {
			t.Errorf("ForSource(%s) = %s, want %s", tt.name, got, tt.want)
		}
	}

	if _, err := ForSource("image.bmp", Options{}); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *PDFSegmenter:
		return "*segment.PDFSegmenter"
	case *HTMLSegmenter:
		return "*segment.HTMLSegmenter"
	case *DOCXSegmenter:
		return "*segment.DOCXSegmenter"
	case *CSVSegmenter:
		return "*segment.CSVSegmenter"
	case *TextSegmenter:
		return "*segment.TextSegmenter"
	}
	return "unknown"
}

func TestTextSegmenterSplitsAtHeaders(t *testing.T) {
	input := "intro line\n\n# First\n\nbody one\n\n# Second\n\nbody two"
	units, err := (&TextSegmenter{}).Segment([]byte(input), "notes.md")
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}
	for i, u := range units {
		if u.Index != i {
			t.Errorf("unit %d has index %d", i, u.Index)
		}
	}
	if units[0].Text != "intro line" {
		t.Errorf("preamble unit = %q", units[0].Text)
	}
	if !strings.HasPrefix(units[1].Text, "# First") {
		t.Errorf("unit 1 = %q", units[1].Text)
	}
	if !strings.HasPrefix(units[2].Text, "# Second") {
		t.Errorf("unit 2 = %q", units[2].Text)
	}
}

func TestTextSegmenterIgnoresHeadersInFences(t *testing.T) {
	units, err := (&TextSegmenter{}).Segment([]byte("# Top\n\n```\n# not a header\n```\n\ntail"), "x.md")
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("fenced header should not split, got %d units", len(units))
	}
}

func TestTextSegmenterEmpty(t *testing.T) {
	if _, err := (&TextSegmenter{}).Segment([]byte("  \n \n"), "empty.txt"); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestCSVSegmenterBatches(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("name,qty\n")
	for i := 0; i < 45; i++ {
		sb.WriteString("item,1\n")
	}
	units, err := (&CSVSegmenter{}).Segment([]byte(sb.String()), "data.csv")
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("45 rows in batches of 20 should give 3 units, got %d", len(units))
	}
	for _, u := range units {
		if !strings.Contains(u.Text, "| name | qty |") {
			t.Errorf("unit %d missing header row: %q", u.Index, u.Text)
		}
		if !strings.Contains(u.Text, "| --- | --- |") {
			t.Errorf("unit %d missing separator: %q", u.Index, u.Text)
		}
	}
	if !strings.Contains(units[2].Text, "Rows 41-45") {
		t.Errorf("last unit should carry row range, got %q", units[2].Text)
	}
}

func TestCSVSegmenterEscapesPipes(t *testing.T) {
	units, err := (&CSVSegmenter{}).Segment([]byte("col\na|b\n"), "p.csv")
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if !strings.Contains(units[0].Text, `a\|b`) {
		t.Errorf("pipe not escaped: %q", units[0].Text)
	}
}

func TestHTMLSegmenterDropsNonContent(t *testing.T) {
	page := `<html><head><title>T</title><script>var x;</script></head>
<body>
<nav><a href="/">home</a></nav>
<article><h1>Title</h1><p>First paragraph.</p></article>
<section><p>Second part.</p></section>
<footer>contact us</footer>
</body></html>`
	units, err := (&HTMLSegmenter{}).Segment([]byte(page), "page.html")
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	joined := units[0].Text + "\n" + units[1].Text
	if strings.Contains(joined, "home") || strings.Contains(joined, "contact us") {
		t.Errorf("nav/footer content leaked into units: %q", joined)
	}
	if !strings.Contains(units[0].Text, "# Title") {
		t.Errorf("heading not rendered at level: %q", units[0].Text)
	}
	if len(units[0].Raw) == 0 {
		t.Error("unit should carry its raw HTML subtree")
	}
}

func TestHTMLSegmenterUnwrapsSingleContainer(t *testing.T) {
	page := `<html><body><div id="app">
<div><h2>A</h2><p>alpha</p></div>
<div><h2>B</h2><p>beta</p></div>
</div></body></html>`
	units, err := (&HTMLSegmenter{}).Segment([]byte(page), "page.html")
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("wrapper div should unwrap to 2 units, got %d", len(units))
	}
}

func TestHTMLSegmenterEmpty(t *testing.T) {
	if _, err := (&HTMLSegmenter{}).Segment([]byte("<html><body><script>x</script></body></html>"), "e.html"); err == nil {
		t.Fatal("expected error for content-free page")
	}
}
