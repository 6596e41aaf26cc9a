package convert

import (
	"strings"
	"testing"

	"github.com/mfurukawa/pagemill/internal/document"
)

func TestReassembleMergesSplitTable(t *testing.T) {
	page1 := "Intro paragraph.\n\n| name | qty |\n| --- | --- |\n| bolts | 4 |"
	page2 := "| name | qty |\n| --- | --- |\n| nuts | 9 |"

	results := []document.ExtractionResult{
		document.NewSuccess(0, page1),
		document.NewSuccess(1, page2),
	}
	re := Reassemble(results, nil)

	if !strings.Contains(re.Markdown, "| bolts | 4 |\n| nuts | 9 |") {
		t.Errorf("continuation rows not appended to the table:\n%s", re.Markdown)
	}
	if strings.Count(re.Markdown, "| name | qty |") != 1 {
		t.Errorf("re-emitted table header survived the merge:\n%s", re.Markdown)
	}
}

func TestReassembleContinuationWithoutHeader(t *testing.T) {
	page1 := "| a | b |\n| --- | --- |\n| 1 | 2 |"
	page2 := "| 3 | 4 |\n\ntrailing text"

	re := Reassemble([]document.ExtractionResult{
		document.NewSuccess(0, page1),
		document.NewSuccess(1, page2),
	}, nil)

	if !strings.Contains(re.Markdown, "| 1 | 2 |\n| 3 | 4 |") {
		t.Errorf("bare continuation rows not appended:\n%s", re.Markdown)
	}
}

func TestReassembleMismatchedColumnsKeptSeparate(t *testing.T) {
	page1 := "| a | b |\n| --- | --- |\n| 1 | 2 |"
	page2 := "| x | y | z |\n| --- | --- | --- |\n| 3 | 4 | 5 |"

	re := Reassemble([]document.ExtractionResult{
		document.NewSuccess(0, page1),
		document.NewSuccess(1, page2),
	}, nil)

	// Conservative: both tables intact, joined with a blank line.
	if !strings.Contains(re.Markdown, "| 1 | 2 |\n\n| x | y | z |") {
		t.Errorf("mismatched tables were merged:\n%s", re.Markdown)
	}
}

func TestReassembleDropsRepeatedRunningHeader(t *testing.T) {
	page1 := "Body of page one.\n\nACME Quarterly Report"
	page2 := "ACME Quarterly Report\n\nBody of page two."

	re := Reassemble([]document.ExtractionResult{
		document.NewSuccess(0, page1),
		document.NewSuccess(1, page2),
	}, nil)

	if strings.Count(re.Markdown, "ACME Quarterly Report") != 1 {
		t.Errorf("running header not deduplicated:\n%s", re.Markdown)
	}
	if !strings.Contains(re.Markdown, "Body of page two.") {
		t.Errorf("content after the dropped header lost:\n%s", re.Markdown)
	}
}

func TestReassembleLongRepeatedLineKept(t *testing.T) {
	long := strings.Repeat("significant content sentence ", 5)
	page1 := "intro\n\n" + long
	page2 := long + "\n\nmore"

	re := Reassemble([]document.ExtractionResult{
		document.NewSuccess(0, page1),
		document.NewSuccess(1, page2),
	}, nil)

	if strings.Count(re.Markdown, long) != 2 {
		t.Errorf("long repeated line was dropped as a running header:\n%s", re.Markdown)
	}
}

func TestReassembleDedupOnlyAtBoundary(t *testing.T) {
	// The repeated line sits deep inside page two, not at the
	// boundary, so it stays.
	page1 := "alpha\n\nfooter line"
	page2 := "opening text\n\nfooter line\n\nclosing"

	re := Reassemble([]document.ExtractionResult{
		document.NewSuccess(0, page1),
		document.NewSuccess(1, page2),
	}, nil)

	if strings.Count(re.Markdown, "footer line") != 2 {
		t.Errorf("non-boundary repetition was touched:\n%s", re.Markdown)
	}
}

func TestReassembleSkippedEmbedsRaw(t *testing.T) {
	units := []document.Unit{
		{Index: 0},
		{Index: 1, Text: "verbatim raw unit content"},
		{Index: 2},
	}
	results := []document.ExtractionResult{
		document.NewSuccess(0, "page zero"),
		document.NewSkipped(1, "unsupported"),
		document.NewSuccess(2, "page two"),
	}
	re := Reassemble(results, units)

	marker := "<!-- unit 1 unavailable -->"
	if !strings.Contains(re.Markdown, marker+"\n\n```text\nverbatim raw unit content\n```") {
		t.Errorf("skipped unit fallback block malformed:\n%s", re.Markdown)
	}
}

func TestReassembleFenceEscapesBackticks(t *testing.T) {
	units := []document.Unit{{Index: 0, Text: "has a ``` fence inside"}}
	re := Reassemble([]document.ExtractionResult{document.NewSkipped(0, "x")}, units)

	// The wrapping fence must be longer than any backtick run in the
	// embedded content.
	if !strings.Contains(re.Markdown, "````text") {
		t.Errorf("fence not extended past embedded backticks:\n%s", re.Markdown)
	}
}

func TestReassembleBoundaryOffsets(t *testing.T) {
	results := []document.ExtractionResult{
		document.NewSuccess(0, "first fragment"),
		document.NewFailed(1, "gone"),
		document.NewSuccess(2, "third fragment"),
	}
	re := Reassemble(results, nil)

	if len(re.Boundaries) != 3 {
		t.Fatalf("boundaries = %d, want 3", len(re.Boundaries))
	}
	wantPrefix := []string{"first fragment", "<!-- unit 1 unavailable -->", "third fragment"}
	for i, b := range re.Boundaries {
		if b.UnitIndex != i {
			t.Errorf("boundary %d unit index = %d", i, b.UnitIndex)
		}
		if !strings.HasPrefix(re.Markdown[b.Offset:], wantPrefix[i]) {
			t.Errorf("offset %d of boundary %d does not start its piece", b.Offset, i)
		}
	}
	if re.Boundaries[1].Status != document.StatusFailed {
		t.Errorf("boundary status = %s", re.Boundaries[1].Status)
	}
}
