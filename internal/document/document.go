// Package document defines the data model shared across the conversion
// pipeline: source documents, their extraction units, per-unit results
// and the reassembled output.
package document

import (
	"strings"
	"unicode/utf8"
)

// Unit is one independently extractable piece of a source document.
// Indices are zero-based and contiguous within a document.
type Unit struct {
	Index int
	// Image is an optional PNG render of the unit (a PDF page).
	Image []byte
	// Text is an optional pre-extracted text layer.
	Text string
	// Raw holds the original bytes where they are meaningful on their
	// own, such as an HTML subtree.
	Raw []byte
}

// RawFallback returns the best verbatim representation of the unit for
// embedding when extraction is skipped. Empty when the unit has no
// usable textual form.
func (u Unit) RawFallback() string {
	if strings.TrimSpace(u.Text) != "" {
		return strings.TrimSpace(u.Text)
	}
	if len(u.Raw) > 0 && utf8.Valid(u.Raw) {
		return strings.TrimSpace(string(u.Raw))
	}
	return ""
}

// Document is a segmented source document moving through the pipeline.
type Document struct {
	Source      string
	ContentHash string
	Units       []Unit
	// Markdown is empty until conversion completes.
	Markdown string
}

// Status of a single unit's extraction.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ExtractionResult is the outcome of extracting one unit. It is created
// once by a backend or the converter and read once by reassembly; it is
// never mutated in between.
type ExtractionResult struct {
	UnitIndex int
	Status    Status
	// Reason is set for failed and skipped units.
	Reason string
	// Fragment is the Markdown output, present only on success.
	Fragment string
	Hints    Hints
}

// Hints carry structural observations a backend makes about a fragment,
// used by reassembly to repair unit boundaries.
type Hints struct {
	// EndsMidTable reports that the fragment's content ends inside a
	// table that likely continues in the next unit.
	EndsMidTable bool
	// StartsContinuation reports that the fragment opens with table
	// rows continuing a table from the previous unit.
	StartsContinuation bool
}

// DeriveHints inspects a Markdown fragment and derives boundary hints
// from its first and last non-empty lines.
func DeriveHints(fragment string) Hints {
	var h Hints
	if first := firstNonEmptyLine(fragment); strings.HasPrefix(strings.TrimSpace(first), "|") {
		h.StartsContinuation = true
	}
	if last := lastNonEmptyLine(fragment); strings.HasPrefix(strings.TrimSpace(last), "|") {
		h.EndsMidTable = true
	}
	return h
}

// NewSuccess builds a successful result with hints derived from the
// fragment text.
func NewSuccess(index int, fragment string) ExtractionResult {
	return ExtractionResult{
		UnitIndex: index,
		Status:    StatusSuccess,
		Fragment:  fragment,
		Hints:     DeriveHints(fragment),
	}
}

// NewFailed builds a failed result for a unit.
func NewFailed(index int, reason string) ExtractionResult {
	return ExtractionResult{UnitIndex: index, Status: StatusFailed, Reason: reason}
}

// NewSkipped builds a skipped result for a unit whose content was
// rejected by the backend.
func NewSkipped(index int, reason string) ExtractionResult {
	return ExtractionResult{UnitIndex: index, Status: StatusSkipped, Reason: reason}
}

// Boundary marks where a unit's contribution begins in the reassembled
// Markdown, as a byte offset.
type Boundary struct {
	UnitIndex int    `json:"unit_index"`
	Offset    int    `json:"offset"`
	Status    Status `json:"status"`
}

// Reassembled is the merged output of a conversion. Boundaries are in
// source unit order regardless of extraction completion order.
type Reassembled struct {
	Markdown   string
	Boundaries []Boundary
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}
