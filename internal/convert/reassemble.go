package convert

import (
	"fmt"
	"strings"

	"github.com/mfurukawa/pagemill/internal/document"
)

// maxRunningLineLen bounds the length of a line treated as a repeated
// running header or footer. Longer lines are content even when they
// repeat across a boundary.
const maxRunningLineLen = 80

// Reassemble merges index-ordered extraction results into one
// Markdown document. Fragments join with a blank line; skipped units
// leave a marker with their raw content fenced below it; failed units
// leave the marker alone. Repairs happen only at the seam between two
// successful fragments and never re-scan merged content.
func Reassemble(results []document.ExtractionResult, units []document.Unit) *document.Reassembled {
	var sb strings.Builder
	boundaries := make([]document.Boundary, 0, len(results))

	prevSuccess := false
	var prevHints document.Hints
	prevLast := ""

	for _, res := range results {
		piece := ""
		join := "\n\n"

		switch res.Status {
		case document.StatusSuccess:
			piece = res.Fragment
			if prevSuccess {
				if prevHints.EndsMidTable && res.Hints.StartsContinuation {
					if rows, ok := continuationRows(piece, prevLast); ok {
						piece = rows
						join = "\n"
					}
				}
				if join == "\n\n" {
					piece = dropRepeatedBoundaryLine(prevLast, piece)
				}
			}
		case document.StatusSkipped:
			piece = fmt.Sprintf("<!-- unit %d unavailable -->", res.UnitIndex)
			if raw := rawFor(units, res.UnitIndex); raw != "" {
				fence := fenceFor(raw)
				piece += "\n\n" + fence + "text\n" + raw + "\n" + fence
			}
		case document.StatusFailed:
			piece = fmt.Sprintf("<!-- unit %d unavailable -->", res.UnitIndex)
		}

		if sb.Len() > 0 {
			sb.WriteString(join)
		}
		boundaries = append(boundaries, document.Boundary{
			UnitIndex: res.UnitIndex,
			Offset:    sb.Len(),
			Status:    res.Status,
		})
		sb.WriteString(piece)

		if piece != "" {
			prevLast = lastNonEmptyLine(piece)
		}
		prevSuccess = res.Status == document.StatusSuccess
		if prevSuccess {
			prevHints = res.Hints
		} else {
			prevHints = document.Hints{}
		}
	}

	return &document.Reassembled{Markdown: sb.String(), Boundaries: boundaries}
}

// continuationRows prepares a continuation fragment for joining onto
// the table ending with prevLastRow. A re-emitted header and
// separator pair is dropped. Merging only happens when column counts
// match; on any doubt both tables stay separate.
func continuationRows(frag, prevLastRow string) (string, bool) {
	prevCols := columnCount(prevLastRow)
	if prevCols == 0 {
		return "", false
	}

	lines := strings.Split(frag, "\n")
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start >= len(lines) || !strings.HasPrefix(strings.TrimSpace(lines[start]), "|") {
		return "", false
	}
	if columnCount(lines[start]) != prevCols {
		return "", false
	}

	if start+1 < len(lines) && isSeparatorRow(lines[start+1]) {
		next := start + 2
		if next >= len(lines) || columnCount(lines[next]) != prevCols {
			return "", false
		}
		start = next
	}
	return strings.Join(lines[start:], "\n"), true
}

// dropRepeatedBoundaryLine removes a short line that ended the
// previous fragment and opens the next one, the signature of a
// running page header or footer. Table rows never count.
func dropRepeatedBoundaryLine(prevLast, frag string) string {
	prevLast = strings.TrimSpace(prevLast)
	if prevLast == "" || len([]rune(prevLast)) > maxRunningLineLen || strings.HasPrefix(prevLast, "|") {
		return frag
	}

	lines := strings.Split(frag, "\n")
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) || strings.TrimSpace(lines[i]) != prevLast {
		return frag
	}

	rest := lines[i+1:]
	for len(rest) > 0 && strings.TrimSpace(rest[0]) == "" {
		rest = rest[1:]
	}
	return strings.Join(rest, "\n")
}

func columnCount(row string) int {
	row = strings.TrimSpace(row)
	if !strings.HasPrefix(row, "|") {
		return 0
	}
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")
	if strings.TrimSpace(row) == "" {
		return 0
	}
	return len(strings.Split(row, "|"))
}

func isSeparatorRow(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "|") || !strings.Contains(line, "-") {
		return false
	}
	for _, r := range line {
		switch r {
		case '|', '-', ':', ' ', '\t':
		default:
			return false
		}
	}
	return true
}

func rawFor(units []document.Unit, idx int) string {
	if idx >= 0 && idx < len(units) && units[idx].Index == idx {
		return units[idx].RawFallback()
	}
	for _, u := range units {
		if u.Index == idx {
			return u.RawFallback()
		}
	}
	return ""
}

// fenceFor picks a fence longer than any run of backticks in raw so
// the embedded content cannot terminate it early.
func fenceFor(raw string) string {
	fence := "```"
	for strings.Contains(raw, fence) {
		fence += "`"
	}
	return fence
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
