package segment

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/mfurukawa/pagemill/internal/document"
)

// TextSegmenter handles plain text and Markdown. Input splits at
// top-level headers; a file without any becomes a single unit. Header
// lines inside fenced code blocks do not split.
type TextSegmenter struct{}

func (s *TextSegmenter) Segment(data []byte, name string) ([]document.Unit, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var units []document.Unit
	var section []string
	inFence := false

	flush := func() {
		t := strings.TrimSpace(strings.Join(section, "\n"))
		section = section[:0]
		if t == "" {
			return
		}
		units = append(units, document.Unit{Index: len(units), Text: t})
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}
		if !inFence && strings.HasPrefix(line, "# ") && len(section) > 0 {
			flush()
		}
		section = append(section, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &SegmentationError{Source: name, Err: fmt.Errorf("scan text: %w", err)}
	}
	flush()

	if len(units) == 0 {
		return nil, &SegmentationError{Source: name, Err: errors.New("file is empty")}
	}
	return units, nil
}
