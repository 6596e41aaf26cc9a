package segment

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/mfurukawa/pagemill/internal/document"
)

// DOCXSegmenter splits a .docx document at top-level heading
// paragraphs. Units are text-only; heading paragraphs are rendered as
// Markdown headers at their style level.
type DOCXSegmenter struct{}

func (s *DOCXSegmenter) Segment(data []byte, name string) ([]document.Unit, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &SegmentationError{Source: name, Err: fmt.Errorf("parse docx: %w", err)}
	}

	var units []document.Unit
	var section strings.Builder

	flush := func() {
		t := strings.TrimSpace(section.String())
		section.Reset()
		if t == "" {
			return
		}
		units = append(units, document.Unit{Index: len(units), Text: t})
	}

	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}

		level := docxHeadingLevel(para)
		text := docxParagraphText(para)
		if text == "" {
			continue
		}

		if level > 0 && level <= 2 {
			// New top-level section.
			flush()
		}
		if level > 0 {
			if section.Len() > 0 {
				section.WriteString("\n\n")
			}
			section.WriteString(strings.Repeat("#", level) + " " + text)
		} else {
			if section.Len() > 0 {
				section.WriteString("\n\n")
			}
			section.WriteString(text)
		}
	}
	flush()

	if len(units) == 0 {
		return nil, &SegmentationError{Source: name, Err: errors.New("docx has no paragraph text")}
	}
	return units, nil
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := para.Properties.Style.Val
	for level := 1; level <= 6; level++ {
		if strings.EqualFold(style, fmt.Sprintf("Heading%d", level)) ||
			strings.EqualFold(style, fmt.Sprintf("heading %d", level)) {
			return level
		}
	}
	return 0
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
