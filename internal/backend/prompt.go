package backend

import (
	"fmt"
	"strings"

	"github.com/mfurukawa/pagemill/internal/document"
)

const ConversionPrompt = `You convert one page of a document into clean Markdown.

Rules:
- When an extracted text layer is provided, take the exact characters from it. The page image is for layout and structure only; the text layer has the more reliable characters.
- Reproduce tables as Markdown tables. Use both the text layer and the image to align cells. If a table cannot be reproduced faithfully, render its content as a bulleted list instead.
- Keep heading levels that are visually apparent (#, ##, ###).
- Describe figures and pictures that occupy part of the page as bullet items prefixed with [image], one bullet per figure.
- Describe graphs and charts as bullet items stating the kind of graph and what it shows.
- Preserve the reading order of the page.
- Do not invent content that is not on the page.
- Respond with the Markdown only. No commentary, no code fences around the output.`

// BuildUnitPrompt creates the per-unit user prompt, attaching the
// extracted text layer when the unit has one.
func BuildUnitPrompt(unit document.Unit) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Convert page %d to Markdown.", unit.Index+1))
	if strings.TrimSpace(unit.Text) != "" {
		sb.WriteString("\n\nExtracted text layer:\n---\n")
		sb.WriteString(unit.Text)
		sb.WriteString("\n---")
	}
	return sb.String()
}
