package segment

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/mfurukawa/pagemill/internal/document"
)

// csvBatchSize bounds the number of data rows per unit.
const csvBatchSize = 20

// CSVSegmenter renders row batches as Markdown pipe tables, one unit
// per batch. The header row repeats at the top of every batch.
type CSVSegmenter struct{}

func (s *CSVSegmenter) Segment(data []byte, name string) ([]document.Unit, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &SegmentationError{Source: name, Err: fmt.Errorf("parse csv: %w", err)}
	}
	if len(records) == 0 {
		return nil, &SegmentationError{Source: name, Err: errors.New("csv is empty")}
	}

	headers := records[0]
	dataRows := records[1:]

	var units []document.Unit
	emit := func(rows [][]string, firstRow, lastRow int) {
		var text strings.Builder
		if firstRow > 0 {
			// 1-indexed data row range, header row excluded.
			text.WriteString(fmt.Sprintf("Rows %d-%d\n\n", firstRow, lastRow))
		}
		writePipeRow(&text, headers, len(headers))
		text.WriteString("|" + strings.Repeat(" --- |", len(headers)) + "\n")
		for _, row := range rows {
			writePipeRow(&text, row, len(headers))
		}
		units = append(units, document.Unit{
			Index: len(units),
			Text:  strings.TrimRight(text.String(), "\n"),
		})
	}

	if len(dataRows) == 0 {
		emit(nil, 0, 0)
		return units, nil
	}

	for i := 0; i < len(dataRows); i += csvBatchSize {
		end := i + csvBatchSize
		if end > len(dataRows) {
			end = len(dataRows)
		}
		emit(dataRows[i:end], i+1, end)
	}
	return units, nil
}

func writePipeRow(sb *strings.Builder, row []string, cols int) {
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
