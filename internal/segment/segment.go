// Package segment splits source documents into ordered extraction
// units. Each segmenter handles one input format; units come back with
// zero-based contiguous indices in source order.
package segment

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mfurukawa/pagemill/internal/document"
)

// Segmenter splits raw document bytes into extraction units.
type Segmenter interface {
	Segment(data []byte, name string) ([]document.Unit, error)
}

// Options tune format-specific segmentation behavior.
type Options struct {
	// RenderDPI is the resolution for PDF page rasterization.
	RenderDPI int
	// PdftotextFallback enables the pdftotext binary when the Go
	// library cannot read a PDF's text layer.
	PdftotextFallback bool
}

// SegmentationError reports that a document could not be segmented.
// It is fatal: no extraction is attempted for any unit.
type SegmentationError struct {
	Source string
	Err    error
}

func (e *SegmentationError) Error() string {
	return fmt.Sprintf("segment %s: %v", e.Source, e.Err)
}

func (e *SegmentationError) Unwrap() error { return e.Err }

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".html":     true,
	".htm":      true,
	".docx":     true,
	".csv":      true,
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// ForSource returns the segmenter for a filename.
func ForSource(name string, opts Options) (Segmenter, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		return &PDFSegmenter{DPI: opts.RenderDPI, PdftotextFallback: opts.PdftotextFallback}, nil
	case ".html", ".htm":
		return &HTMLSegmenter{}, nil
	case ".docx":
		return &DOCXSegmenter{}, nil
	case ".csv":
		return &CSVSegmenter{}, nil
	case ".txt", ".md", ".markdown":
		return &TextSegmenter{}, nil
	default:
		return nil, &SegmentationError{Source: name, Err: fmt.Errorf("unsupported file extension: %s", ext)}
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(name string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(name))]
}
