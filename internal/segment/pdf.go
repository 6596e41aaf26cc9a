package segment

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/mfurukawa/pagemill/internal/document"
)

// DefaultRenderDPI is used when no rasterization DPI is configured.
const DefaultRenderDPI = 200

// PDFSegmenter produces one unit per physical page. Each unit carries
// a PNG render of the page plus its text layer where one exists.
type PDFSegmenter struct {
	DPI               int
	PdftotextFallback bool
}

func (s *PDFSegmenter) Segment(data []byte, name string) ([]document.Unit, error) {
	// ledongthuc/pdf and the poppler tools want a path, so we write
	// the upload to a temp file once and share it.
	tmp, err := os.CreateTemp("", "pagemill-pdf-*.pdf")
	if err != nil {
		return nil, &SegmentationError{Source: name, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, &SegmentationError{Source: name, Err: fmt.Errorf("write temp file: %w", err)}
	}
	tmp.Close()

	pageCount, err := validatePDF(tmpPath)
	if err != nil {
		return nil, &SegmentationError{Source: name, Err: err}
	}

	texts := s.textLayers(tmpPath, pageCount)

	dpi := s.DPI
	if dpi <= 0 {
		dpi = DefaultRenderDPI
	}

	units := make([]document.Unit, 0, pageCount)
	usable := 0
	for i := 0; i < pageCount; i++ {
		img, renderErr := renderPage(tmpPath, i+1, dpi)
		if renderErr != nil {
			img = nil
		}
		unit := document.Unit{Index: i, Image: img, Text: texts[i]}
		if len(unit.Image) > 0 || strings.TrimSpace(unit.Text) != "" {
			usable++
		}
		units = append(units, unit)
	}
	if usable == 0 {
		return nil, &SegmentationError{Source: name, Err: errors.New("no page could be rendered and no text layer found")}
	}
	return units, nil
}

// validatePDF checks the file is a readable PDF and returns its page
// count before any extraction work starts.
func validatePDF(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pageCount, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("validate pdf: %w", err)
	}
	if pageCount == 0 {
		return 0, errors.New("pdf has no pages")
	}
	return pageCount, nil
}

// textLayers returns per-page extracted text, indexed by zero-based
// page. Missing or unreadable pages yield empty strings.
func (s *PDFSegmenter) textLayers(path string, pageCount int) []string {
	texts := make([]string, pageCount)

	f, reader, err := pdflib.Open(path)
	if err == nil {
		numPages := reader.NumPage()
		for i := 1; i <= numPages && i <= pageCount; i++ {
			page := reader.Page(i)
			if page.V.IsNull() {
				continue
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				continue
			}
			texts[i-1] = strings.TrimSpace(text)
		}
		f.Close()
	}

	empty := true
	for _, t := range texts {
		if t != "" {
			empty = false
			break
		}
	}
	if empty && s.PdftotextFallback {
		if out, err := exec.Command("pdftotext", "-layout", path, "-").Output(); err == nil {
			// pdftotext separates pages with form feeds.
			for i, page := range strings.Split(string(out), "\f") {
				if i >= pageCount {
					break
				}
				texts[i] = strings.TrimSpace(page)
			}
		}
	}
	return texts
}

// renderPage rasterizes a single 1-based page to PNG via pdftoppm.
func renderPage(path string, page, dpi int) ([]byte, error) {
	dir, err := os.MkdirTemp("", "pagemill-render-")
	if err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, fmt.Sprintf("page-%d", page))
	pageStr := strconv.Itoa(page)
	cmd := exec.Command("pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		path,
		prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %v: %s", page, err, strings.TrimSpace(string(out)))
	}
	return os.ReadFile(prefix + ".png")
}
