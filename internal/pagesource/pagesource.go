// Package pagesource turns a downloaded document's binary content into an
// ordered sequence of page images ready for transcription.
package pagesource

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jackzampolin/tagflow/internal/retry"
)

// Page is one page image extracted from a document.
type Page struct {
	// Index is the 0-based page index within the document.
	Index int

	// Data is the encoded page image.
	Data []byte

	// MIME is the image media type (image/png for rendered PDF pages).
	MIME string
}

// Splitter extracts pages from document content.
type Splitter interface {
	Split(ctx context.Context, content []byte, contentType string) ([]Page, error)
}

// Config configures a PDFSplitter.
type Config struct {
	// DPI is the render resolution for PDF pages (default 300).
	DPI int

	Logger *slog.Logger
}

// PDFSplitter renders PDF pages to PNG with pdftoppm and passes single
// images through unchanged. Page counts come from pdfcpu so a corrupt PDF
// fails fast before any rendering work.
type PDFSplitter struct {
	dpi    int
	logger *slog.Logger
}

// NewPDFSplitter creates a PDFSplitter.
func NewPDFSplitter(cfg Config) *PDFSplitter {
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFSplitter{dpi: cfg.DPI, logger: logger.With("component", "pagesource")}
}

// Split extracts ordered pages from content. Unsupported content types are
// permanent errors: retrying cannot fix a document the pipeline cannot read.
func (s *PDFSplitter) Split(ctx context.Context, content []byte, contentType string) ([]Page, error) {
	mime := normalizeContentType(contentType)
	switch {
	case strings.Contains(mime, "pdf"):
		return s.splitPDF(ctx, content)
	case strings.HasPrefix(mime, "image/"):
		return []Page{{Index: 0, Data: content, MIME: mime}}, nil
	default:
		return nil, retry.Permanent(fmt.Errorf("unsupported content type %q", contentType))
	}
}

func (s *PDFSplitter) splitPDF(ctx context.Context, content []byte) ([]Page, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pageCount, err := api.PageCount(bytes.NewReader(content), conf)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to read PDF: %w", err))
	}
	if pageCount == 0 {
		return nil, nil
	}

	tmpDir, err := os.MkdirTemp("", "tagflow-pages-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(pdfPath, content, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	pages := make([]Page, 0, pageCount)
	for n := 1; n <= pageCount; n++ {
		data, err := s.renderPage(ctx, pdfPath, tmpDir, n)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{Index: n - 1, Data: data, MIME: "image/png"})
	}

	s.logger.Debug("split PDF into pages", "pages", pageCount, "dpi", s.dpi)
	return pages, nil
}

// renderPage renders a single page with pdftoppm. Rendering pages rather
// than extracting embedded image objects keeps the output order aligned
// with page order.
func (s *PDFSplitter) renderPage(ctx context.Context, pdfPath, tmpDir string, pageNum int) ([]byte, error) {
	prefix := filepath.Join(tmpDir, fmt.Sprintf("page_%04d", pageNum))
	pageStr := strconv.Itoa(pageNum)

	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(s.dpi),
		"-singlefile",
		pdfPath,
		prefix,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed on page %d: %w (output: %s)", pageNum, err, string(output))
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not produce page %d: %w", pageNum, err)
	}
	return data, nil
}

func normalizeContentType(contentType string) string {
	mime := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = mime[:idx]
	}
	return mime
}
