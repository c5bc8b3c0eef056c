package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/maauso/pdf2audio/internal/chunker"
)

// Compile-time check that PDFExtractor implements Extractor.
var _ Extractor = (*PDFExtractor)(nil)

// PDFExtractor reads the text layer of PDF files with the pure Go parser and
// optionally falls back to the pdftotext binary when the parser fails.
// Scanned (image-only) pages have no text layer and yield nothing.
type PDFExtractor struct {
	fallback      bool
	pdftotextPath string
	logger        *slog.Logger
}

// PDFOption configures a PDFExtractor.
type PDFOption func(*PDFExtractor)

// WithPdftotextFallback enables the pdftotext fallback. If path is empty,
// "pdftotext" is looked up in PATH.
func WithPdftotextFallback(path string) PDFOption {
	return func(e *PDFExtractor) {
		if path == "" {
			path = "pdftotext"
		}
		e.fallback = true
		e.pdftotextPath = path
	}
}

// WithLogger sets the logger used for page-level warnings.
func WithLogger(logger *slog.Logger) PDFOption {
	return func(e *PDFExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewPDFExtractor creates a new PDFExtractor.
func NewPDFExtractor(opts ...PDFOption) *PDFExtractor {
	e := &PDFExtractor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the normalized text of all pages, in page order.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("%w: stat %s: %w", ErrUnreadable, path, err)
	}

	raw, err := e.readPages(ctx, path)
	if err != nil && ctx.Err() == nil && e.fallback {
		e.logger.Warn("pdf parser failed, falling back to pdftotext",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		raw, err = e.runPdftotext(ctx, path)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("extract cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
	}

	return chunker.Normalize(raw), nil
}

// readPages joins the plain text of every page with newlines.
func (e *PDFExtractor) readPages(ctx context.Context, path string) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	numPages := reader.NumPage()
	fonts := make(map[string]*pdflib.Font)
	parts := make([]string, 0, numPages)

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			parts = append(parts, "")
			continue
		}

		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}

		pageText, pageErr := page.GetPlainText(fonts)
		if pageErr != nil {
			e.logger.Warn("page has no extractable text",
				slog.String("path", path),
				slog.Int("page", i),
				slog.String("error", pageErr.Error()),
			)
			pageText = ""
		}
		parts = append(parts, pageText)
	}

	return strings.Join(parts, "\n"), nil
}

// runPdftotext extracts text with the poppler pdftotext binary.
func (e *PDFExtractor) runPdftotext(ctx context.Context, path string) (string, error) {
	// #nosec G204 - pdftotextPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.pdftotextPath, "-enc", "UTF-8", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext: %w, stderr: %s", err, stderr.String())
	}
	return stdout.String(), nil
}
