// Package extractor converts uploaded documents (PDF, DOCX, PPTX and raster
// images) into markdown, JSON, plain text or HTML.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docanalyzer/internal/apperr"

	"github.com/phuslu/log"
)

// Options configures a Converter.
type Options struct {
	// Timeout bounds one Parse call. Zero means no limit beyond ctx.
	Timeout time.Duration
	// TesseractPath overrides tesseract discovery.
	TesseractPath string
	// RequireOCR makes NewConverter fail when no OCR engine is found.
	RequireOCR bool
}

type readFunc func(ctx context.Context, path string) (*Document, error)

// Converter turns a file on disk into a ParsedDocument. It is safe for
// concurrent use; it holds no per-request state.
type Converter struct {
	timeout  time.Duration
	ocr      *ocrEngine
	exporter *exporter
	readers  map[string]readFunc
}

// NewConverter initialises the readers once. A failure here is fatal to
// the adapter; callers should not retry.
func NewConverter(opts Options) (*Converter, error) {
	ocr, err := detectTesseract(opts.TesseractPath)
	if err != nil {
		return nil, apperr.WrapConversion(err, "Failed to initialize parser")
	}
	if opts.RequireOCR && !ocr.available() {
		return nil, apperr.Conversion("Failed to initialize parser: tesseract is required but was not found")
	}

	c := &Converter{
		timeout:  opts.Timeout,
		ocr:      ocr,
		exporter: newExporter(),
	}
	c.readers = map[string]readFunc{
		".pdf":  func(ctx context.Context, p string) (*Document, error) { return readPDF(ctx, p, c.ocr) },
		".docx": func(_ context.Context, p string) (*Document, error) { return readDOCX(p) },
		".pptx": func(_ context.Context, p string) (*Document, error) { return readPPTX(p) },
		".png":  c.ocr.readImage,
		".jpg":  c.ocr.readImage,
		".jpeg": c.ocr.readImage,
		".gif":  c.ocr.readImage,
		".tiff": c.ocr.readImage,
		".tif":  c.ocr.readImage,
	}
	log.Info().Bool("ocr", ocr.available()).Msg("Document converter initialized successfully")
	return c, nil
}

// SupportedOutputFormats lists the formats Parse accepts.
func (c *Converter) SupportedOutputFormats() []OutputFormat {
	return SupportedOutputFormats()
}

// IsSupportedOutputFormat reports whether s names an export format. The
// empty string is accepted and selects markdown.
func (c *Converter) IsSupportedOutputFormat(s string) bool {
	_, ok := ParseOutputFormat(s)
	return ok
}

// IsSupportedFile reports whether the file extension has a reader.
func (c *Converter) IsSupportedFile(path string) bool {
	_, ok := c.readers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// OCRAvailable reports whether image documents can be converted.
func (c *Converter) OCRAvailable() bool { return c.ocr.available() }

// Parse reads path and exports it in format. Every failure is an
// *apperr.Error of kind KindConversion.
func (c *Converter) Parse(ctx context.Context, path string, format OutputFormat) (pd *ParsedDocument, err error) {
	f, ok := ParseOutputFormat(string(format))
	if !ok {
		return nil, apperr.Conversion("Unsupported output format: %s", format)
	}
	format = f

	info, statErr := os.Stat(path)
	if statErr != nil || info.IsDir() {
		return nil, apperr.Conversion("File not found: %s", filepath.Base(path))
	}

	ext := strings.ToLower(filepath.Ext(path))
	read, ok := c.readers[ext]
	if !ok {
		return nil, apperr.Conversion("Unsupported document type: %s", ext)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// Third-party readers panic on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("file", filepath.Base(path)).Interface("panic", r).Msg("Document reader panicked")
			pd, err = nil, apperr.WrapConversion(fmt.Errorf("%v", r), "Failed to parse document")
		}
	}()

	start := time.Now()
	doc, err := read(ctx, path)
	if err != nil {
		log.Error().Err(err).Str("file", filepath.Base(path)).Msg("Document parsing failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.WrapConversion(err, "Document conversion timed out after %s", c.timeout)
		}
		return nil, apperr.WrapConversion(err, "Failed to parse document")
	}
	if doc == nil || len(doc.Pages) == 0 {
		return nil, apperr.Conversion("No content extracted from document")
	}

	content, err := c.exporter.export(doc, format)
	if err != nil {
		return nil, apperr.WrapConversion(err, "Failed to export document in %s format", format)
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Conversion("No content extracted from document")
	}

	meta := Metadata{
		Title:        doc.Title,
		PageCount:    len(doc.Pages),
		FileSize:     info.Size(),
		FileType:     ext,
		TablesCount:  doc.TablesCount(),
		ImagesCount:  doc.ImagesCount(),
		OutputFormat: format,
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	log.Info().
		Str("file", filepath.Base(path)).
		Str("format", string(format)).
		Int("pages", meta.PageCount).
		Int("tables", meta.TablesCount).
		Int("images", meta.ImagesCount).
		Dur("elapsed", time.Since(start)).
		Msg("Document converted")

	return &ParsedDocument{Content: content, Metadata: meta}, nil
}
