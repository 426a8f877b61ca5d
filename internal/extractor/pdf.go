package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/phuslu/log"
)

// pdfStructure is what pdfcpu reports about a PDF besides its text.
type pdfStructure struct {
	title  string
	images map[int]int // page number -> image XObjects on that page
}

// readPDF extracts page text with ledongthuc/pdf and page structure
// (count, title, images) with pdfcpu. Pages without text still appear
// when they carry images. A PDF with no text on any page is OCR'd when
// ocr is available.
func readPDF(ctx context.Context, path string, ocr *ocrEngine) (*Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	numPages := r.NumPage()
	st, err := inspectPDF(path)
	if err != nil {
		// pdfcpu is stricter than the text reader; keep going without images.
		log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("pdfcpu could not read structure")
		st = &pdfStructure{}
	}

	doc := &Document{
		Name:   filepath.Base(path),
		Title:  st.title,
		Source: "pdf",
	}

	for pageIndex := 1; pageIndex <= numPages; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}

		page := Page{Number: pageIndex}
		text, err := p.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		for _, para := range splitParagraphs(text) {
			page.Blocks = append(page.Blocks, Block{Kind: BlockParagraph, Text: para})
		}
		for i := 0; i < st.images[pageIndex]; i++ {
			page.Blocks = append(page.Blocks, Block{Kind: BlockImage})
		}
		doc.Pages = append(doc.Pages, page)
	}

	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("no pages found in %s", doc.Name)
	}

	if !hasText(doc) && ocr.available() {
		if err := ocrScannedPages(ctx, ocr, path, doc); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("file", doc.Name).Msg("OCR fallback failed for scanned PDF")
		}
	}
	return doc, nil
}

func hasText(doc *Document) bool {
	for _, p := range doc.Pages {
		for _, b := range p.Blocks {
			if b.Kind != BlockImage && (strings.TrimSpace(b.Text) != "" || len(b.Rows) > 0) {
				return true
			}
		}
	}
	return false
}

// ocrScannedPages rasterises the PDF and prepends the recognised
// paragraphs of page image i to page i+1.
func ocrScannedPages(ctx context.Context, ocr *ocrEngine, path string, doc *Document) error {
	texts, err := ocr.recognizePDF(ctx, path)
	if err != nil {
		return err
	}

	byNumber := make(map[int]*Page, len(doc.Pages))
	for i := range doc.Pages {
		byNumber[doc.Pages[i].Number] = &doc.Pages[i]
	}

	recognised := 0
	for i, text := range texts {
		paras := splitParagraphs(text)
		if len(paras) == 0 {
			continue
		}
		page, ok := byNumber[i+1]
		if !ok {
			continue
		}
		blocks := make([]Block, 0, len(paras)+len(page.Blocks))
		for _, para := range paras {
			blocks = append(blocks, Block{Kind: BlockParagraph, Text: para})
		}
		page.Blocks = append(blocks, page.Blocks...)
		recognised++
	}
	if recognised == 0 {
		return fmt.Errorf("tesseract extracted no text from %s", doc.Name)
	}
	log.Info().Str("file", doc.Name).Int("pages", recognised).Msg("Scanned PDF OCR complete")
	return nil
}

// inspectPDF reads the info-dict title and per-page image
// XObjects with pdfcpu.
func inspectPDF(path string) (*pdfStructure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	st := &pdfStructure{
		title:  strings.TrimSpace(pctx.Title),
		images: make(map[int]int),
	}
	if pctx.Optimize != nil {
		for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
			if n := len(pdfcpu.ImageObjNrs(pctx, pageNr)); n > 0 {
				st.images[pageNr] = n
			}
		}
	}
	return st, nil
}

// splitParagraphs splits extracted text on blank lines.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
