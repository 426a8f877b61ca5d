package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/phuslu/log"
)

// ocrEngine runs the tesseract CLI on raster images. A zero value (no
// binary) reports itself unavailable.
type ocrEngine struct {
	bin      string
	tessdata string // TESSDATA_PREFIX override, "" to use tesseract's default
	lang     string
}

// detectTesseract locates a tesseract binary. An explicit path wins, then
// PATH, then common Windows install directories.
func detectTesseract(explicit string) (*ocrEngine, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, fmt.Errorf("tesseract not found at %s: %w", explicit, err)
		}
		return newOCREngine(explicit), nil
	}

	if path, err := exec.LookPath("tesseract"); err == nil {
		log.Info().Str("path", path).Msg("Tesseract found on PATH")
		return newOCREngine(path), nil
	}

	if runtime.GOOS == "windows" {
		candidates := []string{
			`C:\Program Files\Tesseract-OCR\tesseract.exe`,
			`C:\Program Files (x86)\Tesseract-OCR\tesseract.exe`,
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Programs", "Tesseract-OCR", "tesseract.exe"),
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				log.Info().Str("path", c).Msg("Tesseract found")
				return newOCREngine(c), nil
			}
		}
	}

	log.Warn().Msg("Tesseract OCR not found (install tesseract for image document support)")
	return &ocrEngine{}, nil
}

func newOCREngine(bin string) *ocrEngine {
	e := &ocrEngine{bin: bin, lang: "eng"}
	// Bundled installs keep traineddata next to the binary.
	tessdata := filepath.Join(filepath.Dir(bin), "tessdata")
	if _, err := os.Stat(filepath.Join(tessdata, "eng.traineddata")); err == nil {
		e.tessdata = tessdata
	}
	return e
}

func (e *ocrEngine) available() bool { return e != nil && e.bin != "" }

// recognize returns the text tesseract reads from a single image file.
func (e *ocrEngine) recognize(ctx context.Context, imagePath string) (string, error) {
	if !e.available() {
		return "", fmt.Errorf("OCR engine not available for image documents (install tesseract)")
	}

	cmd := exec.CommandContext(ctx, e.bin, imagePath, "stdout", "-l", e.lang, "--psm", "3")
	cmd.Env = append(os.Environ(), "OMP_THREAD_LIMIT=1")
	if e.tessdata != "" {
		cmd.Env = append(cmd.Env, "TESSDATA_PREFIX="+e.tessdata)
	}
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("tesseract: %v (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return out.String(), nil
}

// readImage OCRs a raster image into a single page holding the recognised
// paragraphs followed by the image itself.
func (e *ocrEngine) readImage(ctx context.Context, path string) (*Document, error) {
	text, err := e.recognize(ctx, path)
	if err != nil {
		return nil, err
	}

	page := Page{Number: 1}
	for _, para := range splitParagraphs(text) {
		page.Blocks = append(page.Blocks, Block{Kind: BlockParagraph, Text: para})
	}
	page.Blocks = append(page.Blocks, Block{Kind: BlockImage})

	log.Info().Str("file", filepath.Base(path)).Int("paragraphs", len(page.Blocks)-1).Msg("OCR complete")
	return &Document{
		Name:   filepath.Base(path),
		Source: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Pages:  []Page{page},
	}, nil
}

// recognizePDF renders every page of a PDF to PNG with pdftoppm (Poppler),
// falling back to magick (ImageMagick), and OCRs each image. The result
// holds one entry per rendered page in page order.
func (e *ocrEngine) recognizePDF(ctx context.Context, pdfPath string) ([]string, error) {
	if !e.available() {
		return nil, fmt.Errorf("OCR engine not available for scanned PDFs (install tesseract)")
	}

	tmpDir, err := os.MkdirTemp("", "docanalyzer-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	images, err := rasterizePDF(ctx, pdfPath, filepath.Join(tmpDir, "page"))
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(images))
	for i, img := range images {
		text, err := e.recognize(ctx, img)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Int("page", i+1).Str("file", filepath.Base(pdfPath)).Msg("Tesseract failed on page")
			continue
		}
		texts[i] = text
	}
	return texts, nil
}

// rasterizePDF writes <prefix>-N.png per page and returns the files sorted
// by page.
func rasterizePDF(ctx context.Context, pdfPath, prefix string) ([]string, error) {
	var convertErr error
	converted := false

	if bin, err := exec.LookPath("pdftoppm"); err == nil {
		if convertErr = runQuiet(ctx, bin, "-png", "-r", "200", pdfPath, prefix); convertErr == nil {
			converted = true
		}
	}
	if !converted {
		if bin, err := exec.LookPath("magick"); err == nil {
			if convertErr = runQuiet(ctx, bin, "convert", "-density", "200", pdfPath, prefix+"-%03d.png"); convertErr == nil {
				converted = true
			}
		}
	}
	if !converted {
		if convertErr != nil {
			return nil, fmt.Errorf("cannot convert PDF to images: %w", convertErr)
		}
		return nil, fmt.Errorf("cannot convert PDF to images: install Poppler (pdftoppm) or ImageMagick (magick)")
	}

	images, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(images) == 0 {
		return nil, fmt.Errorf("no page images generated from PDF")
	}
	sortByPageNumber(images)
	return images, nil
}

func runQuiet(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %v (stderr: %s)", filepath.Base(bin), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

var pageNumRe = regexp.MustCompile(`(\d+)\.png$`)

// sortByPageNumber orders page-2.png before page-10.png.
func sortByPageNumber(files []string) {
	num := func(path string) int {
		m := pageNumRe.FindStringSubmatch(path)
		if m == nil {
			return 0
		}
		n, _ := strconv.Atoi(m[1])
		return n
	}
	sort.SliceStable(files, func(i, j int) bool { return num(files[i]) < num(files[j]) })
}
