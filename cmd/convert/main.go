// Command convert runs the document converter over local files, or sweeps
// stale uploads from UPLOAD_FOLDER.
//
//	convert [-format markdown|json|text|html] [-out dir] file-or-dir...
//	convert -sweep 24
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docanalyzer/internal/config"
	"docanalyzer/internal/extractor"
	"docanalyzer/internal/upload"

	"github.com/phuslu/log"
)

var outputExt = map[extractor.OutputFormat]string{
	extractor.FormatMarkdown: ".md",
	extractor.FormatJSON:     ".json",
	extractor.FormatText:     ".txt",
	extractor.FormatHTML:     ".html",
}

func main() {
	format := flag.String("format", "markdown", "output format: markdown, json, text or html")
	outDir := flag.String("out", "", "write <name><ext> files here instead of stdout")
	sweep := flag.Int("sweep", 0, "delete uploads older than this many hours and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	config.SetupLogging(cfg.LogLevel)

	store, err := upload.NewStore(cfg.UploadFolder, cfg.AllowedExtensions, cfg.MaxContentLength)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open upload folder")
	}

	if *sweep > 0 {
		n := store.CleanupOlderThan(time.Duration(*sweep) * time.Hour)
		fmt.Printf("Removed %d stale file(s) from %s\n", n, store.Dir())
		return
	}

	outFormat, ok := extractor.ParseOutputFormat(*format)
	if !ok {
		log.Fatal().Str("format", *format).Msg("Unsupported output format")
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0755); err != nil {
			log.Fatal().Err(err).Msg("Failed to create output directory")
		}
	}

	conv, err := extractor.NewConverter(extractor.Options{
		Timeout:       cfg.ConverterTimeout,
		TesseractPath: cfg.TesseractPath,
		RequireOCR:    cfg.RequireOCR,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init document converter")
	}

	start := time.Now()
	done, failed := 0, 0
	for _, path := range collectFiles(conv, flag.Args()) {
		fmt.Fprintf(os.Stderr, "Processing %s...\n", filepath.Base(path))

		f, err := upload.FromPath(path)
		if err == nil {
			err = store.Validate(f)
		}
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Skipping file")
			failed++
			continue
		}

		pd, err := conv.Parse(context.Background(), path, outFormat)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to convert")
			failed++
			continue
		}

		if err := emit(*outDir, path, outFormat, pd); err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to write output")
			failed++
			continue
		}
		report(os.Stderr, store, path, pd)
		done++
	}

	fmt.Fprintf(os.Stderr, "Finished in %v: %d converted, %d failed.\n", time.Since(start).Round(time.Millisecond), done, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// collectFiles expands directory arguments one level deep. Files found in a
// directory are kept only when the converter has a reader for them;
// explicit file arguments are always kept so they are reported.
func collectFiles(conv *extractor.Converter, args []string) []string {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			log.Error().Err(err).Str("dir", arg).Msg("Failed to read directory")
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && conv.IsSupportedFile(e.Name()) {
				out = append(out, filepath.Join(arg, e.Name()))
			}
		}
	}
	return out
}

func report(w io.Writer, store *upload.Store, path string, pd *extractor.ParsedDocument) {
	size := pd.Metadata.FileSize
	if info, ok := store.Info(path); ok {
		size = info.Size
	}
	fmt.Fprintf(w, "Converted %s (%d bytes): %d page(s), %d table(s), %d image(s)\n",
		filepath.Base(path), size, pd.Metadata.PageCount, pd.Metadata.TablesCount, pd.Metadata.ImagesCount)
}

func emit(outDir, src string, format extractor.OutputFormat, pd *extractor.ParsedDocument) error {
	if outDir == "" {
		_, err := fmt.Println(pd.Content)
		return err
	}
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return os.WriteFile(filepath.Join(outDir, stem+outputExt[format]), []byte(pd.Content+"\n"), 0644)
}
