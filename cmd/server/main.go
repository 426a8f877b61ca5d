package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docanalyzer/internal/config"
	"docanalyzer/internal/extractor"
	"docanalyzer/internal/llm"
	"docanalyzer/internal/upload"

	"github.com/phuslu/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	config.SetupLogging(cfg.LogLevel)

	files, err := upload.NewStore(cfg.UploadFolder, cfg.AllowedExtensions, cfg.MaxContentLength)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init upload store")
	}
	if cfg.CleanupMaxAge > 0 {
		files.CleanupOlderThan(cfg.CleanupMaxAge)
	}

	conv, err := extractor.NewConverter(extractor.Options{
		Timeout:       cfg.ConverterTimeout,
		TesseractPath: cfg.TesseractPath,
		RequireOCR:    cfg.RequireOCR,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init document converter")
	}

	// Without a key the server still converts documents; /api/config
	// reports partially_configured and /api/analyze fails.
	var analyzer documentAnalyzer
	if !cfg.OpenAIConfigured() {
		log.Warn().Err(config.ErrMissingAPIKey).Msg("AI analysis disabled")
	} else {
		a, err := llm.NewAnalyzer(cfg.OpenAIKey, cfg.OpenAIModel, llm.WithBaseURL(cfg.OpenAIBaseURL))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to init OpenAI analyzer")
		}
		analyzer = a
	}

	srv := newServer(cfg, files, conv, analyzer)
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("model", cfg.OpenAIModel).
			Float64("max_file_size_mb", cfg.MaxFileSizeMB()).
			Bool("ocr", conv.OCRAvailable()).
			Msg("Document Parser API starting")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
