package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"docanalyzer/internal/apperr"
	"docanalyzer/internal/config"
	"docanalyzer/internal/extractor"
	"docanalyzer/internal/llm"
	"docanalyzer/internal/upload"

	"github.com/phuslu/log"
)

// multipartOverhead is the slack allowed on top of MAX_CONTENT_LENGTH for
// form fields and part headers.
const multipartOverhead = 1 << 20

// documentConverter is satisfied by *extractor.Converter.
type documentConverter interface {
	Parse(ctx context.Context, path string, format extractor.OutputFormat) (*extractor.ParsedDocument, error)
	IsSupportedOutputFormat(s string) bool
	SupportedOutputFormats() []extractor.OutputFormat
}

// documentAnalyzer is satisfied by *llm.Analyzer.
type documentAnalyzer interface {
	CheckLength(content, prompt string) bool
	Analyze(ctx context.Context, content, prompt string, meta *extractor.Metadata) (*llm.Result, error)
}

// Server holds the adapters built in main. Everything here is read-only
// after construction, so handlers need no locking.
type Server struct {
	cfg       *config.Config
	files     *upload.Store
	converter documentConverter
	analyzer  documentAnalyzer // nil when no API key is configured
}

func newServer(cfg *config.Config, files *upload.Store, conv documentConverter, analyzer documentAnalyzer) *Server {
	return &Server{cfg: cfg, files: files, converter: conv, analyzer: analyzer}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/config", s.handleConfig)

	// Documents
	mux.HandleFunc("GET /api/supported-formats", s.handleSupportedFormats)
	mux.HandleFunc("GET /api/output-formats", s.handleOutputFormats)
	mux.HandleFunc("POST /api/validate-file", s.handleValidateFile)
	mux.HandleFunc("POST /api/parse", s.handleParse)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)

	return corsMiddleware(s.cfg.CORSOrigins, mux)
}

// ----- Response types -----

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type parseResponse struct {
	Success  bool               `json:"success"`
	Content  string             `json:"content"`
	Metadata extractor.Metadata `json:"metadata"`
}

type analyzeMetadata struct {
	Document extractor.Metadata `json:"document"`
	Usage    llm.Usage          `json:"usage"`
	Model    string             `json:"model"`
}

type analyzeResponse struct {
	Success       bool            `json:"success"`
	Analysis      string          `json:"analysis"`
	ParsedContent string          `json:"parsed_content,omitempty"`
	Metadata      analyzeMetadata `json:"metadata"`
}

// ========== Middleware ==========

func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && (allowAll || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ========== Helpers ==========

func jsonResp(w http.ResponseWriter, v interface{}) {
	jsonStatus(w, http.StatusOK, v)
}

func jsonStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, errorResponse{Success: false, Error: msg})
}

// writeError maps a pipeline error onto its status and public message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.Status(err)
	ev := log.Warn()
	if code >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).
		Str("kind", string(apperr.KindOf(err))).
		Str("path", r.URL.Path).
		Int("status", code).
		Msg("Request failed")
	jsonErr(w, apperr.PublicMessage(err), code)
}

// cleanup removes a stored upload. Store.Delete logs failures.
func (s *Server) cleanup(path string) {
	if s.files.Delete(path) {
		log.Debug().Str("path", path).Msg("Cleaned up file")
	}
}
