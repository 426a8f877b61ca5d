package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docanalyzer/internal/apperr"
	"docanalyzer/internal/extractor"
	"docanalyzer/internal/upload"

	"github.com/phuslu/log"
)

// ========== Format Listing Endpoints ==========

func (s *Server) handleSupportedFormats(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, map[string]interface{}{
		"success":          true,
		"formats":          s.files.AllowedExtensions(),
		"max_file_size_mb": s.cfg.MaxFileSizeMB(),
	})
}

func (s *Server) handleOutputFormats(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, map[string]interface{}{
		"success":        true,
		"output_formats": s.converter.SupportedOutputFormats(),
	})
}

// ========== Upload Endpoints ==========

func (s *Server) handleValidateFile(w http.ResponseWriter, r *http.Request) {
	f, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if err := s.files.Validate(f); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, map[string]interface{}{
		"success": true,
		"message": "File is valid",
	})
}

// handleParse converts a document without analysis.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	f, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	format, err := s.outputFormat(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	path, err := s.files.Save(f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer s.cleanup(path)

	log.Info().Str("file", upload.SafeName(f.Name)).Str("format", string(format)).Msg("Parsing document")
	pd, err := s.converter.Parse(r.Context(), path, format)
	if err != nil {
		writeError(w, r, err)
		return
	}

	jsonResp(w, parseResponse{Success: true, Content: pd.Content, Metadata: pd.Metadata})
}

// handleAnalyze runs validate, save, convert, length check and analysis.
// The stored file is removed on every path once saved.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	f, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	prompts, present := r.MultipartForm.Value["prompt"]
	if !present || len(prompts) == 0 {
		writeError(w, r, apperr.Validation("No prompt provided"))
		return
	}
	prompt := strings.TrimSpace(prompts[0])
	if prompt == "" {
		writeError(w, r, apperr.Validation("Prompt cannot be empty"))
		return
	}

	format, err := s.outputFormat(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	includeContent, _ := strconv.ParseBool(r.FormValue("include_content"))

	if s.analyzer == nil {
		writeError(w, r, apperr.Analysis("OpenAI API key is not configured"))
		return
	}

	path, err := s.files.Save(f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer s.cleanup(path)

	log.Info().Str("file", upload.SafeName(f.Name)).Str("format", string(format)).Msg("Parsing document")
	pd, err := s.converter.Parse(r.Context(), path, format)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !s.analyzer.CheckLength(pd.Content, prompt) {
		writeError(w, r, apperr.Validation("Document is too large for analysis. Please try with a smaller document."))
		return
	}

	log.Info().Str("file", upload.SafeName(f.Name)).Msg("Analyzing document with OpenAI")
	res, err := s.analyzer.Analyze(r.Context(), pd.Content, prompt, &pd.Metadata)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := analyzeResponse{
		Success:  true,
		Analysis: res.Response,
		Metadata: analyzeMetadata{
			Document: pd.Metadata,
			Usage:    res.Usage,
			Model:    res.Usage.ModelUsed,
		},
	}
	if includeContent {
		resp.ParsedContent = pd.Content
	}

	log.Info().
		Str("file", upload.SafeName(f.Name)).
		Int("total_tokens", res.Usage.TotalTokens).
		Dur("elapsed", time.Since(start)).
		Msg("Document analysis completed successfully")
	jsonResp(w, resp)
}

// ========== Helpers ==========

// readUpload parses the multipart body and returns the "file" part. On
// failure it has already written the response.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload.File, bool) {
	limit := s.cfg.MaxContentLength + multipartOverhead
	if r.ContentLength > limit {
		s.writeTooLarge(w)
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeTooLarge(w)
			return nil, false
		}
		// Not multipart, or no body at all.
		writeError(w, r, apperr.File("No file provided"))
		return nil, false
	}

	parts := r.MultipartForm.File["file"]
	if len(parts) == 0 {
		writeError(w, r, apperr.File("No file provided"))
		return nil, false
	}
	return upload.FromHeader(parts[0]), true
}

func (s *Server) writeTooLarge(w http.ResponseWriter) {
	jsonErr(w, apperr.PublicMessage(s.files.TooLarge()), http.StatusRequestEntityTooLarge)
}

// outputFormat validates the optional output_format field. An absent field
// selects markdown.
func (s *Server) outputFormat(r *http.Request) (extractor.OutputFormat, error) {
	v := strings.TrimSpace(r.FormValue("output_format"))
	if !s.converter.IsSupportedOutputFormat(v) {
		names := make([]string, 0, 4)
		for _, f := range s.converter.SupportedOutputFormats() {
			names = append(names, string(f))
		}
		return "", apperr.Validation("Unsupported output format: %s. Supported formats: %s", v, strings.Join(names, ", "))
	}
	if v == "" {
		return extractor.FormatMarkdown, nil
	}
	return extractor.OutputFormat(v), nil
}
