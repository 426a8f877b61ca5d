package main

import (
	"net/http"
)

// ========== Health & Configuration Endpoints ==========

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, map[string]string{
		"status":  "healthy",
		"message": "Document Parser API is running",
	})
}

type configStatus struct {
	OpenAIConfigured   bool     `json:"openai_configured"`
	UploadFolderExists bool     `json:"upload_folder_exists"`
	Model              string   `json:"model"`
	MaxFileSizeMB      float64  `json:"max_file_size_mb"`
	SupportedFormats   []string `json:"supported_formats"`
}

// handleConfig answers 206 while the analysis adapter is disabled.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cs := configStatus{
		OpenAIConfigured:   s.analyzer != nil,
		UploadFolderExists: s.files.DirExists(),
		Model:              s.cfg.OpenAIModel,
		MaxFileSizeMB:      s.cfg.MaxFileSizeMB(),
		SupportedFormats:   s.files.AllowedExtensions(),
	}

	status, code := "configured", http.StatusOK
	if !cs.OpenAIConfigured {
		status, code = "partially_configured", http.StatusPartialContent
	}
	jsonStatus(w, code, map[string]interface{}{
		"status": status,
		"config": cs,
	})
}
