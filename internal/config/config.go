// Package config holds the process-wide settings, read once from the
// environment (and an optional .env file) at start-up.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultModel            = "gpt-4.1"
	DefaultUploadFolder     = "uploads"
	DefaultMaxContentLength = 16 * 1024 * 1024
	DefaultConverterTimeout = 300 * time.Second
	DefaultPort             = "5001"
	DefaultCleanupMaxAge    = 24 * time.Hour
)

// DefaultAllowedExtensions are the upload types the converter understands.
var DefaultAllowedExtensions = []string{"pdf", "docx", "pptx", "png", "jpg", "jpeg", "gif", "tiff"}

// ErrMissingAPIKey is returned by RequireAPIKey when no credential is set.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY environment variable is required")

// Config is read-only after Load returns.
type Config struct {
	OpenAIKey     string
	OpenAIModel   string `validate:"required"`
	OpenAIBaseURL string `validate:"omitempty,url"`

	UploadFolder      string   `validate:"required"`
	MaxContentLength  int64    `validate:"gt=0"`
	AllowedExtensions []string `validate:"min=1,dive,required,alphanum"`

	// ConverterTimeout bounds a single document conversion.
	ConverterTimeout time.Duration `validate:"gt=0"`
	// TesseractPath overrides tesseract discovery; "" searches PATH.
	TesseractPath    string
	// RequireOCR makes converter start-up fail when tesseract is missing.
	RequireOCR       bool

	Host        string
	Port        string   `validate:"required,numeric"`
	CORSOrigins []string `validate:"dive,required"`
	LogLevel    string   `validate:"oneof=trace debug info warn error"`

	// CleanupMaxAge is the age past which stale uploads are swept at start-up.
	// Zero disables the sweep.
	CleanupMaxAge time.Duration `validate:"gte=0"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine; real env vars still apply
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function and validates it.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		OpenAIKey:         getenv("OPENAI_API_KEY"),
		OpenAIModel:       envOr(getenv, "OPENAI_MODEL", DefaultModel),
		OpenAIBaseURL:     getenv("OPENAI_BASE_URL"),
		UploadFolder:      envOr(getenv, "UPLOAD_FOLDER", DefaultUploadFolder),
		MaxContentLength:  DefaultMaxContentLength,
		AllowedExtensions: DefaultAllowedExtensions,
		ConverterTimeout:  DefaultConverterTimeout,
		TesseractPath:     strings.TrimSpace(getenv("TESSERACT_PATH")),
		Host:              envOr(getenv, "HOST", "0.0.0.0"),
		Port:              envOr(getenv, "PORT", DefaultPort),
		CORSOrigins:       []string{"http://localhost:3000"},
		LogLevel:          strings.ToLower(envOr(getenv, "LOG_LEVEL", "info")),
		CleanupMaxAge:     DefaultCleanupMaxAge,
	}

	if v := getenv("MAX_CONTENT_LENGTH"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_CONTENT_LENGTH %q: %w", v, err)
		}
		cfg.MaxContentLength = n
	}
	if v := getenv("DOCLING_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DOCLING_TIMEOUT %q: %w", v, err)
		}
		cfg.ConverterTimeout = time.Duration(secs) * time.Second
	}
	if v := getenv("REQUIRE_OCR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUIRE_OCR %q: %w", v, err)
		}
		cfg.RequireOCR = b
	}
	if v := getenv("CLEANUP_MAX_AGE_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CLEANUP_MAX_AGE_HOURS %q: %w", v, err)
		}
		cfg.CleanupMaxAge = time.Duration(hours) * time.Hour
	}
	if v := getenv("ALLOWED_EXTENSIONS"); v != "" {
		cfg.AllowedExtensions = splitList(v, true)
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v, false)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints. It does not require the API key; see
// RequireAPIKey.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireAPIKey fails when the AI provider credential is absent.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.OpenAIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// OpenAIConfigured reports whether a provider credential is set.
func (c *Config) OpenAIConfigured() bool {
	return c.RequireAPIKey() == nil
}

// MaxFileSizeMB is MaxContentLength expressed in MiB.
func (c *Config) MaxFileSizeMB() float64 {
	return float64(c.MaxContentLength) / (1024 * 1024)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(s string, lower bool) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, ".")
		if part == "" {
			continue
		}
		if lower {
			part = strings.ToLower(part)
		}
		out = append(out, part)
	}
	return out
}
