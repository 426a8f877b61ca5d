package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// ========== Status ==========

func TestStatus_ClientErrors(t *testing.T) {
	for _, err := range []error{File("File is empty"), Validation("No prompt provided")} {
		if got := Status(err); got != http.StatusBadRequest {
			t.Errorf("Status(%v) = %d, want 400", err, got)
		}
	}
}

func TestStatus_ServerErrors(t *testing.T) {
	for _, err := range []error{
		Conversion("bad pdf"),
		Analysis("no choices"),
		errors.New("boom"),
	} {
		if got := Status(err); got != http.StatusInternalServerError {
			t.Errorf("Status(%v) = %d, want 500", err, got)
		}
	}
}

func TestStatus_WrappedError(t *testing.T) {
	err := fmt.Errorf("handler: %w", File("File is empty"))
	if got := Status(err); got != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400 through fmt wrapping", got)
	}
}

// ========== PublicMessage ==========

func TestPublicMessage_Prefixes(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{Validation("No prompt provided"), "No prompt provided"},
		{File("File is empty"), "File is empty"},
		{Conversion("No content extracted from document"), "Document parsing failed: No content extracted from document"},
		{Analysis("No response received from OpenAI"), "AI analysis failed: No response received from OpenAI"},
		{errors.New("secret detail"), "An unexpected error occurred. Please try again."},
	}
	for _, tt := range tests {
		if got := PublicMessage(tt.err); got != tt.want {
			t.Errorf("PublicMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestPublicMessage_IncludesCause(t *testing.T) {
	err := WrapConversion(errors.New("xref table broken"), "Failed to parse document")
	want := "Document parsing failed: Failed to parse document: xref table broken"
	if got := PublicMessage(err); got != want {
		t.Errorf("PublicMessage = %q, want %q", got, want)
	}
}

// ========== Unwrap ==========

func TestUnwrap_PreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapFile(cause, "Failed to save file")
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !Is(err, KindFile) {
		t.Error("expected KindFile")
	}
	if Is(nil, KindFile) {
		t.Error("nil error must not match any kind")
	}
}
