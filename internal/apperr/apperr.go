// Package apperr defines the error categories surfaced by the request
// pipeline and how each maps onto an HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind string

const (
	KindFile       Kind = "file_error"
	KindConversion Kind = "conversion_error"
	KindAnalysis   Kind = "analysis_error"
	KindValidation Kind = "validation_error"
	KindUnexpected Kind = "unexpected_error"
)

// Error is a categorized error. Message is safe to show to clients;
// Err carries the underlying cause for logs and errors.Is/As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// File reports a missing, invalid, oversized or unsaveable upload.
func File(format string, args ...any) *Error {
	return newf(KindFile, nil, format, args...)
}

// WrapFile is File with an underlying cause.
func WrapFile(cause error, format string, args ...any) *Error {
	return newf(KindFile, cause, format, args...)
}

// Conversion reports a document that could not be read or exported.
func Conversion(format string, args ...any) *Error {
	return newf(KindConversion, nil, format, args...)
}

// WrapConversion is Conversion with an underlying cause.
func WrapConversion(cause error, format string, args ...any) *Error {
	return newf(KindConversion, cause, format, args...)
}

// Analysis reports a provider failure or missing credential.
func Analysis(format string, args ...any) *Error {
	return newf(KindAnalysis, nil, format, args...)
}

// WrapAnalysis is Analysis with an underlying cause.
func WrapAnalysis(cause error, format string, args ...any) *Error {
	return newf(KindAnalysis, cause, format, args...)
}

// Validation reports a malformed request (missing prompt, bad format...).
func Validation(format string, args ...any) *Error {
	return newf(KindValidation, nil, format, args...)
}

// KindOf returns the category of err, or KindUnexpected when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps an error onto the HTTP status returned to the client.
func Status(err error) int {
	switch KindOf(err) {
	case KindFile, KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text placed in the `error` field of a failure body.
// Unexpected errors never leak their cause.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "An unexpected error occurred. Please try again."
	}
	msg := e.Message
	if e.Err != nil {
		msg = e.Error()
	}
	switch e.Kind {
	case KindConversion:
		return "Document parsing failed: " + msg
	case KindAnalysis:
		return "AI analysis failed: " + msg
	case KindUnexpected:
		return "An unexpected error occurred. Please try again."
	default:
		return e.Message
	}
}
