package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool    = errors.New("external tool error")
	ErrExternalService = errors.New("external service error")
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrTransient       = errors.New("transient failure")
	ErrAmbiguous       = errors.New("ambiguous match")
	ErrCircuitBreaker  = errors.New("circuit breaker tripped")
	ErrMoveFailed      = errors.New("move failed")
)

// Code identifies a user-visible failure class. Codes are stable strings
// surfaced in CLI output, scan summaries, and notifications instead of raw
// error chains.
type Code string

const (
	CodeNoWorkingAIModel Code = "no_working_ai_model"
	CodePathBinding      Code = "path_binding_unverifiable"
	CodeNoFilesFound     Code = "no_files_found"
	CodeMetadataTimeout  Code = "metadata_timeout"
	CodeAmbiguousMatch   Code = "ambiguous_match"
	CodeMoveFailed       Code = "move_failed"
	CodeConfiguration    Code = "configuration_error"
	CodeInternal         Code = "internal_error"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

type codedError struct {
	code Code
	err  error
}

func (c *codedError) Error() string { return c.err.Error() }

func (c *codedError) Unwrap() error { return c.err }

// WithCode attaches an explicit user-visible code to err, overriding the
// marker-derived classification.
func WithCode(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

// ClassifyCode maps an error chain to its user-visible code. Explicit codes
// attached via WithCode win; otherwise the sentinel marker decides.
func ClassifyCode(err error) Code {
	if err == nil {
		return ""
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	switch {
	case errors.Is(err, ErrCircuitBreaker):
		return CodeNoFilesFound
	case errors.Is(err, ErrAmbiguous):
		return CodeAmbiguousMatch
	case errors.Is(err, ErrMoveFailed):
		return CodeMoveFailed
	case errors.Is(err, ErrTimeout):
		return CodeMetadataTimeout
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return CodeConfiguration
	default:
		return CodeInternal
	}
}

// Retryable reports whether the failure is worth one more attempt. Only
// transient and timeout failures qualify; ambiguity and validation never do.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
