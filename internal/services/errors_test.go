package services_test

import (
	"errors"
	"strings"
	"testing"

	"deadwax/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalService, "resolve", "search", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"resolve", "search", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := services.Wrap(nil, "probe", "inspect", "flaky read", errors.New("io"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestClassifyCodeFromMarker(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		expect services.Code
	}{
		{"ambiguous", services.Wrap(services.ErrAmbiguous, "dedupe", "gate", "no rule held", nil), services.CodeAmbiguousMatch},
		{"breaker", services.Wrap(services.ErrCircuitBreaker, "scanner", "run", "10 empty artists", nil), services.CodeNoFilesFound},
		{"timeout", services.Wrap(services.ErrTimeout, "resolve", "wait", "queue expiry", nil), services.CodeMetadataTimeout},
		{"move", services.Wrap(services.ErrMoveFailed, "remediation", "move", "busy", nil), services.CodeMoveFailed},
		{"config", services.Wrap(services.ErrConfiguration, "config", "load", "bad path", nil), services.CodeConfiguration},
		{"unknown", errors.New("plain"), services.CodeInternal},
	}
	for _, tc := range cases {
		if got := services.ClassifyCode(tc.err); got != tc.expect {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.expect, got)
		}
	}
	if got := services.ClassifyCode(nil); got != "" {
		t.Errorf("expected empty code for nil error, got %s", got)
	}
}

func TestWithCodeOverridesMarker(t *testing.T) {
	err := services.WithCode(services.CodeNoWorkingAIModel, services.Wrap(services.ErrExternalService, "llm", "complete", "all attempts failed", nil))
	if got := services.ClassifyCode(err); got != services.CodeNoWorkingAIModel {
		t.Fatalf("expected explicit code to win, got %s", got)
	}
	if services.WithCode(services.CodeInternal, nil) != nil {
		t.Fatal("expected nil passthrough")
	}
}

func TestRetryable(t *testing.T) {
	if !services.Retryable(services.Wrap(services.ErrTransient, "probe", "read", "hiccup", nil)) {
		t.Fatal("transient should be retryable")
	}
	if !services.Retryable(services.Wrap(services.ErrTimeout, "resolve", "wait", "expired", nil)) {
		t.Fatal("timeout should be retryable")
	}
	if services.Retryable(services.Wrap(services.ErrAmbiguous, "dedupe", "gate", "skip", nil)) {
		t.Fatal("ambiguous must never be retryable")
	}
}
