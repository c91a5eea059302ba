package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"slidewright/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalService, "analyze", "summary", "llm call failed", base)
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
	for _, fragment := range []string{"analyze", "summary", "llm call failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindMapping(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		kind      services.Kind
		retryable bool
	}{
		{"unsupported", services.Wrap(services.ErrUnsupportedFormat, "extract", "open", "not a pdf", nil), services.KindUnsupportedFormat, false},
		{"corrupt", services.Wrap(services.ErrCorruptInput, "extract", "parse", "bad xref", nil), services.KindCorruptInput, false},
		{"external", services.Wrap(services.ErrExternalService, "analyze", "summary", "", errors.New("502")), services.KindExternalService, true},
		{"config", services.Wrap(services.ErrInvalidConfig, "analyze", "options", "bad style", nil), services.KindInvalidConfig, false},
		{"template", services.Wrap(services.ErrTemplateNotFound, "render", "template", "nope", nil), services.KindTemplateNotFound, false},
		{"render", services.Wrap(services.ErrRender, "render", "write", "disk full", nil), services.KindRender, false},
		{"timeout", services.Wrap(services.ErrTimeout, "analyze", "summary", "", nil), services.KindTimeout, true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), services.KindTimeout, true},
		{"plain", errors.New("mystery"), services.KindUnknown, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if kind := services.KindOf(tc.err); kind != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, kind)
			}
			if retry := services.Retryable(tc.err); retry != tc.retryable {
				t.Fatalf("expected retryable=%v, got %v", tc.retryable, retry)
			}
		})
	}
}

func TestDetailsCarriesStageAndHint(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := fmt.Errorf("execute: %w", services.Wrap(services.ErrCorruptInput, "extract", "read", "truncated file", cause))
	details := services.Details(err)
	if details.Kind != services.KindCorruptInput {
		t.Fatalf("unexpected kind %s", details.Kind)
	}
	if details.Stage != "extract" || details.Operation != "read" {
		t.Fatalf("unexpected stage/operation %q/%q", details.Stage, details.Operation)
	}
	if details.Message != "truncated file" {
		t.Fatalf("unexpected message %q", details.Message)
	}
	if details.Cause != cause {
		t.Fatalf("expected cause to be preserved, got %v", details.Cause)
	}
	if details.Hint == "" {
		t.Fatal("expected hint for classified error")
	}
}
