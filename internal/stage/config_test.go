package stage

import (
	"encoding/json"
	"errors"
	"testing"

	"slidewright/internal/services"
)

type sampleOptions struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

func TestDecodeConfigKeepsDefaultsForEmpty(t *testing.T) {
	opts := sampleOptions{Model: "default"}
	for _, raw := range []string{"", "  ", "null"} {
		if err := DecodeConfig("analyze", json.RawMessage(raw), &opts); err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
	}
	if opts.Model != "default" {
		t.Fatalf("defaults overwritten: %+v", opts)
	}
}

func TestDecodeConfigOverrides(t *testing.T) {
	opts := sampleOptions{Model: "default", Temperature: 0.3}
	if err := DecodeConfig("analyze", json.RawMessage(`{"model":"gpt-4"}`), &opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Model != "gpt-4" || opts.Temperature != 0.3 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestDecodeConfigRejectsUnknownFields(t *testing.T) {
	var opts sampleOptions
	err := DecodeConfig("analyze", json.RawMessage(`{"modle":"x"}`), &opts)
	if !errors.Is(err, services.ErrInvalidConfig) {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}
}

func TestProgressReportNil(t *testing.T) {
	var fn ProgressFunc
	fn.Report(50)

	got := -1
	fn = func(p int) { got = p }
	fn.Report(40)
	if got != 40 {
		t.Fatalf("expected 40, got %d", got)
	}
}
