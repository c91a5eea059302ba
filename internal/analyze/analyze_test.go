package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"slidewright/internal/cache"
	"slidewright/internal/logging"
	"slidewright/internal/services"
	"slidewright/internal/services/llm"
	"slidewright/internal/stage"
	"slidewright/internal/store"
	"slidewright/internal/testsupport"
)

type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	requests  []llm.Request
	err       error
}

func (s *scriptedLLM) CompleteJSON(_ context.Context, req llm.Request) (llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return llm.Completion{}, s.err
	}
	if len(s.responses) == 0 {
		return llm.Completion{}, errors.New("no scripted response")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	model := req.Model
	if model == "" {
		model = "default-model"
	}
	return llm.Completion{Content: next, Model: model}, nil
}

func (s *scriptedLLM) HealthCheck() error { return nil }

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func happyResponses() []string {
	return []string{
		`{"summary":"  The paper introduces a new attention model.  "}`,
		"```json\n" + `{"key_points":[
			{"content":"Attention replaces recurrence entirely.","category":"Finding","importance":9,"source_section":"Introduction"},
			{"content":"attention replaces recurrence entirely!","category":"finding","importance":8},
			{"content":"Training takes twelve hours on eight GPUs.","importance":42},
			{"content":"   "}
		]}` + "\n```",
		`[
			{"title":"Background","bullets":["RNNs are slow"," ",""],"layout":"CONTENT"},
			{"title":"Method","bullets":["Multi-head attention"],"notes":"explain heads","layout":"weird"},
			{"title":"Results","bullets":["BLEU 28.4"]},
			{"title":"","bullets":[]}
		]`,
	}
}

func newRequest(config string) stage.Request {
	return stage.Request{
		Document:   &store.Document{ID: "doc-1", Title: "paper"},
		TaskID:     "task-1",
		ArtifactID: "art-1",
		Config:     json.RawMessage(config),
		Extraction: &store.Extraction{
			Title:    "Attention Is Useful",
			Text:     "Abstract\nWe propose attention.\fConclusion\nIt works.",
			Sections: []store.Section{{Heading: "Abstract", Level: 1}, {Heading: "Conclusion", Level: 1}},
			Metadata: store.Metadata{Author: "A. Author"},
		},
	}
}

func TestExecuteProducesAnalysis(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := &scriptedLLM{responses: happyResponses()}
	exec := New(cfg, fake, nil, logging.NewNop())

	var progress []int
	artifact, err := exec.Execute(context.Background(), newRequest(`{"model":"gpt-4","max_slides":3}`), func(p int) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if artifact.Kind != store.ArtifactAnalysis || artifact.ID != "art-1" || artifact.TaskID != "task-1" {
		t.Fatalf("unexpected artifact header %+v", artifact)
	}
	if got := fmt.Sprint(progress); got != "[10 40 70 95]" {
		t.Fatalf("unexpected progress sequence %v", progress)
	}

	a := artifact.Analysis
	if a.Summary != "The paper introduces a new attention model." || a.Model != "gpt-4" || a.SummaryStyle != "academic" {
		t.Fatalf("unexpected analysis %+v", a)
	}
	for _, req := range fake.requests {
		if req.Model != "gpt-4" || req.Temperature != cfg.Analysis.Temperature {
			t.Fatalf("request did not carry options: %+v", req)
		}
	}

	if len(a.KeyPoints) != 2 {
		t.Fatalf("expected duplicate and empty key points dropped, got %+v", a.KeyPoints)
	}
	if a.KeyPoints[0].Category != "finding" || a.KeyPoints[0].Importance != 9 {
		t.Fatalf("unexpected first key point %+v", a.KeyPoints[0])
	}
	if a.KeyPoints[1].Category != "general" || a.KeyPoints[1].Importance != 10 {
		t.Fatalf("expected defaults and clamp on second key point, got %+v", a.KeyPoints[1])
	}

	if len(a.Outline) != 3 {
		t.Fatalf("expected outline capped at 3 slides, got %+v", a.Outline)
	}
	first := a.Outline[0]
	if first.Layout != LayoutTitle || first.Title != "Attention Is Useful" || first.Bullets[0] != "A. Author" {
		t.Fatalf("expected inserted title slide, got %+v", first)
	}
	if a.Outline[1].Layout != LayoutContent || len(a.Outline[1].Bullets) != 1 {
		t.Fatalf("unexpected background slide %+v", a.Outline[1])
	}
	if a.Outline[2].Layout != LayoutContent || a.Outline[2].Notes != "explain heads" {
		t.Fatalf("unexpected method slide %+v", a.Outline[2])
	}
}

func TestExecuteRejectsInvalidOptions(t *testing.T) {
	cases := map[string]string{
		"style":       `{"summary_style":"poetic"}`,
		"temperature": `{"temperature":3}`,
		"slides":      `{"max_slides":0}`,
		"unknown":     `{"modle":"gpt-4"}`,
		"malformed":   `{"model":`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			fake := &scriptedLLM{responses: happyResponses()}
			exec := New(testsupport.NewConfig(t), fake, nil, logging.NewNop())
			_, err := exec.Execute(context.Background(), newRequest(raw), nil)
			if !errors.Is(err, services.ErrInvalidConfig) {
				t.Fatalf("expected InvalidConfig, got %v", err)
			}
			if services.Retryable(err) {
				t.Fatal("invalid options must not be retryable")
			}
			if fake.calls() != 0 {
				t.Fatalf("expected no llm calls, got %d", fake.calls())
			}
		})
	}
}

func TestExecuteUsesCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	memory := cache.NewMemoryClient()

	first := &scriptedLLM{responses: happyResponses()}
	if _, err := New(cfg, first, memory, logging.NewNop()).Execute(context.Background(), newRequest(""), nil); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if memory.Len() != 1 {
		t.Fatalf("expected one cache entry, got %d", memory.Len())
	}

	second := &scriptedLLM{}
	artifact, err := New(cfg, second, memory, logging.NewNop()).Execute(context.Background(), newRequest(""), nil)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if second.calls() != 0 {
		t.Fatalf("expected cache hit to skip llm, got %d calls", second.calls())
	}
	if !artifact.Analysis.Cached || artifact.Analysis.Summary == "" {
		t.Fatalf("unexpected cached analysis %+v", artifact.Analysis)
	}

	third := &scriptedLLM{responses: happyResponses()}
	if _, err := New(cfg, third, memory, logging.NewNop()).Execute(context.Background(), newRequest(`{"language":"de"}`), nil); err != nil {
		t.Fatalf("third Execute: %v", err)
	}
	if third.calls() != 3 {
		t.Fatalf("expected different options to miss the cache, got %d calls", third.calls())
	}
}

func TestExecuteMalformedResponseIsRetryable(t *testing.T) {
	fake := &scriptedLLM{responses: []string{"I cannot help with that."}}
	_, err := New(testsupport.NewConfig(t), fake, nil, logging.NewNop()).Execute(context.Background(), newRequest(""), nil)
	if !errors.Is(err, services.ErrExternalService) || !services.Retryable(err) {
		t.Fatalf("expected retryable ExternalServiceError, got %v", err)
	}
}

func TestExecuteRequiresExtraction(t *testing.T) {
	req := newRequest("")
	req.Extraction = nil
	_, err := New(testsupport.NewConfig(t), &scriptedLLM{}, nil, logging.NewNop()).Execute(context.Background(), req, nil)
	if err == nil {
		t.Fatal("expected error without extraction")
	}
}

func TestExecuteAgainstHTTPEndpoint(t *testing.T) {
	responses := happyResponses()
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		next := responses[0]
		responses = responses[1:]
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": next}}},
		})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithLLMEndpoint(server.URL))
	client := llm.NewClient(llm.Config{APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.Model}, llm.WithRetryMaxAttempts(1))
	artifact, err := New(cfg, client, nil, logging.NewNop()).Execute(context.Background(), newRequest(""), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if artifact.Analysis.Model != cfg.LLM.Model {
		t.Fatalf("expected configured model, got %q", artifact.Analysis.Model)
	}
}

func TestExecuteClientErrorIsInvalidConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	client := llm.NewClient(llm.Config{APIKey: "bad", BaseURL: server.URL, Model: "m"}, llm.WithRetryMaxAttempts(1))
	_, err := New(cfg, client, nil, logging.NewNop()).Execute(context.Background(), newRequest(""), nil)
	if !errors.Is(err, services.ErrInvalidConfig) {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}
}

func TestPaperTextTruncates(t *testing.T) {
	ext := &store.Extraction{Title: "T", Text: strings.Repeat("é", 100)}
	text := paperText(ext, 50)
	if !strings.HasSuffix(text, truncationMarker) {
		t.Fatalf("expected truncation marker, got %q", text)
	}
	if !utf8.ValidString(text) {
		t.Fatal("truncation split a multi-byte rune")
	}
}
