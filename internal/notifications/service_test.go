package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"slidewright/internal/notifications"
	"slidewright/internal/testsupport"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(cfg)
	if err := svc.Publish(context.Background(), notifications.EventDocumentCompleted, notifications.Payload{"title": "Paper"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title, body, tags, priority string
}

func newServer(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name     string
		event    notifications.Event
		payload  notifications.Payload
		title    string
		body     string
		tags     string
		priority string
	}{
		{
			name:     "document completed",
			event:    notifications.EventDocumentCompleted,
			payload:  notifications.Payload{"title": "Attention Is All You Need", "slides": 9, "path": "/decks/a.pptx"},
			title:    "Slidewright - Deck Ready",
			body:     "Slides ready: Attention Is All You Need (9 slides)\nFile: /decks/a.pptx",
			tags:     "slidewright,deck,completed",
			priority: "high",
		},
		{
			name:    "stage completed",
			event:   notifications.EventStageCompleted,
			payload: notifications.Payload{"title": "Paper", "stage": "extract"},
			title:   "Slidewright - Extract Complete",
			body:    "extract finished for Paper",
			tags:    "slidewright,extract,completed",
		},
		{
			name:     "stage failed",
			event:    notifications.EventStageFailed,
			payload:  notifications.Payload{"title": "Paper", "stage": "analyze", "kind": "InvalidConfig", "error": errors.New("bad key")},
			title:    "Slidewright - Error",
			body:     "analyze failed for Paper [InvalidConfig]: bad key",
			tags:     "slidewright,error,analyze",
			priority: "high",
		},
		{
			name:     "test",
			event:    notifications.EventTest,
			title:    "Slidewright - Test",
			body:     "Notification system test",
			tags:     "slidewright,test",
			priority: "low",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, got := newServer(t, http.StatusOK)
			cfg := testsupport.NewConfig(t)
			cfg.Notifications.NtfyTopic = srv.URL
			cfg.Notifications.StageCompleted = true

			if err := notifications.NewService(cfg).Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if len(*got) != 1 {
				t.Fatalf("expected one request, got %d", len(*got))
			}
			req := (*got)[0]
			if req.title != tc.title || req.body != tc.body || req.tags != tc.tags || req.priority != tc.priority {
				t.Fatalf("unexpected request %+v", req)
			}
		})
	}
}

func TestDisabledEventsAreDropped(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.StageCompleted = false

	if err := notifications.NewService(cfg).Publish(context.Background(), notifications.EventStageCompleted, notifications.Payload{"stage": "render"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(*got) != 0 {
		t.Fatalf("expected no requests, got %d", len(*got))
	}
}

func TestNtfyErrorStatus(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadGateway)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = srv.URL

	err := notifications.NewService(cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected 502 error, got %v", err)
	}
}
