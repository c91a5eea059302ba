package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"slidewright/internal/config"
)

const userAgent = "slidewright/0.1.0"

// Event identifies a pipeline milestone worth pushing to a phone.
type Event string

const (
	EventStageCompleted    Event = "stage_completed"
	EventDocumentCompleted Event = "document_completed"
	EventStageFailed       Event = "stage_failed"
	EventTest              Event = "test"
)

// Payload carries event fields. Keys used: title, stage, document_id,
// slides, path, error, kind.
type Payload map[string]any

// Service publishes pipeline events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
// Events disabled in configuration are dropped silently.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventStageCompleted:    cfg.Notifications.StageCompleted,
			EventDocumentCompleted: cfg.Notifications.DocumentCompleted,
			EventStageFailed:       cfg.Notifications.Errors,
			EventTest:              true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	title := payload.text("title", "untitled document")
	stage := payload.text("stage", "stage")
	switch event {
	case EventStageCompleted:
		return message{
			title: "Slidewright - " + strings.ToUpper(stage[:1]) + stage[1:] + " Complete",
			body:  fmt.Sprintf("%s finished for %s", stage, title),
			tags:  []string{"slidewright", stage, "completed"},
		}, true
	case EventDocumentCompleted:
		body := fmt.Sprintf("Slides ready: %s", title)
		if slides, ok := payload["slides"].(int); ok && slides > 0 {
			body = fmt.Sprintf("%s (%d slides)", body, slides)
		}
		if path := payload.text("path", ""); path != "" {
			body += "\nFile: " + path
		}
		return message{
			title:    "Slidewright - Deck Ready",
			body:     body,
			tags:     []string{"slidewright", "deck", "completed"},
			priority: "high",
		}, true
	case EventStageFailed:
		var b strings.Builder
		fmt.Fprintf(&b, "%s failed for %s", stage, title)
		if kind := payload.text("kind", ""); kind != "" {
			fmt.Fprintf(&b, " [%s]", kind)
		}
		switch v := payload["error"].(type) {
		case error:
			b.WriteString(": " + strings.TrimSpace(v.Error()))
		case string:
			if v = strings.TrimSpace(v); v != "" {
				b.WriteString(": " + v)
			}
		}
		return message{
			title:    "Slidewright - Error",
			body:     b.String(),
			tags:     []string{"slidewright", "error", stage},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Slidewright - Test",
			body:     "Notification system test",
			tags:     []string{"slidewright", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (p Payload) text(key, fallback string) string {
	if v, ok := p[key].(string); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return fallback
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
