package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"banana3d/internal/config"
)

const userAgent = "banana3d-notify/0.1.0"

// Event names a workflow milestone worth pushing.
type Event string

const (
	EventViewsReady     Event = "views_ready"
	EventModelReady     Event = "model_ready"
	EventWorkflowFailed Event = "workflow_failed"
	EventTest           Event = "test"
)

// Payload carries event-specific values keyed by name.
type Payload map[string]any

// Service publishes workflow events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	n := cfg.Notifications
	topic := strings.TrimSpace(n.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(n.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventViewsReady:     n.ModelReady,
			EventModelReady:     n.ModelReady,
			EventWorkflowFailed: n.Errors,
			EventTest:           true,
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
	if n == nil || n.client == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	source := payload.text("source")
	if source == "" {
		source = "source image"
	}
	switch event {
	case EventViewsReady:
		return message{
			title: "banana3d - Views Ready",
			body:  fmt.Sprintf("🖼️ %d views ready for %s", payload.number("views"), source),
			tags:  []string{"banana3d", "views", "completed"},
		}, true
	case EventModelReady:
		body := fmt.Sprintf("🧊 Model ready for %s", source)
		if output := payload.text("output"); output != "" {
			body = fmt.Sprintf("%s\nSaved to: %s", body, output)
		}
		return message{
			title:    "banana3d - Model Ready",
			body:     body,
			tags:     []string{"banana3d", "model", "completed"},
			priority: "high",
		}, true
	case EventWorkflowFailed:
		var b strings.Builder
		b.WriteString("❌ ")
		if stage := payload.text("stage"); stage != "" {
			b.WriteString("Failed in ")
			b.WriteString(stage)
		} else {
			b.WriteString("Failed")
		}
		b.WriteString(": ")
		if text := payload.text("error"); text != "" {
			b.WriteString(text)
		} else {
			b.WriteString("unknown")
		}
		tags := []string{"banana3d", "error"}
		if kind := payload.text("kind"); kind != "" {
			tags = append(tags, kind)
		}
		return message{
			title:    "banana3d - Error",
			body:     b.String(),
			tags:     tags,
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "banana3d - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"banana3d", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
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

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) number(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return 0
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
