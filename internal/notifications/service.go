package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"deadwax/internal/config"
	"deadwax/internal/store"
)

const userAgent = "deadwax/0.1.0"

// Event names a scan milestone the webhook can announce.
type Event string

const (
	EventScanStarted    Event = "scan_started"
	EventScanCompleted  Event = "scan_completed"
	EventScanStopped    Event = "scan_stopped"
	EventBreakerTripped Event = "breaker_tripped"
	EventError          Event = "error"
	EventTest           Event = "test"
)

// Service is the notification surface the orchestrator depends on. Errors
// are advisory; a failed delivery never affects the scan.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// Payload carries the string fields each event formats into its message.
type Payload map[string]string

// SummaryPayload flattens a scan summary into notification fields.
func SummaryPayload(scanID string, summary store.ScanSummary, duration time.Duration) Payload {
	duration = duration.Round(time.Second)
	if duration <= 0 {
		duration = time.Second
	}
	p := Payload{
		"scan_id":   scanID,
		"artists":   fmt.Sprintf("%d", summary.ArtistsScanned),
		"albums":    fmt.Sprintf("%d", summary.AlbumsScanned),
		"groups":    fmt.Sprintf("%d", summary.DuplicateGroups),
		"broken":    fmt.Sprintf("%d", summary.BrokenAlbums),
		"errors":    fmt.Sprintf("%d", summary.Errors),
		"duration":  duration.String(),
		"reclaimed": "",
	}
	if summary.BytesMoved > 0 {
		p["reclaimed"] = humanize.IBytes(uint64(summary.BytesMoved))
	}
	return p
}

// NewService builds a webhook notifier from the config. When no webhook URL
// is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	endpoint := strings.TrimSpace(cfg.Notifications.WebhookURL)
	if endpoint == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &webhookService{
		endpoint:     endpoint,
		client:       &http.Client{Timeout: timeout},
		scanComplete: cfg.Notifications.ScanComplete,
		errors:       cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type webhookService struct {
	endpoint     string
	client       *http.Client
	scanComplete bool
	errors       bool
}

func (s *webhookService) Publish(ctx context.Context, event Event, payload Payload) error {
	if s.suppressed(event) {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return s.send(ctx, msg)
}

func (s *webhookService) suppressed(event Event) bool {
	switch event {
	case EventScanStarted, EventScanCompleted, EventScanStopped:
		return !s.scanComplete
	case EventBreakerTripped, EventError:
		return !s.errors
	default:
		return false
	}
}

func format(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }

	switch event {
	case EventScanStarted:
		return message{
			title: "Deadwax - Scan Started",
			body:  fmt.Sprintf("Scanning %s artists", orUnknown(get("artists"))),
			tags:  []string{"deadwax", "scan", "started"},
		}, true
	case EventScanCompleted:
		body := fmt.Sprintf("✅ Scan complete: %s artists, %s albums, %s duplicate groups, %s broken albums in %s",
			orUnknown(get("artists")), orUnknown(get("albums")),
			orUnknown(get("groups")), orUnknown(get("broken")), orUnknown(get("duration")))
		if reclaimed := get("reclaimed"); reclaimed != "" {
			body = fmt.Sprintf("%s\nReclaimed: %s", body, reclaimed)
		}
		if errCount := get("errors"); errCount != "" && errCount != "0" {
			body = fmt.Sprintf("%s\nItem errors: %s", body, errCount)
		}
		return message{
			title: "Deadwax - Scan Complete",
			body:  body,
			tags:  []string{"deadwax", "scan", "completed"},
		}, true
	case EventScanStopped:
		return message{
			title: "Deadwax - Scan Stopped",
			body:  fmt.Sprintf("Scan stopped by operator after %s artists", orUnknown(get("artists"))),
			tags:  []string{"deadwax", "scan", "stopped"},
		}, true
	case EventBreakerTripped:
		return message{
			title:    "Deadwax - Scan Aborted",
			body:     fmt.Sprintf("⚠️ Circuit breaker: %s consecutive artists with no files (last: %s). Check library mounts.", orUnknown(get("count")), orUnknown(get("artist"))),
			tags:     []string{"deadwax", "scan", "alert"},
			priority: "high",
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := get("context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if errText := get("error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Deadwax - Error",
			body:     builder.String(),
			tags:     []string{"deadwax", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Deadwax - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"deadwax", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func orUnknown(value string) string {
	if value == "" {
		return "?"
	}
	return value
}

func (s *webhookService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
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

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
