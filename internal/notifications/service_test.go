package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"deadwax/internal/config"
	"deadwax/internal/notifications"
	"deadwax/internal/store"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

type captureServer struct {
	mu       sync.Mutex
	requests []capturedRequest
	server   *httptest.Server
}

func newCaptureServer(t *testing.T) *captureServer {
	t.Helper()
	cs := &captureServer{}
	cs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		cs.requests = append(cs.requests, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		cs.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(cs.server.Close)
	return cs
}

func (cs *captureServer) captured() []capturedRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]capturedRequest, len(cs.requests))
	copy(out, cs.requests)
	return out
}

func newTestService(t *testing.T, endpoint string, scanComplete, errors bool) notifications.Service {
	t.Helper()
	cfg := config.Default()
	cfg.Notifications.WebhookURL = endpoint
	cfg.Notifications.ScanComplete = scanComplete
	cfg.Notifications.Errors = errors
	return notifications.NewService(&cfg)
}

func TestWebhookServicePublishesEvents(t *testing.T) {
	cases := []struct {
		name         string
		event        notifications.Event
		payload      notifications.Payload
		wantTitle    string
		wantTags     string
		wantPriority string
		wantBodyPart string
	}{
		{
			name:         "scan started",
			event:        notifications.EventScanStarted,
			payload:      notifications.Payload{"artists": "42"},
			wantTitle:    "Deadwax - Scan Started",
			wantTags:     "deadwax,scan,started",
			wantBodyPart: "Scanning 42 artists",
		},
		{
			name:  "scan completed",
			event: notifications.EventScanCompleted,
			payload: notifications.Payload{
				"artists":   "42",
				"albums":    "310",
				"groups":    "7",
				"broken":    "2",
				"errors":    "0",
				"duration":  "3m10s",
				"reclaimed": "1.2 GiB",
			},
			wantTitle:    "Deadwax - Scan Complete",
			wantTags:     "deadwax,scan,completed",
			wantBodyPart: "Reclaimed: 1.2 GiB",
		},
		{
			name:         "breaker tripped",
			event:        notifications.EventBreakerTripped,
			payload:      notifications.Payload{"count": "5", "artist": "Boards of Canada"},
			wantTitle:    "Deadwax - Scan Aborted",
			wantTags:     "deadwax,scan,alert",
			wantPriority: "high",
			wantBodyPart: "Circuit breaker: 5 consecutive artists",
		},
		{
			name:         "error",
			event:        notifications.EventError,
			payload:      notifications.Payload{"context": "Aphex Twin", "error": "metadata lookup timed out"},
			wantTitle:    "Deadwax - Error",
			wantTags:     "deadwax,error,alert",
			wantPriority: "high",
			wantBodyPart: "Error with Aphex Twin: metadata lookup timed out",
		},
		{
			name:         "test",
			event:        notifications.EventTest,
			payload:      nil,
			wantTitle:    "Deadwax - Test",
			wantTags:     "deadwax,test",
			wantPriority: "low",
			wantBodyPart: "Notification system test",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cs := newCaptureServer(t)
			svc := newTestService(t, cs.server.URL, true, true)

			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish returned error: %v", err)
			}

			got := cs.captured()
			if len(got) != 1 {
				t.Fatalf("expected 1 request, got %d", len(got))
			}
			req := got[0]
			if req.title != tc.wantTitle {
				t.Errorf("title = %q, want %q", req.title, tc.wantTitle)
			}
			if req.tags != tc.wantTags {
				t.Errorf("tags = %q, want %q", req.tags, tc.wantTags)
			}
			if req.priority != tc.wantPriority {
				t.Errorf("priority = %q, want %q", req.priority, tc.wantPriority)
			}
			if !strings.Contains(req.body, tc.wantBodyPart) {
				t.Errorf("body %q does not contain %q", req.body, tc.wantBodyPart)
			}
		})
	}
}

func TestWebhookServiceSuppressesDisabledEvents(t *testing.T) {
	cs := newCaptureServer(t)
	svc := newTestService(t, cs.server.URL, false, false)

	suppressed := []notifications.Event{
		notifications.EventScanStarted,
		notifications.EventScanCompleted,
		notifications.EventScanStopped,
		notifications.EventBreakerTripped,
		notifications.EventError,
	}
	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"artists": "1"}); err != nil {
			t.Fatalf("Publish(%s) returned error: %v", event, err)
		}
	}
	if got := cs.captured(); len(got) != 0 {
		t.Fatalf("expected suppressed events to skip delivery, got %d requests", len(got))
	}

	// The test event ignores both toggles.
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("Publish(test) returned error: %v", err)
	}
	if got := cs.captured(); len(got) != 1 {
		t.Fatalf("expected test event to deliver, got %d requests", len(got))
	}
}

func TestWebhookServiceReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("access denied"))
	}))
	t.Cleanup(server.Close)

	svc := newTestService(t, server.URL, true, true)
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected error from 403 response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("error %q should include status and body excerpt", err)
	}
}

func TestNoopServiceWhenWebhookUnset(t *testing.T) {
	svc := newTestService(t, "   ", true, true)
	if err := svc.Publish(context.Background(), notifications.EventScanCompleted, nil); err != nil {
		t.Fatalf("noop Publish returned error: %v", err)
	}
}

func TestSummaryPayloadFormatsFields(t *testing.T) {
	summary := store.ScanSummary{
		ArtistsScanned:  12,
		AlbumsScanned:   80,
		DuplicateGroups: 3,
		BrokenAlbums:    1,
		EditionsMoved:   3,
		BytesMoved:      2 * 1024 * 1024 * 1024,
		Errors:          2,
	}
	payload := notifications.SummaryPayload("scan-1", summary, 95*time.Second)

	checks := map[string]string{
		"scan_id":   "scan-1",
		"artists":   "12",
		"albums":    "80",
		"groups":    "3",
		"broken":    "1",
		"errors":    "2",
		"duration":  "1m35s",
		"reclaimed": "2.0 GiB",
	}
	for key, want := range checks {
		if got := payload[key]; got != want {
			t.Errorf("payload[%q] = %q, want %q", key, got, want)
		}
	}
}

func TestSummaryPayloadOmitsReclaimedWhenNothingMoved(t *testing.T) {
	payload := notifications.SummaryPayload("scan-2", store.ScanSummary{ArtistsScanned: 1}, 0)
	if payload["reclaimed"] != "" {
		t.Errorf("reclaimed = %q, want empty", payload["reclaimed"])
	}
	if payload["duration"] != "1s" {
		t.Errorf("duration = %q, want 1s for sub-second scans", payload["duration"])
	}
}
