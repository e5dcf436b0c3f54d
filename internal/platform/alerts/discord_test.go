package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Piyushhbhutoria/memory-wall/internal/services"
)

func TestDiscordNotifierPostsEmbed(t *testing.T) {
	var got discordgo.WebhookParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier, err := NewDiscordNotifier(srv.URL, WithUsername("guard-test"))
	if err != nil {
		t.Fatalf("NewDiscordNotifier: %v", err)
	}

	err = notifier.NotifySecurityEvent(context.Background(), services.SecurityEventMessage{
		EventID:     "sev_1",
		EventType:   "suspicious_activity",
		Description: "20 attempts in 1m0s",
		Fingerprint: "fp-1",
		Metadata:    map[string]string{"action": "reaction", "wallId": "wal_1"},
		OccurredAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NotifySecurityEvent: %v", err)
	}

	if got.Username != "guard-test" || len(got.Embeds) != 1 {
		t.Fatalf("unexpected payload %+v", got)
	}
	embed := got.Embeds[0]
	if embed.Color != embedColorCritical {
		t.Fatalf("expected critical color, got %x", embed.Color)
	}
	if embed.Timestamp != "2025-01-02T03:04:05Z" {
		t.Fatalf("unexpected timestamp %q", embed.Timestamp)
	}
	if len(embed.Fields) != 4 || embed.Fields[2].Name != "action" || embed.Fields[3].Name != "wallId" {
		t.Fatalf("expected sorted metadata fields, got %+v", embed.Fields)
	}
}

func TestDiscordNotifierReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	notifier, err := NewDiscordNotifier(srv.URL)
	if err != nil {
		t.Fatalf("NewDiscordNotifier: %v", err)
	}
	err = notifier.NotifySecurityEvent(context.Background(), services.SecurityEventMessage{EventType: "rate_limit_exceeded"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestNewDiscordNotifierRequiresURL(t *testing.T) {
	if _, err := NewDiscordNotifier("  "); err == nil {
		t.Fatalf("expected error for blank webhook url")
	}
}

func TestTruncateLongValues(t *testing.T) {
	value := strings.Repeat("x", maxFieldValue+10)
	if got := truncate(value); len(got) != maxFieldValue || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected truncation length %d", len(got))
	}
}
