package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Piyushhbhutoria/memory-wall/internal/services"
)

const (
	defaultUsername    = "Wish Wall Guard"
	defaultHTTPTimeout = 5 * time.Second
	embedColorWarning  = 0xF59E0B
	embedColorCritical = 0xEF4444
	maxFieldValue      = 1024
)

// DiscordNotifier posts security alerts to a Discord channel webhook.
type DiscordNotifier struct {
	webhookURL string
	username   string
	client     *http.Client
}

// Option customises the notifier.
type Option func(*DiscordNotifier)

// WithHTTPClient overrides the HTTP client used to call the webhook.
func WithHTTPClient(client *http.Client) Option {
	return func(n *DiscordNotifier) {
		if client != nil {
			n.client = client
		}
	}
}

// WithUsername overrides the display name of the webhook author.
func WithUsername(name string) Option {
	return func(n *DiscordNotifier) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			n.username = trimmed
		}
	}
}

// NewDiscordNotifier constructs a notifier for webhookURL.
func NewDiscordNotifier(webhookURL string, opts ...Option) (*DiscordNotifier, error) {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil, errors.New("discord notifier: webhook url is required")
	}
	n := &DiscordNotifier{
		webhookURL: webhookURL,
		username:   defaultUsername,
		client:     &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n, nil
}

// NotifySecurityEvent sends the event as a single embed.
func (n *DiscordNotifier) NotifySecurityEvent(ctx context.Context, event services.SecurityEventMessage) error {
	if n == nil {
		return errors.New("discord notifier: not initialised")
	}
	payload := discordgo.WebhookParams{
		Username: n.username,
		Embeds:   []*discordgo.MessageEmbed{buildEmbed(event)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord notifier: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord notifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord notifier: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord webhook error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func buildEmbed(event services.SecurityEventMessage) *discordgo.MessageEmbed {
	color := embedColorWarning
	if event.EventType == "suspicious_activity" {
		color = embedColorCritical
	}
	fingerprint := event.Fingerprint
	if fingerprint == "" {
		fingerprint = "anonymous"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Fingerprint", Value: truncate(fingerprint), Inline: true},
		{Name: "Event", Value: event.EventType, Inline: true},
	}

	keys := make([]string, 0, len(event.Metadata))
	for key := range event.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if value := strings.TrimSpace(event.Metadata[key]); value != "" {
			fields = append(fields, &discordgo.MessageEmbedField{Name: key, Value: truncate(value), Inline: true})
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Security event: " + event.EventType,
		Description: event.Description,
		Color:       color,
		Fields:      fields,
	}
	if !event.OccurredAt.IsZero() {
		embed.Timestamp = event.OccurredAt.UTC().Format(time.RFC3339)
	}
	return embed
}

func truncate(value string) string {
	if len(value) <= maxFieldValue {
		return value
	}
	return strings.ToValidUTF8(value[:maxFieldValue-3], "") + "..."
}
