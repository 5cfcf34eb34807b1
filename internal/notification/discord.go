package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DiscordConfig holds the Discord webhook settings.
type DiscordConfig struct {
	WebhookURL string `json:"-"`
	Enabled    bool   `json:"enabled"`
}

// DiscordNotifier sends messages through a Discord webhook as embeds.
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// NewDiscordNotifier creates a Discord notifier. It disables itself when
// the webhook URL is missing.
func NewDiscordNotifier(cfg DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: cfg.WebhookURL,
		enabled:    cfg.Enabled && cfg.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string  { return "discord" }
func (d *DiscordNotifier) Enabled() bool { return d.enabled }

func (d *DiscordNotifier) Send(msg *Message) error {
	if !d.enabled {
		return nil
	}

	color := 0x2ECC71
	if msg.Kind == KindError || (msg.Kind == KindOutcome && msg.PnLPct < 0) {
		color = 0xE74C3C
	}

	embed := map[string]interface{}{
		"title":       msg.Title,
		"description": msg.Body,
		"color":       color,
		"timestamp":   msg.Timestamp.Format(time.RFC3339),
	}
	if msg.Symbol != "" {
		embed["fields"] = []map[string]interface{}{
			{"name": "Symbol", "value": msg.Symbol, "inline": true},
		}
	}

	body, err := json.Marshal(map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	})
	if err != nil {
		return fmt.Errorf("encoding discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sending discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord api: status %d", resp.StatusCode)
	}
	return nil
}
