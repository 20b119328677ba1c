package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"
)

// Discord embed limits, in characters.
const (
	discordTitleLimit       = 256
	discordDescriptionLimit = 4096
)

// discordAlertColor is the embed side bar colour (red).
const discordAlertColor = 0xD93F0B

// DiscordSender delivers notifications as embeds via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL with a
// 10-second HTTP timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordPayload struct {
	Username        string         `json:"username"`
	Embeds          []discordEmbed `json:"embeds"`
	AllowedMentions struct {
		Parse []string `json:"parse"`
	} `json:"allowed_mentions"`
}

// Send posts one embed. Mentions are disabled so symbols or broker messages
// in the text can never ping a channel.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	p := discordPayload{
		Username: "tradesync",
		Embeds: []discordEmbed{{
			Title:       truncateRunes(title, discordTitleLimit),
			Description: truncateRunes(message, discordDescriptionLimit),
			Color:       discordAlertColor,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}
	p.AllowedMentions.Parse = []string{}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", d.scrub(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", d.scrub(err))
	}
	defer resp.Body.Close()

	// Discord answers 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

// scrub drops the webhook URL, which embeds the webhook token, from
// transport errors.
func (d *DiscordSender) scrub(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return scrubbedError{msg: uerr.Op + " discord webhook: " + uerr.Err.Error(), err: uerr.Err}
	}
	return err
}

// truncateRunes shortens s to at most limit characters, ending in "...".
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}
