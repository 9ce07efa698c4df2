package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"volowatch/internal/activity"
)

const DefaultDiscordUsername = "Volo Sports Bot"

type DiscordConfig struct {
	WebhookURL string
	Username   string
	Timeout    time.Duration // default 10s
}

// Discord posts batches to a Discord webhook.
type Discord struct {
	url      string
	username string
	http     *http.Client
}

func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	u := strings.TrimSpace(cfg.WebhookURL)
	if u == "" {
		return nil, errors.New("discord webhook url is empty")
	}
	if cfg.Username == "" {
		cfg.Username = DefaultDiscordUsername
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Discord{url: u, username: cfg.Username, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, as []activity.Activity) error {
	if len(as) == 0 {
		return nil
	}
	body, err := json.Marshal(buildDiscordPayload(d.username, as))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	return &SendError{
		Sink:       d.Name(),
		Status:     resp.StatusCode,
		Body:       strings.TrimSpace(string(raw)),
		Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter reads a delay in (possibly fractional) seconds.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
