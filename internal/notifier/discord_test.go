package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDiscordSendPostsPayload(t *testing.T) {
	t.Parallel()
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d, err := NewDiscord(DiscordConfig{WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}
	if err := d.Send(context.Background(), batch("Soccer", 2, 0)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Username != DefaultDiscordUsername || len(got.Embeds) != 2 {
		t.Fatalf("payload = %+v", got)
	}
}

func TestDiscordSendErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		status     int
		retryAfter string
		retryable  bool
		wait       time.Duration
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, retryAfter: "1.5", retryable: true, wait: 1500 * time.Millisecond},
		{name: "server error", status: http.StatusBadGateway, retryable: true},
		{name: "bad request", status: http.StatusBadRequest, retryable: false},
		{name: "unknown webhook", status: http.StatusNotFound, retryable: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			d, _ := NewDiscord(DiscordConfig{WebhookURL: srv.URL})
			err := d.Send(context.Background(), batch("Volleyball", 1, 0))
			var se *SendError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *SendError", err)
			}
			if se.Status != tt.status || se.Retryable != tt.retryable || se.RetryAfter != tt.wait {
				t.Fatalf("SendError = %+v", se)
			}
			if se.Body != `{"message":"nope"}` {
				t.Fatalf("body = %q", se.Body)
			}
		})
	}
}

func TestDiscordEmptyBatchSendsNothing(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}))
	defer srv.Close()
	d, _ := NewDiscord(DiscordConfig{WebhookURL: srv.URL})
	if err := d.Send(context.Background(), nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestNewDiscordRequiresURL(t *testing.T) {
	t.Parallel()
	if _, err := NewDiscord(DiscordConfig{WebhookURL: "  "}); err == nil {
		t.Fatal("expected error for empty webhook url")
	}
}
