package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"volowatch/internal/activity"
)

// ErrNotConfigured is returned by Deliver when no sink is configured.
var ErrNotConfigured = errors.New("notifier: no delivery target configured")

// Deliverer announces a batch of new activities. A nil error means the
// batch reached at least one destination.
type Deliverer interface {
	Deliver(ctx context.Context, as []activity.Activity) error
}

// Sink is one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, as []activity.Activity) error
}

// Config tunes rate limiting and retries. Zero fields take defaults.
type Config struct {
	RatePerSec    int           // default 1
	RetryMax      int           // extra attempts after the first
	RetryBase     time.Duration // default 500ms
	RetryMaxDelay time.Duration // default 10s
	SendTimeout   time.Duration // per attempt; default 15s
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	return c
}

// SendError is a rejected send. Retryable is set for rate limiting and
// server-side failures.
type SendError struct {
	Sink       string
	Status     int
	Body       string
	Retryable  bool
	RetryAfter time.Duration
}

func (e *SendError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http %d", e.Sink, e.Status)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Sink, e.Status, e.Body)
}

func retryable(err error) (bool, time.Duration) {
	var se *SendError
	if errors.As(err, &se) {
		return se.Retryable, se.RetryAfter
	}
	// Transport errors (timeouts, resets) are worth another try.
	return true, 0
}
