package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"volowatch/internal/activity"
	logx "volowatch/pkg/logx"
)

// Service fans batches out to its sinks. It is safe for concurrent use.
type Service struct {
	log   logx.Logger
	sinks []Sink

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger, sinks ...Sink) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log}
	for _, sk := range sinks {
		if sk != nil {
			s.sinks = append(s.sinks, sk)
		}
	}
	s.Apply(cfg)
	return s
}

// Apply swaps retry and rate settings.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	// Burst equals the per-second rate so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Configured reports whether any sink is wired.
func (s *Service) Configured() bool { return len(s.sinks) > 0 }

// Sinks returns sink names in send order.
func (s *Service) Sinks() []string {
	out := make([]string, 0, len(s.sinks))
	for _, sk := range s.sinks {
		out = append(out, sk.Name())
	}
	return out
}

// Deliver sends as to every sink. It succeeds if any sink accepted.
func (s *Service) Deliver(ctx context.Context, as []activity.Activity) error {
	if len(s.sinks) == 0 {
		return ErrNotConfigured
	}
	if len(as) == 0 {
		return nil
	}

	var (
		errs []error
		ok   int
	)
	for _, sk := range s.sinks {
		if err := s.sendWithRetry(ctx, sk, as); err != nil {
			s.log.Warn("sink send failed", logx.String("sink", sk.Name()), logx.Int("activities", len(as)), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", sk.Name(), err))
			continue
		}
		ok++
		s.log.Info("activities delivered", logx.String("sink", sk.Name()), logx.Int("activities", len(as)))
	}
	if ok > 0 {
		return nil
	}
	return errors.Join(errs...)
}

func (s *Service) sendWithRetry(ctx context.Context, sk Sink, as []activity.Activity) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := sk.Send(callCtx, as)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		again, after := retryable(err)
		if !again || attempt >= maxAttempts || ctx.Err() != nil {
			break
		}
		delay := min(max(retryDelay(cfg, attempt), after), cfg.RetryMaxDelay)
		s.log.Debug("sink send failed; retrying",
			logx.String("sink", sk.Name()), logx.Int("attempt", attempt), logx.Int("max", maxAttempts),
			logx.Duration("delay", delay), logx.Err(err))

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return lastErr
		}
	}
	return lastErr
}

// retryDelay is the wait before the attempt after attempt (1-based):
// base * 2^(attempt-1), capped, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d < 0 {
		return 0
	}
	return min(d, cfg.RetryMaxDelay)
}
