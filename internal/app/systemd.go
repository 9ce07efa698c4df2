package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "volowatch/pkg/logx"
)

// sdNotify reports readiness and liveness to systemd. Outside a
// Type=notify unit every call is a no-op.
type sdNotify struct {
	log    logx.Logger
	notify func(state string) (bool, error)
}

func newSDNotify(log logx.Logger) *sdNotify {
	return &sdNotify{
		log:    log,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (s *sdNotify) send(state string) {
	sent, err := s.notify(state)
	if err != nil {
		s.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		s.log.Debug("systemd notified", logx.String("state", state))
	}
}

func (s *sdNotify) Ready()    { s.send(daemon.SdNotifyReady) }
func (s *sdNotify) Stopping() { s.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (s *sdNotify) Status(msg string) { s.send("STATUS=" + msg) }

// watchdogInterval is half of WatchdogSec, or 0 when the watchdog is off.
func watchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings systemd every interval while healthy reports true.
// A zero interval returns immediately.
func (s *sdNotify) Watchdog(ctx context.Context, interval time.Duration, healthy func() bool) error {
	if interval <= 0 {
		return nil
	}
	s.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy() {
				s.send(daemon.SdNotifyWatchdog)
			}
		}
	}
}
