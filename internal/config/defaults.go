package config

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"slices"
	"strings"
	"time"

	"volowatch/internal/schedule"
)

const (
	DefaultPollIntervalSeconds = 300
	DefaultOrganization        = "San Diego"
	DefaultTimezone            = "America/Los_Angeles"
	DefaultLedgerPath          = "volo_activities.db"
	DefaultOpsAddr             = "127.0.0.1:9464"
)

var (
	DefaultSports       = []string{"Volleyball", "Soccer"}
	DefaultProgramTypes = []string{"PICKUP", "PRACTICE", "CLINIC", "DROPIN"}
)

// Default returns a normalized config with every default applied.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize trims strings and fills in defaults. It never fails; Validate
// reports bad values.
func (c *Config) Normalize() {
	w := &c.Watcher
	if w.PollIntervalSeconds == 0 {
		w.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	w.Schedule = strings.TrimSpace(w.Schedule)

	f := &c.Feed
	f.URL = strings.TrimSpace(f.URL)
	if f.Organization = strings.TrimSpace(f.Organization); f.Organization == "" {
		f.Organization = DefaultOrganization
	}
	// An explicit empty list means every sport.
	if f.Sports == nil {
		f.Sports = append([]string(nil), DefaultSports...)
	}
	if len(f.ProgramTypes) == 0 {
		f.ProgramTypes = append([]string(nil), DefaultProgramTypes...)
	}
	if f.Timezone = strings.TrimSpace(f.Timezone); f.Timezone == "" {
		f.Timezone = DefaultTimezone
	}

	d := &c.Delivery
	d.Discord.WebhookURL = strings.TrimSpace(d.Discord.WebhookURL)
	d.Telegram.Token = strings.TrimSpace(d.Telegram.Token)

	s := &c.Storage
	if s.Driver = strings.ToLower(strings.TrimSpace(s.Driver)); s.Driver == "" {
		s.Driver = "sqlite"
	}
	if s.Path = strings.TrimSpace(s.Path); s.Path == "" && s.Driver != "memory" {
		s.Path = DefaultLedgerPath
	}

	l := &c.Logging
	if l.Level = strings.TrimSpace(l.Level); l.Level == "" {
		l.Level = "info"
	}
	if !l.Console && !l.File.Enabled {
		l.Console = true
	}

	if c.Ops.Addr = strings.TrimSpace(c.Ops.Addr); c.Ops.Addr == "" {
		c.Ops.Addr = DefaultOpsAddr
	}
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Watcher.PollIntervalSeconds <= 0 {
		add("watcher.poll_interval_seconds must be positive, got %d", c.Watcher.PollIntervalSeconds)
	}
	if _, err := c.ScheduleSpec(); err != nil {
		add("watcher.schedule: %w", err)
	}
	if _, err := time.LoadLocation(c.Feed.Timezone); err != nil {
		add("feed.timezone: %w", err)
	}
	if c.Feed.PageSize < 0 || c.Feed.MaxPages < 0 {
		add("feed.page_size and feed.max_pages must be >= 0")
	}

	durations := map[string]string{
		"feed.timeout":             c.Feed.Timeout,
		"delivery.retry_base":      c.Delivery.RetryBase,
		"delivery.retry_max_delay": c.Delivery.RetryMaxDelay,
		"delivery.send_timeout":    c.Delivery.SendTimeout,
		"storage.busy_timeout":     c.Storage.BusyTimeout,
		"ops.read_timeout":         c.Ops.ReadTimeout,
		"ops.write_timeout":        c.Ops.WriteTimeout,
		"ops.idle_timeout":         c.Ops.IdleTimeout,
	}
	for _, path := range slices.Sorted(maps.Keys(durations)) {
		if _, err := ParseDurationField(path, durations[path]); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Delivery.RetryMax != nil && *c.Delivery.RetryMax < 0 {
		add("delivery.retry_max must be >= 0")
	}
	if c.Delivery.RatePerSec < 0 {
		add("delivery.rate_per_sec must be >= 0")
	}
	if t := c.Delivery.Telegram; (t.Token == "") != (t.ChatID == 0) {
		add("delivery.telegram needs both token and chat_id")
	}

	switch c.Storage.Driver {
	case "sqlite", "sqlite3":
		if c.Storage.Path == "" {
			add("storage.path is required when storage.driver=%s", c.Storage.Driver)
		}
	case "memory":
	default:
		add("unknown storage.driver: %s", c.Storage.Driver)
	}

	if c.Ops.Enabled {
		host, _, err := net.SplitHostPort(c.Ops.Addr)
		if err != nil {
			add("ops.addr: %w", err)
		} else if !isLoopback(host) && c.Ops.Token == "" && !c.Ops.AllowInsecure {
			add("ops.addr %s is not loopback: set ops.token or ops.allow_insecure", c.Ops.Addr)
		}
	}

	return errors.Join(errs...)
}

// ScheduleSpec resolves the poll schedule: watcher.schedule if set,
// otherwise a plain interval of poll_interval_seconds.
func (c *Config) ScheduleSpec() (schedule.Spec, error) {
	if c.Watcher.Schedule != "" {
		return schedule.Parse(c.Watcher.Schedule)
	}
	return schedule.Every(c.Watcher.PollIntervalSeconds)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
