package app

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"volowatch/internal/config"
	"volowatch/internal/feed"
	"volowatch/internal/ledger"
	"volowatch/internal/notifier"
	"volowatch/internal/ops"
	logx "volowatch/pkg/logx"
)

// Defaults applied when the matching config field is empty. Retries keep
// their own default because an explicit 0 is meaningful.
const defaultRetryMax = 2

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapLedger(cfg *config.Config) ledger.Config {
	return ledger.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: config.DurationOr(cfg.Storage.BusyTimeout, 0),
	}
}

func mapFeed(cfg *config.Config) feed.Config {
	f := cfg.Feed
	return feed.Config{
		URL: f.URL,
		Filter: feed.Filter{
			Organization: f.Organization,
			Sports:       f.Sports,
			ProgramTypes: f.ProgramTypes,
		},
		PageSize:  f.PageSize,
		MaxPages:  f.MaxPages,
		Timeout:   config.DurationOr(f.Timeout, 0),
		UserAgent: f.UserAgent,
	}
}

func mapNotifier(cfg *config.Config) notifier.Config {
	d := cfg.Delivery
	retries := defaultRetryMax
	if d.RetryMax != nil {
		retries = *d.RetryMax
	}
	return notifier.Config{
		RatePerSec:    d.RatePerSec,
		RetryMax:      retries,
		RetryBase:     config.DurationOr(d.RetryBase, 0),
		RetryMaxDelay: config.DurationOr(d.RetryMaxDelay, 0),
		SendTimeout:   config.DurationOr(d.SendTimeout, 0),
	}
}

// buildSinks returns one sink per configured target, Discord first.
func buildSinks(cfg *config.Config) ([]notifier.Sink, error) {
	d := cfg.Delivery
	var sinks []notifier.Sink
	if d.DiscordEnabled() {
		sk, err := notifier.NewDiscord(notifier.DiscordConfig{
			WebhookURL: d.Discord.WebhookURL,
			Username:   d.Discord.Username,
		})
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		sinks = append(sinks, sk)
	}
	if d.TelegramEnabled() {
		sk, err := notifier.NewTelegram(notifier.TelegramConfig{
			Token:    d.Telegram.Token,
			ChatID:   d.Telegram.ChatID,
			ThreadID: d.Telegram.ThreadID,
			APIURL:   d.Telegram.APIURL,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sinks = append(sinks, sk)
	}
	return sinks, nil
}

func mapOps(cfg *config.Config) ops.Config {
	o := cfg.Ops
	return ops.Config{
		Enabled:       o.Enabled,
		Addr:          o.Addr,
		Token:         o.Token,
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
		ReadTimeout:   config.DurationOr(o.ReadTimeout, 10*time.Second),
		WriteTimeout:  config.DurationOr(o.WriteTimeout, 60*time.Second),
		IdleTimeout:   config.DurationOr(o.IdleTimeout, 60*time.Second),
	}
}

// buildSchedule resolves the poll schedule. Cron expressions run in the
// feed's timezone.
func buildSchedule(cfg *config.Config) (cron.Schedule, error) {
	spec, err := cfg.ScheduleSpec()
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Feed.Timezone)
	if err != nil {
		return nil, fmt.Errorf("feed.timezone: %w", err)
	}
	return spec.Schedule(loc)
}

// NewLogger builds the logging service for cfg.
func NewLogger(cfg *config.Config) (*logx.Service, logx.Logger) {
	return logx.New(mapLogging(cfg))
}

// OpenLedger opens the configured ledger.
func OpenLedger(cfg *config.Config, log logx.Logger) (ledger.Store, error) {
	return ledger.Open(mapLedger(cfg), log.With(logx.String("comp", "ledger")))
}

// NewFeed builds the feed client and the normalizer for its rows.
func NewFeed(cfg *config.Config, log logx.Logger) (*feed.Client, feed.Normalizer, error) {
	norm, err := feed.NewNormalizer(cfg.Feed.Timezone)
	if err != nil {
		return nil, feed.Normalizer{}, err
	}
	return feed.New(mapFeed(cfg), log.With(logx.String("comp", "feed"))), norm, nil
}
