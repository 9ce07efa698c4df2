package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides, applied after the config file.
const (
	EnvPollInterval   = "POLL_INTERVAL"
	EnvDiscordWebhook = "DISCORD_WEBHOOK_URL"
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
	EnvLedgerPath     = "VOLOWATCH_DB"
	EnvLogLevel       = "LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE pairs from path (".env" when empty) into the
// process environment. Variables already set win. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg. lookup defaults to
// os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvPollInterval); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", EnvPollInterval, v)
		}
		cfg.Watcher.PollIntervalSeconds = n
	}
	if v, ok := get(EnvDiscordWebhook); ok {
		cfg.Delivery.Discord.WebhookURL = v
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Delivery.Telegram.Token = v
	}
	if v, ok := get(EnvTelegramChatID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q", EnvTelegramChatID, v)
		}
		cfg.Delivery.Telegram.ChatID = id
	}
	if v, ok := get(EnvLedgerPath); ok {
		cfg.Storage.Path = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	return nil
}
