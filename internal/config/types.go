package config

// Config is the on-disk configuration (JSON or YAML). Every section is
// optional; Normalize fills in defaults.
type Config struct {
	Watcher  WatcherConfig  `json:"watcher"`
	Feed     FeedConfig     `json:"feed"`
	Delivery DeliveryConfig `json:"delivery"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Ops      OpsConfig      `json:"ops"`
}

// WatcherConfig controls the poll loop.
//
// Schedule, when set, replaces the plain interval. It accepts a cron
// expression ("*/5 * * * *", seconds optional), a Go duration ("90s"), or
// "HH:MM" meaning every H hours M minutes.
type WatcherConfig struct {
	PollIntervalSeconds int    `json:"poll_interval_seconds"` // default 300
	Schedule            string `json:"schedule,omitempty"`
}

// FeedConfig controls the upstream GraphQL feed.
//
// Timeout is a Go duration string. Timezone is an IANA name used to render
// activity times.
type FeedConfig struct {
	URL          string   `json:"url,omitempty"`
	Organization string   `json:"organization,omitempty"`
	Sports       []string `json:"sports,omitempty"`
	ProgramTypes []string `json:"program_types,omitempty"`
	PageSize     int      `json:"page_size,omitempty"`
	MaxPages     int      `json:"max_pages,omitempty"`
	Timeout      string   `json:"timeout,omitempty"`
	Timezone     string   `json:"timezone,omitempty"`
	UserAgent    string   `json:"user_agent,omitempty"`
}

// DeliveryConfig lists notification sinks and the retry policy shared by
// them. Delivery is configured when at least one sink has its credentials.
//
// RetryMax is a pointer so an explicit 0 (no retries) survives defaults.
type DeliveryConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`

	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      *int   `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

type DiscordConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"`
	Username   string `json:"username,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
}

// StorageConfig selects the ledger.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./volo_activities.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // sqlite (default) | memory
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// OpsConfig controls the optional operations HTTP server (metrics, health,
// manual poll, pprof).
//
// Security note:
//   - Prefer binding to localhost.
//   - A non-loopback Addr requires Token, or AllowInsecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default "127.0.0.1:9464"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// DiscordEnabled reports whether the Discord sink has a webhook.
func (d DeliveryConfig) DiscordEnabled() bool { return d.Discord.WebhookURL != "" }

// TelegramEnabled reports whether the Telegram sink has a token and chat.
func (d DeliveryConfig) TelegramEnabled() bool {
	return d.Telegram.Token != "" && d.Telegram.ChatID != 0
}

// Configured reports whether any sink is enabled.
func (d DeliveryConfig) Configured() bool { return d.DiscordEnabled() || d.TelegramEnabled() }
