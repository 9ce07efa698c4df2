package ledger

import (
	"context"
	"errors"
	"strings"

	"volowatch/internal/activity"
	logx "volowatch/pkg/logx"
)

// Store is the persistence API used by the watcher and the ledger CLI.
type Store interface {
	// KnownIDs returns every recorded activity id.
	KnownIDs(ctx context.Context) (map[string]struct{}, error)
	// UpsertNew records a first observation and appends one NEW log entry
	// atomically.
	UpsertNew(ctx context.Context, a activity.Activity) error
	// TouchExisting refreshes spots_available and last_seen_at.
	TouchExisting(ctx context.Context, id string, spots *int) error
	// MarkNotified sets notified=true for every recorded id in ids.
	// Unknown ids are ignored.
	MarkNotified(ctx context.Context, ids []string) error

	Get(ctx context.Context, id string) (SeenRecord, error)
	List(ctx context.Context, opt ListOptions) ([]SeenRecord, error)
	Logs(ctx context.Context, opt LogOptions) ([]LogEntry, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		st, err := openSQLite(cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown ledger driver: " + driver)
	}
}
