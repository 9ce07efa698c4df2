package ledger

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("ledger closed")
	// ErrNotFound is returned when an id is not recorded.
	ErrNotFound = errors.New("activity not recorded")
)

// EventNew is the only event type written today.
const EventNew = "NEW"

// Config configures the ledger.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process only, lost on exit
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SeenRecord is the last observed snapshot of one activity.
type SeenRecord struct {
	ID             string
	Sport          string
	Name           string
	Date           string
	Venue          string
	SpotsAvailable *int
	FirstSeenAt    time.Time
	LastSeenAt     time.Time
	Notified       bool
}

// LogEntry is one audit row. Never mutated.
type LogEntry struct {
	ID         int64
	ActivityID string
	EventType  string
	Details    string
	CreatedAt  time.Time
}

type ListOptions struct {
	PendingOnly bool // notified = false only
	Limit       int  // <= 0 means no limit
}

type LogOptions struct {
	ActivityID string
	Limit      int
}

// StoreError wraps an I/O failure on the ledger.
type StoreError struct {
	Op  string
	ID  string
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("ledger %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, ID: id, Err: err}
}
