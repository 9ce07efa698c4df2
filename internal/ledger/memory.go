package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"volowatch/internal/activity"
)

// Memory is an in-process Store. It is used for dry runs (`scan`, tests)
// and behaves like the sqlite driver, including ErrClosed after Close.
type Memory struct {
	mu      sync.Mutex
	records map[string]*SeenRecord
	logs    []LogEntry
	closed  bool

	// Now is the clock used for timestamps; defaults to time.Now.
	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{records: map[string]*SeenRecord{}, Now: time.Now}
}

func (m *Memory) stamp() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) KnownIDs(_ context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, storeErr("known_ids", "", ErrClosed)
	}
	out := make(map[string]struct{}, len(m.records))
	for id := range m.records {
		out[id] = struct{}{}
	}
	return out, nil
}

func (m *Memory) UpsertNew(_ context.Context, a activity.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return storeErr("upsert", a.ID, ErrClosed)
	}
	now := m.stamp()
	rec, ok := m.records[a.ID]
	if !ok {
		rec = &SeenRecord{ID: a.ID, FirstSeenAt: now}
		m.records[a.ID] = rec
	}
	rec.Sport, rec.Name, rec.Date, rec.Venue = a.Sport, a.Name, a.Date, a.Venue
	rec.SpotsAvailable = copyInt(a.SpotsAvailable)
	rec.LastSeenAt = now
	m.logs = append(m.logs, LogEntry{
		ID:         int64(len(m.logs) + 1),
		ActivityID: a.ID,
		EventType:  EventNew,
		Details:    a.Details(),
		CreatedAt:  now,
	})
	return nil
}

func (m *Memory) TouchExisting(_ context.Context, id string, spots *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return storeErr("touch", id, ErrClosed)
	}
	rec, ok := m.records[id]
	if !ok {
		return storeErr("touch", id, ErrNotFound)
	}
	rec.SpotsAvailable = copyInt(spots)
	rec.LastSeenAt = m.stamp()
	return nil
}

func (m *Memory) MarkNotified(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return storeErr("mark_notified", "", ErrClosed)
	}
	for _, id := range ids {
		if rec, ok := m.records[id]; ok {
			rec.Notified = true
		}
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (SeenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return SeenRecord{}, storeErr("get", id, ErrClosed)
	}
	rec, ok := m.records[id]
	if !ok {
		return SeenRecord{}, storeErr("get", id, ErrNotFound)
	}
	cp := *rec
	cp.SpotsAvailable = copyInt(rec.SpotsAvailable)
	return cp, nil
}

func (m *Memory) List(_ context.Context, opt ListOptions) ([]SeenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, storeErr("list", "", ErrClosed)
	}
	out := make([]SeenRecord, 0, len(m.records))
	for _, rec := range m.records {
		if opt.PendingOnly && rec.Notified {
			continue
		}
		cp := *rec
		cp.SpotsAvailable = copyInt(rec.SpotsAvailable)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeenAt.Equal(out[j].FirstSeenAt) {
			return out[i].FirstSeenAt.Before(out[j].FirstSeenAt)
		}
		return out[i].ID < out[j].ID
	})
	if opt.Limit > 0 && len(out) > opt.Limit {
		out = out[:opt.Limit]
	}
	return out, nil
}

func (m *Memory) Logs(_ context.Context, opt LogOptions) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, storeErr("logs", opt.ActivityID, ErrClosed)
	}
	var out []LogEntry
	for _, e := range m.logs {
		if opt.ActivityID != "" && e.ActivityID != opt.ActivityID {
			continue
		}
		out = append(out, e)
		if opt.Limit > 0 && len(out) == opt.Limit {
			break
		}
	}
	return out, nil
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}
