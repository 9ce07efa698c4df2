package ledger

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"volowatch/internal/activity"
	logx "volowatch/pkg/logx"
)

// fakeClock hands out strictly increasing timestamps.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC)}

	sq, err := openSQLite(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "volo.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("openSQLite: %v", err)
	}
	sq.now = clk.Now
	t.Cleanup(func() { _ = sq.Close() })

	mem := NewMemory()
	mem.Now = (&fakeClock{t: clk.t}).Now

	return map[string]Store{"sqlite": sq, "memory": mem}
}

func sample(id string, spots int) activity.Activity {
	return activity.Activity{
		ID:             id,
		Type:           activity.TypePickup,
		Sport:          "Volleyball",
		Name:           "Sunday Pickup",
		Date:           "Thu Jan 30",
		Venue:          "Mission Bay",
		SpotsAvailable: activity.IntPtr(spots),
	}
}

func TestUpsertNewWritesRecordAndOneLog(t *testing.T) {
	t.Parallel()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := st.UpsertNew(ctx, sample("a1", 4)); err != nil {
				t.Fatalf("UpsertNew: %v", err)
			}

			ids, err := st.KnownIDs(ctx)
			if err != nil {
				t.Fatalf("KnownIDs: %v", err)
			}
			if _, ok := ids["a1"]; !ok || len(ids) != 1 {
				t.Fatalf("KnownIDs = %v, want {a1}", ids)
			}

			rec, err := st.Get(ctx, "a1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if rec.Notified {
				t.Fatal("new record must not be notified")
			}
			if !rec.FirstSeenAt.Equal(rec.LastSeenAt) {
				t.Fatalf("first_seen_at %v != last_seen_at %v", rec.FirstSeenAt, rec.LastSeenAt)
			}
			if rec.SpotsAvailable == nil || *rec.SpotsAvailable != 4 {
				t.Fatalf("spots = %v, want 4", rec.SpotsAvailable)
			}

			logs, err := st.Logs(ctx, LogOptions{ActivityID: "a1"})
			if err != nil {
				t.Fatalf("Logs: %v", err)
			}
			if len(logs) != 1 {
				t.Fatalf("got %d log entries, want 1", len(logs))
			}
			if logs[0].EventType != EventNew || logs[0].Details != "Volleyball: Sunday Pickup" {
				t.Fatalf("unexpected log entry: %+v", logs[0])
			}
		})
	}
}

func TestTouchExistingKeepsFirstSeenAndWritesNoLog(t *testing.T) {
	t.Parallel()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := st.UpsertNew(ctx, sample("a1", 4)); err != nil {
				t.Fatalf("UpsertNew: %v", err)
			}
			before, _ := st.Get(ctx, "a1")

			if err := st.TouchExisting(ctx, "a1", activity.IntPtr(1)); err != nil {
				t.Fatalf("TouchExisting: %v", err)
			}
			after, err := st.Get(ctx, "a1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !after.FirstSeenAt.Equal(before.FirstSeenAt) {
				t.Fatalf("first_seen_at changed: %v -> %v", before.FirstSeenAt, after.FirstSeenAt)
			}
			if !after.LastSeenAt.After(before.LastSeenAt) {
				t.Fatalf("last_seen_at not advanced: %v -> %v", before.LastSeenAt, after.LastSeenAt)
			}
			if after.SpotsAvailable == nil || *after.SpotsAvailable != 1 {
				t.Fatalf("spots = %v, want 1", after.SpotsAvailable)
			}

			if err := st.TouchExisting(ctx, "a1", nil); err != nil {
				t.Fatalf("TouchExisting(nil): %v", err)
			}
			cleared, _ := st.Get(ctx, "a1")
			if cleared.SpotsAvailable != nil {
				t.Fatalf("spots = %v, want absent", *cleared.SpotsAvailable)
			}

			logs, _ := st.Logs(ctx, LogOptions{ActivityID: "a1"})
			if len(logs) != 1 {
				t.Fatalf("touch must not append logs, got %d entries", len(logs))
			}
		})
	}
}

func TestTouchUnknownID(t *testing.T) {
	t.Parallel()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			err := st.TouchExisting(context.Background(), "ghost", nil)
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
			var se *StoreError
			if !errors.As(err, &se) || se.Op != "touch" {
				t.Fatalf("err = %v, want *StoreError{Op: touch}", err)
			}
		})
	}
}

func TestMarkNotifiedIdempotentAndTolerant(t *testing.T) {
	t.Parallel()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"a1", "a2"} {
				if err := st.UpsertNew(ctx, sample(id, 2)); err != nil {
					t.Fatalf("UpsertNew(%s): %v", id, err)
				}
			}
			ids := []string{"a1", "missing"}
			if err := st.MarkNotified(ctx, ids); err != nil {
				t.Fatalf("MarkNotified: %v", err)
			}
			if err := st.MarkNotified(ctx, ids); err != nil {
				t.Fatalf("second MarkNotified: %v", err)
			}
			if err := st.MarkNotified(ctx, nil); err != nil {
				t.Fatalf("empty MarkNotified: %v", err)
			}

			rec, _ := st.Get(ctx, "a1")
			if !rec.Notified {
				t.Fatal("a1 should be notified")
			}
			pending, err := st.List(ctx, ListOptions{PendingOnly: true})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if got := recordIDs(pending); !cmp.Equal(got, []string{"a2"}) {
				t.Fatalf("pending = %v, want [a2]", got)
			}
			if _, err := st.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("unknown id must not be created, Get err = %v", err)
			}
		})
	}
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if _, err := st.KnownIDs(context.Background()); !errors.Is(err, ErrClosed) {
				t.Fatalf("KnownIDs after close: %v, want ErrClosed", err)
			}
			if err := st.UpsertNew(context.Background(), sample("a1", 1)); !errors.Is(err, ErrClosed) {
				t.Fatalf("UpsertNew after close: %v, want ErrClosed", err)
			}
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "volo.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.UpsertNew(ctx, sample("a1", 3)); err != nil {
		t.Fatalf("UpsertNew: %v", err)
	}
	if err := st.MarkNotified(ctx, []string{"a1"}); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	rec, err := st.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	want := SeenRecord{ID: "a1", Sport: "Volleyball", Name: "Sunday Pickup", Date: "Thu Jan 30", Venue: "Mission Bay", SpotsAvailable: activity.IntPtr(3), Notified: true}
	if diff := cmp.Diff(want, rec, cmpIgnoreTimes()); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("expected error for sqlite without path")
	}
}

func cmpIgnoreTimes() cmp.Option {
	return cmp.FilterPath(func(p cmp.Path) bool {
		switch p.Last().String() {
		case ".FirstSeenAt", ".LastSeenAt":
			return true
		}
		return false
	}, cmp.Ignore())
}

func recordIDs(rs []SeenRecord) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestOptionalPragmaFailureIsLogged(t *testing.T) {
	t.Parallel()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "p.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var buf bytes.Buffer
	applyOptionalPragmas(db, logx.NewWriter(&buf, "debug"), []string{"PRAGMA synchronous = NORMAL", "PRAGMA (broken"})

	out := buf.String()
	if !strings.Contains(out, "sqlite pragma not applied") || !strings.Contains(out, "PRAGMA (broken") {
		t.Fatalf("missing debug line for failed pragma: %s", out)
	}
	if strings.Contains(out, "synchronous") {
		t.Fatalf("successful pragma was reported: %s", out)
	}
}
