package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"volowatch/internal/activity"
	"volowatch/internal/ledger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// pickup builds a league row; dropIn builds a game row whose capacity the
// test normalizer reads as male-eligible spots.
func pickup(id string) activity.Raw {
	return activity.Raw{ID: id, League: &activity.RawLeague{
		ProgramType: activity.TypePickup,
		Sport:       &activity.Named{Name: "Volleyball"},
		Name:        "pickup " + id,
	}}
}

func dropIn(id string, maleSpots *int) activity.Raw {
	return activity.Raw{ID: id, Game: &activity.RawGame{
		ID:             id,
		DropInCapacity: &activity.Capacity{TotalAvailableSpots: maleSpots},
	}}
}

var errNoID = errors.New("no id")

var testNorm = NormalizeFunc(func(r activity.Raw) (activity.Activity, error) {
	if r.ID == "" {
		return activity.Activity{}, &activity.NormalizationError{Reason: errNoID.Error()}
	}
	a := activity.Activity{ID: r.ID}
	switch {
	case r.League != nil:
		a.Type = r.League.ProgramType
		a.Name = r.League.Name
		if r.League.Sport != nil {
			a.Sport = r.League.Sport.Name
		}
		if r.League.Registration != nil {
			a.SpotsAvailable = r.League.Registration.AvailableSpots
		}
	case r.Game != nil:
		a.Type = activity.TypeDropIn
		a.Sport = "Soccer"
		if r.Game.DropInCapacity != nil {
			a.MaleEligibleSpots = r.Game.DropInCapacity.TotalAvailableSpots
		}
	default:
		return activity.Activity{}, &activity.NormalizationError{ID: r.ID, Reason: "empty row"}
	}
	return a, nil
})

// countingStore wraps a Store and counts calls per method.
type countingStore struct {
	ledger.Store

	mu    sync.Mutex
	calls map[string]int
	// failOn makes the named method fail with failErr.
	failOn  string
	failErr error
}

func newCountingStore() *countingStore {
	return &countingStore{Store: ledger.NewMemory(), calls: map[string]int{}}
}

func (c *countingStore) hit(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
	if op == c.failOn {
		return c.failErr
	}
	return nil
}

func (c *countingStore) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *countingStore) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *countingStore) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	if err := c.hit("known"); err != nil {
		return nil, err
	}
	return c.Store.KnownIDs(ctx)
}

func (c *countingStore) UpsertNew(ctx context.Context, a activity.Activity) error {
	if err := c.hit("upsert"); err != nil {
		return err
	}
	return c.Store.UpsertNew(ctx, a)
}

func (c *countingStore) TouchExisting(ctx context.Context, id string, spots *int) error {
	if err := c.hit("touch"); err != nil {
		return err
	}
	return c.Store.TouchExisting(ctx, id, spots)
}

func (c *countingStore) MarkNotified(ctx context.Context, ids []string) error {
	if err := c.hit("mark"); err != nil {
		return err
	}
	return c.Store.MarkNotified(ctx, ids)
}

// feedStub returns the configured batch, or err.
type feedStub struct {
	mu    sync.Mutex
	rows  []activity.Raw
	err   error
	calls int
}

func (f *feedStub) set(rows []activity.Raw, err error) {
	f.mu.Lock()
	f.rows, f.err = rows, err
	f.mu.Unlock()
}

func (f *feedStub) Fetch(ctx context.Context) ([]activity.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]activity.Raw(nil), f.rows...), nil
}

func (f *feedStub) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type deliverStub struct {
	mu      sync.Mutex
	err     error
	batches [][]string
}

func (d *deliverStub) Deliver(ctx context.Context, as []activity.Activity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, activity.IDs(as))
	return d.err
}

func (d *deliverStub) Batches() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]string(nil), d.batches...)
}

// every fires d after each reference time.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func notified(t *testing.T, st ledger.Store, id string) bool {
	t.Helper()
	rec, err := st.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return rec.Notified
}

func newLogs(t *testing.T, st ledger.Store, id string) int {
	t.Helper()
	logs, err := st.Logs(context.Background(), ledger.LogOptions{ActivityID: id})
	if err != nil {
		t.Fatalf("Logs(%s): %v", id, err)
	}
	return len(logs)
}
