package watcher

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"volowatch/internal/activity"
	"volowatch/internal/eventbus"
	"volowatch/internal/ledger"
	"volowatch/internal/notifier"
	logx "volowatch/pkg/logx"
)

// State is the poller's lifecycle position.
type State int32

const (
	StateBootstrap State = iota
	StateIdle
	StatePolling
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateBootstrap:
		return "bootstrap"
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Cycle outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeBootstrap      = "bootstrap"
	OutcomeFetchFailed    = "fetch_failed"
	OutcomeStoreFailed    = "store_failed"
	OutcomeDeliveryFailed = "delivery_failed"
	OutcomeNotConfigured  = "not_configured"
)

// Fetcher returns the current feed snapshot. feed.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context) ([]activity.Raw, error)
}

// SkippedItem is the loggable form of an ItemError.
type SkippedItem struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// CycleReport summarizes one bootstrap or poll cycle.
type CycleReport struct {
	ID        string        `json:"id"`
	Bootstrap bool          `json:"bootstrap,omitempty"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Outcome   string        `json:"outcome"`
	Fetched   int           `json:"fetched"`
	New       int           `json:"new"`
	Updated   int           `json:"updated"`
	Eligible  int           `json:"eligible"`
	Delivered int           `json:"delivered"`
	Skipped   []SkippedItem `json:"skipped,omitempty"`
	Err       string        `json:"error,omitempty"`
}

// Options wires a Poller. Fetcher, Normalizer, Store and Schedule are
// required.
type Options struct {
	Fetcher    Fetcher
	Normalizer Normalizer
	Store      ledger.Store
	// Deliverer is nil when no notification target is configured.
	Deliverer notifier.Deliverer
	Schedule  cron.Schedule
	Bus       eventbus.Bus
	Log       logx.Logger
	// OnReady runs once, right after bootstrap.
	OnReady func(CycleReport)
}

// Poller runs the watch loop. Run must be called at most once; every other
// method is safe for concurrent use.
type Poller struct {
	fetcher Fetcher
	cls     *Classifier
	store   ledger.Store
	deliver notifier.Deliverer
	bus     eventbus.Bus
	log     logx.Logger
	onReady func(CycleReport)
	now     func() time.Time

	state   atomic.Int32
	running atomic.Bool
	trigger chan struct{}
	resched chan struct{}

	mu      sync.Mutex
	sched   cron.Schedule
	last    CycleReport
	hasLast bool
}

func New(opt Options) (*Poller, error) {
	switch {
	case opt.Fetcher == nil:
		return nil, errors.New("watcher: fetcher is required")
	case opt.Normalizer == nil:
		return nil, errors.New("watcher: normalizer is required")
	case opt.Store == nil:
		return nil, errors.New("watcher: store is required")
	case opt.Schedule == nil:
		return nil, errors.New("watcher: schedule is required")
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := opt.Bus
	if bus == nil {
		bus = eventbus.Nop()
	}
	p := &Poller{
		fetcher: opt.Fetcher,
		cls:     NewClassifier(opt.Store, opt.Normalizer, log),
		store:   opt.Store,
		deliver: opt.Deliverer,
		bus:     bus,
		log:     log,
		onReady: opt.OnReady,
		now:     time.Now,
		trigger: make(chan struct{}, 1),
		resched: make(chan struct{}, 1),
		sched:   opt.Schedule,
	}
	p.state.Store(int32(StateBootstrap))
	return p, nil
}

// State returns the current lifecycle state.
func (p *Poller) State() State { return State(p.state.Load()) }

// LastReport returns the most recent cycle report, if any cycle ran.
func (p *Poller) LastReport() (CycleReport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// Trigger asks for a cycle now instead of at the next activation. It
// returns false if a trigger is already pending. A trigger received while
// a cycle runs starts another one right after it.
func (p *Poller) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// SetSchedule replaces the schedule. A pending wait is re-armed against the
// new schedule.
func (p *Poller) SetSchedule(s cron.Schedule) {
	if s == nil {
		return
	}
	p.mu.Lock()
	p.sched = s
	p.mu.Unlock()
	select {
	case p.resched <- struct{}{}:
	default:
	}
}

func (p *Poller) schedule() cron.Schedule {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sched
}

// Run bootstraps, then polls until ctx is cancelled (returns nil) or the
// ledger is closed underneath it (returns the store error). The store is
// closed when Run returns.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("watcher: poller already running")
	}
	defer func() {
		if err := p.store.Close(); err != nil && !errors.Is(err, ledger.ErrClosed) {
			p.log.Warn("ledger close failed", logx.Err(err))
		}
	}()

	p.setState(StateBootstrap)
	rep, err := p.bootstrap(ctx)
	if err != nil {
		p.setState(StateFatal)
		return err
	}
	if p.onReady != nil {
		p.onReady(rep)
	}

	for {
		p.setState(StateIdle)
		if !p.wait(ctx) {
			p.log.Info("poller stopped")
			return nil
		}
		p.setState(StatePolling)
		if _, err := p.poll(ctx); err != nil {
			p.setState(StateFatal)
			return err
		}
	}
}

// wait blocks until the next activation after the moment it was entered,
// a trigger, or cancellation. It reports false on cancellation.
func (p *Poller) wait(ctx context.Context) bool {
	from := p.now()
	for {
		// A zero Next means the schedule never fires again; only a trigger
		// or stop wakes us then.
		d := time.Duration(math.MaxInt64)
		if next := p.schedule().Next(from); !next.IsZero() {
			d = next.Sub(p.now())
		}
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-p.trigger:
			timer.Stop()
			return true
		case <-p.resched:
			timer.Stop()
		case <-timer.C:
			return true
		}
	}
}

func (p *Poller) bootstrap(ctx context.Context) (CycleReport, error) {
	rep := p.newReport(true)
	raws, err := p.fetcher.Fetch(ctx)
	if err != nil {
		rep.Outcome = OutcomeFetchFailed
		rep.Err = err.Error()
		p.log.Warn("bootstrap fetch failed; nothing catalogued", logx.String("cycle", rep.ID), logx.Err(err))
		p.finish(&rep)
		return rep, nil
	}
	rep.Fetched = len(raws)

	storeCtx := context.WithoutCancel(ctx)
	res, err := p.cls.Classify(storeCtx, raws)
	rep.apply(res)
	if err != nil {
		return p.storeFailure(rep, err)
	}
	if len(res.New) > 0 {
		if err := p.store.MarkNotified(storeCtx, activity.IDs(res.New)); err != nil {
			return p.storeFailure(rep, err)
		}
	}
	rep.Outcome = OutcomeBootstrap
	p.log.Info("bootstrap complete; current listings catalogued without notifying",
		logx.String("cycle", rep.ID), logx.Int("catalogued", len(res.New)))
	p.finish(&rep)
	return rep, nil
}

func (p *Poller) poll(ctx context.Context) (CycleReport, error) {
	rep := p.newReport(false)
	raws, err := p.fetcher.Fetch(ctx)
	if err != nil {
		rep.Outcome = OutcomeFetchFailed
		rep.Err = err.Error()
		p.log.Warn("fetch failed; cycle skipped", logx.String("cycle", rep.ID), logx.Err(err))
		p.finish(&rep)
		return rep, nil
	}
	rep.Fetched = len(raws)

	// Ledger writes and delivery run to completion even if a stop arrives
	// mid-cycle; sinks bound each send with their own timeout.
	storeCtx := context.WithoutCancel(ctx)
	res, err := p.cls.Classify(storeCtx, raws)
	rep.apply(res)
	if err != nil {
		return p.storeFailure(rep, err)
	}
	for _, a := range res.New {
		p.bus.Publish(eventbus.Event{Type: eventbus.TopicNew, Data: a})
	}

	eligible := FilterNotifiable(res.New)
	rep.Eligible = len(eligible)
	rep.Outcome = OutcomeOK

	switch {
	case len(res.New) == 0:
	case len(eligible) == 0:
		if err := p.store.MarkNotified(storeCtx, activity.IDs(res.New)); err != nil {
			return p.storeFailure(rep, err)
		}
	default:
		derr := p.deliverTo(storeCtx, eligible)
		switch {
		case derr == nil:
			rep.Delivered = len(eligible)
			if err := p.store.MarkNotified(storeCtx, activity.IDs(res.New)); err != nil {
				return p.storeFailure(rep, err)
			}
		case errors.Is(derr, notifier.ErrNotConfigured):
			rep.Outcome = OutcomeNotConfigured
			p.log.Info("no notification target configured; new activities left unnotified",
				logx.String("cycle", rep.ID), logx.Strings("ids", activity.IDs(eligible)))
		default:
			rep.Outcome = OutcomeDeliveryFailed
			rep.Err = derr.Error()
			ids := activity.IDs(eligible)
			p.log.Error("delivery failed; activities will not be retried",
				logx.String("cycle", rep.ID), logx.Strings("ids", ids), logx.Err(derr))
			p.bus.Publish(eventbus.Event{Type: eventbus.TopicDeliveryFailed, Data: ids})
		}
	}

	p.finish(&rep)
	return rep, nil
}

func (p *Poller) deliverTo(ctx context.Context, as []activity.Activity) error {
	if p.deliver == nil {
		return notifier.ErrNotConfigured
	}
	return p.deliver.Deliver(ctx, as)
}

// storeFailure ends a cycle on a ledger error. Only a closed ledger is
// returned to the caller; anything else is retried next cycle.
func (p *Poller) storeFailure(rep CycleReport, err error) (CycleReport, error) {
	rep.Outcome = OutcomeStoreFailed
	rep.Err = err.Error()
	p.log.Error("ledger error; cycle aborted", logx.String("cycle", rep.ID), logx.Err(err))
	p.finish(&rep)
	if errors.Is(err, ledger.ErrClosed) {
		return rep, err
	}
	return rep, nil
}

func (p *Poller) newReport(bootstrap bool) CycleReport {
	return CycleReport{ID: uuid.NewString(), Bootstrap: bootstrap, Started: p.now()}
}

func (r *CycleReport) apply(c Classification) {
	r.New = len(c.New)
	r.Updated = c.Updated
	for _, s := range c.Skipped {
		r.Skipped = append(r.Skipped, SkippedItem{ID: s.ID, Kind: s.Kind, Error: s.Err.Error()})
	}
}

func (p *Poller) finish(rep *CycleReport) {
	rep.Duration = p.now().Sub(rep.Started)

	p.mu.Lock()
	p.last = *rep
	p.hasLast = true
	p.mu.Unlock()

	p.log.Info("cycle complete",
		logx.String("cycle", rep.ID),
		logx.String("outcome", rep.Outcome),
		logx.Int("fetched", rep.Fetched),
		logx.Int("new", rep.New),
		logx.Int("updated", rep.Updated),
		logx.Int("eligible", rep.Eligible),
		logx.Int("delivered", rep.Delivered),
		logx.Int("skipped", len(rep.Skipped)),
		logx.Duration("took", rep.Duration),
	)
	recordCycle(*rep)
	p.bus.Publish(eventbus.Event{Type: eventbus.TopicCycle, Data: *rep})
}

func (p *Poller) setState(s State) {
	if State(p.state.Swap(int32(s))) == s {
		return
	}
	recordState(s)
	p.log.Debug("poller state", logx.String("state", s.String()))
	p.bus.Publish(eventbus.Event{Type: eventbus.TopicStateChanged, Data: s.String()})
}
