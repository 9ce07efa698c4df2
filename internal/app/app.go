// Package app wires the watcher daemon: config, logging, ledger, feed,
// delivery, poller, ops endpoint and systemd integration, all run under one
// supervisor.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"volowatch/internal/config"
	"volowatch/internal/eventbus"
	"volowatch/internal/notifier"
	"volowatch/internal/ops"
	"volowatch/internal/runtime/supervisor"
	"volowatch/internal/watcher"
	logx "volowatch/pkg/logx"
)

const stopTimeout = 10 * time.Second

type App struct {
	cfgm *config.Manager

	log    logx.Logger
	logs   *logx.Service
	bus    eventbus.Bus
	notif  *notifier.Service
	poller *watcher.Poller
	ops    *ops.Server
	sd     *sdNotify
	sup    *supervisor.Supervisor
}

// New loads the config and builds every component. The ledger is opened
// here and closed by the poller when Run returns.
func New(cfgm *config.Manager) (*App, error) {
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := NewLogger(cfg)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	sinks, err := buildSinks(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	sched, err := buildSchedule(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	client, norm, err := NewFeed(cfg, root)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := OpenLedger(cfg, root)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgm: cfgm,
		log:  log,
		logs: logSvc,
		bus:  eventbus.New(),
		sd:   newSDNotify(root.With(logx.String("comp", "systemd"))),
	}
	a.notif = notifier.New(mapNotifier(cfg), root.With(logx.String("comp", "notifier")), sinks...)

	var deliver notifier.Deliverer
	if a.notif.Configured() {
		deliver = a.notif
	} else {
		log.Warn("no delivery target configured; new activities will be recorded but not sent",
			logx.String("hint", "set "+config.EnvDiscordWebhook+" or "+config.EnvTelegramToken+"/"+config.EnvTelegramChatID))
	}

	a.poller, err = watcher.New(watcher.Options{
		Fetcher:    client,
		Normalizer: norm,
		Store:      store,
		Deliverer:  deliver,
		Schedule:   sched,
		Bus:        a.bus,
		Log:        root.With(logx.String("comp", "watcher")),
		OnReady:    a.onReady,
	})
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	a.ops = ops.New(mapOps(cfg), a.poller, root.With(logx.String("comp", "ops")), ops.WithTasks(a.tasks))

	spec, _ := cfg.ScheduleSpec()
	log.Info("watcher configured",
		logx.String("schedule", spec.String()),
		logx.String("organization", cfg.Feed.Organization),
		logx.Strings("sports", cfg.Feed.Sports),
		logx.Strings("sinks", a.notif.Sinks()),
		logx.String("ledger", cfg.Storage.Driver+":"+cfg.Storage.Path),
	)
	return a, nil
}

// Watcher exposes the poller for status and manual triggers.
func (a *App) Watcher() *watcher.Poller { return a.poller }

func (a *App) tasks() []supervisor.TaskStats {
	if a.sup == nil {
		return nil
	}
	return a.sup.Snapshot()
}

// Run blocks until ctx is cancelled (returns nil) or a component fails
// fatally (returns its error).
func (a *App) Run(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	// Subscribe before the poller starts so no early event is missed.
	events, unsub := a.bus.Subscribe(128)
	cfgSub := a.cfgm.Subscribe(8)

	a.sup.Go("watcher", a.poller.Run)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		a.logEvents(c, events)
		return nil
	})
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(cfgSub)
		a.reloadLoop(c, cfgSub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	// The ops endpoint is optional; a failing listener must not stop the watcher.
	a.sup.GoRestart("ops.http", a.ops.Serve, 500*time.Millisecond, 10*time.Second)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return a.sd.Watchdog(c, watchdogInterval(), func() bool {
			return a.poller.State() != watcher.StateFatal
		})
	})

	a.log.Info("app started")
	<-a.sup.Context().Done()
	return a.stop()
}

func (a *App) stop() error {
	reason := "signal"
	err := a.sup.Err()
	if err != nil {
		reason = "fatal error"
	}
	a.log.Info("stopping", logx.String("reason", reason))
	a.sd.Stopping()

	waitCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if werr := a.sup.Wait(waitCtx); werr != nil && !errors.Is(werr, err) {
		a.log.Warn("shutdown did not finish cleanly", logx.Err(werr))
	}

	if err != nil {
		a.log.Error("stopped", logx.Err(err))
	} else {
		a.log.Info("stopped")
	}
	_ = a.logs.Close()
	return err
}

func (a *App) onReady(rep watcher.CycleReport) {
	a.sd.Ready()
	a.sd.Status(fmt.Sprintf("watching; %d activities catalogued at startup", rep.New))
}

func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			if e.Type != eventbus.TopicCycle {
				continue
			}
			if rep, ok := e.Data.(watcher.CycleReport); ok && !rep.Bootstrap {
				a.sd.Status(fmt.Sprintf("last cycle %s at %s: %d new, %d delivered",
					rep.Outcome, rep.Started.Format(time.Kitchen), rep.New, rep.Delivered))
			}
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			a.apply(last, cfg)
			last = cfg
		}
	}
}

// apply pushes a validated config into the running components. Settings
// that are bound at startup are reported and left alone.
func (a *App) apply(prev, cfg *config.Config) {
	a.logs.Apply(mapLogging(cfg))

	if sched, err := buildSchedule(cfg); err != nil {
		a.log.Warn("invalid schedule; keeping previous", logx.Err(err))
	} else {
		a.poller.SetSchedule(sched)
	}
	a.notif.Apply(mapNotifier(cfg))
	a.ops.Reconfigure(mapOps(cfg))

	if sections := restartRequired(prev, cfg); len(sections) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(sections, ",")))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TopicConfigReloaded})

	spec, _ := cfg.ScheduleSpec()
	a.log.Info("config reloaded", logx.String("schedule", spec.String()), logx.String("level", cfg.Logging.Level))
}

// restartRequired lists config sections that differ and are only read at
// startup.
func restartRequired(prev, cfg *config.Config) []string {
	var out []string
	if prev.Storage != cfg.Storage {
		out = append(out, "storage")
	}
	if !feedEqual(prev.Feed, cfg.Feed) {
		out = append(out, "feed")
	}
	if prev.Delivery.Discord != cfg.Delivery.Discord || prev.Delivery.Telegram != cfg.Delivery.Telegram {
		out = append(out, "delivery.sinks")
	}
	return out
}

func feedEqual(a, b config.FeedConfig) bool {
	return a.URL == b.URL &&
		a.Organization == b.Organization &&
		slices.Equal(a.Sports, b.Sports) &&
		slices.Equal(a.ProgramTypes, b.ProgramTypes) &&
		a.PageSize == b.PageSize &&
		a.MaxPages == b.MaxPages &&
		a.Timeout == b.Timeout &&
		a.Timezone == b.Timezone &&
		a.UserAgent == b.UserAgent
}
