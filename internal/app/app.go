// Package app wires the batch and its triggers together. Both the serve and
// run commands go through App.RunBatch.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"stockalert/internal/compose"
	"stockalert/internal/config"
	"stockalert/internal/dispatch"
	"stockalert/internal/eventbus"
	"stockalert/internal/mail"
	"stockalert/internal/runlock"
	"stockalert/internal/runtime/supervisor"
	"stockalert/internal/storage"
	"stockalert/internal/task/engine"
	"stockalert/internal/task/scheduler"
	logx "stockalert/pkg/logx"
)

// BatchName is the task and schedule name of the notification batch.
const BatchName = "inventory-alerts"

type Options struct {
	ConfigPath string
	Env        config.Env

	// DryRun evaluates and composes without delivering. Composed messages
	// are kept in Recorded.
	DryRun bool

	// Overrides; nil means build from config. Stop closes a Locker that
	// implements io.Closer.
	Sender mail.Sender
	Opener storage.Opener
	Locker runlock.Locker
}

type App struct {
	cfgm *config.ConfigManager

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.Memory
	sup  *supervisor.Supervisor

	lock     runlock.Locker
	driver   *dispatch.Driver
	recorder *mail.Recorder

	engine *engine.Service
	sched  *scheduler.Service

	batchTimeout atomic.Int64
}

func New(ctx context.Context, opt Options) (*App, error) {
	cfgm := config.NewConfigManager(opt.ConfigPath, opt.Env)
	cfgm.SetValidator(validateConfig)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", opt.ConfigPath, err)
	}
	d, err := cfg.Durations()
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(mapLogConfig(cfg))
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root)

	loc, err := scheduler.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, err
	}
	bus := eventbus.New()

	a := &App{
		cfgm: cfgm,
		log:  log,
		logs: logs,
		bus:  bus,
	}
	a.batchTimeout.Store(int64(d.BatchTimeout))

	sender := opt.Sender
	switch {
	case opt.DryRun:
		a.recorder = &mail.Recorder{}
		sender = a.recorder
	case sender == nil:
		var mc mail.Config
		if err := config.LoadEnv(&mc); err != nil {
			return nil, err
		}
		sender = mail.New(mc, root.With(logx.String("comp", "mail")))
	}
	sender = mail.RateLimited(sender, cfg.Mail.RatePerSec)

	opener := opt.Opener
	if opener == nil {
		opener = storage.NewOpener(mapStorageConfig(cfg, d), root.With(logx.String("comp", "storage")))
	}

	a.lock = opt.Locker
	if a.lock == nil {
		a.lock, err = runlock.New(ctx, mapLockConfig(cfg, opt.Env, d), root.With(logx.String("comp", "runlock")))
		if err != nil {
			return nil, err
		}
	}

	a.driver = dispatch.New(opener, sender, compose.New(cfg.Dispatch.Subject, loc), mapThresholds(cfg, d), dispatch.Options{
		Workers:     cfg.Dispatch.Workers,
		SendTimeout: d.SendTimeout,
		Tag:         cfg.Mail.Tag,
		Location:    loc,
		Log:         root,
		DryRun:      opt.DryRun,
		Observer: dispatch.Observers{
			dispatch.LogObserver{Log: root.With(logx.String("comp", "dispatch"))},
			dispatch.BusObserver{Bus: bus},
		},
	})

	a.engine = engine.New(mapEngineConfig(cfg, d), root.With(logx.String("comp", "taskengine")), bus)
	a.sched = scheduler.New(mapSchedulerConfig(cfg), a.engine, root)
	return a, nil
}

func (a *App) Logger() logx.Logger    { return a.log }
func (a *App) Config() *config.Config { return a.cfgm.Get() }

// Recorded returns the messages composed during a dry run.
func (a *App) Recorded() []mail.Params {
	if a.recorder == nil {
		return nil
	}
	return a.recorder.Sent()
}

// RunBatch takes the cross-process run lock and performs one batch. It fails
// with runlock.ErrLocked when another process holds the lock and with
// dispatch.ErrRunInProgress when this process is already running one.
func (a *App) RunBatch(ctx context.Context) (dispatch.Outcome, error) {
	release, err := a.lock.TryLock(ctx)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	defer func() {
		if err := release(); err != nil {
			a.log.Warn("run lock release failed", logx.Err(err))
		}
	}()

	if timeout := time.Duration(a.batchTimeout.Load()); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return a.driver.RunOnce(ctx)
}

// batchJob is what the scheduler triggers. A batch already running
// elsewhere is not an error for the trigger.
func (a *App) batchJob(ctx context.Context) error {
	_, err := a.RunBatch(ctx)
	switch {
	case errors.Is(err, runlock.ErrLocked):
		a.log.Info("batch skipped: run lock held by another process")
		return nil
	case errors.Is(err, dispatch.ErrRunInProgress):
		a.log.Info("batch skipped: previous run still in progress")
		return nil
	}
	return err
}

// TriggerBatch queues a batch on the running engine now, subject to the same
// overlap rule as a scheduled fire.
func (a *App) TriggerBatch() error {
	if err := a.sched.Trigger(BatchName); err != nil {
		return fmt.Errorf("trigger %s: %w", BatchName, err)
	}
	return nil
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the long-lived serve components: task engine, scheduler,
// config watcher and reload loop.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	cfg := a.cfgm.Get()
	a.engine.Start(c)
	if err := a.registerBatch(cfg); err != nil {
		a.sup.Cancel()
		return err
	}
	a.sched.Start(c)
	if !a.sched.Enabled() {
		a.log.Warn("scheduler disabled; serve will not trigger batches until enabled in config")
	} else {
		a.logNextRuns()
	}

	events, unsub := a.bus.Subscribe(64, "task.")
	a.sup.Go("events.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				if ev, ok := e.Data.(engine.TaskEvent); ok {
					a.log.Debug("task event", logx.String("type", e.Type), logx.String("task", ev.Name),
						logx.Duration("took", ev.Duration), logx.String("error", ev.Error))
				}
			}
		}
	})

	sub := a.cfgm.Subscribe(1)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := cfg
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.String("schedule", cfg.ScheduleSpec()), logx.String("tz", a.sched.Location().String()))
	return nil
}

func (a *App) registerBatch(cfg *config.Config) error {
	d, err := cfg.Durations()
	if err != nil {
		return err
	}
	ps, err := a.sched.AddSchedule(BatchName, cfg.ScheduleSpec(), d.BatchTimeout, a.batchJob)
	if err != nil {
		return fmt.Errorf("register %s schedule: %w", BatchName, err)
	}
	a.log.Debug("batch schedule", logx.String("schedule", ps.String()))
	return nil
}

func (a *App) logNextRuns() {
	next, err := a.sched.NextRuns(BatchName, 3)
	if err != nil || len(next) == 0 {
		return
	}
	out := make([]string, 0, len(next))
	for _, t := range next {
		out = append(out, t.Format(time.RFC3339))
	}
	a.log.Info("next batch runs", logx.Strs("at", out))
}

// applyConfig applies what can change live: logging, rule thresholds, the
// schedule and the engine. Everything else needs a restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, _ := config.SummarizeConfigChange(prev, next)
	d, err := next.Durations()
	if err != nil {
		a.log.Warn("invalid durations in reloaded config; keeping previous", logx.Err(err))
		return
	}

	for _, s := range sections {
		switch s {
		case "logging":
			if err := a.logs.Apply(mapLogConfig(next)); err != nil {
				a.log.Warn("log file sink unavailable", logx.Err(err))
			}
		case "rules":
			a.driver.SetThresholds(mapThresholds(next, d))
			a.log.Info("rule thresholds updated")
		case "task_engine":
			a.engine.Apply(ctx, mapEngineConfig(next, d))
		case "scheduler":
			wasEnabled := a.sched.Enabled()
			a.sched.Apply(mapSchedulerConfig(next))
			a.driver.SetLocation(a.sched.Location())
			a.batchTimeout.Store(int64(d.BatchTimeout))
			if err := a.registerBatch(next); err != nil {
				a.log.Error("schedule update rejected", logx.Err(err))
				continue
			}
			switch {
			case wasEnabled && !next.Scheduler.Enabled:
				stopCtx, cancel := stepTimeout(ctx, 3*time.Second)
				a.sched.Stop(stopCtx)
				cancel()
			case !wasEnabled && next.Scheduler.Enabled:
				a.sched.Start(ctx)
			}
			if next.Scheduler.Enabled {
				a.logNextRuns()
			}
		default:
			if what, ok := restartOnly[s]; ok {
				a.log.Warn("config change requires restart", logx.String("section", s), logx.String("affects", what))
			}
		}
	}
}

// Stop cancels an in-flight batch, then stops the scheduler, engine and
// supervised loops, each bounded by its own step timeout.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeLock()
		_ = a.logs.Close()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		c, cancel := stepTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.closeLock()
	snap := a.Schedules()
	a.log.Info("stopped", logx.String("tz", snap.Timezone),
		logx.Int("batches", len(snap.Engine.History)), logx.Uint64("skipped", snap.Engine.Skipped))
	_ = a.logs.Close()
	return errors.Join(errs...)
}

func (a *App) closeLock() {
	c, ok := a.lock.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		a.log.Warn("run lock close failed", logx.Err(err))
	}
}

// Schedules exposes the scheduler state.
func (a *App) Schedules() scheduler.Snapshot { return a.sched.Snapshot() }
