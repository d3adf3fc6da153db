package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stockalert/internal/alert"
	"stockalert/internal/config"
	"stockalert/internal/runlock"
	"stockalert/internal/storage"
	"stockalert/internal/task/engine"
	"stockalert/internal/task/scheduler"
	logx "stockalert/pkg/logx"
)

const (
	defaultEngineWorkers = 1
	defaultQueueSize     = 4
	defaultHistorySize   = 50
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapEngineConfig: one batch at a time is all serve ever needs, so the
// engine defaults are small. The engine is always enabled; the scheduler
// decides whether anything is triggered.
func mapEngineConfig(cfg *config.Config, d config.Durations) engine.Config {
	ec := engine.Config{
		Enabled:        true,
		Workers:        cfg.TaskEngine.Workers,
		QueueSize:      cfg.TaskEngine.QueueSize,
		DefaultTimeout: d.EngineTimeout,
		HistorySize:    cfg.TaskEngine.HistorySize,
	}
	if ec.Workers <= 0 {
		ec.Workers = defaultEngineWorkers
	}
	if ec.QueueSize <= 0 {
		ec.QueueSize = defaultQueueSize
	}
	if ec.HistorySize <= 0 {
		ec.HistorySize = defaultHistorySize
	}
	return ec
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: cfg.Scheduler.Timezone}
}

func mapStorageConfig(cfg *config.Config, d config.Durations) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		DSN:         strings.TrimSpace(cfg.Storage.DSN),
		Database:    cfg.Storage.Database,
		BusyTimeout: d.BusyTimeout,
	}
}

func mapLockConfig(cfg *config.Config, env config.Env, d config.Durations) runlock.Config {
	path := strings.TrimSpace(cfg.Lock.Path)
	if path == "" {
		path = filepath.Join(os.TempDir(), "stockalert.lock")
	}
	return runlock.Config{
		Driver:   cfg.Lock.Driver,
		Path:     path,
		RedisURL: env.RedisURL,
		TTL:      d.LockTTL,
	}
}

func mapThresholds(cfg *config.Config, d config.Durations) alert.Thresholds {
	th := alert.DefaultThresholds()
	if cfg.Rules.LowStockQuantity > 0 {
		th.LowStockQuantity = cfg.Rules.LowStockQuantity
	}
	if cfg.Rules.ItemLimit > 0 {
		th.ItemLimit = cfg.Rules.ItemLimit
	}
	if d.ExpiryWindow > 0 {
		th.ExpiryWindow = d.ExpiryWindow
	}
	return th
}

// validateConfig is installed on the config manager so bad hot reloads are
// rejected before anything is applied.
func validateConfig(_ context.Context, cfg *config.Config) error {
	var errs []error
	if !storage.ValidDriver(cfg.Storage.Driver) {
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q (want one of %s)",
			cfg.Storage.Driver, strings.Join(storage.Drivers(), ", ")))
	}
	if strings.TrimSpace(cfg.Storage.DSN) == "" {
		errs = append(errs, errors.New("storage.dsn: required (or set STORE_DSN)"))
	}
	if _, err := scheduler.ParseSchedule(cfg.ScheduleSpec()); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if _, err := scheduler.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone: invalid %q: %w", cfg.Scheduler.Timezone, err))
	}
	return errors.Join(errs...)
}

// restartOnly lists sections whose changes are not applied live.
var restartOnly = map[string]string{
	"storage":  "store session settings",
	"mail":     "delivery throttle and tag",
	"lock":     "run lock",
	"dispatch": "worker count, send timeout and subject",
}

func stepTimeout(ctx context.Context, max time.Duration) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, max)
}
