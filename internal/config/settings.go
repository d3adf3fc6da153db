package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const DefaultDailyAt = "09:00"

// ScheduleSpec is the trigger expression serve registers.
func (c *Config) ScheduleSpec() string {
	if s := strings.TrimSpace(c.Scheduler.Schedule); s != "" {
		return s
	}
	if s := strings.TrimSpace(c.Scheduler.DailyAt); s != "" {
		return s
	}
	return DefaultDailyAt
}

// Durations holds the parsed duration fields. Zero means "use the consumer's
// default".
type Durations struct {
	BatchTimeout  time.Duration
	EngineTimeout time.Duration
	SendTimeout   time.Duration
	ExpiryWindow  time.Duration
	BusyTimeout   time.Duration
	LockTTL       time.Duration
}

func (c *Config) Durations() (Durations, error) {
	var (
		d    Durations
		errs []error
	)
	parse := func(dst *time.Duration, path, raw string) {
		v, err := ParseDurationField(path, raw)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = v
	}
	parse(&d.BatchTimeout, "scheduler.timeout", c.Scheduler.Timeout)
	parse(&d.EngineTimeout, "task_engine.default_timeout", c.TaskEngine.DefaultTimeout)
	parse(&d.SendTimeout, "dispatch.send_timeout", c.Dispatch.SendTimeout)
	parse(&d.ExpiryWindow, "rules.expiry_window", c.Rules.ExpiryWindow)
	parse(&d.BusyTimeout, "storage.busy_timeout", c.Storage.BusyTimeout)
	parse(&d.LockTTL, "lock.ttl", c.Lock.TTL)
	return d, errors.Join(errs...)
}

// Validate checks what can be checked without the consumers. Driver names
// and schedule syntax are checked by the application validator.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if _, err := c.Durations(); err != nil {
		errs = append(errs, err)
	}
	nonNeg := func(path string, v int) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s: must be >= 0", path))
		}
	}
	nonNeg("task_engine.workers", c.TaskEngine.Workers)
	nonNeg("task_engine.queue_size", c.TaskEngine.QueueSize)
	nonNeg("task_engine.history_size", c.TaskEngine.HistorySize)
	nonNeg("dispatch.workers", c.Dispatch.Workers)
	nonNeg("rules.low_stock_quantity", c.Rules.LowStockQuantity)
	nonNeg("rules.item_limit", c.Rules.ItemLimit)
	nonNeg("mail.rate_per_sec", c.Mail.RatePerSec)

	switch strings.ToLower(strings.TrimSpace(c.Lock.Driver)) {
	case "", "file", "flock", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("lock.driver: unknown driver %q", c.Lock.Driver))
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path: required when file logging is enabled"))
	}
	return errors.Join(errs...)
}
