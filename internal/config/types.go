package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("30s", "720h"). Secrets never live here; see Env.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	TaskEngine TaskEngineConfig `json:"task_engine,omitempty"`
	Dispatch   DispatchConfig   `json:"dispatch,omitempty"`
	Rules      RulesConfig      `json:"rules,omitempty"`
	Storage    StorageConfig    `json:"storage"`
	Mail       MailConfig       `json:"mail,omitempty"`
	Lock       LockConfig       `json:"lock,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls when the batch is triggered by serve.
//
// DailyAt is a 24h wall-clock time in Timezone. Schedule, when set, wins over
// DailyAt and accepts anything scheduler.ParseSchedule does.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	DailyAt  string `json:"daily_at,omitempty"`
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	// Timeout bounds one batch. "0s" disables it.
	Timeout string `json:"timeout,omitempty"`
}

type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

type DispatchConfig struct {
	Workers     int    `json:"workers,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	Subject     string `json:"subject,omitempty"`
}

type RulesConfig struct {
	LowStockQuantity int    `json:"low_stock_quantity,omitempty"`
	ItemLimit        int    `json:"item_limit,omitempty"`
	ExpiryWindow     string `json:"expiry_window,omitempty"`
}

// StorageConfig selects the inventory store.
//
//	"storage": { "driver": "sqlite", "dsn": "./data/inventory.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	DSN         string `json:"dsn,omitempty"`
	Database    string `json:"database,omitempty"`     // mongo only
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type MailConfig struct {
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Tag        string `json:"tag,omitempty"`
}

// LockConfig selects the cross-process run lock: "file" (default), "redis"
// or "none".
type LockConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
	TTL    string `json:"ttl,omitempty"`
}
