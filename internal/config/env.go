package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrParsingEnv = errors.New("failed to parse environment")

// Env carries process-level settings that do not belong in the config file.
type Env struct {
	ConfigPath string `env:"STOCKALERT_CONFIG" envDefault:"config.yaml"`
	StoreDSN   string `env:"STORE_DSN"`
	RedisURL   string `env:"REDIS_URL"`
}

// LoadEnv loads dotenv files (".env" when none are given) into the process
// environment without overriding variables already set, then parses v from
// the environment. Missing dotenv files are not an error.
func LoadEnv[T any](v *T, files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Join(ErrParsingEnv, err)
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingEnv, err)
	}
	return nil
}

// ApplyEnv overlays environment-provided values onto c.
func (c *Config) ApplyEnv(e Env) {
	if s := strings.TrimSpace(e.StoreDSN); s != "" {
		c.Storage.DSN = s
	}
	if strings.TrimSpace(e.RedisURL) != "" && strings.TrimSpace(c.Lock.Driver) == "" {
		c.Lock.Driver = "redis"
	}
}
