package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
	SpecDaily
)

// ParsedSpec is a normalized schedule string.
//
// Accepted forms:
//   - Daily wall-clock time: "09:00", "daily 09:00", "at 17:30"
//   - Cron: "0 9 * * 1-5", "@daily", "@every 6h"
//   - Interval: "every:6h", "interval:90m", or a bare Go duration "6h"
//
// Prefix "cron:" forces cron parsing.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Hour   int
	Minute int
}

// CronSpec returns the spec handed to the cron parser.
func (p ParsedSpec) CronSpec() string {
	switch p.Kind {
	case SpecDaily:
		return dailySpec(p.Hour, p.Minute)
	case SpecInterval:
		return "@every " + p.Every.String()
	default:
		return p.Cron
	}
}

func (p ParsedSpec) String() string {
	switch p.Kind {
	case SpecDaily:
		return fmt.Sprintf("daily at %02d:%02d", p.Hour, p.Minute)
	case SpecInterval:
		return "every " + p.Every.String()
	default:
		return p.Cron
	}
}

var reClock = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}
	low := strings.ToLower(s)

	if rest, ok := cutPrefix(low, s, "cron:"); ok {
		if rest == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: rest}, nil
	}
	for _, p := range []string{"every:", "interval:"} {
		if rest, ok := cutPrefix(low, s, p); ok {
			d, err := parseInterval(rest)
			if err != nil {
				return ParsedSpec{}, err
			}
			return ParsedSpec{Kind: SpecInterval, Every: d}, nil
		}
	}
	for _, p := range []string{"daily ", "at "} {
		if rest, ok := cutPrefix(low, s, p); ok {
			return parseDaily(rest)
		}
	}
	if reClock.MatchString(s) {
		return parseDaily(s)
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s}, nil
	}
	if d, err := parseInterval(s); err == nil {
		return ParsedSpec{Kind: SpecInterval, Every: d}, nil
	}
	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use a time like '09:00', cron like '0 9 * * *', or an interval like 'every:6h')",
		raw,
	)
}

func cutPrefix(low, orig, prefix string) (string, bool) {
	if !strings.HasPrefix(low, prefix) {
		return "", false
	}
	return strings.TrimSpace(orig[len(prefix):]), true
}

func parseDaily(v string) (ParsedSpec, error) {
	h, m, err := parseHHMM(v)
	if err != nil {
		return ParsedSpec{}, err
	}
	return ParsedSpec{Kind: SpecDaily, Hour: h, Minute: m}, nil
}

func parseInterval(v string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q (use a Go duration like '55m' or '6h')", v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

// parseHHMM parses a 24h wall-clock time.
func parseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok || len(ms) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

func dailySpec(hour, minute int) string {
	return fmt.Sprintf("%d %d * * *", minute, hour)
}
