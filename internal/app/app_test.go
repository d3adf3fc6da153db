package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stockalert/internal/alert"
	"stockalert/internal/config"
	"stockalert/internal/mail"
	"stockalert/internal/runlock"
	"stockalert/internal/storage"
	logx "stockalert/pkg/logx"
)

const testConfig = `
logging:
  level: error
  console: true
scheduler:
  enabled: %t
  daily_at: "09:00"
  timezone: UTC
rules:
  low_stock_quantity: 10
storage:
  driver: sqlite
  dsn: %s
mail:
  tag: test-alerts
lock:
  driver: file
  path: %s
`

type fixture struct {
	dir     string
	cfgPath string
	dbPath  string
}

func newFixture(t *testing.T, schedulerEnabled bool) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:     dir,
		cfgPath: filepath.Join(dir, "config.yaml"),
		dbPath:  filepath.Join(dir, "inventory.db"),
	}
	body := fmt.Sprintf(testConfig, schedulerEnabled, f.dbPath, filepath.Join(dir, "run.lock"))
	if err := os.WriteFile(f.cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	f.seed(t)
	return f
}

// seed bootstraps the schema through the store, then inserts rows directly.
func (f fixture) seed(t *testing.T) {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", DSN: f.dbPath}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.Close()

	db, err := sql.Open("sqlite", f.dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	stmts := []string{
		`INSERT INTO users(id, name, email, active) VALUES
			('u1', 'Dana', 'dana@example.com', 1),
			('u2', 'Eli', 'eli@example.com', 1)`,
		`INSERT INTO notification_preferences VALUES ('u1', 1, 1, 1, 1), ('u2', 0, 1, 1, 1)`,
		`INSERT INTO inventory_items(name, quantity, active) VALUES ('Milk', 3, 1), ('Rice', 40, 1)`,
	}
	for _, q := range stmts {
		if _, err := db.Exec(q); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func (f fixture) insertTransaction(t *testing.T, at time.Time) {
	t.Helper()
	db, err := sql.Open("sqlite", f.dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(`INSERT INTO transactions(created_at) VALUES (?)`, at.UnixMilli()); err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
}

func newApp(t *testing.T, f fixture, opt Options) *App {
	t.Helper()
	opt.ConfigPath = f.cfgPath
	a, err := New(context.Background(), opt)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestRunBatchDeliversToEligibleRecipients(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	rec := &mail.Recorder{}
	a := newApp(t, f, Options{Sender: rec})

	out, err := a.RunBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Recipients != 2 || out.Sent != 1 || out.Skipped != 1 || out.Failed != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	sent := rec.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages", len(sent))
	}
	if sent[0].SendTo != "dana@example.com" || sent[0].Subject != "Inventory Alert Summary" || sent[0].Tag != "test-alerts" {
		t.Fatalf("params = %+v", sent[0])
	}
}

func TestDryRunRecordsWithoutSender(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	a := newApp(t, f, Options{DryRun: true})

	out, err := a.RunBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !out.DryRun || out.Sent != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if got := len(a.Recorded()); got != 1 {
		t.Fatalf("recorded %d messages", got)
	}
}

type heldLock struct{}

func (heldLock) TryLock(context.Context) (func() error, error) { return nil, runlock.ErrLocked }

func TestRunBatchHonoursRunLock(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	rec := &mail.Recorder{}
	a := newApp(t, f, Options{Sender: rec, Locker: heldLock{}})

	if _, err := a.RunBatch(context.Background()); !errors.Is(err, runlock.ErrLocked) {
		t.Fatalf("err = %v, want ErrLocked", err)
	}
	if err := a.batchJob(context.Background()); err != nil {
		t.Fatalf("scheduled trigger should treat a held lock as a skip: %v", err)
	}
	if len(rec.Sent()) != 0 {
		t.Fatal("delivered while lock was held")
	}
}

func TestRunBatchFileLockExcludesSecondProcess(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	a := newApp(t, f, Options{Sender: &mail.Recorder{}})

	other := runlock.NewFile(filepath.Join(f.dir, "run.lock"))
	release, err := other.TryLock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.RunBatch(context.Background()); !errors.Is(err, runlock.ErrLocked) {
		t.Fatalf("err = %v, want ErrLocked", err)
	}
	if err := release(); err != nil {
		t.Fatal(err)
	}
	if _, err := a.RunBatch(context.Background()); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	body := "storage:\n  driver: oracle\n  dsn: x\nscheduler:\n  enabled: true\n  daily_at: \"25:00\"\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(context.Background(), Options{ConfigPath: p, Sender: &mail.Recorder{}})
	if err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestStartRegistersDailyBatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	a := newApp(t, f, Options{Sender: &mail.Recorder{}})

	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap := a.Schedules()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Name != BatchName {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	next := snap.Schedules[0].Next.UTC()
	if next.Hour() != 9 || next.Minute() != 0 {
		t.Fatalf("next run = %s, want 09:00 UTC", next)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestApplyConfigUpdatesThresholds(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	rec := &mail.Recorder{}
	a := newApp(t, f, Options{Sender: rec})

	prev := a.Config()
	next := *prev
	next.Rules = config.RulesConfig{LowStockQuantity: 2}
	a.applyConfig(context.Background(), prev, &next)

	if got := a.driver.Thresholds().LowStockQuantity; got != 2 {
		t.Fatalf("LowStockQuantity = %d, want 2", got)
	}
	// Milk (3) is no longer low, but the sales summary still fires.
	out, err := a.RunBatch(context.Background())
	if err != nil || out.Sent != 1 {
		t.Fatalf("outcome = %+v, err = %v", out, err)
	}
	if body := rec.Sent()[0].BodyHTML; strings.Contains(body, "Milk") {
		t.Fatal("Milk reported as low stock after threshold change")
	}
}

func TestApplyConfigMovesSalesDayToNewZone(t *testing.T) {
	t.Parallel()
	kiri, err := time.LoadLocation("Pacific/Kiritimati")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	f := newFixture(t, false)

	// One minute past the earlier of the two midnights: today in one zone,
	// yesterday in the other.
	now := time.Now()
	utcMidnight := alert.StartOfDay(now, time.UTC)
	kiriMidnight := alert.StartOfDay(now, kiri)
	at := utcMidnight
	if kiriMidnight.Before(at) {
		at = kiriMidnight
	}
	at = at.Add(time.Minute)
	f.insertTransaction(t, at)
	want := func(midnight time.Time) string {
		n := 0
		if !at.Before(midnight) {
			n = 1
		}
		return fmt.Sprintf("Total transactions today: %d", n)
	}

	rec := &mail.Recorder{}
	a := newApp(t, f, Options{Sender: rec})
	if _, err := a.RunBatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if body := rec.Sent()[0].BodyText; !strings.Contains(body, want(utcMidnight)) {
		t.Fatalf("UTC body missing %q:\n%s", want(utcMidnight), body)
	}

	prev := a.Config()
	next := *prev
	next.Scheduler.Timezone = "Pacific/Kiritimati"
	a.applyConfig(context.Background(), prev, &next)
	if got := a.driver.Location().String(); got != "Pacific/Kiritimati" {
		t.Fatalf("driver zone = %s", got)
	}

	if _, err := a.RunBatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	body := rec.Sent()[1].BodyText
	if !strings.Contains(body, want(kiriMidnight)) {
		t.Fatalf("Kiritimati body missing %q:\n%s", want(kiriMidnight), body)
	}
	if date := now.In(kiri).Format("January 2, 2006"); !strings.Contains(body, date) {
		t.Fatalf("body not dated %s in the new zone:\n%s", date, body)
	}
}

type closingLock struct {
	runlock.Noop
	closed bool
}

func (c *closingLock) Close() error {
	c.closed = true
	return nil
}

func TestTriggerBatchRunsOnServingApp(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	rec := &mail.Recorder{}
	lock := &closingLock{}
	a := newApp(t, f, Options{Sender: rec, Locker: lock})

	if err := a.TriggerBatch(); err == nil {
		t.Fatal("trigger accepted before Start")
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.TriggerBatch(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(rec.Sent()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("triggered batch never delivered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !lock.closed {
		t.Fatal("Stop did not close the run lock")
	}
}
