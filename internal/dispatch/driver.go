// Package dispatch runs one notification batch over every eligible recipient.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"stockalert/internal/alert"
	"stockalert/internal/compose"
	"stockalert/internal/mail"
	"stockalert/internal/storage"
	logx "stockalert/pkg/logx"
)

type Options struct {
	Workers     int
	SendTimeout time.Duration
	Tag         string
	Location    *time.Location
	Observer    Observer
	Log         logx.Logger
	// DryRun is recorded on the Outcome; the caller supplies a non-delivering sender.
	DryRun bool

	now func() time.Time
}

type Driver struct {
	opener   storage.Opener
	sender   mail.Sender
	composer *compose.Composer

	th  atomic.Pointer[alert.Thresholds]
	loc atomic.Pointer[time.Location]
	opt Options
	log logx.Logger

	running atomic.Bool
}

func New(opener storage.Opener, sender mail.Sender, composer *compose.Composer, th alert.Thresholds, opt Options) *Driver {
	if opt.Workers <= 0 {
		opt.Workers = DefaultWorkers
	}
	if opt.SendTimeout <= 0 {
		opt.SendTimeout = DefaultSendTimeout
	}
	if opt.Tag == "" {
		opt.Tag = compose.Tag
	}
	if opt.Location == nil {
		opt.Location = time.Local
	}
	if opt.Observer == nil {
		opt.Observer = nopObserver{}
	}
	if opt.now == nil {
		opt.now = time.Now
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if composer == nil {
		composer = compose.New("", opt.Location)
	}
	d := &Driver{
		opener:   opener,
		sender:   sender,
		composer: composer,
		opt:      opt,
		log:      log.With(logx.String("comp", "dispatch")),
	}
	d.th.Store(&th)
	d.loc.Store(opt.Location)
	return d
}

// SetThresholds replaces the rule thresholds used by runs started afterwards.
func (d *Driver) SetThresholds(th alert.Thresholds) { d.th.Store(&th) }

func (d *Driver) Thresholds() alert.Thresholds { return *d.th.Load() }

// SetLocation changes the zone that bounds "today" for runs started
// afterwards, for the evaluator and the composed date alike. Nil is ignored.
func (d *Driver) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	d.loc.Store(loc)
	d.composer.SetLocation(loc)
}

func (d *Driver) Location() *time.Location { return d.loc.Load() }

// RunOnce performs one batch. It returns an error only when the store session
// cannot be opened or the recipient query fails; per-recipient failures are
// counted in the Outcome. A call made while another batch is running returns
// ErrRunInProgress without doing anything.
func (d *Driver) RunOnce(ctx context.Context) (Outcome, error) {
	if !d.running.CompareAndSwap(false, true) {
		return Outcome{}, ErrRunInProgress
	}
	defer d.running.Store(false)

	out := Outcome{
		RunID:   uuid.NewString(),
		Started: d.opt.now(),
		DryRun:  d.opt.DryRun,
	}
	err := d.run(ctx, &out)
	out.Duration = d.opt.now().Sub(out.Started)
	d.observe(out.RunID, func() { d.opt.Observer.RunFinished(out, err) })
	return out, err
}

func (d *Driver) run(ctx context.Context, out *Outcome) error {
	store, err := d.opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			d.log.Warn("close store failed", logx.String("run_id", out.RunID), logx.Err(cerr))
		}
	}()

	recipients, err := store.ListRecipients(ctx)
	if err != nil {
		return fmt.Errorf("list recipients: %w", err)
	}
	out.Recipients = len(recipients)
	d.observe(out.RunID, func() { d.opt.Observer.RunStarted(out.RunID, len(recipients)) })

	ev := alert.NewEvaluator(store, d.Thresholds(), d.Location())

	jobs := make(chan alert.Recipient)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	workers := min(d.opt.Workers, max(len(recipients), 1))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				res := d.processRecipient(ctx, out.RunID, ev, r)
				d.observe(out.RunID, func() { d.opt.Observer.RecipientDone(res) })
				mu.Lock()
				out.add(res)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, r := range recipients {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- r:
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil && out.Processed < out.Recipients {
		d.log.Warn("run cancelled before all recipients were processed",
			logx.String("run_id", out.RunID),
			logx.Int("processed", out.Processed),
			logx.Int("recipients", out.Recipients),
		)
	}
	return nil
}

// processRecipient never panics and never returns an error; the outcome is in
// the returned event.
func (d *Driver) processRecipient(ctx context.Context, runID string, ev *alert.Evaluator, r alert.Recipient) (res RecipientEvent) {
	start := d.opt.now()
	res = RecipientEvent{RunID: runID, RecipientID: r.ID, Email: r.Email}
	defer func() {
		if rec := recover(); rec != nil {
			res.Status = StatusFailed
			res.Stage = StagePanic
			res.Err = fmt.Errorf("panic: %v", rec)
			d.log.Error("recipient panic",
				logx.String("run_id", runID),
				logx.String("recipient", r.ID),
				logx.Any("panic", rec),
				logx.Stack(string(debug.Stack())),
			)
		}
		res.Took = d.opt.now().Sub(start)
	}()

	if !r.Eligible() {
		res.Status = StatusIneligible
		return res
	}

	now := d.opt.now()
	results, err := ev.EvaluateAll(ctx, *r.Preferences, now)
	if err != nil {
		return failed(res, StageEvaluate, err)
	}

	msg, err := d.composer.Compose(r, results, now)
	if err != nil {
		return failed(res, StageCompose, err)
	}
	if msg == nil {
		res.Status = StatusNoContent
		return res
	}
	res.Rules = msg.Rules

	sctx, cancel := context.WithTimeout(ctx, d.opt.SendTimeout)
	defer cancel()
	if err := d.sender.SendEmail(sctx, mail.Params{
		SendTo:   msg.To,
		Subject:  msg.Subject,
		BodyHTML: msg.HTML,
		BodyText: msg.Text,
		Tag:      d.opt.Tag,
	}); err != nil {
		return failed(res, StageDeliver, err)
	}
	res.Status = StatusSent
	return res
}

// observe runs an observer callback. A panicking observer is logged and
// never takes down the worker or the run.
func (d *Driver) observe(runID string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("observer panic",
				logx.String("run_id", runID),
				logx.Any("panic", rec),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	fn()
}

func failed(res RecipientEvent, stage Stage, err error) RecipientEvent {
	res.Status = StatusFailed
	res.Stage = stage
	res.Err = err
	return res
}
