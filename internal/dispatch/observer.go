package dispatch

import (
	"stockalert/internal/alert"
	"stockalert/internal/eventbus"
	logx "stockalert/pkg/logx"
)

// Observer receives run and per-recipient notifications. Calls may arrive
// from several worker goroutines at once.
type Observer interface {
	RunStarted(runID string, recipients int)
	RecipientDone(ev RecipientEvent)
	RunFinished(out Outcome, err error)
}

type nopObserver struct{}

func (nopObserver) RunStarted(string, int)       {}
func (nopObserver) RecipientDone(RecipientEvent) {}
func (nopObserver) RunFinished(Outcome, error)   {}

// Observers fans out to every non-nil observer in order.
type Observers []Observer

func (obs Observers) RunStarted(runID string, recipients int) {
	for _, o := range obs {
		if o != nil {
			o.RunStarted(runID, recipients)
		}
	}
}

func (obs Observers) RecipientDone(ev RecipientEvent) {
	for _, o := range obs {
		if o != nil {
			o.RecipientDone(ev)
		}
	}
}

func (obs Observers) RunFinished(out Outcome, err error) {
	for _, o := range obs {
		if o != nil {
			o.RunFinished(out, err)
		}
	}
}

// LogObserver writes structured log lines.
type LogObserver struct {
	Log logx.Logger
}

func (l LogObserver) RunStarted(runID string, recipients int) {
	l.Log.Info("run started", logx.String("run_id", runID), logx.Int("recipients", recipients))
}

func (l LogObserver) RecipientDone(ev RecipientEvent) {
	fields := []logx.Field{
		logx.String("run_id", ev.RunID),
		logx.String("recipient", ev.RecipientID),
		logx.String("status", string(ev.Status)),
		logx.Strs("rules", ruleNames(ev.Rules)),
		logx.Duration("took", ev.Took),
	}
	if ev.Status == StatusFailed {
		fields = append(fields, logx.String("stage", string(ev.Stage)), logx.Err(ev.Err))
		l.Log.Warn("recipient failed", fields...)
		return
	}
	l.Log.Debug("recipient done", fields...)
}

func (l LogObserver) RunFinished(out Outcome, err error) {
	fields := []logx.Field{
		logx.String("run_id", out.RunID),
		logx.Int("recipients", out.Recipients),
		logx.Int("processed", out.Processed),
		logx.Int("sent", out.Sent),
		logx.Int("skipped", out.Skipped),
		logx.Int("failed", out.Failed),
		logx.Bool("dry_run", out.DryRun),
		logx.Duration("took", out.Duration),
	}
	if err != nil {
		l.Log.Error("run aborted", append(fields, logx.Err(err))...)
		return
	}
	l.Log.Info("run finished", fields...)
}

// Event types published by BusObserver.
const (
	EventRunStarted    = "dispatch.run.started"
	EventRecipientDone = "dispatch.recipient.done"
	EventRunFinished   = "dispatch.run.finished"
)

// RunFinishedData is the payload of EventRunFinished.
type RunFinishedData struct {
	Outcome Outcome
	Err     error
}

// BusObserver publishes every notification on an event bus.
type BusObserver struct {
	Bus eventbus.Bus
}

func (b BusObserver) RunStarted(runID string, recipients int) {
	b.Bus.Publish(eventbus.Event{Type: EventRunStarted, Data: map[string]any{"run_id": runID, "recipients": recipients}})
}

func (b BusObserver) RecipientDone(ev RecipientEvent) {
	b.Bus.Publish(eventbus.Event{Type: EventRecipientDone, Data: ev})
}

func (b BusObserver) RunFinished(out Outcome, err error) {
	b.Bus.Publish(eventbus.Event{Type: EventRunFinished, Data: RunFinishedData{Outcome: out, Err: err}})
}

func ruleNames(rules []alert.Rule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.String())
	}
	return out
}
