package dispatch

import (
	"errors"
	"time"

	"stockalert/internal/alert"
)

var ErrRunInProgress = errors.New("dispatch: run already in progress")

const (
	DefaultWorkers     = 4
	DefaultSendTimeout = 30 * time.Second
)

// Status is the per-recipient result of a run.
type Status string

const (
	StatusSent       Status = "sent"
	StatusIneligible Status = "ineligible"
	StatusNoContent  Status = "no_content"
	StatusFailed     Status = "failed"
)

// Stage names where a failed recipient stopped.
type Stage string

const (
	StageEvaluate Stage = "evaluate"
	StageCompose  Stage = "compose"
	StageDeliver  Stage = "deliver"
	StagePanic    Stage = "panic"
)

type RecipientEvent struct {
	RunID       string
	RecipientID string
	Email       string
	Status      Status
	Stage       Stage // set when Status is StatusFailed
	Rules       []alert.Rule
	Err         error
	Took        time.Duration
}

// Outcome summarizes one batch.
//
// Skipped counts recipients that were handled without a delivery and without
// an error: ineligible ones and those for which no rule fired.
type Outcome struct {
	RunID      string
	Started    time.Time
	Duration   time.Duration
	Recipients int
	Processed  int
	Sent       int
	Skipped    int
	Failed     int
	DryRun     bool
}

func (o *Outcome) add(ev RecipientEvent) {
	o.Processed++
	switch ev.Status {
	case StatusSent:
		o.Sent++
	case StatusFailed:
		o.Failed++
	default:
		o.Skipped++
	}
}
