package mail

import (
	"context"
	"sync"
)

// Recorder keeps every valid message it is given and delivers nothing.
// It backs dry runs.
type Recorder struct {
	mu   sync.Mutex
	sent []Params
}

func (r *Recorder) SendEmail(ctx context.Context, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.sent = append(r.sent, params)
	r.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded messages in arrival order.
func (r *Recorder) Sent() []Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Params, len(r.sent))
	copy(out, r.sent)
	return out
}
