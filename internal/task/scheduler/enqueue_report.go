package scheduler

import (
	"errors"
	"time"

	"stockalert/internal/task/engine"
	logx "stockalert/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(name string, err error) {
	if err == nil {
		return
	}
	// A trigger landing on a batch that is still running is expected.
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Info("trigger skipped: previous run still in progress", logx.String("schedule", name))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	s.enqMu.Unlock()

	s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err))
}
