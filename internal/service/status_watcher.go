package service

import (
	"context"
	"time"

	"voting-portal/internal/domain"
)

const DefaultPollInterval = time.Second

// StatusWatcher re-evaluates an election's status on a fixed interval and
// reports phase changes.
type StatusWatcher struct {
	interval time.Duration
	now      func() time.Time
}

func NewStatusWatcher(interval time.Duration) *StatusWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &StatusWatcher{interval: interval, now: time.Now}
}

// Watch calls fn with the current status, then again each time the phase
// changes. It returns nil once the election has ended, or ctx.Err() when
// ctx is cancelled first.
func (w *StatusWatcher) Watch(ctx context.Context, election *domain.Election, fn func(domain.EventStatus)) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	last := election.StatusAt(w.now())
	fn(last)
	if last.HasEnded {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			current := election.StatusAt(w.now())
			if current.Phase() != last.Phase() {
				fn(current)
				last = current
			}
			if current.HasEnded {
				return nil
			}
		}
	}
}
