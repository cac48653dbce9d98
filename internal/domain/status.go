package domain

import "time"

type Phase string

const (
	PhasePending Phase = "pending"
	PhaseActive  Phase = "active"
	PhaseEnded   Phase = "ended"
)

// EventStatus is the lifecycle of an election window at one instant.
// The start instant counts as started; the end instant is still active.
type EventStatus struct {
	IsPending  bool `json:"isPending"`
	IsActive   bool `json:"isActive"`
	HasStarted bool `json:"hasStarted"`
	HasEnded   bool `json:"hasEnded"`
}

func Evaluate(now, start, end time.Time) EventStatus {
	hasStarted := !now.Before(start)
	hasEnded := now.After(end)

	return EventStatus{
		IsPending:  now.Before(start),
		IsActive:   hasStarted && !hasEnded,
		HasStarted: hasStarted,
		HasEnded:   hasEnded,
	}
}

func (s EventStatus) Phase() Phase {
	switch {
	case s.HasEnded:
		return PhaseEnded
	case s.IsActive:
		return PhaseActive
	default:
		return PhasePending
	}
}
