package system

import "time"

// Phase defines execution ordering within a single worker tick.
type Phase int

const (
	PhaseInput   Phase = iota // 0: drain session queues, run registry mutations and queries
	PhaseEvents               // 1: deliver events emitted last tick
	PhaseStats                // 2: refresh gauges
	PhaseOutput               // 3: flush responses to writers
	PhasePersist              // 4: batch writes to the database
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseEvents:
		return "events"
	case PhaseStats:
		return "stats"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	}
	return "unknown"
}

// System is one step of the worker tick.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
