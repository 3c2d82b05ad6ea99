package system

import (
	"sort"
	"time"
)

// PhaseObserver receives the wall time one phase took within a tick.
type PhaseObserver func(phase Phase, elapsed time.Duration)

// Runner executes systems in phase order each tick. Systems sharing a phase
// run in registration order.
type Runner struct {
	systems []System
	sorted  bool
	observe PhaseObserver
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 8),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Observe installs fn to be told how long each phase of a full Tick took.
// Phases with no registered system are not reported. nil turns timing off.
func (r *Runner) Observe(fn PhaseObserver) {
	r.observe = fn
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	if r.observe == nil {
		for _, s := range r.systems {
			s.Update(dt)
		}
		return
	}

	// systems are sorted, so each phase is one contiguous run
	for i := 0; i < len(r.systems); {
		phase := r.systems[i].Phase()
		began := time.Now()
		for ; i < len(r.systems) && r.systems[i].Phase() == phase; i++ {
			r.systems[i].Update(dt)
		}
		r.observe(phase, time.Since(began))
	}
}

// TickPhase runs only the systems of one phase. The shutdown path uses it to
// drain output and persistence without accepting more input. It is not timed.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
