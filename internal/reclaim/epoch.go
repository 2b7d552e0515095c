package reclaim

import "sync/atomic"

// State is the occupancy of an Epoch as seen by one goroutine.
type State int

const (
	// Idle means no goroutine is inside the section.
	Idle State = iota
	// SoleActive means exactly one goroutine, the observer, is inside.
	SoleActive
	// MultipleActive means other goroutines may hold references obtained
	// inside the section.
	MultipleActive
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SoleActive:
		return "sole-active"
	case MultipleActive:
		return "multiple-active"
	default:
		return "unknown"
	}
}

func stateOf(active int64) State {
	switch {
	case active <= 0:
		return Idle
	case active == 1:
		return SoleActive
	default:
		return MultipleActive
	}
}

// Epoch counts goroutines inside a section that may dereference nodes
// which are concurrently being detached.
//
// Nodes detached while the state is MultipleActive must be deferred. A
// goroutine that sees SoleActive may reclaim what it detached itself, and
// may reclaim deferred nodes only if its Exit returns Idle.
type Epoch struct {
	active atomic.Int64
}

// Enter registers the caller inside the section.
func (e *Epoch) Enter() {
	e.active.Add(1)
}

// State reports the current occupancy. It is only meaningful to a caller
// that is itself inside the section.
func (e *Epoch) State() State {
	return stateOf(e.active.Load())
}

// Exit unregisters the caller and returns the occupancy it left behind:
// Idle means the caller was the last one inside.
func (e *Epoch) Exit() State {
	left := e.active.Add(-1)
	if left < 0 {
		panic("reclaim: Exit without matching Enter")
	}
	return stateOf(left)
}

// Active returns the number of goroutines inside the section.
func (e *Epoch) Active() int64 {
	return e.active.Load()
}
