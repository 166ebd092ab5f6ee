package batch

// State is the lifecycle position of a Statement.
type State int

const (
	StateUnbound State = iota
	StateBound
	StatePrepared
	StateExecuting
	StateExhausted
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "UNBOUND"
	case StateBound:
		return "BOUND"
	case StatePrepared:
		return "PREPARED"
	case StateExecuting:
		return "EXECUTING"
	case StateExhausted:
		return "EXHAUSTED"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// canTransition reports whether a statement in state s may move to next.
//
// Legal transitions:
//   - UNBOUND -> BOUND
//   - BOUND -> PREPARED
//   - PREPARED -> EXECUTING
//   - EXECUTING -> EXHAUSTED | FAILED
//   - EXHAUSTED -> EXECUTING (re-execute with the current buffers)
//   - any state -> CLOSED
func (s State) canTransition(next State) bool {
	if next == StateClosed {
		return s != StateClosed
	}

	switch s {
	case StateUnbound:
		return next == StateBound
	case StateBound:
		return next == StatePrepared
	case StatePrepared:
		return next == StateExecuting
	case StateExecuting:
		return next == StateExhausted || next == StateFailed
	case StateExhausted:
		return next == StateExecuting
	default:
		return false
	}
}

// bindable reports whether bindings may still be added or replaced in state s.
func (s State) bindable() bool {
	return s == StateUnbound || s == StateBound || s == StatePrepared
}
