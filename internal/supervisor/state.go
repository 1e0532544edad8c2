package supervisor

// State is the supervisor's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type event int

const (
	evStart  event = iota // start attempt begins
	evReady               // control endpoint answered
	evStop                // graceful signal sent
	evFail                // attempt failed (missing install, spawn error, timeout)
	evExited              // child exit observed, or an adopted sidecar went away
	evAdopt               // a sidecar already answered before spawning
)

func (e event) String() string {
	switch e {
	case evStart:
		return "start"
	case evReady:
		return "ready"
	case evStop:
		return "stop"
	case evFail:
		return "fail"
	case evExited:
		return "exited"
	case evAdopt:
		return "adopt"
	default:
		return "unknown"
	}
}

// next is the transition table. ok is false for pairs that must be rejected.
func next(from State, ev event) (to State, ok bool) {
	switch ev {
	case evStart:
		if from == StateIdle || from == StateStopped || from == StateFailed {
			return StateStarting, true
		}
	case evReady:
		if from == StateStarting {
			return StateRunning, true
		}
	case evStop:
		if from == StateStarting || from == StateRunning {
			return StateStopping, true
		}
	case evFail:
		if from == StateStarting || from == StateStopping {
			return StateFailed, true
		}
	case evExited:
		switch from {
		case StateRunning:
			return StateIdle, true
		case StateStopping:
			return StateStopped, true
		case StateStarting, StateFailed:
			return from, true
		}
	case evAdopt:
		if from == StateIdle || from == StateStopped || from == StateFailed {
			return StateRunning, true
		}
	}
	return from, false
}
