package registry

// State is the lifecycle position of a Registry.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateGloballyTornDown
	StateFullyTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateGloballyTornDown:
		return "globally_torn_down"
	case StateFullyTornDown:
		return "fully_torn_down"
	default:
		return "unknown"
	}
}

// Phase names a teardown transition.
type Phase string

const (
	PhaseGlobal Phase = "global"
	PhaseModel  Phase = "model"
)

// TeardownReport describes what one teardown call did.
type TeardownReport struct {
	Phase           Phase `json:"phase"`
	From            State `json:"-"`
	To              State `json:"-"`
	Released        int   `json:"released"`
	ContextsDropped int   `json:"contexts_dropped"`
}

// Noop reports whether the call found nothing to tear down.
func (r TeardownReport) Noop() bool {
	return r.From == r.To && r.Released == 0 && r.ContextsDropped == 0
}

// afterRegistration returns the state following a successful registration.
// global reports whether the registration targets process-scoped state (a
// runner or a global pool). A fully torn down registry becomes active again on
// any registration, so a new model can load; a globally torn down one only
// once global state is refilled.
func afterRegistration(s State, global bool) State {
	switch s {
	case StateUninitialized, StateFullyTornDown:
		return StateActive
	case StateGloballyTornDown:
		if global {
			return StateActive
		}
		return s
	default:
		return s
	}
}

// afterGlobalTeardown returns the state following UnregisterGlobalFunctions.
func afterGlobalTeardown(s State) State {
	if s == StateActive {
		return StateGloballyTornDown
	}
	return s
}

// afterModelTeardown returns the state following
// UnregisterModelSpecificFunctions, from either Active or GloballyTornDown.
func afterModelTeardown(s State) State {
	if s == StateActive || s == StateGloballyTornDown {
		return StateFullyTornDown
	}
	return s
}
