package lifecycle

import "fmt"

// Phase represents the lifecycle phase of an environment run
type Phase int

const (
	// PhaseUninitialized - Environment created, no agents or seed yet
	PhaseUninitialized Phase = iota

	// PhaseSetUp - Initial state installed (or history replayed), agents set up
	PhaseSetUp

	// PhaseRunning - At least one driving loop or advance has started
	PhaseRunning

	// PhaseTerminal - Current state is terminal; no further transitions
	PhaseTerminal
)

// String returns the string representation of a Phase
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "Uninitialized"
	case PhaseSetUp:
		return "SetUp"
	case PhaseRunning:
		return "Running"
	case PhaseTerminal:
		return "Terminal"
	default:
		return fmt.Sprintf("Unknown(%d)", p)
	}
}

// IsTerminal returns true if no further transitions are possible
func (p Phase) IsTerminal() bool {
	return p == PhaseTerminal
}

// CanAdvance returns true if actions may be applied in this phase
func (p Phase) CanAdvance() bool {
	return p == PhaseSetUp || p == PhaseRunning
}

// AllowedTransitions returns the valid phases this phase can transition to
func (p Phase) AllowedTransitions() []Phase {
	switch p {
	case PhaseUninitialized:
		return []Phase{PhaseSetUp}
	case PhaseSetUp:
		return []Phase{PhaseRunning, PhaseTerminal}
	case PhaseRunning:
		return []Phase{PhaseTerminal}
	default:
		return []Phase{}
	}
}

// CanTransitionTo checks if a transition from this phase to the target phase is allowed
func (p Phase) CanTransitionTo(target Phase) bool {
	for _, phase := range p.AllowedTransitions() {
		if phase == target {
			return true
		}
	}
	return false
}

// ParsePhase converts a string to a Phase
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "Uninitialized":
		return PhaseUninitialized, nil
	case "SetUp":
		return PhaseSetUp, nil
	case "Running":
		return PhaseRunning, nil
	case "Terminal":
		return PhaseTerminal, nil
	default:
		return PhaseUninitialized, fmt.Errorf("unknown phase %q", s)
	}
}
