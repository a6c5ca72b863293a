package sim

import "math/rand"

// Game supplies the rules of one environment type.
type Game interface {
	StateDecoder
	Name() string
	// NumAgents is the roster size the game expects, 0 means any.
	NumAgents() int
	// InitialState draws any randomness from rng, which is owned by the
	// calling environment.
	InitialState(rng *rand.Rand) (State, error)
	// Transition returns the state reached by applying action to state. It
	// must not modify state and should return ErrIllegalAction for actions
	// outside state.EligibleActions().
	Transition(state State, action Action) (State, error)
}

// ActionParser is implemented by games that accept typed action input.
type ActionParser interface {
	ParseAction(input string) (Action, error)
}

// ChoiceDisplayer is implemented by states that can describe a chosen action.
type ChoiceDisplayer interface {
	ChoiceDisplay(action Action) string
}

// Viewable is implemented by states that have a UI projection for hosts.
type Viewable interface {
	UIState() map[string]any
}

// ReplayMask hides unobservable parts of an event from an agent during
// replay. The environment has none by default and agents see full events.
type ReplayMask func(agentNum int, ev Event) Event
