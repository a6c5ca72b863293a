package sim

import (
	"strconv"
	"sync"
)

// Action identifies one choice available at a state. Games decide what the
// integer means (a box index, a card slot, ...).
type Action int

// NoAction marks the initial event of a history, which has no action.
const NoAction Action = -1

func (a Action) String() string {
	if a == NoAction {
		return "none"
	}
	return strconv.Itoa(int(a))
}

// Rewards holds one reward per agent, indexed by agent number.
type Rewards []float64

// Clone returns an independent copy, nil stays nil.
func (r Rewards) Clone() Rewards {
	if r == nil {
		return nil
	}
	out := make(Rewards, len(r))
	copy(out, r)
	return out
}

// ZeroRewards is the conventional reward vector for a non-terminal state.
func ZeroRewards(numAgents int) Rewards {
	return make(Rewards, numAgents)
}

// StateKey is the compact serialized form of a State.
type StateKey string

// State is one decision point of a game. Concrete states are immutable once
// built; the only permitted mutation is the memoization in Memo.
type State interface {
	// ActingAgent is the index of the agent choosing the next action.
	ActingAgent() int
	// IsTerminal is computed once and cached.
	IsTerminal() bool
	// EligibleActions is computed once and cached. Terminal states may
	// return an empty slice.
	EligibleActions() []Action
	// Rewards has one entry per agent.
	Rewards() Rewards
	StateKey() (StateKey, error)
	DisplayString() string
}

// Memo is a compute-once cell for the derived values of a State. Embed it by
// value in a concrete state and route IsTerminal/EligibleActions through it.
// A Memo must not be copied after first use.
type Memo struct {
	terminalOnce sync.Once
	terminal     bool

	actionsOnce sync.Once
	actions     []Action
}

// Terminal returns the cached terminal flag, computing it on first use.
func (m *Memo) Terminal(compute func() bool) bool {
	m.terminalOnce.Do(func() {
		m.terminal = compute()
	})
	return m.terminal
}

// Actions returns the cached eligible actions, computing them on first use.
func (m *Memo) Actions(compute func() []Action) []Action {
	m.actionsOnce.Do(func() {
		m.actions = compute()
	})
	return m.actions
}

// Contains reports whether action is one of actions.
func Contains(actions []Action, action Action) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
