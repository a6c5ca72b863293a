package sim

import "fmt"

// Kind tells the driving loops where an agent's actions come from.
type Kind int

const (
	// Autonomous agents choose their own actions via SelectAction.
	Autonomous Kind = iota
	// ExternallyDriven agents receive actions out of band through Advance.
	ExternallyDriven
)

func (k Kind) String() string {
	switch k {
	case Autonomous:
		return "autonomous"
	case ExternallyDriven:
		return "externally-driven"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Agent is a participant attached to one Environment.
type Agent interface {
	Name() string
	Kind() Kind
	// Attach is called by the environment exactly once, in attach order.
	Attach(env *Environment, num int)
	AgentNum() int
	Environment() *Environment
	// SetUp runs after the initial state exists.
	SetUp() error
	// HandleEvent is called after every appended event, including replayed ones.
	HandleEvent(ev Event)
	// SelectAction is only called on this agent's turn and must return one of
	// the current state's eligible actions.
	SelectAction() (Action, error)
}

// IsClient reports whether the agent's actions arrive from outside the loop.
func IsClient(a Agent) bool {
	return a.Kind() == ExternallyDriven
}

// BaseAgent supplies the attach bookkeeping. Embed it in concrete agents.
type BaseAgent struct {
	env      *Environment
	num      int
	attached bool
}

func (b *BaseAgent) Attach(env *Environment, num int) {
	if b.attached {
		panic(fmt.Errorf("%w: agent %d", ErrAgentAttached, b.num))
	}
	b.env = env
	b.num = num
	b.attached = true
}

func (b *BaseAgent) AgentNum() int {
	if !b.attached {
		panic(ErrAgentNotAttached)
	}
	return b.num
}

func (b *BaseAgent) Environment() *Environment {
	if !b.attached {
		panic(ErrAgentNotAttached)
	}
	return b.env
}

// Attached reports whether Attach has been called.
func (b *BaseAgent) Attached() bool {
	return b.attached
}

// SetUp is a no-op by default.
func (b *BaseAgent) SetUp() error { return nil }

// HandleEvent is a no-op by default.
func (b *BaseAgent) HandleEvent(Event) {}
