package sim

import (
	"encoding/json"
	"fmt"
	"math/rand"
)

// countGame is a two-agent race: agents alternate adding 1 or 2 to a running
// total, and whoever brings it to target wins.
type countGame struct {
	target      int
	transitions int
}

type countState struct {
	Memo     `json:"-"`
	Acting   int `json:"acting"`
	Total    int `json:"total"`
	LastBy   int `json:"last_by"`
	Target   int `json:"target"`
	computes *int
}

func newCountState(acting, total, lastBy, target int) *countState {
	return &countState{Acting: acting, Total: total, LastBy: lastBy, Target: target, computes: new(int)}
}

func (s *countState) ActingAgent() int { return s.Acting }

func (s *countState) IsTerminal() bool {
	return s.Terminal(func() bool {
		*s.computes++
		return s.Total >= s.Target
	})
}

func (s *countState) EligibleActions() []Action {
	return s.Actions(func() []Action {
		*s.computes++
		if s.Total >= s.Target {
			return []Action{}
		}
		if s.Target-s.Total == 1 {
			return []Action{1}
		}
		return []Action{1, 2}
	})
}

func (s *countState) Rewards() Rewards {
	if !s.IsTerminal() {
		return ZeroRewards(2)
	}
	r := Rewards{-1, -1}
	r[s.LastBy] = 1
	return r
}

func (s *countState) StateKey() (StateKey, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return StateKey(b), nil
}

func (s *countState) DisplayString() string {
	return fmt.Sprintf("total %d/%d", s.Total, s.Target)
}

func (s *countState) ChoiceDisplay(a Action) string {
	return fmt.Sprintf("  Added %d", a)
}

func (g *countGame) Name() string   { return "count" }
func (g *countGame) NumAgents() int { return 2 }

func (g *countGame) InitialState(rng *rand.Rand) (State, error) {
	return newCountState(rng.Intn(2), 0, -1, g.target), nil
}

func (g *countGame) Transition(state State, action Action) (State, error) {
	s := state.(*countState)
	if !Contains(s.EligibleActions(), action) {
		return nil, fmt.Errorf("%w: %d", ErrIllegalAction, action)
	}
	g.transitions++
	return newCountState(1-s.Acting, s.Total+int(action), s.Acting, s.Target), nil
}

func (g *countGame) DecodeState(key StateKey) (State, error) {
	s := newCountState(0, 0, 0, 0)
	if err := json.Unmarshal([]byte(key), s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStateKey, err)
	}
	return s, nil
}

// call records one interaction with a test agent.
type call struct {
	Kind   string
	Action Action
	Total  int
}

// scriptedAgent plays a fixed action script and records every call.
type scriptedAgent struct {
	BaseAgent
	kind   Kind
	script []Action
	calls  []call
	seen   []int
}

func newScripted(script ...Action) *scriptedAgent {
	return &scriptedAgent{kind: Autonomous, script: script}
}

func newClient() *scriptedAgent {
	return &scriptedAgent{kind: ExternallyDriven}
}

func (a *scriptedAgent) Name() string { return "scripted" }
func (a *scriptedAgent) Kind() Kind   { return a.kind }

func (a *scriptedAgent) SetUp() error {
	a.calls = append(a.calls, call{Kind: "setup"})
	return nil
}

func (a *scriptedAgent) HandleEvent(ev Event) {
	// current state must already be the appended one
	cur := a.Environment().CurrentState().(*countState)
	a.seen = append(a.seen, cur.Total)
	a.calls = append(a.calls, call{Kind: "event", Action: ev.Action, Total: ev.State.(*countState).Total})
}

func (a *scriptedAgent) SelectAction() (Action, error) {
	if a.kind == ExternallyDriven {
		panic(ErrClientSelect)
	}
	if len(a.script) > 0 {
		next := a.script[0]
		a.script = a.script[1:]
		return next, nil
	}
	return a.Environment().CurrentState().EligibleActions()[0], nil
}
