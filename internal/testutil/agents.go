package testutil

import (
	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

// ScriptedAgent plays a fixed sequence of actions, then the first eligible
// action, and records every event it is shown.
type ScriptedAgent struct {
	sim.BaseAgent
	AgentKind sim.Kind
	Script    []sim.Action
	SetUps    int
	Events    []sim.Event
}

// NewScriptedAgent creates an autonomous agent with the given script
func NewScriptedAgent(script ...sim.Action) *ScriptedAgent {
	return &ScriptedAgent{AgentKind: sim.Autonomous, Script: script}
}

// NewClientAgent creates an externally driven recording agent
func NewClientAgent() *ScriptedAgent {
	return &ScriptedAgent{AgentKind: sim.ExternallyDriven}
}

func (a *ScriptedAgent) Name() string   { return "scripted" }
func (a *ScriptedAgent) Kind() sim.Kind { return a.AgentKind }

func (a *ScriptedAgent) SetUp() error {
	a.SetUps++
	return nil
}

func (a *ScriptedAgent) HandleEvent(ev sim.Event) {
	a.Events = append(a.Events, ev)
}

func (a *ScriptedAgent) SelectAction() (sim.Action, error) {
	if a.AgentKind == sim.ExternallyDriven {
		panic(sim.ErrClientSelect)
	}
	if len(a.Script) > 0 {
		next := a.Script[0]
		a.Script = a.Script[1:]
		return next, nil
	}
	return a.Environment().CurrentState().EligibleActions()[0], nil
}

// EventActions returns the actions of every recorded event in order
func (a *ScriptedAgent) EventActions() []sim.Action {
	out := make([]sim.Action, len(a.Events))
	for i, ev := range a.Events {
		out[i] = ev.Action
	}
	return out
}
