package agents

import (
	"fmt"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

// Random picks uniformly among the eligible actions using the environment's
// random stream, so seeded runs stay reproducible.
type Random struct {
	sim.BaseAgent
}

func NewRandom() *Random { return &Random{} }

func (a *Random) Name() string   { return "random" }
func (a *Random) Kind() sim.Kind { return sim.Autonomous }

func (a *Random) SelectAction() (sim.Action, error) {
	env := a.Environment()
	actions := env.CurrentState().EligibleActions()
	if len(actions) == 0 {
		return sim.NoAction, fmt.Errorf("agent %d: no eligible actions", a.AgentNum())
	}
	return actions[env.Rand().Intn(len(actions))], nil
}
