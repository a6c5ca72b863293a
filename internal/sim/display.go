package sim

import (
	"fmt"
	"strings"
)

// DisplayString renders the current state under an action header, or a
// game over header when terminal is set.
func (e *Environment) DisplayString(terminal bool) string {
	state := e.CurrentState()
	header := "GAME OVER"
	if !terminal {
		header = fmt.Sprintf("ACTION %d (P%d)", e.ActionNumber(), state.ActingAgent()+1)
	}
	return fmt.Sprintf("\n\n====== %s ======\n\n%s", header, state.DisplayString())
}

// Display writes DisplayString to the environment's output.
func (e *Environment) Display(terminal bool) {
	fmt.Fprintln(e.out, e.DisplayString(terminal))
}

// SetupString lists the environment name, the agents and the seed.
func (e *Environment) SetupString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nEnvironment: %s", e.game.Name())
	for i, a := range e.agents {
		fmt.Fprintf(&b, "\nAgent %d: %s", i, a.Name())
	}
	fmt.Fprintf(&b, "\nRandom seed: %d", e.seed)
	return b.String()
}

// DisplaySetup writes SetupString to the environment's output.
func (e *Environment) DisplaySetup() {
	fmt.Fprintln(e.out, e.SetupString())
}
