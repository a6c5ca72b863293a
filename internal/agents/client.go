package agents

import (
	"fmt"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

// Client stands in for a participant whose actions arrive through
// Environment.Advance, such as a remote player of a hosted game.
type Client struct {
	sim.BaseAgent
}

func NewClient() *Client { return &Client{} }

func (a *Client) Name() string   { return "client" }
func (a *Client) Kind() sim.Kind { return sim.ExternallyDriven }

// SelectAction always panics: the driving loops must never ask a client.
func (a *Client) SelectAction() (sim.Action, error) {
	panic(fmt.Errorf("%w: agent %d", sim.ErrClientSelect, a.AgentNum()))
}
