package agents

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

var ErrNoInput = errors.New("console input closed")

// Console asks a human at a terminal for each action. Input that does not
// parse or is not eligible is rejected and the prompt repeated.
type Console struct {
	sim.BaseAgent
	in     *bufio.Scanner
	out    io.Writer
	logger zerolog.Logger
}

// NewConsole reads lines from in. Console agents sharing one terminal should
// share one scanner so buffered input is not split between them.
func NewConsole(in *bufio.Scanner, out io.Writer, logger zerolog.Logger) *Console {
	return &Console{
		in:     in,
		out:    out,
		logger: logger.With().Str("component", "console_agent").Logger(),
	}
}

func (a *Console) Name() string   { return "console" }
func (a *Console) Kind() sim.Kind { return sim.Autonomous }

func (a *Console) SelectAction() (sim.Action, error) {
	env := a.Environment()
	parser, ok := env.Game().(sim.ActionParser)
	if !ok {
		return sim.NoAction, fmt.Errorf("%w: %s has no action parser", sim.ErrUnimplemented, env.Name())
	}
	eligible := env.CurrentState().EligibleActions()

	for {
		fmt.Fprintf(a.out, "P%d action %v: ", a.AgentNum()+1, eligible)
		if !a.in.Scan() {
			if err := a.in.Err(); err != nil {
				return sim.NoAction, fmt.Errorf("read action: %w", err)
			}
			return sim.NoAction, ErrNoInput
		}

		action, err := parser.ParseAction(a.in.Text())
		if err != nil {
			a.logger.Debug().Err(err).Str("input", a.in.Text()).Msg("Rejected console input")
			fmt.Fprintf(a.out, "Invalid input: %v\n", err)
			continue
		}
		if !sim.Contains(eligible, action) {
			fmt.Fprintf(a.out, "Action %d is not eligible\n", action)
			continue
		}
		return action, nil
	}
}
