// Package lucky implements a two-player lucky draw: players take turns
// claiming one of five boxes and whoever claims the prize box wins.
package lucky

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"slices"
	"strconv"
	"strings"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

const (
	Name      = "Lucky"
	NumBoxes  = 5
	NumAgents = 2
	Prompt    = "Choose box"
)

// State records which player (1-based) claimed each box; 0 means empty.
type State struct {
	sim.Memo `json:"-"`

	Acting  int      `json:"acting_agent"`
	Boxes   []int    `json:"boxes"`
	Prize   int      `json:"prize"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
}

// NewState builds a state with choices derived from the empty boxes.
func NewState(acting int, boxes []int, prize int) *State {
	b := make([]int, len(boxes))
	copy(b, boxes)
	choices := make([]string, 0, len(b))
	for i, occupant := range b {
		if occupant == 0 {
			choices = append(choices, strconv.Itoa(i))
		}
	}
	return &State{
		Acting:  acting,
		Boxes:   b,
		Prize:   prize,
		Prompt:  Prompt,
		Choices: choices,
	}
}

func (s *State) ActingAgent() int { return s.Acting }

// Winner returns the 1-based player occupying the prize box, or 0.
func (s *State) Winner() int {
	return s.Boxes[s.Prize]
}

func (s *State) IsTerminal() bool {
	return s.Terminal(func() bool {
		return s.Winner() != 0
	})
}

func (s *State) EligibleActions() []sim.Action {
	return s.Actions(func() []sim.Action {
		actions := make([]sim.Action, 0, len(s.Boxes))
		for i, occupant := range s.Boxes {
			if occupant == 0 {
				actions = append(actions, sim.Action(i))
			}
		}
		return actions
	})
}

func (s *State) Rewards() sim.Rewards {
	winner := s.Winner()
	if winner == 0 {
		return sim.ZeroRewards(NumAgents)
	}
	r := sim.Rewards{-1.0, -1.0}
	r[winner-1] = 1.0
	return r
}

func (s *State) StateKey() (sim.StateKey, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal lucky state: %w", err)
	}
	return sim.StateKey(b), nil
}

func (s *State) DisplayString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nBox states: %v", s.Boxes)
	fmt.Fprintf(&b, "\nChoices: %v", s.Choices)
	fmt.Fprintf(&b, "\nPrize position: %d", s.Prize)
	return b.String()
}

func (s *State) ChoiceDisplay(action sim.Action) string {
	return fmt.Sprintf("  Player chose: %d", action)
}

// UIState is the projection served to hosted clients.
func (s *State) UIState() map[string]any {
	boxes := make([]any, len(s.Boxes))
	for i, v := range s.Boxes {
		boxes[i] = float64(v)
	}
	var winner any
	if w := s.Winner(); w != 0 {
		winner = float64(w)
	}
	return map[string]any{
		"boxes":  boxes,
		"winner": winner,
	}
}

// Game is the lucky draw rule set.
type Game struct{}

func New() *Game { return &Game{} }

func (g *Game) Name() string   { return Name }
func (g *Game) NumAgents() int { return NumAgents }

func (g *Game) InitialState(rng *rand.Rand) (sim.State, error) {
	acting := rng.Intn(NumAgents)
	prize := rng.Intn(NumBoxes)
	return NewState(acting, make([]int, NumBoxes), prize), nil
}

func (g *Game) Transition(state sim.State, action sim.Action) (sim.State, error) {
	s, ok := state.(*State)
	if !ok {
		return nil, fmt.Errorf("lucky: unexpected state type %T", state)
	}
	if !sim.Contains(s.EligibleActions(), action) {
		return nil, fmt.Errorf("%w: box %d is not available", sim.ErrIllegalAction, action)
	}

	boxes := make([]int, len(s.Boxes))
	copy(boxes, s.Boxes)
	boxes[action] = s.Acting + 1

	return NewState(1-s.Acting, boxes, s.Prize), nil
}

// DecodeState rebuilds a state from its key. Occupants must be 0 or a
// 1-based player, and the stored choices must match the empty boxes.
func (g *Game) DecodeState(key sim.StateKey) (sim.State, error) {
	var raw State
	if err := json.Unmarshal([]byte(key), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", sim.ErrInvalidStateKey, err)
	}
	if len(raw.Boxes) != NumBoxes || raw.Prize < 0 || raw.Prize >= NumBoxes || raw.Acting < 0 || raw.Acting >= NumAgents {
		return nil, fmt.Errorf("%w: lucky state out of range", sim.ErrInvalidStateKey)
	}
	for i, occupant := range raw.Boxes {
		if occupant < 0 || occupant > NumAgents {
			return nil, fmt.Errorf("%w: box %d has occupant %d", sim.ErrInvalidStateKey, i, occupant)
		}
	}
	s := NewState(raw.Acting, raw.Boxes, raw.Prize)
	if !slices.Equal(raw.Choices, s.Choices) {
		return nil, fmt.Errorf("%w: choices %v do not match boxes %v", sim.ErrInvalidStateKey, raw.Choices, raw.Boxes)
	}
	return s, nil
}

// ParseAction converts typed input such as "3" into a box action.
func (g *Game) ParseAction(input string) (sim.Action, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return sim.NoAction, fmt.Errorf("%w: %q is not a box number", sim.ErrIllegalAction, input)
	}
	if n < 0 || n >= NumBoxes {
		return sim.NoAction, fmt.Errorf("%w: box %d out of range", sim.ErrIllegalAction, n)
	}
	return sim.Action(n), nil
}
