// Package gatherer holds the settled pieces of a single-player resource
// gathering board game: board generation, resources, positions, terminality
// and rewards. Its turn rules are not settled, so transitions and eligible
// actions fail with sim.ErrUnimplemented.
package gatherer

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

const (
	Name          = "Gatherer"
	BoardSize     = 4
	DeckSize      = 16
	StartingRes   = 5
	MaxRes        = 999
	FinalTurn     = 12
	NumLocations  = 8
	WinningSum    = 10
	NumDirections = 4
)

// Resource kinds.
const (
	Water = iota
	Food
	Energy
)

// Effect kinds.
const (
	SpendEffect = iota
	PlaceEffect
)

// Effect is one row or column effect printed on a card.
type Effect struct {
	Kind     int `json:"kind"`
	Amount   int `json:"amount"`
	Resource int `json:"resource"`
}

// EffectCard sits on one board cell.
type EffectCard struct {
	FaceUp    bool   `json:"face_up"`
	Direction int    `json:"direction"`
	RowEffect Effect `json:"row_effect"`
	ColEffect Effect `json:"col_effect"`
}

// RandomCard draws a face-down card.
func RandomCard(rng *rand.Rand) EffectCard {
	effect := func() Effect {
		return Effect{
			Kind:     rng.Intn(1),
			Amount:   rng.Intn(6),
			Resource: rng.Intn(2),
		}
	}
	return EffectCard{
		Direction: rng.Intn(NumDirections),
		RowEffect: effect(),
		ColEffect: effect(),
	}
}

// Cell is one board position with the resources placed on it.
type Cell struct {
	Card   EffectCard `json:"card"`
	Water  int        `json:"water"`
	Food   int        `json:"food"`
	Energy int        `json:"energy"`
}

func (c Cell) ResourceSum() int {
	return c.Water + c.Food + c.Energy
}

// Coord is a (row, col) board position.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type State struct {
	sim.Memo `json:"-"`

	Turn        int                        `json:"turn"`
	PlayerToken int                        `json:"player_token"`
	P1Location  int                        `json:"p1_location"`
	P2Location  int                        `json:"p2_location"`
	Gatherer    Coord                      `json:"gatherer"`
	Board       [BoardSize][BoardSize]Cell `json:"board"`
	Water       int                        `json:"water"`
	Food        int                        `json:"food"`
	Energy      int                        `json:"energy"`
	Prompt      string                     `json:"prompt"`
}

// ActingAgent is always 0: the game has a single agent moving both tokens.
func (s *State) ActingAgent() int { return 0 }

// ResourceExhausted reports whether any pooled resource has run out.
func (s *State) ResourceExhausted() bool {
	return s.Water <= 0 || s.Food <= 0 || s.Energy <= 0
}

// ResourceSum totals the pooled resources.
func (s *State) ResourceSum() int {
	return s.Water + s.Food + s.Energy
}

func (s *State) IsTerminal() bool {
	return s.Terminal(func() bool {
		return s.ResourceExhausted() || s.Turn >= FinalTurn
	})
}

// EligibleActions panics on every call: the choice structure of a turn is
// not settled. It bypasses the memo so later calls fail too.
func (s *State) EligibleActions() []sim.Action {
	panic(fmt.Errorf("%w: gatherer eligible actions", sim.ErrUnimplemented))
}

func (s *State) Rewards() sim.Rewards {
	if !s.IsTerminal() {
		return sim.ZeroRewards(1)
	}
	if s.ResourceSum() > WinningSum {
		return sim.Rewards{1.0}
	}
	return sim.Rewards{-1.0}
}

// EligiblePlayerMovements lists the locations token player may move to: any
// of the eight except the one held by the other token.
func (s *State) EligiblePlayerMovements(player int) []int {
	occupied := s.P2Location
	if player == 1 {
		occupied = s.P1Location
	}
	locations := make([]int, 0, NumLocations-1)
	for loc := 0; loc < NumLocations; loc++ {
		if loc != occupied {
			locations = append(locations, loc)
		}
	}
	return locations
}

// FlippableCoords lists face-down cards in row idx (isRow) or column idx.
func (s *State) FlippableCoords(isRow bool, idx int) []Coord {
	var coords []Coord
	for i := 0; i < BoardSize; i++ {
		c := Coord{Row: idx, Col: i}
		if !isRow {
			c = Coord{Row: i, Col: idx}
		}
		if !s.Board[c.Row][c.Col].Card.FaceUp {
			coords = append(coords, c)
		}
	}
	return coords
}

// EligiblePickUps lists the resources present on the cell at c.
func (s *State) EligiblePickUps(c Coord) []int {
	cell := s.Board[c.Row][c.Col]
	var res []int
	if cell.Water > 0 {
		res = append(res, Water)
	}
	if cell.Food > 0 {
		res = append(res, Food)
	}
	if cell.Energy > 0 {
		res = append(res, Energy)
	}
	return res
}

func (s *State) StateKey() (sim.StateKey, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal gatherer state: %w", err)
	}
	return sim.StateKey(b), nil
}

func (s *State) DisplayString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nTurn: %d", s.Turn)
	fmt.Fprintf(&b, "\nResources: water=%d food=%d energy=%d", s.Water, s.Food, s.Energy)
	fmt.Fprintf(&b, "\nPlayers: P1@%d P2@%d  Gatherer@(%d, %d)", s.P1Location, s.P2Location, s.Gatherer.Row, s.Gatherer.Col)
	for r := 0; r < BoardSize; r++ {
		b.WriteString("\n")
		for c := 0; c < BoardSize; c++ {
			cell := s.Board[r][c]
			mark := "#"
			if cell.Card.FaceUp {
				mark = fmt.Sprintf("%d", cell.Card.Direction)
			}
			fmt.Fprintf(&b, " [%s %d]", mark, cell.ResourceSum())
		}
	}
	return b.String()
}

func (s *State) UIState() map[string]any {
	return map[string]any{
		"turn":   float64(s.Turn),
		"water":  float64(s.Water),
		"food":   float64(s.Food),
		"energy": float64(s.Energy),
	}
}

// Game is the gatherer rule set.
type Game struct{}

func New() *Game { return &Game{} }

func (g *Game) Name() string   { return Name }
func (g *Game) NumAgents() int { return 1 }

// InitialState builds a deck of effect cards from rng and deals the board
// from it.
func (g *Game) InitialState(rng *rand.Rand) (sim.State, error) {
	deck := make([]EffectCard, DeckSize)
	for i := range deck {
		deck[i] = RandomCard(rng)
	}

	s := &State{
		P1Location: 0,
		P2Location: 4,
		Water:      StartingRes,
		Food:       StartingRes,
		Energy:     StartingRes,
		Prompt:     "Choose gatherer position",
	}
	for r := 0; r < BoardSize; r++ {
		for c := 0; c < BoardSize; c++ {
			s.Board[r][c] = Cell{Card: deck[rng.Intn(DeckSize)]}
		}
	}
	return s, nil
}

func (g *Game) Transition(sim.State, sim.Action) (sim.State, error) {
	return nil, fmt.Errorf("%w: gatherer transition", sim.ErrUnimplemented)
}

func (g *Game) DecodeState(key sim.StateKey) (sim.State, error) {
	var s State
	if err := json.Unmarshal([]byte(key), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", sim.ErrInvalidStateKey, err)
	}
	return &s, nil
}
