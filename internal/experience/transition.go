// Package experience turns recorded histories into per-step training
// transitions and persists them as JSON lines.
package experience

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

var ErrMalformedTransition = errors.New("malformed transition")

// Transition is one step of a history seen from the acting agent: the state
// it chose from, its action, and what followed.
type Transition struct {
	GameID       string
	Step         int
	ActingAgent  int
	StateKey     sim.StateKey
	Action       sim.Action
	Rewards      sim.Rewards
	NextStateKey sim.StateKey
	Done         bool
}

// Extract builds one transition per action in history.
func Extract(gameID string, history []sim.Event) ([]Transition, error) {
	if len(history) < 2 {
		return nil, nil
	}
	records, err := sim.EncodeHistory(history)
	if err != nil {
		return nil, err
	}

	out := make([]Transition, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev, next := history[i-1], history[i]
		out = append(out, Transition{
			GameID:       gameID,
			Step:         i,
			ActingAgent:  prev.State.ActingAgent(),
			StateKey:     records[i-1].State,
			Action:       next.Action,
			Rewards:      next.Rewards.Clone(),
			NextStateKey: records[i].State,
			Done:         next.State.IsTerminal(),
		})
	}
	return out, nil
}

// Struct converts the transition to a protobuf Struct for JSON export.
func (t Transition) Struct() (*structpb.Struct, error) {
	rewards := make([]any, len(t.Rewards))
	for i, r := range t.Rewards {
		rewards[i] = r
	}
	return structpb.NewStruct(map[string]any{
		"game_id":        t.GameID,
		"step":           t.Step,
		"acting_agent":   t.ActingAgent,
		"state_key":      string(t.StateKey),
		"action":         int(t.Action),
		"rewards":        rewards,
		"next_state_key": string(t.NextStateKey),
		"done":           t.Done,
	})
}

// FromStruct is the inverse of Transition.Struct.
func FromStruct(s *structpb.Struct) (Transition, error) {
	f := s.GetFields()
	need := []string{"game_id", "step", "acting_agent", "state_key", "action", "rewards", "next_state_key", "done"}
	for _, key := range need {
		if _, ok := f[key]; !ok {
			return Transition{}, fmt.Errorf("%w: missing %s", ErrMalformedTransition, key)
		}
	}

	values := f["rewards"].GetListValue().GetValues()
	rewards := make(sim.Rewards, len(values))
	for i, v := range values {
		rewards[i] = v.GetNumberValue()
	}
	return Transition{
		GameID:       f["game_id"].GetStringValue(),
		Step:         int(f["step"].GetNumberValue()),
		ActingAgent:  int(f["acting_agent"].GetNumberValue()),
		StateKey:     sim.StateKey(f["state_key"].GetStringValue()),
		Action:       sim.Action(f["action"].GetNumberValue()),
		Rewards:      rewards,
		NextStateKey: sim.StateKey(f["next_state_key"].GetStringValue()),
		Done:         f["done"].GetBoolValue(),
	}, nil
}
