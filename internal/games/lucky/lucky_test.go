package lucky

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
	"github.com/mitchelldurbincs/turnsim/internal/testutil"
)

// seedFor finds a seed whose initial draws give the acting agent and prize.
func seedFor(t *testing.T, acting, prize int) int64 {
	return testutil.FindSeed(t, 10_000, func(rng *rand.Rand) bool {
		return rng.Intn(NumAgents) == acting && rng.Intn(NumBoxes) == prize
	})
}

func TestLucky_PrizeScenario(t *testing.T) {
	env := testutil.QuietEnv(New())
	p0, p1 := testutil.NewClientAgent(), testutil.NewClientAgent()
	require.NoError(t, env.InitializeWithSeed([]sim.Agent{p0, p1}, seedFor(t, 0, 2)))

	initial := env.CurrentState().(*State)
	require.Equal(t, 2, initial.Prize)
	require.Equal(t, 0, initial.ActingAgent())
	assert.Equal(t, []sim.Action{0, 1, 2, 3, 4}, initial.EligibleActions())

	require.NoError(t, env.Advance(0))
	last, err := env.LastEvent()
	require.NoError(t, err)
	assert.Equal(t, sim.Rewards{0.0, 0.0}, last.Rewards)
	assert.False(t, env.CurrentState().IsTerminal())
	assert.Equal(t, 1, env.CurrentState().ActingAgent())

	require.NoError(t, env.Advance(2))
	state := env.CurrentState().(*State)
	assert.Equal(t, 2, state.Winner())
	assert.True(t, state.IsTerminal())
	last, err = env.LastEvent()
	require.NoError(t, err)
	assert.Equal(t, sim.Rewards{-1.0, 1.0}, last.Rewards)
	assert.Equal(t, []int{1, 0, 2, 0, 0}, state.Boxes)

	assert.Len(t, p0.Events, 2)
	assert.Equal(t, []sim.Action{0, 2}, p1.EventActions())
}

func TestLucky_Transition(t *testing.T) {
	g := New()
	s := NewState(1, []int{0, 0, 0, 0, 0}, 4)

	next, err := g.Transition(s, 3)
	require.NoError(t, err)
	ns := next.(*State)
	assert.Equal(t, []int{0, 0, 0, 2, 0}, ns.Boxes)
	assert.Equal(t, []string{"0", "1", "2", "4"}, ns.Choices)
	assert.Equal(t, 0, ns.ActingAgent())
	assert.Equal(t, Prompt, ns.Prompt)

	// previous state untouched
	assert.Equal(t, []int{0, 0, 0, 0, 0}, s.Boxes)
	assert.Len(t, s.EligibleActions(), 5)

	_, err = g.Transition(ns, 3)
	assert.ErrorIs(t, err, sim.ErrIllegalAction)
	_, err = g.Transition(ns, 7)
	assert.ErrorIs(t, err, sim.ErrIllegalAction)
}

func TestLucky_Rewards(t *testing.T) {
	tests := []struct {
		name     string
		boxes    []int
		prize    int
		terminal bool
		rewards  sim.Rewards
	}{
		{"empty", []int{0, 0, 0, 0, 0}, 1, false, sim.Rewards{0, 0}},
		{"prize unclaimed", []int{1, 2, 0, 0, 0}, 3, false, sim.Rewards{0, 0}},
		{"player one wins", []int{0, 0, 0, 1, 0}, 3, true, sim.Rewards{1, -1}},
		{"player two wins", []int{1, 2, 0, 0, 0}, 1, true, sim.Rewards{-1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState(0, tt.boxes, tt.prize)
			assert.Equal(t, tt.terminal, s.IsTerminal())
			assert.Equal(t, tt.rewards, s.Rewards())
		})
	}
}

func TestLucky_StateKeyRoundTrip(t *testing.T) {
	g := New()
	s := NewState(1, []int{2, 0, 1, 0, 0}, 4)

	key, err := s.StateKey()
	require.NoError(t, err)
	decoded, err := g.DecodeState(key)
	require.NoError(t, err)

	ds := decoded.(*State)
	assert.Equal(t, s.Acting, ds.Acting)
	assert.Equal(t, s.Boxes, ds.Boxes)
	assert.Equal(t, s.Prize, ds.Prize)
	assert.Equal(t, s.Choices, ds.Choices)
	assert.Equal(t, s.EligibleActions(), ds.EligibleActions())
	assert.Equal(t, s.IsTerminal(), ds.IsTerminal())

}

func TestLucky_DecodeStateRejectsBadKeys(t *testing.T) {
	g := New()
	tests := []struct {
		name string
		key  sim.StateKey
	}{
		{"not json", "nope"},
		{"too few boxes", `{"acting_agent":0,"boxes":[0,0],"prize":0,"choices":["0","1"]}`},
		{"prize out of range", `{"acting_agent":0,"boxes":[0,0,0,0,0],"prize":9,"choices":["0","1","2","3","4"]}`},
		{"acting out of range", `{"acting_agent":2,"boxes":[0,0,0,0,0],"prize":1,"choices":["0","1","2","3","4"]}`},
		{"unknown occupant", `{"acting_agent":0,"boxes":[0,0,7,0,0],"prize":2,"choices":["0","1","3","4"]}`},
		{"negative occupant", `{"acting_agent":0,"boxes":[-1,0,0,0,0],"prize":0,"choices":["1","2","3","4"]}`},
		{"choices disagree with boxes", `{"acting_agent":0,"boxes":[1,0,0,0,0],"prize":3,"choices":["0","1","2","3","4"]}`},
		{"non-numeric choice", `{"acting_agent":0,"boxes":[0,0,0,0,0],"prize":3,"choices":["0","1","x","3","4"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := g.DecodeState(tt.key)
			assert.ErrorIs(t, err, sim.ErrInvalidStateKey)
			assert.Nil(t, s)
		})
	}
}

func TestLucky_DecodedStateRewards(t *testing.T) {
	g := New()
	decoded, err := g.DecodeState(`{"acting_agent":0,"boxes":[0,0,2,1,0],"prize":2,"choices":["0","1","4"]}`)
	require.NoError(t, err)
	assert.True(t, decoded.IsTerminal())
	assert.Equal(t, sim.Rewards{-1, 1}, decoded.Rewards())
}

func TestLucky_Determinism(t *testing.T) {
	play := func() []byte {
		env := testutil.QuietEnv(New())
		require.NoError(t, env.InitializeWithSeed([]sim.Agent{testutil.NewScriptedAgent(), testutil.NewScriptedAgent()}, 99))
		_, err := env.Run()
		require.NoError(t, err)
		data, err := sim.MarshalHistory(env.History())
		require.NoError(t, err)
		return data
	}
	assert.Equal(t, play(), play())
}

func TestLucky_ParseAction(t *testing.T) {
	g := New()
	a, err := g.ParseAction(" 3\n")
	require.NoError(t, err)
	assert.Equal(t, sim.Action(3), a)

	for _, bad := range []string{"", "x", "5", "-1"} {
		_, err := g.ParseAction(bad)
		assert.ErrorIs(t, err, sim.ErrIllegalAction, bad)
	}
}

func TestLucky_Display(t *testing.T) {
	s := NewState(0, []int{0, 1, 0, 0, 0}, 1)
	assert.Contains(t, s.DisplayString(), "Box states: [0 1 0 0 0]")
	assert.Contains(t, s.DisplayString(), "Prize position: 1")
	assert.Equal(t, "  Player chose: 4", s.ChoiceDisplay(4))

	ui := s.UIState()
	assert.Equal(t, []any{0.0, 1.0, 0.0, 0.0, 0.0}, ui["boxes"])
	assert.Equal(t, 1.0, ui["winner"])
	assert.Nil(t, NewState(0, make([]int, NumBoxes), 0).UIState()["winner"])
}
