package play

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/turnsim/internal/experience"
	"github.com/mitchelldurbincs/turnsim/internal/monitoring"
	"github.com/mitchelldurbincs/turnsim/internal/sim"
	"github.com/mitchelldurbincs/turnsim/internal/storage/sqlite"
	"github.com/mitchelldurbincs/turnsim/internal/testutil"
)

func quietRunner(agentNames ...string) *Runner {
	r := NewRunner("lucky", agentNames)
	r.Settings.DisableOutput()
	r.Out = &bytes.Buffer{}
	r.In = strings.NewReader("")
	r.Logger = testutil.NopLogger()
	return r
}

func TestNewWinRate(t *testing.T) {
	w := NewWinRate(100, 50)
	assert.Equal(t, 0.5, w.Rate)
	assert.InDelta(t, 5.0, w.WinsStd, 1e-9)
	assert.InDelta(t, 0.05, w.RateErr, 1e-9)

	assert.Equal(t, 0.0, NewWinRate(10, 10).WinsStd)
	assert.Equal(t, WinRate{}, NewWinRate(0, 0))
}

func TestWinRate_Report(t *testing.T) {
	var buf bytes.Buffer
	NewWinRate(100, 50).Report(&buf)
	out := buf.String()
	assert.Contains(t, out, "Results")
	assert.Contains(t, out, "  P1 games won: 50 / 100")
	assert.Contains(t, out, "  +/-: 5.0")
	assert.Contains(t, out, "  P1 win rate: 0.50")
	assert.Contains(t, out, "  +/-: 0.0500")
}

func TestPlayOne_DisplaysGame(t *testing.T) {
	r := quietRunner("random", "random")
	r.Settings.DisplayEnvironmentState = true
	out := &bytes.Buffer{}
	r.Out = out

	env, rewards, err := r.PlayOne(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, env.CurrentState().IsTerminal())
	assert.ElementsMatch(t, sim.Rewards{1, -1}, rewards)
	assert.Contains(t, out.String(), "Random seed: 42")
	assert.Contains(t, out.String(), "GAME OVER")
}

func TestPlayOne_ConsoleAgents(t *testing.T) {
	r := quietRunner("console", "console")
	r.In = strings.NewReader("0\n1\n2\n3\n4\n")

	env, _, err := r.PlayOne(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, env.CurrentState().IsTerminal())
}

func TestPlayOne_Errors(t *testing.T) {
	ctx := context.Background()

	_, _, err := NewRunner("chess", []string{"random"}).PlayOne(ctx, 1)
	assert.Error(t, err)

	_, _, err = quietRunner("random").PlayOne(ctx, 1)
	assert.ErrorIs(t, err, sim.ErrAgentCount)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = quietRunner("random", "random").PlayOne(canceled, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunWinRate_Deterministic(t *testing.T) {
	ctx := context.Background()
	reporter := monitoring.NewLoopReporter(testutil.NopLogger())

	first, err := quietRunner("random", "random").RunWinRate(ctx, 200, 1000, reporter, 50)
	require.NoError(t, err)
	second, err := quietRunner("random", "random").RunWinRate(ctx, 200, 1000, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, 200, first.Games)
	assert.Equal(t, first, second)
	assert.Greater(t, first.P1Wins, 0)
	assert.Less(t, first.P1Wins, 200)

	_, err = quietRunner("random", "random").RunWinRate(ctx, 0, 1, nil, 0)
	assert.Error(t, err)
}

func TestRunner_SavesAndExports(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := sqlite.Open(filepath.Join(dir, "games.db"))
	require.NoError(t, err)
	defer store.Close()
	export, err := experience.OpenFile(filepath.Join(dir, "out", "transitions.jsonl"), testutil.NopLogger())
	require.NoError(t, err)

	r := quietRunner("random", "random")
	r.Store = store
	r.Export = export

	env, _, err := r.PlayOne(ctx, 9)
	require.NoError(t, err)
	require.NoError(t, export.Close())

	rec, events, err := store.LoadGame(ctx, env.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(9), rec.Seed)
	assert.True(t, rec.Terminal)
	assert.Len(t, events, env.ActionNumber())

	f, err := os.Open(filepath.Join(dir, "out", "transitions.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	transitions, err := experience.ReadAll(f)
	require.NoError(t, err)
	assert.Len(t, transitions, env.ActionNumber()-1)
	assert.True(t, transitions[len(transitions)-1].Done)
}
