package gameserver

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/turnsim/internal/agents"
	"github.com/mitchelldurbincs/turnsim/internal/games"
	"github.com/mitchelldurbincs/turnsim/internal/games/lucky"
	"github.com/mitchelldurbincs/turnsim/internal/lifecycle"
	"github.com/mitchelldurbincs/turnsim/internal/monitoring"
	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

func TestCreateGame_ClientsWaitForInput(t *testing.T) {
	gm := newTestManager(t, testConfig())

	g, err := gm.CreateGame(context.Background(), NewGameRequest{
		Game:   "Lucky",
		Agents: []string{"client", " Client "},
		Seed:   seedPtr(7),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, g.id)
	assert.Equal(t, "lucky", g.gameName)
	assert.Equal(t, []string{"client", "client"}, g.agentNames)
	assert.Equal(t, 1, g.env.ActionNumber())
	assert.Equal(t, lifecycle.PhaseSetUp, g.env.Phase())
	assert.Equal(t, 1, gm.ActiveGames())

	seed, ok := g.env.Seed()
	assert.True(t, ok)
	assert.Equal(t, int64(7), seed)
}

func TestCreateGame_AutonomousAgentsPlayToEnd(t *testing.T) {
	gm := newTestManager(t, testConfig())

	g, err := gm.CreateGame(context.Background(), NewGameRequest{Game: "lucky", Agents: []string{"random", "random"}})
	require.NoError(t, err)
	assert.True(t, g.env.CurrentState().IsTerminal())
	assert.Equal(t, lifecycle.PhaseTerminal, g.env.Phase())
}

func TestCreateGame_Rejections(t *testing.T) {
	tests := []struct {
		name string
		req  NewGameRequest
		want error
	}{
		{"console agent", NewGameRequest{Game: "lucky", Agents: []string{"console", "client"}}, ErrUnsupportedAgent},
		{"unknown agent", NewGameRequest{Game: "lucky", Agents: []string{"robot", "client"}}, agents.ErrUnknownAgent},
		{"unknown game", NewGameRequest{Game: "chess", Agents: []string{"client", "client"}}, games.ErrUnknownGame},
		{"agent count", NewGameRequest{Game: "lucky", Agents: []string{"client"}}, sim.ErrAgentCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gm := newTestManager(t, testConfig())
			_, err := gm.CreateGame(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, gm.ActiveGames())
		})
	}
}

// TestMaxGamesLimit tests that the manager correctly enforces the max games limit
func TestMaxGamesLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxGames = 3
	gm := newTestManager(t, cfg)
	ctx := context.Background()

	for i := 0; i < cfg.MaxGames; i++ {
		_, err := gm.CreateGame(ctx, NewGameRequest{Game: "lucky", Agents: []string{"client", "client"}})
		require.NoError(t, err, "Should be able to create game %d", i+1)
	}
	assert.Equal(t, cfg.MaxGames, gm.ActiveGames())

	_, err := gm.CreateGame(ctx, NewGameRequest{Game: "lucky", Agents: []string{"client", "client"}})
	assert.ErrorIs(t, err, ErrAtCapacity)

	cfg.MaxGames = 4
	gm.UpdateConfig(cfg)
	_, err = gm.CreateGame(ctx, NewGameRequest{Game: "lucky", Agents: []string{"client", "client"}})
	assert.NoError(t, err)
}

func TestGameCleanup(t *testing.T) {
	gm := newTestManager(t, testConfig())
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	gm.now = func() time.Time { return clock }
	ctx := context.Background()

	waiting, err := gm.CreateGame(ctx, NewGameRequest{Game: "lucky", Agents: []string{"client", "client"}})
	require.NoError(t, err)
	finished, err := gm.CreateGame(ctx, NewGameRequest{Game: "lucky", Agents: []string{"random", "random"}})
	require.NoError(t, err)

	gm.cleanupGames()
	assert.Equal(t, 2, gm.ActiveGames(), "fresh games are kept")

	clock = clock.Add(11 * time.Minute)
	gm.cleanupGames()
	_, err = gm.GetGame(ctx, finished.id)
	assert.ErrorIs(t, err, ErrGameNotFound, "finished game is dropped after its TTL")
	_, err = gm.GetGame(ctx, waiting.id)
	assert.NoError(t, err, "waiting game is kept until abandoned")

	clock = clock.Add(20 * time.Minute)
	gm.cleanupGames()
	assert.Equal(t, 0, gm.ActiveGames())
}

func TestGameManager_StartStop(t *testing.T) {
	cfg := testConfig()
	cfg.CleanupInterval = 5 * time.Millisecond
	cfg.FinishedGameTTL = 0
	gm := newTestManager(t, cfg)
	gm.Start()

	_, err := gm.CreateGame(context.Background(), NewGameRequest{Game: "lucky", Agents: []string{"random", "random"}})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return gm.ActiveGames() == 0 }, time.Second, 5*time.Millisecond)
	gm.Stop()
	gm.Stop()
}

func TestGetGame_NotFound(t *testing.T) {
	ctx := context.Background()

	_, err := newTestManager(t, testConfig()).GetGame(ctx, "missing")
	assert.ErrorIs(t, err, ErrGameNotFound)

	_, err = newTestManager(t, testConfig(), WithStore(openStore(t))).GetGame(ctx, "missing")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestGameManager_RestoresFromStore(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	seed := luckySeed(t, func(s *lucky.State) bool { return s.Prize != 0 })

	first := newTestManager(t, testConfig(), WithStore(store))
	g, err := first.CreateGame(ctx, NewGameRequest{Game: "lucky", Agents: []string{"client", "client"}, Seed: seedPtr(seed)})
	require.NoError(t, err)

	g.mu.Lock()
	require.NoError(t, g.env.Advance(g.env.CurrentState().EligibleActions()[0]))
	require.NoError(t, first.persistLocked(ctx, g))
	want, err := sim.EncodeHistory(g.env.History())
	g.mu.Unlock()
	require.NoError(t, err)

	second := newTestManager(t, testConfig(), WithStore(store))
	restored, err := second.GetGame(ctx, g.id)
	require.NoError(t, err)
	assert.Equal(t, 1, second.ActiveGames())

	got, err := sim.EncodeHistory(restored.env.History())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	restoredSeed, _ := restored.env.Seed()
	assert.Equal(t, seed, restoredSeed)

	again, err := second.GetGame(ctx, g.id)
	require.NoError(t, err)
	assert.Same(t, restored, again)

	// the restored game keeps playing and persisting
	restored.mu.Lock()
	require.NoError(t, restored.env.Advance(restored.env.CurrentState().EligibleActions()[0]))
	require.NoError(t, second.persistLocked(ctx, restored))
	restored.mu.Unlock()

	rec, events, err := store.LoadGame(ctx, g.id)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, 3, rec.ActionNumber)
}

// TestNoDeadlock runs cleanup concurrently with game operations
func TestNoDeadlock(t *testing.T) {
	gm := newTestManager(t, testConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := gm.CreateGame(ctx, NewGameRequest{Game: "lucky", Agents: []string{"client", "client"}})
			if err != nil {
				return
			}
			g.mu.Lock()
			g.lastActivity = g.lastActivity.Add(-time.Hour)
			g.mu.Unlock()
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gm.cleanupGames()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock between cleanup and game creation")
	}
	gm.cleanupGames()
	assert.Equal(t, 0, gm.ActiveGames())
}

func TestGameManager_ReportsToMonitor(t *testing.T) {
	monitor := monitoring.NewGoroutineMonitor(time.Hour, 1000, zerolog.Nop())
	gm := newTestManager(t, testConfig(), WithMonitor(monitor))

	_, err := gm.CreateGame(context.Background(), NewGameRequest{Game: "lucky", Agents: []string{"client", "client"}})
	require.NoError(t, err)
	gm.cleanupGames()

	counts := monitor.GetMetrics().ComponentCounts
	assert.Equal(t, 1, counts["hosted_games"])
	assert.Equal(t, 0, counts["watch_streams"])
}

func TestGameManager_LogsEnvironmentEvents(t *testing.T) {
	var buf bytes.Buffer
	gm := newTestManager(t, testConfig(), WithManagerLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))

	g, err := gm.CreateGame(context.Background(), NewGameRequest{
		Game:   "lucky",
		Agents: []string{"client", "client"},
		Seed:   seedPtr(3),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"subscriber":"event_logger"`)
	assert.Contains(t, out, `"event_type":"run.initialized"`)
	assert.Contains(t, out, `"game_id":"`+g.id+`"`)
	assert.Contains(t, out, `"seed":3`)
	assert.NotContains(t, out, `"event_data"`)

	buf.Reset()
	quiet := newTestManager(t, testConfig(), WithManagerLogger(zerolog.New(&buf).Level(zerolog.InfoLevel)))
	_, err = quiet.CreateGame(context.Background(), NewGameRequest{Game: "lucky", Agents: []string{"client", "client"}})
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "Environment event")
}
