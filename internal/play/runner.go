// Package play runs local games: a single displayed game, or many silent
// games summarised as a win rate.
package play

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mitchelldurbincs/turnsim/internal/agents"
	"github.com/mitchelldurbincs/turnsim/internal/experience"
	"github.com/mitchelldurbincs/turnsim/internal/games"
	"github.com/mitchelldurbincs/turnsim/internal/monitoring"
	"github.com/mitchelldurbincs/turnsim/internal/sim"
	"github.com/mitchelldurbincs/turnsim/internal/storage/sqlite"
)

// DrawSeed asks PlayOne to draw a fresh seed.
const DrawSeed int64 = -1

// Runner plays games of one kind with a fixed roster of agent names.
// Every game gets freshly built agents.
type Runner struct {
	Game     string
	Agents   []string
	Settings sim.Settings
	In       io.Reader
	Out      io.Writer
	Logger   zerolog.Logger

	// Store, when set, receives every finished game.
	Store *sqlite.Store
	// Export, when set, receives the transitions of every finished game.
	Export *experience.Writer
}

// NewRunner creates a runner with default settings writing to stdout.
func NewRunner(game string, agentNames []string) *Runner {
	return &Runner{
		Game:     game,
		Agents:   agentNames,
		Settings: sim.DefaultSettings(),
		In:       os.Stdin,
		Out:      os.Stdout,
		Logger:   log.Logger,
	}
}

// PlayOne plays a game to the end and returns its environment and final
// rewards. A negative seed draws one.
func (r *Runner) PlayOne(ctx context.Context, seed int64) (*sim.Environment, sim.Rewards, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	game, err := games.New(r.Game)
	if err != nil {
		return nil, nil, err
	}
	roster, err := agents.BuildAll(r.Agents,
		agents.WithInput(r.In),
		agents.WithOutput(r.Out),
		agents.WithLogger(r.Logger),
	)
	if err != nil {
		return nil, nil, err
	}
	if seed < 0 {
		if seed, err = sim.DrawSeed(); err != nil {
			return nil, nil, err
		}
	}

	env := sim.New(game,
		sim.WithLogger(r.Logger),
		sim.WithSettings(r.Settings),
		sim.WithOutput(r.Out),
	)
	if err := env.InitializeWithSeed(roster, seed); err != nil {
		return nil, nil, err
	}
	rewards, err := env.Run()
	if err != nil {
		return env, nil, err
	}

	if err := r.save(ctx, env, seed); err != nil {
		return env, rewards, err
	}
	if r.Export != nil {
		transitions, err := experience.Extract(env.ID(), env.History())
		if err != nil {
			return env, rewards, err
		}
		if err := r.Export.Write(transitions); err != nil {
			return env, rewards, err
		}
	}
	return env, rewards, nil
}

func (r *Runner) save(ctx context.Context, env *sim.Environment, seed int64) error {
	if r.Store == nil {
		return nil
	}
	records, err := sim.EncodeHistory(env.History())
	if err != nil {
		return err
	}
	rec := sqlite.GameRecord{
		ID:           env.ID(),
		Game:         r.Game,
		Agents:       r.Agents,
		Seed:         seed,
		Terminal:     env.CurrentState().IsTerminal(),
		ActionNumber: env.ActionNumber(),
		CreatedAt:    env.StartTime(),
	}
	if err := r.Store.SaveGame(ctx, rec); err != nil {
		return err
	}
	return r.Store.AppendEvents(ctx, env.ID(), 0, records)
}

// WinRate summarises how often the first agent won a batch of games.
type WinRate struct {
	Games   int
	P1Wins  int
	WinsStd float64
	Rate    float64
	RateErr float64
}

// NewWinRate computes the win rate and its binomial standard error.
func NewWinRate(games, p1Wins int) WinRate {
	if games <= 0 {
		return WinRate{}
	}
	p := float64(p1Wins) / float64(games)
	std := math.Sqrt(float64(games) * p * (1 - p))
	return WinRate{
		Games:   games,
		P1Wins:  p1Wins,
		WinsStd: std,
		Rate:    p,
		RateErr: std / float64(games),
	}
}

// Report prints the summary in the console layout.
func (w WinRate) Report(out io.Writer) {
	fmt.Fprintln(out, "\nResults")
	fmt.Fprintf(out, "  P1 games won: %d / %d\n", w.P1Wins, w.Games)
	fmt.Fprintf(out, "  +/-: %.1f\n", w.WinsStd)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  P1 win rate: %.2f\n", w.Rate)
	fmt.Fprintf(out, "  +/-: %.4f\n", w.RateErr)
	fmt.Fprintln(out)
}

// RunWinRate plays n games and counts the first agent's wins. A
// non-negative seed makes game i use seed+i; a negative one draws per game.
// Progress is logged through reporter every reportEvery games.
func (r *Runner) RunWinRate(ctx context.Context, n int, seed int64, reporter *monitoring.LoopReporter, reportEvery int) (WinRate, error) {
	if n <= 0 {
		return WinRate{}, fmt.Errorf("number of games must be positive, got %d", n)
	}
	wins := 0
	for i := 0; i < n; i++ {
		if reporter != nil {
			reporter.ReportEvery("Games played", reportEvery)
		}
		gameSeed := seed
		if seed >= 0 {
			gameSeed = seed + int64(i)
		}
		_, rewards, err := r.PlayOne(ctx, gameSeed)
		if err != nil {
			return NewWinRate(i, wins), fmt.Errorf("game %d: %w", i, err)
		}
		if len(rewards) > 0 && rewards[0] > 0 {
			wins++
		}
	}
	return NewWinRate(n, wins), nil
}
