package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mitchelldurbincs/turnsim/internal/config"
	"github.com/mitchelldurbincs/turnsim/internal/experience"
	"github.com/mitchelldurbincs/turnsim/internal/grpc/gameserver"
	"github.com/mitchelldurbincs/turnsim/internal/logging"
	"github.com/mitchelldurbincs/turnsim/internal/monitoring"
	"github.com/mitchelldurbincs/turnsim/internal/play"
	"github.com/mitchelldurbincs/turnsim/internal/storage/sqlite"
)

var (
	configPath string
	logLevel   string
	logger     zerolog.Logger
)

func main() {
	for _, envFile := range []string{".env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd := &cobra.Command{
		Use:           "turnsim",
		Short:         "turnsim plays turn-based games between pluggable agents.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(configPath); err != nil {
				return err
			}
			level := logLevel
			if level == "" {
				level = config.Get().Server.LogLevel
			}
			var err error
			logger, err = logging.Setup(level, config.Get().Server.LogFormat, os.Stderr)
			return err
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newPlayCmd(), newWinRateCmd(), newReplayCmd(), newRemoteCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// signalContext is canceled on interrupt or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openStore opens the configured store, or returns nil when storage is off.
func openStore(force bool) (*sqlite.Store, error) {
	cfg := config.Get().Storage
	if !cfg.Enabled && !force {
		return nil, nil
	}
	return sqlite.Open(cfg.SQLitePath)
}

type gameFlags struct {
	game   string
	agents []string
	seed   int64
}

func (f *gameFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.game, "game", "", "Game to play (default from config)")
	cmd.Flags().StringSliceVar(&f.agents, "agents", nil, "Comma separated agent names (default from config)")
	cmd.Flags().Int64Var(&f.seed, "seed", -2, "Random seed, -1 draws one (default from config)")
}

func (f *gameFlags) resolve() {
	cfg := config.Get().Play
	if f.game == "" {
		f.game = cfg.Game
	}
	if len(f.agents) == 0 {
		f.agents = cfg.Agents
	}
	if f.seed == -2 {
		f.seed = cfg.Seed
	}
}

func newRunner(f *gameFlags, store *sqlite.Store) *play.Runner {
	r := play.NewRunner(f.game, f.agents)
	r.Settings = config.Get().Settings.Sim()
	r.Logger = logger
	r.Store = store
	return r
}

func newPlayCmd() *cobra.Command {
	var f gameFlags
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play one game on the console",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.resolve()
			ctx, cancel := signalContext()
			defer cancel()

			store, err := openStore(false)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			r := newRunner(&f, store)
			r.Out = cmd.OutOrStdout()
			env, rewards, err := r.PlayOne(ctx, f.seed)
			if err != nil {
				return err
			}
			logger.Info().
				Str("env_id", env.ID()).
				Int("actions", env.ActionNumber()).
				Floats64("rewards", rewards).
				Dur("duration", env.EndTime().Sub(env.StartTime())).
				Msg("Game finished")
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newWinRateCmd() *cobra.Command {
	var (
		f           gameFlags
		numGames    int
		reportEvery int
		exportPath  string
	)
	cmd := &cobra.Command{
		Use:   "winrate",
		Short: "Play many silent games and report the first agent's win rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.resolve()
			cfg := config.Get().Play
			if numGames <= 0 {
				numGames = cfg.Games
			}
			if reportEvery < 0 {
				reportEvery = cfg.ReportEach
			}
			if exportPath == "" {
				exportPath = cfg.ExportPath
			}

			ctx, cancel := signalContext()
			defer cancel()

			store, err := openStore(false)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			r := newRunner(&f, store)
			r.Settings.DisableOutput()
			if exportPath != "" {
				w, err := experience.OpenFile(exportPath, logger)
				if err != nil {
					return err
				}
				defer w.Close()
				r.Export = w
			}

			timer := monitoring.StartTimer()
			result, err := r.RunWinRate(ctx, numGames, f.seed, monitoring.NewLoopReporter(logger), reportEvery)
			elapsed := timer.Stop()
			if err != nil {
				return err
			}
			result.Report(cmd.OutOrStdout())
			logger.Info().
				Int("games", result.Games).
				Dur("elapsed", elapsed).
				Float64("games_per_sec", timer.Rate(result.Games)).
				Msg("Win rate complete")
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&numGames, "games", 0, "Number of games (default from config)")
	cmd.Flags().IntVar(&reportEvery, "report-every", -1, "Log progress every N games, 0 disables (default from config)")
	cmd.Flags().StringVar(&exportPath, "export", "", "Append transitions as JSON lines to this file")
	return cmd
}

func newReplayCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "replay [game-id]",
		Short: "Print a stored game, or list stored games when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := openStore(true)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				return play.List(ctx, store, limit, cmd.OutOrStdout())
			}
			return play.Replay(ctx, store, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of games to list")
	return cmd
}

func newRemoteCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
		client  *gameserver.Client
		closeFn func() error
	)
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Talk to a running game server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if addr == "" {
				addr = fmt.Sprintf("localhost:%d", config.Get().Server.Port)
			}
			c, conn, err := gameserver.Dial(addr)
			if err != nil {
				return err
			}
			client, closeFn = c, conn.Close
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if closeFn != nil {
				return closeFn()
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "", "Server address (default localhost and the configured port)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-call timeout")

	callCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), timeout)
	}

	var f gameFlags
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Create a hosted game",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.resolve()
			req := gameserver.NewGameRequest{Game: f.game, Agents: f.agents}
			if f.seed >= 0 {
				req.Seed = &f.seed
			}
			ctx, cancel := callCtx()
			defer cancel()
			id, err := client.NewGame(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	f.register(newCmd)

	updatesCmd := &cobra.Command{
		Use:   "updates <game-id>",
		Short: "Show the state of a hosted game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx()
			defer cancel()
			upd, err := client.GameUpdates(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Phase: %s\n", upd.Phase)
			fmt.Fprintf(out, "Action number: %d\n", upd.ActionNumber)
			fmt.Fprintf(out, "Acting agent: %d\n", upd.ActingAgent)
			fmt.Fprintf(out, "Terminal: %t\n", upd.Terminal)
			fmt.Fprintf(out, "Rewards: %v\n", upd.Rewards)
			if upd.View != nil {
				fmt.Fprintf(out, "View: %v\n", upd.View)
			}
			return nil
		},
	}

	var key string
	submitCmd := &cobra.Command{
		Use:   "submit <game-id> <action>",
		Short: "Submit an action for the waiting client agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := strconv.Atoi(strings.TrimSpace(args[1]))
			if err != nil {
				return fmt.Errorf("action must be an integer: %w", err)
			}
			ctx, cancel := callCtx()
			defer cancel()
			resp, err := client.SubmitAction(ctx, gameserver.SubmitActionRequest{
				GameID:         args[0],
				Action:         action,
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "success=%t action_number=%d\n", resp.Success, resp.ActionNumber)
			return nil
		},
	}
	submitCmd.Flags().StringVar(&key, "key", "", "Idempotency key for safe retries")

	watchCmd := &cobra.Command{
		Use:   "watch <game-id>",
		Short: "Stream updates of a hosted game until it ends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return client.Watch(ctx, args[0], func(u gameserver.GameUpdate) error {
				fmt.Fprintf(cmd.OutOrStdout(), "action_number=%d acting_agent=%d action=%d rewards=%v terminal=%t\n",
					u.ActionNumber, u.ActingAgent, u.Action, u.Rewards, u.Terminal)
				return nil
			})
		},
	}

	cmd.AddCommand(newCmd, updatesCmd, submitCmd, watchCmd)
	return cmd
}
