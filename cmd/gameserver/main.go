package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/mitchelldurbincs/turnsim/internal/config"
	"github.com/mitchelldurbincs/turnsim/internal/grpc/gameserver"
	"github.com/mitchelldurbincs/turnsim/internal/logging"
	"github.com/mitchelldurbincs/turnsim/internal/monitoring"
	"github.com/mitchelldurbincs/turnsim/internal/storage/sqlite"
)

type flags struct {
	configPath       string
	host             string
	port             int
	logLevel         string
	maxGames         int
	enableReflection bool
}

func main() {
	for _, envFile := range []string{".env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	var f flags
	rootCmd := &cobra.Command{
		Use:          "gameserver",
		Short:        "gameserver hosts turnsim games over gRPC.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}
	rootCmd.Flags().StringVar(&f.configPath, "config", "", "Path to config file")
	rootCmd.Flags().StringVar(&f.host, "host", "", "The server host (empty to use config default)")
	rootCmd.Flags().IntVar(&f.port, "port", -1, "The server port (-1 to use config default)")
	rootCmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error) (empty to use config default)")
	rootCmd.Flags().IntVar(&f.maxGames, "max-games", -1, "Maximum games held in memory (-1 to use config default)")
	rootCmd.Flags().BoolVar(&f.enableReflection, "enable-reflection", false, "Enable gRPC reflection for debugging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(f flags) error {
	if err := config.Init(f.configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	// Flags override config when set
	if f.port != -1 {
		if err := config.Set("server.port", f.port); err != nil {
			return err
		}
	}
	if f.host != "" {
		if err := config.Set("server.host", f.host); err != nil {
			return err
		}
	}
	if f.logLevel != "" {
		if err := config.Set("server.log_level", f.logLevel); err != nil {
			return err
		}
	}
	if f.maxGames != -1 {
		if err := config.Set("server.max_games", f.maxGames); err != nil {
			return err
		}
	}
	if f.enableReflection {
		if err := config.Set("server.enable_reflection", true); err != nil {
			return err
		}
	}
	cfg := config.Get()

	logger, err := logging.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat, os.Stdout)
	if err != nil {
		return err
	}

	logger.Info().
		Str("address", cfg.Server.Address()).
		Int("max_games", cfg.Server.MaxGames).
		Bool("storage", cfg.Storage.Enabled).
		Msg("Starting gRPC game server")

	lis, err := net.Listen("tcp", cfg.Server.Address())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	monitor := monitoring.NewGoroutineMonitor(time.Minute, 1000, logger)
	monitor.Start()
	defer monitor.Stop()

	opts := []gameserver.ManagerOption{
		gameserver.WithManagerLogger(logger),
		gameserver.WithMonitor(monitor),
	}
	if cfg.Storage.Enabled {
		store, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, gameserver.WithStore(store))
		logger.Info().Str("path", cfg.Storage.SQLitePath).Msg("Persisting games to sqlite")
	}

	manager := gameserver.NewGameManager(managerConfig(cfg), opts...)
	manager.Start()
	defer manager.Stop()

	grpcServer := grpc.NewServer(gameserver.ServerOptions(logger)...)
	gameserver.RegisterGameServiceServer(grpcServer, gameserver.NewServer(manager, logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(gameserver.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	if cfg.Server.EnableReflection {
		reflection.Register(grpcServer)
		logger.Info().Msg("gRPC reflection enabled")
	}

	if path := config.ConfigFilePath(); path != "" {
		config.WatchConfig(func(next *config.Config) {
			zerolog.SetGlobalLevel(logging.ParseLevel(next.Server.LogLevel))
			manager.UpdateConfig(managerConfig(next))
			logger.Info().Str("path", path).Msg("Config reloaded")
		}, func(err error) {
			logger.Warn().Err(err).Msg("Ignoring invalid config change")
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus(gameserver.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

		// Give ongoing requests time to complete
		time.Sleep(time.Duration(config.Get().Server.GracefulShutdownDelay) * time.Second)

		logger.Info().Msg("Gracefully stopping gRPC server")
		manager.Stop()
		grpcServer.GracefulStop()
		cancel()
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("address", lis.Addr().String()).Msg("gRPC server listening")
		serveErr <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("Failed to serve")
			return err
		}
	}
	logger.Info().Msg("Server shutdown complete")
	return nil
}

func managerConfig(cfg *config.Config) gameserver.ManagerConfig {
	cleanup, finished, abandoned := cfg.Server.Durations()
	return gameserver.ManagerConfig{
		MaxGames:         cfg.Server.MaxGames,
		CleanupInterval:  cleanup,
		FinishedGameTTL:  finished,
		AbandonedGameTTL: abandoned,
	}
}
