package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

// Config holds all configuration for the application
type Config struct {
	Settings SettingsConfig `mapstructure:"settings"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Play     PlayConfig     `mapstructure:"play"`
}

// SettingsConfig holds the display flags read by environments and agents
type SettingsConfig struct {
	DisplayBestActions        bool `mapstructure:"display_best_actions"`
	DisplayPUCTInfo           bool `mapstructure:"display_puct_info"`
	DisplayConsiderationStats bool `mapstructure:"display_consideration_stats"`
	DisplayEnvironmentState   bool `mapstructure:"display_environment_state"`
}

// Sim converts the display flags into environment settings
func (s SettingsConfig) Sim() sim.Settings {
	return sim.Settings{
		DisplayBestActions:        s.DisplayBestActions,
		DisplayPUCTInfo:           s.DisplayPUCTInfo,
		DisplayConsiderationStats: s.DisplayConsiderationStats,
		DisplayEnvironmentState:   s.DisplayEnvironmentState,
	}
}

// ServerConfig holds game hosting server configuration
type ServerConfig struct {
	Host                  string `mapstructure:"host"`
	Port                  int    `mapstructure:"port"`
	LogLevel              string `mapstructure:"log_level"`
	LogFormat             string `mapstructure:"log_format"`
	MaxGames              int    `mapstructure:"max_games"`
	EnableReflection      bool   `mapstructure:"enable_reflection"`
	GracefulShutdownDelay int    `mapstructure:"graceful_shutdown_delay"`
	CleanupInterval       int    `mapstructure:"cleanup_interval"`
	FinishedGameTTL       int    `mapstructure:"finished_game_ttl"`
	AbandonedGameTTL      int    `mapstructure:"abandoned_game_ttl"`
}

// Address returns host:port
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Durations converts the second-based settings
func (s ServerConfig) Durations() (cleanup, finished, abandoned time.Duration) {
	return time.Duration(s.CleanupInterval) * time.Second,
		time.Duration(s.FinishedGameTTL) * time.Second,
		time.Duration(s.AbandonedGameTTL) * time.Second
}

// StorageConfig holds history persistence configuration
type StorageConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// PlayConfig holds defaults for local runs
type PlayConfig struct {
	Game       string   `mapstructure:"game"`
	Agents     []string `mapstructure:"agents"`
	Seed       int64    `mapstructure:"seed"`
	Games      int      `mapstructure:"games"`
	ReportEach int      `mapstructure:"report_every"`
	ExportPath string   `mapstructure:"export_path"`
}

var (
	// Global config instance
	cfg *Config
	v   *viper.Viper
	mu  sync.RWMutex
)

// setViperDefaults sets all default values using Viper's SetDefault
func setViperDefaults(v *viper.Viper) {
	// Display settings
	v.SetDefault("settings.display_best_actions", true)
	v.SetDefault("settings.display_puct_info", false)
	v.SetDefault("settings.display_consideration_stats", true)
	v.SetDefault("settings.display_environment_state", true)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 50051)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "console")
	v.SetDefault("server.max_games", 100)
	v.SetDefault("server.enable_reflection", false)
	v.SetDefault("server.graceful_shutdown_delay", 5)
	v.SetDefault("server.cleanup_interval", 300)
	v.SetDefault("server.finished_game_ttl", 600)
	v.SetDefault("server.abandoned_game_ttl", 1800)

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.sqlite_path", "turnsim.db")

	// Local play defaults; seed -1 draws a fresh one
	v.SetDefault("play.game", "lucky")
	v.SetDefault("play.agents", []string{"random", "random"})
	v.SetDefault("play.seed", -1)
	v.SetDefault("play.games", 1000)
	v.SetDefault("play.report_every", 100)
	v.SetDefault("play.export_path", "")
}

// Init initializes the configuration
func Init(configPath string) error {
	nv := viper.New()

	// Set defaults before loading any config
	setViperDefaults(nv)

	if configPath != "" {
		nv.SetConfigFile(configPath)
	} else {
		nv.SetConfigName("config")
		nv.SetConfigType("yaml")
		nv.AddConfigPath(".")
		nv.AddConfigPath("./config")
		nv.AddConfigPath("/etc/turnsim")
	}

	nv.SetEnvPrefix("TURNSIM")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()

	if err := nv.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath == "" && !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// A missing file (default lookup or an explicit path) falls back to defaults
	}

	c := &Config{}
	if err := nv.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := Validate(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	mu.Lock()
	v = nv
	cfg = c
	mu.Unlock()
	return nil
}

// Get returns the global config instance
func Get() *Config {
	mu.RLock()
	c := cfg
	mu.RUnlock()
	if c == nil {
		if err := Init(""); err != nil {
			panic("failed to initialize config with defaults: " + err.Error())
		}
		mu.RLock()
		c = cfg
		mu.RUnlock()
	}
	return c
}

// GetViper returns the viper instance for advanced usage
func GetViper() *viper.Viper {
	mu.RLock()
	defer mu.RUnlock()
	if v == nil {
		panic("config not initialized - call Init() first")
	}
	return v
}

// Set allows runtime config updates
func Set(key string, value interface{}) error {
	mu.Lock()
	defer mu.Unlock()
	v.Set(key, value)
	return v.Unmarshal(cfg)
}

// GetString gets a string value from config
func GetString(key string) string {
	return GetViper().GetString(key)
}

// GetInt gets an int value from config
func GetInt(key string) int {
	return GetViper().GetInt(key)
}

// GetBool gets a bool value from config
func GetBool(key string) bool {
	return GetViper().GetBool(key)
}

// ConfigFilePath returns the path of the loaded config file
func ConfigFilePath() string {
	return GetViper().ConfigFileUsed()
}

// WatchConfig enables hot-reloading of the config file. onChange receives
// the reloaded config; a reload that fails validation keeps the old one.
func WatchConfig(onChange func(*Config), onError func(error)) {
	wv := GetViper()
	wv.OnConfigChange(func(e fsnotify.Event) {
		next := &Config{}
		err := wv.Unmarshal(next)
		if err == nil {
			err = Validate(next)
		}
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		mu.Lock()
		cfg = next
		mu.Unlock()
		if onChange != nil {
			onChange(next)
		}
	})
	wv.WatchConfig()
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate validates the configuration values
func Validate(c *Config) error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.MaxGames < 0 {
		return fmt.Errorf("server.max_games must be non-negative")
	}
	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("server.log_level must be one of debug, info, warn, error")
	}
	if c.Server.LogFormat != "console" && c.Server.LogFormat != "json" {
		return fmt.Errorf("server.log_format must be console or json")
	}
	if c.Server.GracefulShutdownDelay < 0 {
		return fmt.Errorf("server.graceful_shutdown_delay must be non-negative")
	}
	if c.Server.CleanupInterval <= 0 {
		return fmt.Errorf("server.cleanup_interval must be positive")
	}
	if c.Server.FinishedGameTTL <= 0 || c.Server.AbandonedGameTTL <= 0 {
		return fmt.Errorf("server game ttls must be positive")
	}

	if c.Storage.Enabled && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required when storage is enabled")
	}

	if c.Play.Game == "" {
		return fmt.Errorf("play.game must be set")
	}
	if len(c.Play.Agents) == 0 {
		return fmt.Errorf("play.agents must list at least one agent")
	}
	if c.Play.Seed < -1 || c.Play.Seed > sim.MaxSeed {
		return fmt.Errorf("play.seed must be -1 or between 0 and %d", sim.MaxSeed)
	}
	if c.Play.Games <= 0 {
		return fmt.Errorf("play.games must be positive")
	}
	if c.Play.ReportEach < 0 {
		return fmt.Errorf("play.report_every must be non-negative")
	}

	return nil
}

// reset clears global state; used by tests
func reset() {
	mu.Lock()
	defer mu.Unlock()
	cfg = nil
	v = nil
}
