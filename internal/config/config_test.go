package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
settings:
  display_environment_state: false
server:
  port: 8080
  max_games: 3
storage:
  enabled: true
  sqlite_path: /tmp/games.db
play:
  game: gatherer
  agents: [client]
  seed: 42
`
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

	reset()
	require.NoError(t, Init(configFile))

	c := Get()
	assert.False(t, c.Settings.DisplayEnvironmentState)
	assert.True(t, c.Settings.DisplayBestActions)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 3, c.Server.MaxGames)
	assert.True(t, c.Storage.Enabled)
	assert.Equal(t, "/tmp/games.db", c.Storage.SQLitePath)
	assert.Equal(t, "gatherer", c.Play.Game)
	assert.Equal(t, []string{"client"}, c.Play.Agents)
	assert.Equal(t, int64(42), c.Play.Seed)
	assert.Equal(t, configFile, ConfigFilePath())
}

func TestInitWithDefaults(t *testing.T) {
	reset()
	require.NoError(t, Init("/non/existent/path/config.yaml"))

	c := Get()
	assert.Equal(t, 50051, c.Server.Port)
	assert.Equal(t, "0.0.0.0:50051", c.Server.Address())
	assert.Equal(t, "lucky", c.Play.Game)
	assert.Equal(t, []string{"random", "random"}, c.Play.Agents)
	assert.Equal(t, int64(-1), c.Play.Seed)
	assert.False(t, c.Storage.Enabled)

	s := c.Settings.Sim()
	assert.True(t, s.DisplayEnvironmentState)
	assert.False(t, s.DisplayPUCTInfo)

	cleanup, finished, abandoned := c.Server.Durations()
	assert.Equal(t, 5*time.Minute, cleanup)
	assert.Equal(t, 10*time.Minute, finished)
	assert.Equal(t, 30*time.Minute, abandoned)
}

func TestEnvironmentVariables(t *testing.T) {
	reset()
	t.Setenv("TURNSIM_SERVER_PORT", "9090")
	t.Setenv("TURNSIM_SETTINGS_DISPLAY_ENVIRONMENT_STATE", "false")

	require.NoError(t, Init(""))

	c := Get()
	assert.Equal(t, 9090, c.Server.Port)
	assert.False(t, c.Settings.DisplayEnvironmentState)
}

func TestSetAndGetHelpers(t *testing.T) {
	reset()
	require.NoError(t, Init(""))

	require.NoError(t, Set("server.max_games", 7))
	require.NoError(t, Set("play.game", "gatherer"))

	assert.Equal(t, 7, Get().Server.MaxGames)
	assert.Equal(t, "gatherer", GetString("play.game"))
	assert.Equal(t, 7, GetInt("server.max_games"))
	assert.True(t, GetBool("settings.display_best_actions"))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		reset()
		require.NoError(t, Init(""))
		c := *Get()
		return &c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"max games", func(c *Config) { c.Server.MaxGames = -1 }},
		{"log level", func(c *Config) { c.Server.LogLevel = "loud" }},
		{"log format", func(c *Config) { c.Server.LogFormat = "xml" }},
		{"cleanup", func(c *Config) { c.Server.CleanupInterval = 0 }},
		{"ttl", func(c *Config) { c.Server.FinishedGameTTL = 0 }},
		{"storage path", func(c *Config) { c.Storage.Enabled = true; c.Storage.SQLitePath = "" }},
		{"game", func(c *Config) { c.Play.Game = "" }},
		{"agents", func(c *Config) { c.Play.Agents = nil }},
		{"seed", func(c *Config) { c.Play.Seed = -2 }},
		{"games", func(c *Config) { c.Play.Games = 0 }},
	}

	require.NoError(t, Validate(valid()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, Validate(c))
		})
	}
}

func TestInitRejectsInvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("server:\n  port: 70000\n"), 0644))

	reset()
	err := Init(configFile)
	assert.ErrorContains(t, err, "server.port")
}

func TestWatchConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("settings:\n  display_environment_state: true\n"), 0644))

	reset()
	require.NoError(t, Init(configFile))

	changed := make(chan *Config, 4)
	WatchConfig(func(c *Config) { changed <- c }, nil)

	require.NoError(t, os.WriteFile(configFile, []byte("settings:\n  display_environment_state: false\n"), 0644))

	// a write can surface as several events; wait for the final content
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if !c.Settings.DisplayEnvironmentState {
				assert.False(t, Get().Settings.DisplayEnvironmentState)
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}
