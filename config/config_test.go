package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/soccerserver/room"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddress)
	assert.Equal(t, 60, cfg.Game.TickRate)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, time.Second/60, cfg.TickInterval())
	assert.Equal(t, 30*time.Second, cfg.Server.Heartbeat)
	assert.Equal(t, 64, cfg.Server.SendQueueSize)

	// the defaults mirror the built-in room settings
	assert.Equal(t, room.DefaultSettings(), cfg.GameSettings())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
game:
  tick_rate: 30
  max_players: 4
  match_duration: 90s
  physics:
    player_speed: 200
    corner_size: 0
database:
  driver: sqlite
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))
	t.Setenv("SOCCER_SERVER_HTTP_ADDRESS", ":9999")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.HTTPAddress)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, time.Second/30, cfg.TickInterval())

	settings := cfg.GameSettings()
	assert.Equal(t, 4, settings.MaxPlayers)
	assert.Equal(t, 90*time.Second, settings.MatchDuration)
	assert.Equal(t, 200.0, settings.Physics.PlayerSpeed)
	assert.Equal(t, 800.0, settings.Physics.Width)
	assert.Equal(t, 0.0, settings.Physics.CornerSize, "square corners")
}

func TestLoadConfig_BadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("game: [unclosed"), 0o644))
	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Postgres: PostgresConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", DBName: "soccer",
	}}}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=soccer sslmode=disable", cfg.PostgresDSN())
}
