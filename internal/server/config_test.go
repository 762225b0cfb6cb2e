package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "casino.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:8080", cfg.Addr())
	assert.Equal(t, 10, cfg.Poker.MinBet)
	assert.Equal(t, 1.5, cfg.Blackjack.BlackjackPayout)
	assert.Equal(t, 1000, cfg.Server.StartingBalance)
}

func TestLoadConfigParsesAndFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
server {
  host = "0.0.0.0"
  port = 9000
  starting_balance = 5000
}

poker {
  min_bet        = 25
  starting_chips = 2000
}

blackjack {
  min_bet          = 5
  max_bet          = 200
  blackjack_payout = 2.0
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, 25, cfg.Poker.MinBet)
	assert.Equal(t, 2000, cfg.Poker.StartingChips)
	assert.Equal(t, 9, cfg.Poker.MaxPlayers, "unset poker fields take defaults")
	assert.Equal(t, 2.0, cfg.Blackjack.BlackjackPayout)
	assert.Equal(t, 30, cfg.Blackjack.TurnTimeoutSec, "unset blackjack fields take defaults")
	assert.Equal(t, 5000, cfg.Server.StartingBalance, "registry balance comes from the server block")
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CASINO_HOST", "10.1.2.3")
	t.Setenv("CASINO_PORT", "7777")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3:7777", cfg.Addr())
}

func TestLoadConfigRejectsBadHCL(t *testing.T) {
	path := writeConfig(t, `server { port = `)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"zero poker min bet", func(c *Config) { c.Poker.MinBet = 0 }},
		{"poker max below min", func(c *Config) { c.Poker.MinBet = 50; c.Poker.MaxBet = 20 }},
		{"chips below min bet", func(c *Config) { c.Poker.StartingChips = 5 }},
		{"too many players", func(c *Config) { c.Poker.MaxPlayers = 11 }},
		{"blackjack max below min", func(c *Config) { c.Blackjack.MaxBet = 5 }},
		{"payout below even money", func(c *Config) { c.Blackjack.BlackjackPayout = 0.5 }},
		{"negative timeout", func(c *Config) { c.Blackjack.TurnTimeoutSec = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
