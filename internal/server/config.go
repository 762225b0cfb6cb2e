package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/greenfelt/casino/internal/blackjack"
	"github.com/greenfelt/casino/internal/poker"
)

// Config is the complete server configuration
type Config struct {
	Server    ServerSettings     `hcl:"server,block"`
	Poker     *PokerSettings     `hcl:"poker,block"`
	Blackjack *BlackjackSettings `hcl:"blackjack,block"`
}

// ServerSettings contains process-level configuration
type ServerSettings struct {
	Host            string `hcl:"host,optional"`
	Port            int    `hcl:"port,optional"`
	LogLevel        string `hcl:"log_level,optional"`
	StartingBalance int    `hcl:"starting_balance,optional"`
}

// PokerSettings configures the poker table
type PokerSettings struct {
	MinBet         int `hcl:"min_bet,optional"`
	MaxBet         int `hcl:"max_bet,optional"`
	StartingChips  int `hcl:"starting_chips,optional"`
	MaxPlayers     int `hcl:"max_players,optional"`
	TurnTimeoutSec int `hcl:"turn_timeout_seconds,optional"`
}

// BlackjackSettings configures the blackjack table
type BlackjackSettings struct {
	MinBet          int     `hcl:"min_bet,optional"`
	MaxBet          int     `hcl:"max_bet,optional"`
	BlackjackPayout float64 `hcl:"blackjack_payout,optional"`
	TurnTimeoutSec  int     `hcl:"turn_timeout_seconds,optional"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Host:            "localhost",
			Port:            8080,
			LogLevel:        "info",
			StartingBalance: 1000,
		},
		Poker: &PokerSettings{
			MinBet:         10,
			MaxBet:         0,
			StartingChips:  1000,
			MaxPlayers:     9,
			TurnTimeoutSec: 30,
		},
		Blackjack: &BlackjackSettings{
			MinBet:          10,
			MaxBet:          500,
			BlackjackPayout: 1.5,
			TurnTimeoutSec:  30,
		},
	}
}

// LoadConfig loads configuration from an HCL file, falling back to
// defaults when the file does not exist. CASINO_HOST and CASINO_PORT
// environment variables override the file.
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(filename); err == nil {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(filename)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
		}

		var loaded Config
		diags = gohcl.DecodeBody(file.Body, nil, &loaded)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
		}
		config = &loaded
	}

	applyDefaults(config)
	applyEnvOverrides(config)
	return config, nil
}

func applyDefaults(c *Config) {
	def := DefaultConfig()

	if c.Server.Host == "" {
		c.Server.Host = def.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}
	if c.Server.StartingBalance == 0 {
		c.Server.StartingBalance = def.Server.StartingBalance
	}

	if c.Poker == nil {
		c.Poker = def.Poker
	} else {
		if c.Poker.MinBet == 0 {
			c.Poker.MinBet = def.Poker.MinBet
		}
		if c.Poker.StartingChips == 0 {
			c.Poker.StartingChips = def.Poker.StartingChips
		}
		if c.Poker.MaxPlayers == 0 {
			c.Poker.MaxPlayers = def.Poker.MaxPlayers
		}
		if c.Poker.TurnTimeoutSec == 0 {
			c.Poker.TurnTimeoutSec = def.Poker.TurnTimeoutSec
		}
	}

	if c.Blackjack == nil {
		c.Blackjack = def.Blackjack
	} else {
		if c.Blackjack.MinBet == 0 {
			c.Blackjack.MinBet = def.Blackjack.MinBet
		}
		if c.Blackjack.MaxBet == 0 {
			c.Blackjack.MaxBet = def.Blackjack.MaxBet
		}
		if c.Blackjack.BlackjackPayout == 0 {
			c.Blackjack.BlackjackPayout = def.Blackjack.BlackjackPayout
		}
		if c.Blackjack.TurnTimeoutSec == 0 {
			c.Blackjack.TurnTimeoutSec = def.Blackjack.TurnTimeoutSec
		}
	}
}

func applyEnvOverrides(c *Config) {
	if host := os.Getenv("CASINO_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("CASINO_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}
}

// Validate checks the configuration for contradictions
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.StartingBalance < 0 {
		return fmt.Errorf("starting balance must not be negative")
	}

	if c.Poker.MinBet <= 0 {
		return fmt.Errorf("poker: min bet must be positive")
	}
	if c.Poker.MaxBet != 0 && c.Poker.MaxBet < c.Poker.MinBet {
		return fmt.Errorf("poker: max bet %d below min bet %d", c.Poker.MaxBet, c.Poker.MinBet)
	}
	if c.Poker.StartingChips < c.Poker.MinBet {
		return fmt.Errorf("poker: starting chips %d below min bet %d", c.Poker.StartingChips, c.Poker.MinBet)
	}
	if c.Poker.MaxPlayers < 2 || c.Poker.MaxPlayers > 10 {
		return fmt.Errorf("poker: max players must be between 2 and 10")
	}
	if c.Poker.TurnTimeoutSec <= 0 {
		return fmt.Errorf("poker: turn timeout must be positive")
	}

	if c.Blackjack.MinBet <= 0 {
		return fmt.Errorf("blackjack: min bet must be positive")
	}
	if c.Blackjack.MaxBet < c.Blackjack.MinBet {
		return fmt.Errorf("blackjack: max bet %d below min bet %d", c.Blackjack.MaxBet, c.Blackjack.MinBet)
	}
	if c.Blackjack.BlackjackPayout < 1 {
		return fmt.Errorf("blackjack: payout multiplier must be at least 1")
	}
	if c.Blackjack.TurnTimeoutSec <= 0 {
		return fmt.Errorf("blackjack: turn timeout must be positive")
	}
	return nil
}

// Addr returns the host:port the server binds to
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PokerConfig converts the settings into an engine configuration
func (c *Config) PokerConfig() poker.Config {
	return poker.Config{
		MinBet:        c.Poker.MinBet,
		MaxBet:        c.Poker.MaxBet,
		StartingChips: c.Poker.StartingChips,
		MaxPlayers:    c.Poker.MaxPlayers,
		TurnTimeout:   time.Duration(c.Poker.TurnTimeoutSec) * time.Second,
	}
}

// BlackjackConfig converts the settings into an engine configuration
func (c *Config) BlackjackConfig() blackjack.Config {
	return blackjack.Config{
		MinBet:          c.Blackjack.MinBet,
		MaxBet:          c.Blackjack.MaxBet,
		BlackjackPayout: c.Blackjack.BlackjackPayout,
		TurnTimeout:     time.Duration(c.Blackjack.TurnTimeoutSec) * time.Second,
	}
}
