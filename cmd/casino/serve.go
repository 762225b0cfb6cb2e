package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/joho/godotenv"

	"github.com/greenfelt/casino/internal/server"
)

// ServeCmd runs the casino server
type ServeCmd struct {
	Config string `kong:"default='casino.hcl',help='Path to HCL configuration file'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
	Host   string `kong:"help='Override configured host'"`
	Port   int    `kong:"help='Override configured port'"`
}

func (c *ServeCmd) Run() error {
	// .env feeds the CASINO_* overrides picked up by LoadConfig
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}

	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if c.Debug {
		logger.SetLevel(log.DebugLevel)
	} else if lvl, err := log.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	logger.Info("starting casino server",
		"addr", cfg.Addr(),
		"poker_min_bet", cfg.Poker.MinBet,
		"blackjack_min_bet", cfg.Blackjack.MinBet,
		"starting_balance", cfg.Server.StartingBalance,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(cfg, logger, quartz.NewReal())
	return srv.Start(ctx)
}
