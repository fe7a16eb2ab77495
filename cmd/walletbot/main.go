package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/glidepay/wallet-bot/internal/config"
	"github.com/glidepay/wallet-bot/internal/gateway"
	"github.com/glidepay/wallet-bot/internal/logging"
	"github.com/glidepay/wallet-bot/internal/session"
	"github.com/glidepay/wallet-bot/internal/telegram"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	envMissing := godotenv.Load() != nil

	// Load config
	cfg := config.Load()

	// Setup logger
	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)
	if envMissing {
		log.Debug("no .env file found")
	}

	if cfg.BotToken == "" {
		log.Error("BOT_TOKEN is required")
		os.Exit(1)
	}

	// Initialize session store
	sessions, err := session.Open(cfg.DBPath)
	if err != nil {
		log.Error("init session store", "error", err)
		os.Exit(1)
	}
	defer sessions.Close()
	log.Info("session store initialized", "path", cfg.DBPath)

	// Initialize banking gateway client
	api := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayRPS)
	log.Info("gateway client initialized", "base_url", cfg.GatewayBaseURL)

	// Initialize telegram bot
	bot, err := telegram.New(cfg, sessions, api, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)
}
