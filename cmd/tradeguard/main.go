package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillm/tradeguard/internal/api"
	"github.com/kirillm/tradeguard/internal/app"
	"github.com/kirillm/tradeguard/internal/config"
	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/internal/policy"
	"github.com/kirillm/tradeguard/internal/ratelimit"
	"github.com/kirillm/tradeguard/internal/telegram"
	"github.com/kirillm/tradeguard/pkg/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tradeguard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting tradeguard in %s mode", cfg.Mode)

	pol, err := policy.Load(cfg.Policy.Path, cfg.Policy.Profile)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}
	logger.Info("Policy loaded: profile=%s", pol.ProfileName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, pol, logger)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("Shutdown error: %v", err)
		}
	}()

	var bot *telegram.Bot
	if cfg.Telegram.Enabled() {
		bot, err = telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID, engine, telegram.BotConfig{
			Admins:         cfg.Telegram.Admins,
			Whitelist:      cfg.Telegram.Whitelist,
			Lang:           telegram.Lang(cfg.Telegram.Lang),
			ConfirmTimeout: cfg.Telegram.ConfirmTimeout,
			Limiter:        ratelimit.NewLimiter(pol.RateLimits),
		}, logger.With("component", "telegram"))
		if err != nil {
			return err
		}
		if cfg.Mode == domain.ModeConfirm {
			engine.SetConfirmer(bot.Confirmer())
		}
	}

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	botDone := make(chan struct{})
	if bot != nil {
		go func() {
			defer close(botDone)
			bot.Start(ctx)
		}()
		bot.SendMessage(fmt.Sprintf("🛡 tradeguard started (%s, %s)", cfg.Mode, pol.ProfileName))
	} else {
		close(botDone)
	}

	apiDone := make(chan struct{})
	if cfg.API.Port > 0 {
		server := api.NewServer(engine, cfg.API.Port, logger.With("component", "api"))
		go func() {
			defer close(apiDone)
			if err := server.Start(ctx); err != nil {
				logger.Error("HTTP server failed: %v", err)
			}
		}()
	} else {
		close(apiDone)
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	<-botDone
	<-apiDone
	return nil
}
