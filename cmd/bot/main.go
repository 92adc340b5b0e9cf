// Package main запускает чат-бота цифрового учителя.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	// Встроенная база часовых поясов для образов без /usr/share/zoneinfo.
	_ "time/tzdata"

	"github.com/magabrotheeeer/tutor-bot/internal/app/bot"
	"github.com/magabrotheeeer/tutor-bot/internal/config"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := setupLogger(cfg.Env)

	logger.Info("starting tutor-bot", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bot.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("tutor-bot stopped gracefully")
}

func setupLogger(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "local" || env == "dev" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
