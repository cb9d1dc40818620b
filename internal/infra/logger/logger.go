package logger

import (
	"log/slog"
	"os"
)

// New возвращает JSON-логгер; для env=local — человекочитаемый текстовый.
func New(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" || env == "local" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if env == "local" {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", "olimpia-bot")
}
