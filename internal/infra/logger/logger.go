package logger

import (
	"log/slog"
	"os"
)

// New настраивает корневой логгер терминала. В dev пишем текстом и с
// debug-уровнем, в остальных окружениях — JSON для сборщика логов.
func New(env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler
	if env == "dev" {
		opts.Level = slog.LevelDebug
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(h).With("app", "pos-bot")
}
