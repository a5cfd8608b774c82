package app

import (
	"io"
	"log/slog"

	"tasktracker/internal/config"
)

// NewLogger builds the process logger: text for dev, JSON elsewhere.
func NewLogger(cfg config.AppConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if cfg.IsDev() {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", "tasktracker", "version", cfg.Version)
}
