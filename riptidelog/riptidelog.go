// Package riptidelog wires riptide's core and cmd/ demos to a single
// slog.Logger, colored via lmittmann/tint. The core itself only ever
// receives a *slog.Logger through this constructor; nothing in
// peer/connection/reliability/transport builds its own.
package riptidelog

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New builds the process logger. verbose switches the minimum level from
// Info to Debug, mirroring the pack's newLogger(cfg.Verbose) helper.
func New(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
