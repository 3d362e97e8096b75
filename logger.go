// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpumem

import (
	"log/slog"

	"github.com/gogpu/gpumem/internal/logx"
)

// SetLogger configures the logger for gpumem and all its sub-packages.
// By default, gpumem produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by gpumem:
//   - [slog.LevelDebug]: buffer creation and destruction, contract violations
//   - [slog.LevelInfo]: renderer lifecycle and device loss
//   - [slog.LevelWarn]: fence stalls and timeouts, failed device restore
//   - [slog.LevelError]: contract violations in gpumemcheck builds
//
// Example:
//
//	gpumem.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logx.Set(l)
}

// Logger returns the current logger used by gpumem.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logx.L()
}
