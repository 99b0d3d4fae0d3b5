// Package xlog is the ambient logging frontend used throughout this
// module, a thin wrapper around github.com/joeycumines/logiface (the
// teacher's own generics-based structured logger facade) with a default
// slog backend (github.com/joeycumines/logiface-slog), per SPEC_FULL.md
// §2's ambient-stack section.
//
// Root builds the process's root Logger and Named derives a Logger
// carrying a `name=<name>` field (matching the original's per-object log
// prefix). The processor holds one such Logger and its workers log through
// it; channels do not hold a Logger of their own.
package xlog

import (
	"io"
	"log/slog"
	"os"

	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"
)

// Logger is the type every component in this module logs through.
type Logger = logiface.Logger[*logifaceslog.Event]

// Root constructs the process-wide root logger, writing JSON lines to w
// (os.Stderr if nil) at the given minimum level.
func Root(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: toSlogLevel(level)})
	return logiface.New[*logifaceslog.Event](
		logifaceslog.NewLogger(handler, logifaceslog.WithLevel(level)),
	)
}

// Named returns a child logger tagging every line with name=<name>,
// mirroring the per-channel/per-object logger naming from
// original_source's channel and processor logging (each object logs under
// its own name so multi-channel output can be filtered by component).
func Named(root *Logger, name string) *Logger {
	return root.Clone().Str("name", name).Logger()
}

func toSlogLevel(l logiface.Level) slog.Level {
	switch {
	case l >= logiface.LevelTrace:
		return slog.LevelDebug - 4
	case l >= logiface.LevelDebug:
		return slog.LevelDebug
	case l >= logiface.LevelInformational:
		return slog.LevelInfo
	case l >= logiface.LevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
