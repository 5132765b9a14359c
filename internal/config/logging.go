package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug] and carries raw wire payloads:
// the full JSON bodies exchanged with the Anthropic API and the backend
// integrations. The value -8 matches what OpenTelemetry and most other
// slog extensions use for a trace level.
//
// Trace logging is extremely chatty and may include message content, so
// it should stay off outside of debugging sessions.
const LevelTrace = slog.Level(-8)

// ParseLogLevel maps a config or environment string ("trace", "debug",
// "info", "warn"/"warning", "error") to an [slog.Level]. Matching is
// case-insensitive and ignores surrounding whitespace; the empty string
// means info. Anything else is an error so a typo in SCOUT_LOG_LEVEL
// fails loudly instead of silently logging at the default level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLogLevelNames is an [slog.HandlerOptions.ReplaceAttr] function
// that prints [LevelTrace] records as "TRACE". slog has no name for
// custom levels and would otherwise emit "DEBUG-4".
//
// Wire it into the handler that backs the process logger:
//
//	slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level:       level,
//	    ReplaceAttr: config.ReplaceLogLevelNames,
//	})
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
