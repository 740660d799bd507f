package debug

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryOptions configures error reporting
type SentryOptions struct {
	DSN         string
	Release     string
	Environment string
	MinLevel    LogLevel // messages below this level are not reported
}

// InitSentry initializes the Sentry client and hooks it into l. The returned
// function flushes pending events and must be called before exit. An empty
// DSN disables reporting and returns a no-op flush.
func InitSentry(l *Logger, opts SentryOptions) (func(), error) {
	if opts.DSN == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Release:     opts.Release,
		Environment: opts.Environment,
	})
	if err != nil {
		return func() {}, fmt.Errorf("sentry init: %w", err)
	}

	minLevel := opts.MinLevel
	if minLevel < LogLevelWarn {
		minLevel = LogLevelError
	}
	l.AddHook(SentryHook(sentry.CurrentHub(), minLevel))

	return func() { sentry.Flush(2 * time.Second) }, nil
}

// SentryHook returns a Hook that captures messages at or above minLevel on hub
func SentryHook(hub *sentry.Hub, minLevel LogLevel) Hook {
	return func(level LogLevel, msg string) {
		if level < minLevel || hub == nil {
			return
		}
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(sentryLevel(level))
			hub.CaptureMessage(msg)
		})
	}
}

func sentryLevel(level LogLevel) sentry.Level {
	switch level {
	case LogLevelTrace, LogLevelDebug:
		return sentry.LevelDebug
	case LogLevelInfo:
		return sentry.LevelInfo
	case LogLevelWarn:
		return sentry.LevelWarning
	case LogLevelError:
		return sentry.LevelError
	default:
		return sentry.LevelFatal
	}
}
