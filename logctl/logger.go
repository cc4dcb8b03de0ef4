// Package logctl wraps log/slog with the rate-limited warning/error
// helpers warpcore's ambient logging needs: the receive loop and backend
// drivers run at packet rate, and an unthrottled log line per dropped
// packet or resolution retry would itself become a denial of service.
package logctl

import (
	"log/slog"
	"os"
	"sync"

	"golang.org/x/time/rate"
)

// Logger wraps a *slog.Logger with keyed rate limiters for noisy,
// repeating conditions (packet drops, neighbor-resolution retries, socket
// exhaustion). The embedded *slog.Logger remains directly usable for
// one-shot, non-repeating events.
type Logger struct {
	*slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New wraps base with a default limiter policy of one event per second and
// a burst of 5 for any rate-limited call site. A nil base uses a
// text-handler logger writing to stderr at Info level, matching the
// teacher's default CLI logging setup.
func New(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Logger{
		Logger:   base,
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(1),
		burst:    5,
	}
}

// WithRate returns a copy of l whose rate-limited helpers allow eventsPerSec
// events per second with the given burst, instead of the New default.
func (l *Logger) WithRate(eventsPerSec float64, burst int) *Logger {
	return &Logger{
		Logger:   l.Logger,
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(eventsPerSec),
		burst:    burst,
	}
}

func (l *Logger) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// WarnRate logs msg at Warn level, gated by a limiter keyed on key: calls
// past the configured rate are silently dropped rather than emitted. Use a
// call-site-stable key (e.g. "arena-exhausted", "port-exhausted") rather
// than interpolating packet-specific data into it.
func (l *Logger) WarnRate(key, msg string, args ...any) {
	if l.limiterFor(key).Allow() {
		l.Logger.Warn(msg, args...)
	}
}

// ErrorRate is WarnRate at Error level.
func (l *Logger) ErrorRate(key, msg string, args ...any) {
	if l.limiterFor(key).Allow() {
		l.Logger.Error(msg, args...)
	}
}

// InfoRate is WarnRate at Info level, for high-frequency but non-error
// conditions such as neighbor-resolution retries.
func (l *Logger) InfoRate(key, msg string, args ...any) {
	if l.limiterFor(key).Allow() {
		l.Logger.Info(msg, args...)
	}
}

