// Package diag traces the daemon's hot event paths when HEARTH_DEBUG_EVENTS
// is set. It writes through its own plain logger rather than slog, so event
// tracing keeps working while the logging setup itself is under suspicion.
package diag

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// tracer throttles repeat messages per key and counts what it drops, so a
// flood shows up as one line with a suppression count instead of silence.
type tracer struct {
	logger *log.Logger

	mu   sync.Mutex
	seen map[string]record
}

type record struct {
	at      time.Time
	dropped int
}

var std = fromEnv()

func fromEnv() *tracer {
	if strings.TrimSpace(os.Getenv("HEARTH_DEBUG_EVENTS")) == "" {
		return nil
	}
	var out io.Writer = os.Stderr
	if path := strings.TrimSpace(os.Getenv("HEARTH_DEBUG_EVENTS_LOG")); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); err == nil {
			out = f
		}
	}
	return newTracer(out)
}

func newTracer(out io.Writer) *tracer {
	return &tracer{
		logger: log.New(out, "", log.LstdFlags|log.Lmicroseconds),
		seen:   make(map[string]record),
	}
}

// Enabled reports whether event tracing is on.
func Enabled() bool { return std != nil }

// Logf writes one trace line when tracing is on.
func Logf(format string, args ...any) {
	if std != nil {
		std.logger.Printf(format, args...)
	}
}

// LogEvery writes at most one trace line per key and interval. Lines
// throttled in between are counted and reported with the next one through.
func LogEvery(key string, interval time.Duration, format string, args ...any) {
	if std != nil {
		std.logEvery(key, interval, format, args...)
	}
}

func (t *tracer) logEvery(key string, interval time.Duration, format string, args ...any) {
	now := time.Now()
	t.mu.Lock()
	r := t.seen[key]
	if !r.at.IsZero() && now.Sub(r.at) < interval {
		r.dropped++
		t.seen[key] = r
		t.mu.Unlock()
		return
	}
	t.seen[key] = record{at: now}
	t.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if r.dropped > 0 {
		msg = fmt.Sprintf("%s (%d similar suppressed)", msg, r.dropped)
	}
	t.logger.Print(msg)
}
