package history

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hearthdev/hearth/internal/atomicfile"
)

// Defaults for the two-tier write bound.
const (
	DefaultMaxBytes     = 5 << 20
	DefaultBacklogBytes = 256 << 10
	DefaultDrainWait    = time.Second
)

// WriterConfig bounds a session's history writer. Zero values take the
// defaults.
type WriterConfig struct {
	MaxBytes     int64
	BacklogBytes int
	DrainWait    time.Duration
}

func (c WriterConfig) normalized() WriterConfig {
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.BacklogBytes <= 0 {
		c.BacklogBytes = DefaultBacklogBytes
	}
	if c.DrainWait <= 0 {
		c.DrainWait = DefaultDrainWait
	}
	return c
}

// Writer appends one session's PTY output to its scrollback log. Write never
// blocks the caller: disk writes run on a dedicated goroutine fed by a
// byte-bounded backlog, and writes past the byte cap or a full backlog are
// dropped with a one-time warning.
type Writer struct {
	dir string
	cfg WriterConfig

	mu      sync.Mutex
	cond    *sync.Cond
	queue   [][]byte
	queued  int
	written int64
	closing bool

	capWarned     bool
	backlogWarned bool

	meta SessionMeta

	// fileMu serializes log file access between the flush goroutine and
	// Close/Reinitialize; mu is never held across disk writes.
	fileMu sync.Mutex
	file   *os.File

	// metaMu keeps each metadata snapshot paired with its disk write. A
	// Touch racing Close must not persist a stale record without endedAt
	// over the final one.
	metaMu sync.Mutex

	done chan struct{}
}

// NewWriter opens a fresh scrollback log for a session and records its
// metadata without endedAt. Any previous log for the same session is
// truncated; cold restore consumes old content before a session is recreated.
func NewWriter(baseDir string, meta SessionMeta, cfg WriterConfig) (*Writer, error) {
	dir, err := sessionDir(baseDir, meta.WorkspaceID, meta.PaneID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("history: create session dir: %w", err)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	meta.EndedAt = nil
	meta.ExitCode = nil

	file, err := os.OpenFile(filepath.Join(dir, scrollbackFileName),
		os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("history: open scrollback log: %w", err)
	}
	w := &Writer{
		dir:  dir,
		cfg:  cfg.normalized(),
		meta: meta,
		file: file,
		done: make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	if err := w.saveMeta(); err != nil {
		_ = file.Close()
		return nil, err
	}
	go w.flushLoop()
	return w, nil
}

// Write queues p for the scrollback log. Whole writes are dropped, never
// split, so the log cannot end on a torn escape sequence.
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closing {
		return len(p), nil
	}
	if w.written+int64(len(p)) > w.cfg.MaxBytes {
		if !w.capWarned {
			w.capWarned = true
			slog.Warn("session history byte cap reached, dropping further output",
				slog.String("workspace", w.meta.WorkspaceID),
				slog.String("pane", w.meta.PaneID),
				slog.Int64("cap", w.cfg.MaxBytes))
		}
		return len(p), nil
	}
	if w.queued+len(p) > w.cfg.BacklogBytes {
		if !w.backlogWarned {
			w.backlogWarned = true
			slog.Warn("session history backlog full, dropping output",
				slog.String("workspace", w.meta.WorkspaceID),
				slog.String("pane", w.meta.PaneID),
				slog.Int("backlog", w.cfg.BacklogBytes))
		}
		return len(p), nil
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	w.queue = append(w.queue, buf)
	w.queued += len(buf)
	w.written += int64(len(buf))
	w.cond.Signal()
	return len(p), nil
}

// Written returns the cumulative bytes accepted for this log.
func (w *Writer) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Touch updates the last-attached timestamp and persists the metadata.
func (w *Writer) Touch(at time.Time) error {
	w.mu.Lock()
	w.meta.LastAttachedAt = at.UTC()
	w.mu.Unlock()
	return w.saveMeta()
}

// Close drains the backlog within the configured wait and then records
// endedAt and the exit code. Metadata is written even if the drain timed
// out, so an incomplete flush is not misdiagnosed as an unclean shutdown.
func (w *Writer) Close(exitCode *int) error {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return nil
	}
	w.closing = true
	w.cond.Signal()
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-time.After(w.cfg.DrainWait):
		slog.Warn("session history drain timed out",
			slog.String("workspace", w.meta.WorkspaceID),
			slog.String("pane", w.meta.PaneID))
	}
	w.fileMu.Lock()
	err := w.file.Close()
	w.fileMu.Unlock()

	now := time.Now().UTC()
	w.mu.Lock()
	w.meta.EndedAt = &now
	w.meta.ExitCode = exitCode
	w.mu.Unlock()
	if merr := w.saveMeta(); merr != nil {
		return merr
	}
	if err != nil {
		return fmt.Errorf("history: close scrollback log: %w", err)
	}
	return nil
}

// Reinitialize discards the current log and starts a fresh empty one, used
// when the terminal screen is cleared. endedAt is reserved for real process
// termination and is not written here.
func (w *Writer) Reinitialize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closing {
		return nil
	}
	w.queue = nil
	w.queued = 0
	w.written = 0
	w.capWarned = false
	w.backlogWarned = false

	w.fileMu.Lock()
	defer w.fileMu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("history: truncate scrollback log: %w", err)
	}
	if _, err := w.file.Seek(0, 0); err != nil {
		return fmt.Errorf("history: rewind scrollback log: %w", err)
	}
	return nil
}

func (w *Writer) flushLoop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closing {
			w.cond.Wait()
		}
		if len(w.queue) == 0 && w.closing {
			w.mu.Unlock()
			return
		}
		buf := w.queue[0]
		w.queue = w.queue[1:]
		w.queued -= len(buf)
		w.mu.Unlock()

		w.fileMu.Lock()
		_, err := w.file.Write(buf)
		w.fileMu.Unlock()
		if err != nil {
			slog.Warn("session history write failed",
				slog.String("workspace", w.meta.WorkspaceID),
				slog.String("pane", w.meta.PaneID),
				slog.String("error", err.Error()))
		}
	}
}

func (w *Writer) saveMeta() error {
	w.metaMu.Lock()
	defer w.metaMu.Unlock()
	w.mu.Lock()
	meta := w.meta
	w.mu.Unlock()
	if err := atomicfile.SaveJSON(filepath.Join(w.dir, metaFileName), meta, 0o600); err != nil {
		return fmt.Errorf("history: save metadata: %w", err)
	}
	return nil
}
