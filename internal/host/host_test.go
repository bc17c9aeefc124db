package host

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hearthdev/hearth/internal/history"
	"github.com/hearthdev/hearth/internal/host/hosttest"
	"github.com/hearthdev/hearth/internal/limits"
	"github.com/hearthdev/hearth/internal/wire"
)

func fastConfig() Config {
	return Config{
		SpawnTimeout:        2 * time.Second,
		KillGrace:           10 * time.Millisecond,
		KillFailSafe:        60 * time.Millisecond,
		ExitRetention:       60 * time.Millisecond,
		InitialCommandDelay: 10 * time.Millisecond,
	}
}

func newTestHost(t *testing.T, link Link, cfg Config) *Host {
	t.Helper()
	h := New(link, cfg)
	t.Cleanup(h.Close)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func attachReq(id string) wire.CreateOrAttachRequest {
	return wire.CreateOrAttachRequest{
		SessionID:   id,
		WorkspaceID: "ws",
		PaneID:      id,
		Cols:        80,
		Rows:        24,
	}
}

func TestCreateOrAttachNew(t *testing.T) {
	link := hosttest.NewFakeLink()
	h := newTestHost(t, link, fastConfig())

	res, err := h.CreateOrAttach(attachReq("p1"), "c1")
	if err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	if !res.IsNew {
		t.Fatal("expected a new session")
	}
	if res.PID == nil || *res.PID <= 0 {
		t.Fatalf("pid = %v", res.PID)
	}
	infos := h.List()
	if len(infos) != 1 || infos[0].SessionID != "p1" || !infos[0].IsAlive {
		t.Fatalf("list = %+v", infos)
	}
}

func TestCreateOrAttachRejectsBadID(t *testing.T) {
	link := hosttest.NewFakeLink()
	h := newTestHost(t, link, fastConfig())

	for _, id := range []string{"", "pane\x00one", strings.Repeat("a", 200)} {
		_, err := h.CreateOrAttach(attachReq(id), "c1")
		var werr *wire.Error
		if !errors.As(err, &werr) || werr.Code != wire.CodeBadPayload {
			t.Fatalf("id %q: err = %v, want bad_payload", id, err)
		}
	}
	if link.SpawnCount() != 0 {
		t.Fatalf("spawns = %d, want 0", link.SpawnCount())
	}
}

func TestReattachDoesNotRespawn(t *testing.T) {
	link := hosttest.NewFakeLink()
	h := newTestHost(t, link, fastConfig())

	first, err := h.CreateOrAttach(attachReq("p1"), "c1")
	if err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	link.PushData("p1", []byte("Hello, World!\r\n"))
	waitFor(t, "output to reach the emulator", func() bool {
		snap, err := h.Snapshot("p1")
		return err == nil && strings.Contains(snap.SnapshotANSI, "Hello, World!")
	})

	second, err := h.CreateOrAttach(attachReq("p1"), "c2")
	if err != nil {
		t.Fatalf("reattach: %v", err)
	}
	if second.IsNew {
		t.Fatal("reattach reported a new session")
	}
	if second.PID == nil || *second.PID != *first.PID {
		t.Fatalf("pid changed: %v vs %v", second.PID, first.PID)
	}
	if !strings.Contains(second.Snapshot.SnapshotANSI, "Hello, World!") {
		t.Fatal("reattach snapshot missing prior output")
	}
	if got := link.SpawnCount(); got != 1 {
		t.Fatalf("spawn count = %d", got)
	}
}

func TestSpawnFailure(t *testing.T) {
	link := hosttest.NewFakeLink()
	link.FailSpawn = true
	h := newTestHost(t, link, fastConfig())

	_, err := h.CreateOrAttach(attachReq("p1"), "c1")
	var werr *wire.Error
	if !errors.As(err, &werr) || werr.Code != wire.CodeSpawnFailed {
		t.Fatalf("err = %v", err)
	}
	if got := h.List(); len(got) != 0 {
		t.Fatalf("failed session left in registry: %+v", got)
	}
}

func TestWriteErrors(t *testing.T) {
	link := hosttest.NewFakeLink()
	link.ExitOnKill = false
	h := newTestHost(t, link, fastConfig())

	if err := h.Write("ghost", []byte("x")); err != wire.ErrSessionNotFound {
		t.Fatalf("write ghost: %v", err)
	}

	if _, err := h.CreateOrAttach(attachReq("p1"), "c1"); err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	if err := h.Write("p1", []byte("x")); err != nil {
		t.Fatalf("write live: %v", err)
	}
	if err := h.Kill(wire.KillRequest{SessionID: "p1"}); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if err := h.Write("p1", []byte("x")); err != wire.ErrSessionNotAttachable {
		t.Fatalf("write terminating: %v", err)
	}
}

func TestResizeMissingSessionIsNoop(t *testing.T) {
	link := hosttest.NewFakeLink()
	h := newTestHost(t, link, fastConfig())
	if err := h.Resize("ghost", 120, 40); err != nil {
		t.Fatalf("resize ghost: %v", err)
	}
}

func TestResizeClampsOversizedDimensions(t *testing.T) {
	link := hosttest.NewFakeLink()
	h := newTestHost(t, link, fastConfig())

	if _, err := h.CreateOrAttach(attachReq("p1"), "c1"); err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	if err := h.Resize("p1", limits.SessionMaxCols+100, limits.SessionMaxRows+50); err != nil {
		t.Fatalf("resize: %v", err)
	}
	infos := h.List()
	if infos[0].Cols != limits.SessionMaxCols || infos[0].Rows != limits.SessionMaxRows {
		t.Fatalf("dims = %dx%d, want %dx%d", infos[0].Cols, infos[0].Rows,
			limits.SessionMaxCols, limits.SessionMaxRows)
	}
}

func TestResizeUpdatesEmulator(t *testing.T) {
	link := hosttest.NewFakeLink()
	h := newTestHost(t, link, fastConfig())
	if _, err := h.CreateOrAttach(attachReq("p1"), "c1"); err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	if err := h.Resize("p1", 120, 40); err != nil {
		t.Fatalf("resize: %v", err)
	}
	snap, err := h.Snapshot("p1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Cols != 120 || snap.Rows != 40 {
		t.Fatalf("size = %dx%d", snap.Cols, snap.Rows)
	}
}

func TestKillThenAttachRecreates(t *testing.T) {
	link := hosttest.NewFakeLink()
	link.ExitOnKill = false
	h := newTestHost(t, link, fastConfig())

	first, err := h.CreateOrAttach(attachReq("p1"), "c1")
	if err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	if err := h.Kill(wire.KillRequest{SessionID: "p1"}); err != nil {
		t.Fatalf("kill: %v", err)
	}

	second, err := h.CreateOrAttach(attachReq("p1"), "c1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !second.IsNew {
		t.Fatal("reopen of a terminating session must create a new session")
	}
	if second.PID == nil || first.PID == nil || *second.PID == *first.PID {
		t.Fatalf("pids: %v vs %v", first.PID, second.PID)
	}
	if !link.Disposed("p1") {
		t.Fatal("stale session was not disposed")
	}
	if got := link.SpawnCount(); got != 2 {
		t.Fatalf("spawn count = %d", got)
	}
}

func TestExitEventAndRetention(t *testing.T) {
	link := hosttest.NewFakeLink()
	h := newTestHost(t, link, fastConfig())

	if _, err := h.CreateOrAttach(attachReq("p1"), "c1"); err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	code := 3
	link.PushExit("p1", &code)

	var exit wire.ExitEventPayload
	select {
	case ev := <-h.Events():
		if ev.Name != wire.EventExit || ev.SessionID != "p1" {
			t.Fatalf("event = %+v", ev)
		}
		exit = ev.Payload.(wire.ExitEventPayload)
	case <-time.After(5 * time.Second):
		t.Fatal("no exit event")
	}
	if exit.ExitCode == nil || *exit.ExitCode != 3 {
		t.Fatalf("exit code = %v", exit.ExitCode)
	}

	// Attached client keeps the record alive past the retention window.
	infos := h.List()
	if len(infos) != 1 || infos[0].IsAlive || infos[0].PID != nil {
		t.Fatalf("list after exit = %+v", infos)
	}
	time.Sleep(3 * fastConfig().ExitRetention / 2)
	if got := h.List(); len(got) != 1 {
		t.Fatalf("retained session dropped while attached: %+v", got)
	}

	h.Detach("p1", "c1")
	waitFor(t, "exited session disposal", func() bool { return len(h.List()) == 0 })
}

func TestKillFailSafeDisposes(t *testing.T) {
	link := hosttest.NewFakeLink()
	link.ExitOnKill = false
	h := newTestHost(t, link, fastConfig())

	if _, err := h.CreateOrAttach(attachReq("p1"), "c1"); err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	if err := h.Kill(wire.KillRequest{SessionID: "p1"}); err != nil {
		t.Fatalf("kill: %v", err)
	}
	waitFor(t, "fail-safe dispose", func() bool {
		infos := h.List()
		return len(infos) == 1 && !infos[0].IsAlive
	})
	if !link.Disposed("p1") {
		t.Fatal("fail-safe did not dispose the agent session")
	}
}

func TestInitialCommandsAfterFirstOutput(t *testing.T) {
	link := hosttest.NewFakeLink()
	h := newTestHost(t, link, fastConfig())

	req := attachReq("p1")
	req.InitialCommands = []string{"make dev"}
	if _, err := h.CreateOrAttach(req, "c1"); err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}

	// No output yet, so nothing may run.
	time.Sleep(3 * fastConfig().InitialCommandDelay)
	if link.WroteInput("p1", "make dev\r") {
		t.Fatal("initial command ran before first output")
	}

	link.PushData("p1", []byte("$ "))
	waitFor(t, "initial command", func() bool { return link.WroteInput("p1", "make dev\r") })
}

func TestDataEventsPreserveOrder(t *testing.T) {
	link := hosttest.NewFakeLink()
	h := newTestHost(t, link, fastConfig())

	if _, err := h.CreateOrAttach(attachReq("p1"), "c1"); err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	chunks := []string{"one ", "two ", "three"}
	for _, c := range chunks {
		link.PushData("p1", []byte(c))
	}
	for i, want := range chunks {
		select {
		case ev := <-h.Events():
			data := ev.Payload.(wire.DataEventPayload)
			if string(data.Data) != want {
				t.Fatalf("chunk %d = %q, want %q", i, data.Data, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("missing chunk %d", i)
		}
	}
}

func TestAgentErrorForwarded(t *testing.T) {
	link := hosttest.NewFakeLink()
	h := newTestHost(t, link, fastConfig())

	if _, err := h.CreateOrAttach(attachReq("p1"), "c1"); err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	link.Push(wire.FrameError, wire.AgentError{
		SessionID: "p1",
		Code:      wire.CodeQueueFull,
		Message:   "input dropped, write queue full",
	})
	select {
	case ev := <-h.Events():
		if ev.Name != wire.EventError {
			t.Fatalf("event = %+v", ev)
		}
		p := ev.Payload.(wire.ErrorEventPayload)
		if p.Code != wire.CodeQueueFull {
			t.Fatalf("code = %q", p.Code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no error event")
	}
}

func TestHistoryLifecycle(t *testing.T) {
	link := hosttest.NewFakeLink()
	cfg := fastConfig()
	cfg.HistoryDir = t.TempDir()
	h := newTestHost(t, link, cfg)

	if _, err := h.CreateOrAttach(attachReq("p1"), "c1"); err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	link.PushData("p1", []byte("logged line\r\n"))

	reader := history.NewReader(cfg.HistoryDir)
	waitFor(t, "history flush", func() bool {
		data, err := reader.ReadScrollback("ws", "p1")
		return err == nil && strings.Contains(string(data), "logged line")
	})
	if !reader.UncleanShutdown("ws", "p1") {
		t.Fatal("running session must read as unclean")
	}

	code := 0
	link.PushExit("p1", &code)
	waitFor(t, "graceful end marker", func() bool {
		meta, err := reader.ReadMeta("ws", "p1")
		return err == nil && meta.EndedAt != nil
	})
}

func TestKillDeleteHistory(t *testing.T) {
	link := hosttest.NewFakeLink()
	cfg := fastConfig()
	cfg.HistoryDir = t.TempDir()
	h := newTestHost(t, link, cfg)

	if _, err := h.CreateOrAttach(attachReq("p1"), "c1"); err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	reader := history.NewReader(cfg.HistoryDir)
	waitFor(t, "history exists", func() bool { return reader.Exists("ws", "p1") })

	if err := h.Kill(wire.KillRequest{SessionID: "p1", DeleteHistory: true}); err != nil {
		t.Fatalf("kill: %v", err)
	}
	waitFor(t, "history removal", func() bool { return !reader.Exists("ws", "p1") })
}

func TestClearScrollback(t *testing.T) {
	link := hosttest.NewFakeLink()
	cfg := fastConfig()
	cfg.HistoryDir = t.TempDir()
	h := newTestHost(t, link, cfg)

	if _, err := h.CreateOrAttach(attachReq("p1"), "c1"); err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	var feed strings.Builder
	for i := 0; i < 30; i++ {
		feed.WriteString("line\r\n")
	}
	link.PushData("p1", []byte(feed.String()))
	waitFor(t, "scrollback to fill", func() bool {
		snap, err := h.Snapshot("p1")
		return err == nil && snap.ScrollbackLines > 0
	})
	reader := history.NewReader(cfg.HistoryDir)
	waitFor(t, "log flush", func() bool {
		data, err := reader.ReadScrollback("ws", "p1")
		return err == nil && len(data) > 0
	})

	if err := h.ClearScrollback("p1"); err != nil {
		t.Fatalf("clearScrollback: %v", err)
	}
	snap, err := h.Snapshot("p1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.ScrollbackLines != 0 {
		t.Fatalf("scrollback lines = %d", snap.ScrollbackLines)
	}

	waitFor(t, "log reset", func() bool {
		data, err := reader.ReadScrollback("ws", "p1")
		return err == nil && len(data) == 0
	})
	meta, err := reader.ReadMeta("ws", "p1")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.EndedAt != nil {
		t.Fatal("clearScrollback must not mark the session ended")
	}

	if err := h.ClearScrollback("ghost"); err != wire.ErrSessionNotFound {
		t.Fatalf("clear ghost: %v", err)
	}
}

func TestKillAll(t *testing.T) {
	link := hosttest.NewFakeLink()
	h := newTestHost(t, link, fastConfig())

	for _, id := range []string{"p1", "p2", "p3"} {
		if _, err := h.CreateOrAttach(attachReq(id), "c1"); err != nil {
			t.Fatalf("createOrAttach %s: %v", id, err)
		}
	}
	if killed := h.KillAll(false); killed != 3 {
		t.Fatalf("killed = %d", killed)
	}
	waitFor(t, "all sessions dead", func() bool {
		for _, info := range h.List() {
			if info.IsAlive {
				return false
			}
		}
		return true
	})
}

func TestLinkLossMarksSessionsExited(t *testing.T) {
	link := hosttest.NewFakeLink()
	h := newTestHost(t, link, fastConfig())

	if _, err := h.CreateOrAttach(attachReq("p1"), "c1"); err != nil {
		t.Fatalf("createOrAttach: %v", err)
	}
	_ = link.Close()
	waitFor(t, "session marked exited", func() bool {
		infos := h.List()
		return len(infos) == 1 && !infos[0].IsAlive
	})
}

func TestConcurrentCreateSharesOneSpawn(t *testing.T) {
	link := hosttest.NewFakeLink()
	link.SpawnDelay = 50 * time.Millisecond
	h := newTestHost(t, link, fastConfig())

	type outcome struct {
		res wire.CreateOrAttachResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := h.CreateOrAttach(attachReq("p1"), "c1")
		first <- outcome{res, err}
	}()
	waitFor(t, "spawn request", func() bool { return link.SpawnCount() == 1 })

	// The second client arrives while the first spawn is still in flight.
	res2, err2 := h.CreateOrAttach(attachReq("p1"), "c2")
	o1 := <-first
	if o1.err != nil {
		t.Fatalf("creator: %v", o1.err)
	}
	if err2 != nil {
		t.Fatalf("joiner: %v", err2)
	}
	if link.SpawnCount() != 1 {
		t.Fatalf("spawns = %d, want one shared spawn", link.SpawnCount())
	}
	if link.Disposed("p1") {
		t.Fatal("in-flight session must not be disposed by a concurrent attach")
	}
	if !o1.res.IsNew || res2.IsNew {
		t.Fatalf("isNew = %v/%v, want creator only", o1.res.IsNew, res2.IsNew)
	}
	if o1.res.PID == nil || res2.PID == nil || *o1.res.PID != *res2.PID {
		t.Fatalf("pids = %v/%v, want the same process", o1.res.PID, res2.PID)
	}
	if infos := h.List(); len(infos) != 1 {
		t.Fatalf("list = %+v", infos)
	}
}

func TestExitWithStalledHistoryDoesNotBlockHost(t *testing.T) {
	link := hosttest.NewFakeLink()
	cfg := fastConfig()
	cfg.HistoryDir = t.TempDir()
	cfg.History.DrainWait = 2 * time.Second

	// A FIFO in place of the scrollback log jams the flush goroutine once
	// the pipe buffer fills, so closing the writer sits out the full drain
	// wait. Session teardown must not let that stall the registry.
	dir := filepath.Join(cfg.HistoryDir, "ws", "p1")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	fifoPath := filepath.Join(dir, "scrollback.log")
	if err := unix.Mkfifo(fifoPath, 0o600); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	rd, err := os.OpenFile(fifoPath, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("open fifo: %v", err)
	}
	defer rd.Close()

	h := newTestHost(t, link, cfg)
	if _, err := h.CreateOrAttach(attachReq("p1"), "c1"); err != nil {
		t.Fatalf("createOrAttach p1: %v", err)
	}
	if _, err := h.CreateOrAttach(attachReq("p2"), "c1"); err != nil {
		t.Fatalf("createOrAttach p2: %v", err)
	}

	chunk := bytes.Repeat([]byte("x"), 8<<10)
	for i := 0; i < 40; i++ {
		link.PushData("p1", chunk)
	}
	time.Sleep(100 * time.Millisecond)

	code := 0
	link.PushExit("p1", &code)

	start := time.Now()
	if err := h.Write("p2", []byte("still here\r")); err != nil {
		t.Fatalf("write p2: %v", err)
	}
	_ = h.List()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("registry blocked for %v during history drain", elapsed)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-h.Events():
			if ev.Name == wire.EventExit && ev.SessionID == "p1" {
				return
			}
		case <-deadline:
			t.Fatal("exit event delayed by history drain")
		}
	}
}
