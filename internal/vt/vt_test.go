package vt

import (
	"fmt"
	"strings"
	"testing"
)

func feed(t *testing.T, e *Emulator, s string) {
	t.Helper()
	if _, err := e.Write([]byte(s)); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestFreshEmulatorHasDefaultModes(t *testing.T) {
	e := NewEmulator(80, 24)
	if got := e.Modes(); got != DefaultModes() {
		t.Fatalf("modes = %+v, want defaults", got)
	}
	if seq := e.Modes().RehydrateSequences(); seq != "" {
		t.Fatalf("rehydrate sequences = %q, want empty", seq)
	}
}

func TestDefaultModesRecord(t *testing.T) {
	d := DefaultModes()
	if !d.AutoWrap || !d.CursorVisible {
		t.Fatalf("auto-wrap and cursor-visible must default on: %+v", d)
	}
	if d.BracketedPaste || d.AltScreen || d.MouseNormal || d.Origin {
		t.Fatalf("unexpected non-default mode in %+v", d)
	}
}

func TestModeSetAndReset(t *testing.T) {
	e := NewEmulator(80, 24)
	feed(t, e, "\x1b[?1000h\x1b[?2004h\x1b[?25l")
	m := e.Modes()
	if !m.MouseNormal || !m.BracketedPaste || m.CursorVisible {
		t.Fatalf("modes after set = %+v", m)
	}
	seq := m.RehydrateSequences()
	for _, want := range []string{"\x1b[?25l", "\x1b[?1000h", "\x1b[?2004h"} {
		if !strings.Contains(seq, want) {
			t.Errorf("rehydrate %q missing %q", seq, want)
		}
	}
	// Cursor visibility precedes mouse modes: ascending mode number order.
	if strings.Index(seq, "25l") > strings.Index(seq, "1000h") {
		t.Errorf("rehydrate order wrong: %q", seq)
	}

	feed(t, e, "\x1b[?1000l\x1b[?2004l\x1b[?25h")
	if got := e.Modes(); got != DefaultModes() {
		t.Fatalf("even toggle count should restore defaults, got %+v", got)
	}
	if seq := e.Modes().RehydrateSequences(); seq != "" {
		t.Fatalf("rehydrate after reset = %q, want empty", seq)
	}
}

func TestModeToggleIgnoresInterleavedOutput(t *testing.T) {
	e := NewEmulator(80, 24)
	feed(t, e, "\x1b[?1002h")
	feed(t, e, "some output\r\nmore output\r\n")
	feed(t, e, "\x1b[?1002l")
	if got := e.Modes(); got != DefaultModes() {
		t.Fatalf("modes = %+v, want defaults", got)
	}
}

func TestCWDLastWriteWins(t *testing.T) {
	e := NewEmulator(80, 24)
	feed(t, e, "\x1b]7;file://myhost/home/user\x07")
	if got := e.CWD(); got != "/home/user" {
		t.Fatalf("cwd = %q", got)
	}
	feed(t, e, "\x1b]7;file://myhost/tmp/work%20dir\x1b\\")
	if got := e.CWD(); got != "/tmp/work%20dir" {
		t.Fatalf("cwd = %q, want percent escapes kept verbatim", got)
	}
}

func TestCWDIgnoresMalformedReport(t *testing.T) {
	e := NewEmulator(80, 24)
	feed(t, e, "\x1b]7;file://myhost/home/user\x07")
	feed(t, e, "\x1b]7;not-a-uri\x07")
	if got := e.CWD(); got != "/home/user" {
		t.Fatalf("cwd = %q, malformed report should be ignored", got)
	}
}

func TestTitle(t *testing.T) {
	e := NewEmulator(80, 24)
	feed(t, e, "\x1b]2;vim — main.go\x07")
	if got := e.Title(); got != "vim — main.go" {
		t.Fatalf("title = %q", got)
	}
	feed(t, e, "\x1b]0;bash\x07")
	if got := e.Title(); got != "bash" {
		t.Fatalf("title = %q", got)
	}
}

func TestPrintAndAutoWrap(t *testing.T) {
	e := NewEmulator(5, 3)
	feed(t, e, "abcdefg")
	lines := e.ScreenLines()
	if lines[0] != "abcde" || lines[1] != "fg" {
		t.Fatalf("lines = %q", lines)
	}
	x, y := e.CursorPosition()
	if x != 2 || y != 1 {
		t.Fatalf("cursor = (%d,%d)", x, y)
	}
}

func TestAutoWrapDisabled(t *testing.T) {
	e := NewEmulator(5, 3)
	feed(t, e, "\x1b[?7labcdefg")
	lines := e.ScreenLines()
	if lines[0] != "abcdg" {
		t.Fatalf("line 0 = %q, want overwrite at last column", lines[0])
	}
	if lines[1] != "" {
		t.Fatalf("line 1 = %q, want empty", lines[1])
	}
}

func TestWideRunes(t *testing.T) {
	e := NewEmulator(10, 3)
	feed(t, e, "日本語")
	if got := e.ScreenLines()[0]; got != "日本語" {
		t.Fatalf("line = %q", got)
	}
	x, _ := e.CursorPosition()
	if x != 6 {
		t.Fatalf("cursor x = %d, want advance by display width", x)
	}
}

func TestScrollbackCapture(t *testing.T) {
	e := NewEmulator(80, 3)
	for i := 1; i <= 5; i++ {
		feed(t, e, fmt.Sprintf("line%d\r\n", i))
	}
	if got := e.ScrollbackLen(); got != 3 {
		t.Fatalf("scrollback len = %d", got)
	}
	sb := e.ScrollbackLines()
	if sb[0] != "line1" || sb[2] != "line3" {
		t.Fatalf("scrollback = %q", sb)
	}
}

func TestScrollbackBound(t *testing.T) {
	e := NewEmulatorWithScrollback(80, 2, 3)
	for i := 1; i <= 10; i++ {
		feed(t, e, fmt.Sprintf("line%d\r\n", i))
	}
	if got := e.ScrollbackLen(); got != 3 {
		t.Fatalf("scrollback len = %d, want bound", got)
	}
	sb := e.ScrollbackLines()
	if sb[0] != "line6" {
		t.Fatalf("oldest retained = %q, want line6", sb[0])
	}
}

func TestEraseDisplay3ClearsScrollback(t *testing.T) {
	e := NewEmulator(80, 3)
	for i := 1; i <= 6; i++ {
		feed(t, e, fmt.Sprintf("line%d\r\n", i))
	}
	if e.ScrollbackLen() == 0 {
		t.Fatal("expected scrollback before ED 3")
	}
	feed(t, e, "\x1b[3J")
	if got := e.ScrollbackLen(); got != 0 {
		t.Fatalf("scrollback len after ED 3 = %d", got)
	}
	// The visible screen is untouched.
	if got := e.ScreenLines()[0]; got != "line5" {
		t.Fatalf("screen after ED 3 = %q", e.ScreenLines())
	}
}

func TestClearScrollback(t *testing.T) {
	e := NewEmulator(80, 2)
	feed(t, e, "a\r\nb\r\nc\r\n")
	e.ClearScrollback()
	if got := e.ScrollbackLen(); got != 0 {
		t.Fatalf("scrollback len = %d", got)
	}
}

func TestCursorAddressing(t *testing.T) {
	e := NewEmulator(20, 10)
	feed(t, e, "\x1b[5;8H")
	x, y := e.CursorPosition()
	if x != 7 || y != 4 {
		t.Fatalf("cursor = (%d,%d)", x, y)
	}
	feed(t, e, "\x1b[2A\x1b[3D")
	x, y = e.CursorPosition()
	if x != 4 || y != 2 {
		t.Fatalf("cursor = (%d,%d)", x, y)
	}
	// Movement clamps at the edges.
	feed(t, e, "\x1b[99B\x1b[99C")
	x, y = e.CursorPosition()
	if x != 19 || y != 9 {
		t.Fatalf("cursor = (%d,%d)", x, y)
	}
}

func TestOriginModeAddressing(t *testing.T) {
	e := NewEmulator(80, 24)
	feed(t, e, "\x1b[5;20r\x1b[?6h\x1b[1;1H")
	_, y := e.CursorPosition()
	if y != 4 {
		t.Fatalf("cursor y = %d, want top margin", y)
	}
	feed(t, e, "\x1b[99;1H")
	_, y = e.CursorPosition()
	if y != 19 {
		t.Fatalf("cursor y = %d, want clamped to bottom margin", y)
	}
}

func TestScrollRegion(t *testing.T) {
	e := NewEmulator(80, 5)
	feed(t, e, "one\r\ntwo\r\nthree\r\nfour\r\nfive")
	feed(t, e, "\x1b[2;4r\x1b[2;1H\x1b[1S")
	lines := e.ScreenLines()
	if lines[0] != "one" || lines[1] != "three" || lines[3] != "" || lines[4] != "five" {
		t.Fatalf("lines after region scroll = %q", lines)
	}
	if e.ScrollbackLen() != 0 {
		t.Fatal("region scroll must not feed scrollback")
	}
}

func TestInsertDeleteLines(t *testing.T) {
	e := NewEmulator(80, 4)
	feed(t, e, "aa\r\nbb\r\ncc\r\ndd")
	feed(t, e, "\x1b[2;1H\x1b[1L")
	lines := e.ScreenLines()
	if lines[1] != "" || lines[2] != "bb" || lines[3] != "cc" {
		t.Fatalf("after IL: %q", lines)
	}
	feed(t, e, "\x1b[1M")
	lines = e.ScreenLines()
	if lines[1] != "bb" || lines[2] != "cc" || lines[3] != "" {
		t.Fatalf("after DL: %q", lines)
	}
}

func TestEraseAndEditInLine(t *testing.T) {
	e := NewEmulator(10, 2)
	feed(t, e, "abcdef\x1b[1;3H\x1b[2P")
	if got := e.ScreenLines()[0]; got != "abef" {
		t.Fatalf("after DCH: %q", got)
	}
	feed(t, e, "\x1b[2@")
	if got := e.ScreenLines()[0]; got != "ab  ef" {
		t.Fatalf("after ICH: %q", got)
	}
	feed(t, e, "\x1b[K")
	if got := e.ScreenLines()[0]; got != "ab" {
		t.Fatalf("after EL: %q", got)
	}
}

func TestResizePreservesContent(t *testing.T) {
	e := NewEmulator(80, 24)
	feed(t, e, "hello\r\nworld")
	e.Resize(40, 10)
	lines := e.ScreenLines()
	if lines[0] != "hello" || lines[1] != "world" {
		t.Fatalf("lines after shrink = %q", lines[:2])
	}
	cols, rows := e.Size()
	if cols != 40 || rows != 10 {
		t.Fatalf("size = %dx%d", cols, rows)
	}
}

func TestSnapshotContainsLiteralText(t *testing.T) {
	e := NewEmulator(80, 24)
	feed(t, e, "Hello, World!\r\n")
	snap := e.Snapshot()
	if !strings.Contains(snap.SnapshotANSI, "Hello, World!") {
		t.Fatalf("snapshot missing literal text: %q", snap.SnapshotANSI)
	}
	if snap.Cols != 80 || snap.Rows != 24 {
		t.Fatalf("snapshot size = %dx%d", snap.Cols, snap.Rows)
	}
}

func replayInto(t *testing.T, snap Snapshot) *Emulator {
	t.Helper()
	dst := NewEmulator(snap.Cols, snap.Rows)
	feed(t, dst, snap.RehydrateSequences)
	feed(t, dst, snap.SnapshotANSI)
	return dst
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := NewEmulator(80, 24)
	feed(t, src, "\x1b[?2004h\x1b[?1000h")
	for i := 1; i <= 30; i++ {
		feed(t, src, fmt.Sprintf("line %d\r\n", i))
	}
	feed(t, src, "\x1b[1;31mred bold\x1b[0m plain ")
	feed(t, src, "\x1b]7;file://host/srv/app\x07")

	dst := replayInto(t, src.Snapshot())

	if src.Modes() != dst.Modes() {
		t.Fatalf("modes differ: %+v vs %+v", src.Modes(), dst.Modes())
	}
	if !equalLines(src.ScreenLines(), dst.ScreenLines()) {
		t.Fatalf("screens differ:\n%q\n%q", src.ScreenLines(), dst.ScreenLines())
	}
	if !equalLines(src.ScrollbackLines(), dst.ScrollbackLines()) {
		t.Fatalf("scrollback differs")
	}
	sx, sy := src.CursorPosition()
	dx, dy := dst.CursorPosition()
	if sx != dx || sy != dy {
		t.Fatalf("cursor (%d,%d) vs (%d,%d)", sx, sy, dx, dy)
	}
}

func TestSnapshotRoundTripStyles(t *testing.T) {
	src := NewEmulator(40, 5)
	feed(t, src, "\x1b[1;4;38;5;196mstyled\x1b[0m then \x1b[32mgreen")
	dst := replayInto(t, src.Snapshot())

	for y := 0; y < 5; y++ {
		for x := 0; x < 40; x++ {
			a, b := src.scr.cell(x, y), dst.scr.cell(x, y)
			if a != b {
				t.Fatalf("cell (%d,%d): %+v vs %+v", x, y, a, b)
			}
		}
	}
}

func TestSnapshotRoundTripAltScreen(t *testing.T) {
	src := NewEmulator(40, 6)
	feed(t, src, "shell prompt $\r\n")
	feed(t, src, "\x1b[?1049h\x1b[2J\x1b[1;1Hfullscreen app")
	if !src.Modes().AltScreen {
		t.Fatal("alt screen not active")
	}

	dst := replayInto(t, src.Snapshot())

	if !dst.Modes().AltScreen {
		t.Fatal("alt screen lost in round trip")
	}
	if !equalLines(src.ScreenLines(), dst.ScreenLines()) {
		t.Fatalf("alt screens differ:\n%q\n%q", src.ScreenLines(), dst.ScreenLines())
	}

	// Leaving the alt screen must reveal the primary content on both.
	feed(t, src, "\x1b[?1049l")
	feed(t, dst, "\x1b[?1049l")
	if !equalLines(src.ScreenLines(), dst.ScreenLines()) {
		t.Fatalf("primary screens differ after leaving alt:\n%q\n%q",
			src.ScreenLines(), dst.ScreenLines())
	}
}

func TestSnapshotCWDAndModes(t *testing.T) {
	e := NewEmulator(80, 24)
	feed(t, e, "\x1b]7;file://h/a\x07\x1b]7;file://h/b\x07\x1b[?25l")
	snap := e.Snapshot()
	if snap.CWD != "/b" {
		t.Fatalf("snapshot cwd = %q", snap.CWD)
	}
	if snap.Modes.CursorVisible {
		t.Fatal("snapshot modes missed cursor hide")
	}
	if snap.RehydrateSequences != "\x1b[?25l" {
		t.Fatalf("rehydrate = %q", snap.RehydrateSequences)
	}
}

func TestSGRAccumulation(t *testing.T) {
	e := NewEmulator(80, 24)
	feed(t, e, "\x1b[1m\x1b[31m")
	if e.curSGR != "1;31" {
		t.Fatalf("curSGR = %q", e.curSGR)
	}
	feed(t, e, "\x1b[0m")
	if e.curSGR != "" {
		t.Fatalf("curSGR after reset = %q", e.curSGR)
	}
	feed(t, e, "\x1b[38;5;42m")
	if e.curSGR != "38;5;42" {
		t.Fatalf("curSGR = %q", e.curSGR)
	}
	feed(t, e, "\x1b[m")
	if e.curSGR != "" {
		t.Fatalf("curSGR after bare reset = %q", e.curSGR)
	}
}

func TestFullReset(t *testing.T) {
	e := NewEmulator(80, 24)
	feed(t, e, "\x1b[?2004hhello\x1b]2;title\x07")
	feed(t, e, "\x1bc")
	if got := e.Modes(); got != DefaultModes() {
		t.Fatalf("modes after RIS = %+v", got)
	}
	if got := e.ScreenLines()[0]; got != "" {
		t.Fatalf("screen after RIS = %q", got)
	}
	if got := e.Title(); got != "" {
		t.Fatalf("title after RIS = %q", got)
	}
}
