// Package vt implements a headless terminal emulator. It consumes the raw
// byte stream a program writes to its PTY and maintains the resulting screen
// grid, scrollback, tracked modes, title, and working directory, so a session
// can be rendered into a fresh client long after the bytes were produced.
package vt

import (
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/ansi/parser"
	"github.com/mattn/go-runewidth"
)

// DefaultScrollbackLines bounds the primary screen's scrollback.
const DefaultScrollbackLines = 10000

// Emulator is a headless terminal. It is safe for concurrent use; Write and
// the snapshot accessors take the same lock.
type Emulator struct {
	mu sync.Mutex

	// Primary and alternate screens, and the active one.
	primary *screen
	alt     *screen
	scr     *screen

	sb    *scrollback
	modes Modes

	parser *ansi.Parser

	// curSGR holds the raw parameter string of the most recent SGR sequence,
	// applied verbatim to cells written afterwards. "" is the default style.
	curSGR string

	title string
	cwd   string
}

// NewEmulator returns an emulator with the given screen size and the default
// scrollback bound.
func NewEmulator(cols, rows int) *Emulator {
	return NewEmulatorWithScrollback(cols, rows, DefaultScrollbackLines)
}

// NewEmulatorWithScrollback returns an emulator with an explicit scrollback
// line bound. A bound of zero disables scrollback.
func NewEmulatorWithScrollback(cols, rows, scrollbackLines int) *Emulator {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	sb := newScrollback(scrollbackLines)
	e := &Emulator{
		primary: newScreen(cols, rows, sb.push),
		alt:     newScreen(cols, rows, nil),
		sb:      sb,
		modes:   DefaultModes(),
	}
	e.scr = e.primary
	e.parser = ansi.NewParser()
	e.parser.SetParamsSize(parser.MaxParamsSize)
	e.parser.SetDataSize(1024 * 64)
	e.parser.SetHandler(ansi.Handler{
		Print:     e.handlePrint,
		Execute:   e.handleControl,
		HandleCsi: e.handleCsi,
		HandleEsc: e.handleEsc,
		HandleOsc: e.handleOsc,
	})
	return e
}

// Write feeds PTY output through the parser. It never fails; unrecognized
// sequences are consumed and dropped.
func (e *Emulator) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range p {
		e.parser.Advance(p[i])
	}
	return len(p), nil
}

// Resize changes the screen size of both buffers. Content is preserved
// top-left anchored; scroll margins reset.
func (e *Emulator) Resize(cols, rows int) {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.primary.resize(cols, rows)
	e.alt.resize(cols, rows)
}

// Size returns the current screen dimensions.
func (e *Emulator) Size() (cols, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scr.cols, e.scr.rows
}

// Modes returns the tracked mode record.
func (e *Emulator) Modes() Modes {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modes
}

// Title returns the window title set via OSC 0/2, or "".
func (e *Emulator) Title() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.title
}

// CWD returns the most recent working directory reported via OSC 7, verbatim
// as the program sent it, or "".
func (e *Emulator) CWD() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cwd
}

// ScrollbackLen returns the number of retained scrollback lines.
func (e *Emulator) ScrollbackLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sb.len()
}

// ClearScrollback discards all scrollback lines. The screens are untouched.
func (e *Emulator) ClearScrollback() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sb.clear()
}

// CursorPosition returns the active screen's cursor as zero-based (x, y).
func (e *Emulator) CursorPosition() (x, y int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scr.curX, e.scr.curY
}

// ScreenLines returns the active screen's text, one string per row, with
// trailing blanks trimmed and styling dropped.
func (e *Emulator) ScreenLines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, e.scr.rows)
	for y := 0; y < e.scr.rows; y++ {
		out[y] = lineText(e.scr.lines[y])
	}
	return out
}

// ScrollbackLines returns the retained scrollback as text, oldest first.
func (e *Emulator) ScrollbackLines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, e.sb.len())
	for i := range out {
		out[i] = lineText(e.sb.line(i))
	}
	return out
}

func lineText(line []Cell) string {
	end := len(line)
	for end > 0 && line[end-1].Width == 1 && line[end-1].isBlank() {
		end--
	}
	var b []byte
	for x := 0; x < end; x++ {
		c := line[x]
		if c.Width == 0 {
			continue
		}
		if c.Content == "" {
			b = append(b, ' ')
		} else {
			b = append(b, c.Content...)
		}
	}
	return string(b)
}

func (e *Emulator) handlePrint(r rune) {
	w := runewidth.RuneWidth(r)
	if w <= 0 {
		// Combining marks attach to the previous cell.
		e.attachCombining(r)
		return
	}
	e.scr.put(Cell{Content: string(r), Width: w, SGR: e.curSGR}, e.modes.AutoWrap)
}

func (e *Emulator) attachCombining(r rune) {
	s := e.scr
	x := s.curX - 1
	if s.pendingWrap {
		x = s.curX
	}
	for x >= 0 && s.lines[s.curY][x].Width == 0 {
		x--
	}
	if x < 0 {
		return
	}
	c := &s.lines[s.curY][x]
	if c.Content == "" {
		return
	}
	c.Content += string(r)
}

func (e *Emulator) handleControl(b byte) {
	s := e.scr
	switch b {
	case 0x08: // BS
		if s.curX > 0 {
			s.curX--
		}
		s.pendingWrap = false
	case 0x09: // HT, fixed 8-column stops
		next := (s.curX/8 + 1) * 8
		if next > s.cols-1 {
			next = s.cols - 1
		}
		s.curX = next
		s.pendingWrap = false
	case 0x0a, 0x0b, 0x0c: // LF, VT, FF
		s.index()
		s.pendingWrap = false
	case 0x0d: // CR
		s.curX = 0
		s.pendingWrap = false
	}
}

// switchScreen activates the alternate or primary screen. Mode 1049 saves and
// restores the primary cursor and clears the alt screen on entry.
func (e *Emulator) switchScreen(alt, saveCursor bool) {
	if alt == e.modes.AltScreen {
		return
	}
	e.modes.AltScreen = alt
	if alt {
		if saveCursor {
			e.primary.saveCursor()
			e.alt.clear()
			e.alt.moveCursor(0, 0)
		}
		e.scr = e.alt
	} else {
		e.scr = e.primary
		if saveCursor {
			e.primary.restoreCursor()
		}
	}
}
