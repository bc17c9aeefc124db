package vt

import (
	"fmt"
	"strings"
)

// Snapshot is a point-in-time projection of the emulator, sufficient to
// redraw the session in a fresh terminal. It is derived on demand and never
// stored.
type Snapshot struct {
	// SnapshotANSI replays scrollback and screen content, ending with the
	// cursor at its current position.
	SnapshotANSI string `json:"snapshotAnsi"`

	// RehydrateSequences re-establishes every tracked mode that differs
	// from its default. Empty when all modes are at defaults.
	RehydrateSequences string `json:"rehydrateSequences"`

	CWD             string `json:"cwd,omitempty"`
	Modes           Modes  `json:"modes"`
	Cols            int    `json:"cols"`
	Rows            int    `json:"rows"`
	ScrollbackLines int    `json:"scrollbackLines"`
}

// Snapshot derives the current snapshot. Applying RehydrateSequences and then
// SnapshotANSI to a fresh emulator of the same size reproduces this state.
func (e *Emulator) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		SnapshotANSI:       e.renderANSI(),
		RehydrateSequences: e.modes.RehydrateSequences(),
		CWD:                e.cwd,
		Modes:              e.modes,
		Cols:               e.scr.cols,
		Rows:               e.scr.rows,
		ScrollbackLines:    e.sb.len(),
	}
}

// renderANSI serializes scrollback plus the primary screen, and when the
// alternate screen is active, the mode-switch and the alternate content on
// top. Caller holds the lock.
func (e *Emulator) renderANSI() string {
	var b strings.Builder
	w := &styleWriter{b: &b}

	for i := 0; i < e.sb.len(); i++ {
		w.writeLine(e.sb.line(i))
		b.WriteString("\r\n")
	}
	for y := 0; y < e.primary.rows; y++ {
		if y > 0 {
			b.WriteString("\r\n")
		}
		w.writeLine(e.primary.lines[y])
	}
	w.reset()
	writeCUP(&b, e.primary.curX, e.primary.curY)

	if e.modes.AltScreen {
		b.WriteString("\x1b[?1049h")
		for y := 0; y < e.alt.rows; y++ {
			if y > 0 {
				b.WriteString("\r\n")
			}
			w.writeLine(e.alt.lines[y])
		}
		w.reset()
		writeCUP(&b, e.alt.curX, e.alt.curY)
	}
	return b.String()
}

func writeCUP(b *strings.Builder, x, y int) {
	fmt.Fprintf(b, "\x1b[%d;%dH", y+1, x+1)
}

// styleWriter emits cells, inserting an SGR sequence only when the style
// changes from the previous cell. Styles carry across lines.
type styleWriter struct {
	b     *strings.Builder
	style string
}

func (w *styleWriter) writeLine(line []Cell) {
	end := len(line)
	for end > 0 {
		c := line[end-1]
		if c.Width == 1 && c.isBlank() {
			end--
			continue
		}
		break
	}
	for x := 0; x < end; x++ {
		c := line[x]
		if c.Width == 0 {
			// Continuation of a wide cell.
			continue
		}
		if c.SGR != w.style {
			w.setStyle(c.SGR)
		}
		if c.Content == "" {
			w.b.WriteByte(' ')
		} else {
			w.b.WriteString(c.Content)
		}
	}
}

func (w *styleWriter) setStyle(sgr string) {
	if sgr == "" {
		w.b.WriteString("\x1b[0m")
	} else {
		w.b.WriteString("\x1b[0;")
		w.b.WriteString(sgr)
		w.b.WriteByte('m')
	}
	w.style = sgr
}

func (w *styleWriter) reset() {
	if w.style != "" {
		w.b.WriteString("\x1b[0m")
		w.style = ""
	}
}
