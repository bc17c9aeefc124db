package vt

import "github.com/charmbracelet/x/ansi"

func (e *Emulator) handleEsc(cmd ansi.Cmd) {
	if cmd.Intermediate() != 0 {
		// Charset designations and similar are not tracked.
		return
	}
	s := e.scr
	switch cmd.Final() {
	case '7': // DECSC
		s.saveCursor()
	case '8': // DECRC
		s.restoreCursor()
	case 'D': // IND
		s.index()
	case 'E': // NEL
		s.curX = 0
		s.index()
		s.pendingWrap = false
	case 'M': // RI
		s.reverseIndex()
	case 'c': // RIS
		e.reset()
	}
}

// reset restores power-on state: both screens cleared, primary active,
// modes back to defaults, style and margins cleared. Scrollback survives.
func (e *Emulator) reset() {
	e.primary.clear()
	e.primary.moveCursor(0, 0)
	e.primary.resetMargins()
	e.alt.clear()
	e.alt.moveCursor(0, 0)
	e.alt.resetMargins()
	e.scr = e.primary
	e.modes = DefaultModes()
	e.curSGR = ""
	e.title = ""
}
