package vt

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

func (e *Emulator) handleCsi(cmd ansi.Cmd, params ansi.Params) {
	if cmd.Prefix() == '?' {
		switch cmd.Final() {
		case 'h', 'l':
			set := cmd.Final() == 'h'
			for i := 0; i < len(params); i++ {
				if mode, _, ok := params.Param(i, 0); ok {
					e.setMode(mode, set)
				}
			}
		}
		return
	}
	if cmd.Prefix() != 0 || cmd.Intermediate() != 0 {
		return
	}

	s := e.scr
	first := func(def int) int {
		n, _, _ := params.Param(0, def)
		if n == 0 && def > 0 {
			n = def
		}
		return n
	}

	switch cmd.Final() {
	case '@': // ICH
		s.insertChars(first(1))
	case 'A': // CUU
		s.moveCursor(s.curX, s.curY-first(1))
	case 'B': // CUD
		s.moveCursor(s.curX, s.curY+first(1))
	case 'C': // CUF
		s.moveCursor(s.curX+first(1), s.curY)
	case 'D': // CUB
		s.moveCursor(s.curX-first(1), s.curY)
	case 'E': // CNL
		s.moveCursor(0, s.curY+first(1))
	case 'F': // CPL
		s.moveCursor(0, s.curY-first(1))
	case 'G': // CHA
		s.moveCursor(first(1)-1, s.curY)
	case 'H', 'f': // CUP, HVP
		row := first(1)
		col, _, _ := params.Param(1, 1)
		if col == 0 {
			col = 1
		}
		e.moveCursorAbs(col-1, row-1)
	case 'J': // ED
		kind, _, _ := params.Param(0, 0)
		if kind == 3 {
			e.sb.clear()
			return
		}
		s.eraseScreen(kind)
	case 'K': // EL
		kind, _, _ := params.Param(0, 0)
		s.eraseLine(kind)
	case 'L': // IL
		s.insertLines(first(1))
	case 'M': // DL
		s.deleteLines(first(1))
	case 'P': // DCH
		s.deleteChars(first(1))
	case 'S': // SU
		s.scrollUp(first(1))
	case 'T': // SD
		s.scrollDown(first(1))
	case 'X': // ECH
		s.eraseChars(first(1))
	case 'd': // VPA
		e.moveCursorAbs(s.curX, first(1)-1)
	case 'm': // SGR
		e.applySGR(params)
	case 'r': // DECSTBM
		top := first(1)
		bottom, _, _ := params.Param(1, s.rows)
		if bottom == 0 {
			bottom = s.rows
		}
		s.setMargins(top-1, bottom-1)
		if e.modes.Origin {
			s.moveCursor(0, s.marginTop)
		}
	case 's': // SCOSC
		s.saveCursor()
	case 'u': // SCORC
		s.restoreCursor()
	}
}

// moveCursorAbs places the cursor at an absolute position, honoring origin
// mode where row addressing is relative to the top margin and confined to the
// margin region.
func (e *Emulator) moveCursorAbs(x, y int) {
	s := e.scr
	if e.modes.Origin {
		y += s.marginTop
		if y > s.marginBottom {
			y = s.marginBottom
		}
		if y < s.marginTop {
			y = s.marginTop
		}
	}
	s.moveCursor(x, y)
}

// applySGR folds an SGR sequence into the current style. Attributes
// accumulate across sequences; a reset (0 or an empty sequence) discards
// everything seen so far. The result is kept as a raw parameter string so
// cells can be replayed exactly as styled.
func (e *Emulator) applySGR(params ansi.Params) {
	if len(params) == 0 {
		e.curSGR = ""
		return
	}
	var kept []string
	if e.curSGR != "" {
		kept = append(kept, e.curSGR)
	}
	i := 0
	for i < len(params) {
		n, more, _ := params.Param(i, 0)
		end := i
		// Colon subparams belong to the same attribute.
		for more {
			end++
			_, more, _ = params.Param(end, 0)
		}
		// Semicolon-form extended colors carry their arguments as
		// separate params: 38;5;N and 38;2;R;G;B.
		if end == i && (n == 38 || n == 48 || n == 58) && i+1 < len(params) {
			k, _, _ := params.Param(i+1, 0)
			switch k {
			case 5:
				end = i + 2
			case 2:
				end = i + 4
			}
			if end >= len(params) {
				end = len(params) - 1
			}
		}
		if n == 0 && end == i {
			kept = kept[:0]
		} else {
			kept = append(kept, renderSGRRange(params, i, end))
		}
		i = end + 1
	}
	e.curSGR = strings.Join(kept, ";")
}

// renderSGRRange renders params[from..to] back into parameter-string form,
// preserving colon versus semicolon separators.
func renderSGRRange(params ansi.Params, from, to int) string {
	var b strings.Builder
	for i := from; i <= to; i++ {
		n, more, ok := params.Param(i, 0)
		if ok {
			b.WriteString(strconv.Itoa(n))
		}
		if i < to {
			if more {
				b.WriteByte(':')
			} else {
				b.WriteByte(';')
			}
		}
	}
	return b.String()
}
