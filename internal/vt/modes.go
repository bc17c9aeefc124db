package vt

import "fmt"

// DEC private mode numbers tracked by the emulator. Only modes that affect
// input semantics or reattach correctness are tracked.
const (
	modeAppCursorKeys  = 1
	modeOrigin         = 6
	modeAutoWrap       = 7
	modeMouseX10       = 9
	modeCursorVisible  = 25
	modeAltScreenBare  = 47
	modeMouseNormal    = 1000
	modeMouseHighlight = 1001
	modeMouseButton    = 1002
	modeMouseAny       = 1003
	modeFocusReporting = 1004
	modeMouseUTF8      = 1005
	modeMouseSGR       = 1006
	modeAltScreenClear = 1047
	modeAltScreenFull  = 1049
	modeBracketedPaste = 2004
)

// Modes is the fixed record of input-affecting terminal modes.
type Modes struct {
	AppCursorKeys  bool `json:"appCursorKeys"`
	Origin         bool `json:"origin"`
	AutoWrap       bool `json:"autoWrap"`
	MouseX10       bool `json:"mouseX10"`
	MouseNormal    bool `json:"mouseNormal"`
	MouseHighlight bool `json:"mouseHighlight"`
	MouseButton    bool `json:"mouseButton"`
	MouseAny       bool `json:"mouseAny"`
	FocusReporting bool `json:"focusReporting"`
	MouseUTF8      bool `json:"mouseUtf8"`
	MouseSGR       bool `json:"mouseSgr"`
	AltScreen      bool `json:"altScreen"`
	CursorVisible  bool `json:"cursorVisible"`
	BracketedPaste bool `json:"bracketedPaste"`
}

// DefaultModes returns the documented power-on mode state.
func DefaultModes() Modes {
	return Modes{
		AutoWrap:      true,
		CursorVisible: true,
	}
}

// rehydrateOrder fixes the emission order of RehydrateSequences: ascending
// DEC mode number. Alternate screen is deliberately absent; the serialized
// screen content already encodes which buffer is current.
var rehydrateOrder = []struct {
	mode   int
	get    func(Modes) bool
	defVal bool
}{
	{modeAppCursorKeys, func(m Modes) bool { return m.AppCursorKeys }, false},
	{modeOrigin, func(m Modes) bool { return m.Origin }, false},
	{modeAutoWrap, func(m Modes) bool { return m.AutoWrap }, true},
	{modeMouseX10, func(m Modes) bool { return m.MouseX10 }, false},
	{modeCursorVisible, func(m Modes) bool { return m.CursorVisible }, true},
	{modeMouseNormal, func(m Modes) bool { return m.MouseNormal }, false},
	{modeMouseHighlight, func(m Modes) bool { return m.MouseHighlight }, false},
	{modeMouseButton, func(m Modes) bool { return m.MouseButton }, false},
	{modeMouseAny, func(m Modes) bool { return m.MouseAny }, false},
	{modeFocusReporting, func(m Modes) bool { return m.FocusReporting }, false},
	{modeMouseUTF8, func(m Modes) bool { return m.MouseUTF8 }, false},
	{modeMouseSGR, func(m Modes) bool { return m.MouseSGR }, false},
	{modeBracketedPaste, func(m Modes) bool { return m.BracketedPaste }, false},
}

// RehydrateSequences returns the minimal escape sequences that re-establish
// every non-default mode on a fresh terminal. The result is empty when all
// modes are at their defaults.
func (m Modes) RehydrateSequences() string {
	out := ""
	for _, entry := range rehydrateOrder {
		value := entry.get(m)
		if value == entry.defVal {
			continue
		}
		if value {
			out += fmt.Sprintf("\x1b[?%dh", entry.mode)
		} else {
			out += fmt.Sprintf("\x1b[?%dl", entry.mode)
		}
	}
	return out
}

// setMode applies a DEC private mode change parsed from PTY output.
// Unknown modes are ignored.
func (e *Emulator) setMode(mode int, set bool) {
	switch mode {
	case modeAppCursorKeys:
		e.modes.AppCursorKeys = set
	case modeOrigin:
		e.modes.Origin = set
		if set {
			e.scr.moveCursor(0, e.scr.marginTop)
		} else {
			e.scr.moveCursor(0, 0)
		}
	case modeAutoWrap:
		e.modes.AutoWrap = set
	case modeMouseX10:
		e.modes.MouseX10 = set
	case modeCursorVisible:
		e.modes.CursorVisible = set
	case modeMouseNormal:
		e.modes.MouseNormal = set
	case modeMouseHighlight:
		e.modes.MouseHighlight = set
	case modeMouseButton:
		e.modes.MouseButton = set
	case modeMouseAny:
		e.modes.MouseAny = set
	case modeFocusReporting:
		e.modes.FocusReporting = set
	case modeMouseUTF8:
		e.modes.MouseUTF8 = set
	case modeMouseSGR:
		e.modes.MouseSGR = set
	case modeBracketedPaste:
		e.modes.BracketedPaste = set
	case modeAltScreenBare, modeAltScreenClear, modeAltScreenFull:
		e.switchScreen(set, mode == modeAltScreenFull)
	}
}
