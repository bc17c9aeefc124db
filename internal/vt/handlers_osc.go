package vt

import (
	"bytes"
	"strings"
)

func (e *Emulator) handleOsc(cmd int, data []byte) {
	switch cmd {
	case 0, 2: // icon name and/or window title
		e.title = oscArg(data)
	case 7: // working directory report, "file://<host><path>"
		e.setCWDFromReport(oscArg(data))
	}
}

// oscArg strips the leading "<cmd>;" prefix the parser leaves in the data.
func oscArg(data []byte) string {
	if i := bytes.IndexByte(data, ';'); i >= 0 {
		return string(data[i+1:])
	}
	return ""
}

// setCWDFromReport extracts the path from a file:// URI and stores it as
// reported. Percent escapes are kept as-is; the last report wins.
func (e *Emulator) setCWDFromReport(uri string) {
	rest, ok := strings.CutPrefix(uri, "file://")
	if !ok {
		return
	}
	// Drop the host portion, everything from the first slash on is the path.
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return
	}
	path := rest[slash:]
	if path == "" {
		return
	}
	e.cwd = path
}
