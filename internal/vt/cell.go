package vt

// Cell is one terminal screen cell. SGR holds the raw graphic rendition
// parameter string active when the cell was written ("" means default);
// keeping the raw parameters lets snapshots replay styling byte-exactly
// without modelling color spaces.
type Cell struct {
	Content string
	Width   int
	SGR     string
}

func blankCell() Cell {
	return Cell{Content: " ", Width: 1}
}

func (c Cell) isBlank() bool {
	return (c.Content == "" || c.Content == " ") && c.SGR == ""
}

// screen is one terminal buffer (primary or alternate) with its own cursor.
type screen struct {
	cols, rows int
	lines      [][]Cell

	curX, curY int
	// pendingWrap is set after writing to the last column with auto-wrap
	// enabled; the next printable commits the wrap.
	pendingWrap bool

	savedX, savedY int

	// Scroll margins (DECSTBM), inclusive rows.
	marginTop    int
	marginBottom int

	// scrollOut receives lines scrolled off the top, nil for the alt screen.
	scrollOut func(line []Cell)
}

func newScreen(cols, rows int, scrollOut func([]Cell)) *screen {
	s := &screen{cols: cols, rows: rows, scrollOut: scrollOut}
	s.lines = makeGrid(cols, rows)
	s.marginBottom = rows - 1
	return s
}

func makeGrid(cols, rows int) [][]Cell {
	lines := make([][]Cell, rows)
	for y := range lines {
		lines[y] = blankLine(cols)
	}
	return lines
}

func blankLine(cols int) []Cell {
	line := make([]Cell, cols)
	for x := range line {
		line[x] = blankCell()
	}
	return line
}

func (s *screen) cell(x, y int) Cell {
	if y < 0 || y >= s.rows || x < 0 || x >= s.cols {
		return blankCell()
	}
	return s.lines[y][x]
}

func (s *screen) line(y int) []Cell {
	if y < 0 || y >= s.rows {
		return nil
	}
	return s.lines[y]
}

// moveCursor clamps and positions the cursor, clearing any pending wrap.
func (s *screen) moveCursor(x, y int) {
	s.curX = clamp(x, 0, s.cols-1)
	s.curY = clamp(y, 0, s.rows-1)
	s.pendingWrap = false
}

func (s *screen) saveCursor() {
	s.savedX, s.savedY = s.curX, s.curY
}

func (s *screen) restoreCursor() {
	s.moveCursor(s.savedX, s.savedY)
}

func (s *screen) resetMargins() {
	s.marginTop = 0
	s.marginBottom = s.rows - 1
}

func (s *screen) setMargins(top, bottom int) {
	top = clamp(top, 0, s.rows-1)
	bottom = clamp(bottom, 0, s.rows-1)
	if top >= bottom {
		return
	}
	s.marginTop = top
	s.marginBottom = bottom
	s.moveCursor(0, top)
}

func (s *screen) resize(cols, rows int) {
	if cols == s.cols && rows == s.rows {
		return
	}
	lines := make([][]Cell, rows)
	for y := 0; y < rows; y++ {
		line := blankLine(cols)
		if y < s.rows {
			copy(line, s.lines[y])
		}
		lines[y] = line
	}
	s.cols = cols
	s.rows = rows
	s.lines = lines
	s.resetMargins()
	s.curX = clamp(s.curX, 0, cols-1)
	s.curY = clamp(s.curY, 0, rows-1)
	s.pendingWrap = false
}

func (s *screen) clear() {
	s.lines = makeGrid(s.cols, s.rows)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
