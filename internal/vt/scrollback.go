package vt

// scrollback is a bounded ring of lines that scrolled off the top of the
// primary screen. The alt screen never feeds it.
type scrollback struct {
	lines [][]Cell
	start int
	count int
	max   int
}

func newScrollback(max int) *scrollback {
	if max < 0 {
		max = 0
	}
	return &scrollback{max: max}
}

func (sb *scrollback) push(line []Cell) {
	if sb.max == 0 {
		return
	}
	if sb.lines == nil {
		sb.lines = make([][]Cell, sb.max)
	}
	idx := (sb.start + sb.count) % sb.max
	sb.lines[idx] = line
	if sb.count < sb.max {
		sb.count++
	} else {
		sb.start = (sb.start + 1) % sb.max
	}
}

func (sb *scrollback) len() int { return sb.count }

// line returns the i-th oldest retained line.
func (sb *scrollback) line(i int) []Cell {
	return sb.lines[(sb.start+i)%sb.max]
}

func (sb *scrollback) clear() {
	sb.lines = nil
	sb.start = 0
	sb.count = 0
}
