package vt

// put writes a printable cell at the cursor, handling deferred auto-wrap.
func (s *screen) put(c Cell, autoWrap bool) {
	if c.Width <= 0 {
		return
	}
	if s.pendingWrap {
		if autoWrap {
			s.curX = 0
			s.index()
		}
		s.pendingWrap = false
	}
	if s.curX+c.Width > s.cols {
		if !autoWrap {
			s.curX = s.cols - c.Width
			if s.curX < 0 {
				return
			}
		} else {
			s.curX = 0
			s.index()
		}
	}
	s.lines[s.curY][s.curX] = c
	// Wide glyphs occupy a zero-width continuation cell.
	for i := 1; i < c.Width && s.curX+i < s.cols; i++ {
		s.lines[s.curY][s.curX+i] = Cell{Width: 0}
	}
	s.curX += c.Width
	if s.curX >= s.cols {
		s.curX = s.cols - 1
		if autoWrap {
			s.pendingWrap = true
		}
	}
}

// index moves the cursor down one row, scrolling inside the margin region
// when the cursor sits on the bottom margin.
func (s *screen) index() {
	if s.curY == s.marginBottom {
		s.scrollUp(1)
		return
	}
	if s.curY < s.rows-1 {
		s.curY++
	}
}

// reverseIndex moves the cursor up one row, scrolling down at the top margin.
func (s *screen) reverseIndex() {
	if s.curY == s.marginTop {
		s.scrollDown(1)
		return
	}
	if s.curY > 0 {
		s.curY--
	}
}

// scrollUp removes n lines from the top of the margin region. Lines scrolled
// off a full-screen region are handed to scrollOut (the scrollback).
func (s *screen) scrollUp(n int) {
	if n <= 0 {
		return
	}
	region := s.marginBottom - s.marginTop + 1
	if n > region {
		n = region
	}
	fullRegion := s.marginTop == 0 && s.marginBottom == s.rows-1
	for i := 0; i < n; i++ {
		if fullRegion && s.scrollOut != nil {
			s.scrollOut(s.lines[s.marginTop])
		}
		copy(s.lines[s.marginTop:s.marginBottom], s.lines[s.marginTop+1:s.marginBottom+1])
		s.lines[s.marginBottom] = blankLine(s.cols)
	}
}

// scrollDown inserts n blank lines at the top of the margin region.
func (s *screen) scrollDown(n int) {
	if n <= 0 {
		return
	}
	region := s.marginBottom - s.marginTop + 1
	if n > region {
		n = region
	}
	for i := 0; i < n; i++ {
		copy(s.lines[s.marginTop+1:s.marginBottom+1], s.lines[s.marginTop:s.marginBottom])
		s.lines[s.marginTop] = blankLine(s.cols)
	}
}

// eraseLine erases within the cursor line: 0 = to end, 1 = to start, 2 = all.
func (s *screen) eraseLine(kind int) {
	line := s.lines[s.curY]
	switch kind {
	case 0:
		for x := s.curX; x < s.cols; x++ {
			line[x] = blankCell()
		}
	case 1:
		for x := 0; x <= s.curX && x < s.cols; x++ {
			line[x] = blankCell()
		}
	case 2:
		s.lines[s.curY] = blankLine(s.cols)
	}
	s.pendingWrap = false
}

// eraseScreen erases the display: 0 = cursor to end, 1 = start to cursor,
// 2 = everything.
func (s *screen) eraseScreen(kind int) {
	switch kind {
	case 0:
		s.eraseLine(0)
		for y := s.curY + 1; y < s.rows; y++ {
			s.lines[y] = blankLine(s.cols)
		}
	case 1:
		s.eraseLine(1)
		for y := 0; y < s.curY; y++ {
			s.lines[y] = blankLine(s.cols)
		}
	case 2:
		s.clear()
	}
	s.pendingWrap = false
}

func (s *screen) insertChars(n int) {
	if n <= 0 {
		return
	}
	line := s.lines[s.curY]
	for i := 0; i < n; i++ {
		copy(line[s.curX+1:], line[s.curX:s.cols-1])
		line[s.curX] = blankCell()
	}
}

func (s *screen) deleteChars(n int) {
	if n <= 0 {
		return
	}
	line := s.lines[s.curY]
	for i := 0; i < n; i++ {
		copy(line[s.curX:s.cols-1], line[s.curX+1:])
		line[s.cols-1] = blankCell()
	}
}

func (s *screen) eraseChars(n int) {
	if n <= 0 {
		return
	}
	line := s.lines[s.curY]
	for x := s.curX; x < s.curX+n && x < s.cols; x++ {
		line[x] = blankCell()
	}
}

func (s *screen) insertLines(n int) {
	if s.curY < s.marginTop || s.curY > s.marginBottom {
		return
	}
	top := s.marginTop
	s.marginTop = s.curY
	s.scrollDown(n)
	s.marginTop = top
	s.curX = 0
}

func (s *screen) deleteLines(n int) {
	if s.curY < s.marginTop || s.curY > s.marginBottom {
		return
	}
	top := s.marginTop
	s.marginTop = s.curY
	s.scrollUpNoCapture(n)
	s.marginTop = top
	s.curX = 0
}

// scrollUpNoCapture scrolls without feeding the scrollback; deleted lines
// inside a region are discarded, not history.
func (s *screen) scrollUpNoCapture(n int) {
	out := s.scrollOut
	s.scrollOut = nil
	s.scrollUp(n)
	s.scrollOut = out
}
