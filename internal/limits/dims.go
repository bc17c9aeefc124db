// Package limits bounds the terminal dimensions a client may request.
package limits

import "fmt"

const (
	SessionMaxCols = 500
	SessionMaxRows = 200
)

type DimensionError struct {
	Cols, Rows       int
	MaxCols, MaxRows int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimensions %dx%d exceed max %dx%d", e.Cols, e.Rows, e.MaxCols, e.MaxRows)
}

// Normalize raises non-positive dimensions to the 1x1 minimum.
func Normalize(cols, rows int) (int, int) {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return cols, rows
}

// Clamp normalizes and caps dimensions at the session maximum.
func Clamp(cols, rows int) (int, int) {
	cols, rows = Normalize(cols, rows)
	if cols > SessionMaxCols {
		cols = SessionMaxCols
	}
	if rows > SessionMaxRows {
		rows = SessionMaxRows
	}
	return cols, rows
}

// ValidateMax rejects dimensions past the session maximum.
func ValidateMax(cols, rows int) error {
	cols, rows = Normalize(cols, rows)
	if cols > SessionMaxCols || rows > SessionMaxRows {
		return &DimensionError{Cols: cols, Rows: rows, MaxCols: SessionMaxCols, MaxRows: SessionMaxRows}
	}
	return nil
}
