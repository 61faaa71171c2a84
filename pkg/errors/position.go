package errors

import "fmt"

// Position identifies the write site that raised an error.
// Line and Column are 1-based; a zero Position means "no site" (for
// example a write issued through the uncached realm entry point).
type Position struct {
	Line   int    // 1-based line number
	Column int    // 1-based column number
	File   string // script name, empty for inline input
}

// IsZero reports whether the position carries no location.
func (p Position) IsZero() bool { return p.Line == 0 && p.Column == 0 }

func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}
