package errors

import (
	"fmt"
	"io"
	"strings"
)

// ScriptError is the interface implemented by every error that the element
// write path raises back into script code.
type ScriptError interface {
	error
	Pos() Position
	Kind() string // "TypeError", "RangeError"
	// Message returns the error message without position info.
	Message() string
	Unwrap() error
}

func format(kind string, pos Position, msg string) string {
	if pos.IsZero() {
		return kind + ": " + msg
	}
	return fmt.Sprintf("%s at %s: %s", kind, pos, msg)
}

// --- Concrete Error Types ---

// TypeError is raised for strict-mode write failures, writes to detached
// buffers, failed coercions and writes on null or undefined.
type TypeError struct {
	Position
	Msg   string
	Cause error
}

func (e *TypeError) Error() string   { return format(e.Kind(), e.Position, e.Msg) }
func (e *TypeError) Pos() Position   { return e.Position }
func (e *TypeError) Kind() string    { return "TypeError" }
func (e *TypeError) Message() string { return e.Msg }
func (e *TypeError) Unwrap() error   { return e.Cause }
func (e *TypeError) CausedBy(cause error) *TypeError {
	e.Cause = cause
	return e
}

// RangeError is raised when an array length assignment is not a valid
// uint32.
type RangeError struct {
	Position
	Msg   string
	Cause error
}

func (e *RangeError) Error() string   { return format(e.Kind(), e.Position, e.Msg) }
func (e *RangeError) Pos() Position   { return e.Position }
func (e *RangeError) Kind() string    { return "RangeError" }
func (e *RangeError) Message() string { return e.Msg }
func (e *RangeError) Unwrap() error   { return e.Cause }
func (e *RangeError) CausedBy(cause error) *RangeError {
	e.Cause = cause
	return e
}

// SyntaxError reports a malformed driver script statement.
type SyntaxError struct {
	Position
	Msg string
}

func (e *SyntaxError) Error() string   { return format(e.Kind(), e.Position, e.Msg) }
func (e *SyntaxError) Pos() Position   { return e.Position }
func (e *SyntaxError) Kind() string    { return "SyntaxError" }
func (e *SyntaxError) Message() string { return e.Msg }
func (e *SyntaxError) Unwrap() error   { return nil }

// InteropError wraps an unexpected failure reported by a foreign object.
// Script code observes it as a TypeError naming the failed operation.
type InteropError struct {
	Position
	Op    string // "writeMember", "writeArrayElement"
	Msg   string
	Cause error
}

func (e *InteropError) Error() string {
	return format(e.Kind(), e.Position, e.Message())
}
func (e *InteropError) Pos() Position { return e.Position }
func (e *InteropError) Kind() string  { return "TypeError" }
func (e *InteropError) Message() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Op, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Msg)
}
func (e *InteropError) Unwrap() error { return e.Cause }

// --- Helpers ---

// NewTypeError formats a TypeError at pos.
func NewTypeError(pos Position, format string, args ...any) *TypeError {
	return &TypeError{Position: pos, Msg: fmt.Sprintf(format, args...)}
}

// NewRangeError formats a RangeError at pos.
func NewRangeError(pos Position, format string, args ...any) *RangeError {
	return &RangeError{Position: pos, Msg: fmt.Sprintf(format, args...)}
}

// NewSyntaxError formats a SyntaxError at pos.
func NewSyntaxError(pos Position, format string, args ...any) *SyntaxError {
	return &SyntaxError{Position: pos, Msg: fmt.Sprintf(format, args...)}
}

// --- Error Reporting ---

// DisplayErrors prints script errors to w, including the offending source
// line and a position marker when the position is known.
func DisplayErrors(w io.Writer, source string, errs []ScriptError) {
	if len(errs) == 0 {
		return
	}

	lines := strings.Split(source, "\n")

	for _, err := range errs {
		pos := err.Pos()
		lineIdx := pos.Line - 1
		if lineIdx < 0 || lineIdx >= len(lines) {
			fmt.Fprintf(w, "%s: %s\n", err.Kind(), err.Message())
			continue
		}

		sourceLine := strings.TrimRight(lines[lineIdx], "\r\n\t ")
		fmt.Fprintf(w, "%s at %d:%d: %s\n", err.Kind(), pos.Line, pos.Column, err.Message())
		fmt.Fprintf(w, "  %s\n", sourceLine)
		col := pos.Column - 1
		if col < 0 {
			col = 0
		}
		fmt.Fprintf(w, "  %s^\n", strings.Repeat(" ", col))
		fmt.Fprintln(w)
	}
}
