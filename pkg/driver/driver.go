// Package driver runs element write scripts. A script is a sequence of
// line statements; every line owns one write site, so repeating a
// statement warms and specializes that site's caches.
package driver

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"elemwrite/pkg/config"
	"elemwrite/pkg/errors"
	"elemwrite/pkg/vm"

	"github.com/davecgh/go-spew/spew"
)

const debugDriver = false

func debugPrintf(format string, args ...interface{}) {
	if debugDriver {
		fmt.Printf(format, args...)
	}
}

var dumper = spew.ConfigState{
	Indent:                  "  ",
	SortKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Session is a persistent script session. Variables, write sites and the
// strict flag survive between RunString calls.
type Session struct {
	realm  *vm.Realm
	sites  *vm.SiteTable
	vars   map[string]vm.Value
	strict bool
	// lines is the number of source lines consumed by earlier runs. Site
	// ids are offset by it so every line of a session is a distinct site.
	lines  int
	name   string
	out    io.Writer
	errOut io.Writer
}

// NewSession creates a session over a fresh realm.
func NewSession(opts config.Options, logger *slog.Logger) *Session {
	realm := vm.NewRealm(opts, logger)
	return &Session{
		realm:  realm,
		sites:  realm.NewSiteTable(),
		vars:   make(map[string]vm.Value),
		out:    os.Stdout,
		errOut: os.Stderr,
	}
}

// SetOutput redirects print, dump and stats output, and error reports.
func (s *Session) SetOutput(out, errOut io.Writer) {
	s.out = out
	s.errOut = errOut
}

// SetFileName names the script in error positions.
func (s *Session) SetFileName(name string) { s.name = name }

func (s *Session) Realm() *vm.Realm     { return s.realm }
func (s *Session) Sites() *vm.SiteTable { return s.sites }
func (s *Session) Strict() bool         { return s.strict }

// Define binds name to v, making host values such as foreign objects
// visible to scripts.
func (s *Session) Define(name string, v vm.Value) { s.vars[name] = v }

// Lookup returns the value bound to name.
func (s *Session) Lookup(name string) (vm.Value, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// RunString parses source and executes it. Syntax errors are all reported
// and nothing runs; otherwise execution stops at the first thrown error.
func (s *Session) RunString(source string) []errors.ScriptError {
	base := s.lines
	s.lines += strings.Count(source, "\n") + 1

	p := newParser(s.name, s.vars)
	stmts := p.parse(source)
	if len(p.errs) > 0 {
		return p.errs
	}
	debugPrintf("// [Driver] parsed %d statements (site base %d)\n", len(stmts), base)

	for _, st := range stmts {
		if err := s.exec(st, base+st.line); err != nil {
			return []errors.ScriptError{scriptError(err, st.pos)}
		}
	}
	return nil
}

// DisplayResult reports errs against source. It returns true when there
// were none.
func (s *Session) DisplayResult(source string, errs []errors.ScriptError) bool {
	if len(errs) > 0 {
		errors.DisplayErrors(s.errOut, source, errs)
		return false
	}
	return true
}

// PrintStats writes the cache statistics of every site the session has
// created.
func (s *Session) PrintStats() {
	s.sites.PrintStats(s.out)
}

// RunFile reads and executes a script file in a new session.
// Returns true if execution completed without any errors, false otherwise.
func RunFile(filename string, opts config.Options, logger *slog.Logger) bool {
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read file '%s': %s\n", filename, err.Error())
		return false
	}
	session := NewSession(opts, logger)
	session.SetFileName(filename)
	return session.DisplayResult(string(source), session.RunString(string(source)))
}

func (s *Session) site(st *statement, id int) *vm.CallSite {
	var opts []vm.SiteOption
	if s.strict {
		opts = append(opts, vm.WithStrict())
	}
	return s.sites.Site(id, st.pos, opts...)
}

func (s *Session) exec(st *statement, id int) error {
	debugPrintf("// [Driver] line %d: statement %d\n", st.line, st.kind)

	switch st.kind {
	case stmtStrict:
		s.strict = true
	case stmtSloppy:
		s.strict = false
	case stmtStats:
		s.sites.PrintStats(s.out)

	case stmtLet:
		v, err := st.value(s)
		if err != nil {
			return err
		}
		s.vars[st.name] = v

	case stmtAssign:
		index, err := st.index(s)
		if err != nil {
			return err
		}
		value, err := st.value(s)
		if err != nil {
			return err
		}
		return s.site(st, id).WriteElement(s.vars[st.name], index, value)

	case stmtDelete:
		index, err := st.index(s)
		if err != nil {
			return err
		}
		return s.deleteElement(st, s.vars[st.name], index)

	case stmtFreeze:
		v, err := st.value(s)
		if err != nil {
			return err
		}
		freeze(v)

	case stmtDetach:
		v, err := st.value(s)
		if err != nil {
			return err
		}
		return detach(v, st.pos)

	case stmtPrint:
		v, err := st.value(s)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, vm.Inspect(v))

	case stmtDump:
		v, err := st.value(s)
		if err != nil {
			return err
		}
		dumper.Fdump(s.out, snapshot(v))

	case stmtSetProto:
		proto, err := st.value(s)
		if err != nil {
			return err
		}
		return setPrototype(s.vars[st.name], proto, st.pos)

	case stmtRepeat:
		for i := 0; i < st.count; i++ {
			s.vars["i"] = vm.IntegerValue(int32(i))
			if err := s.exec(st.body, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) deleteElement(st *statement, target, index vm.Value) error {
	if err := vm.RequireObjectCoercible(target, index); err != nil {
		return err
	}
	key, err := vm.ToPropertyKey(index)
	if err != nil {
		return err
	}
	obj := target.AsHeapObject()
	if obj == nil {
		return nil
	}
	if !obj.Delete(key) && s.strict {
		return errors.NewTypeError(st.pos, "Cannot delete property '%s' of %s", key, vm.Inspect(target))
	}
	return nil
}

func freeze(v vm.Value) {
	obj := v.AsHeapObject()
	if obj == nil {
		return
	}
	if f, ok := obj.(interface{ Freeze() }); ok {
		f.Freeze()
		return
	}
	obj.PreventExtensions()
}

func detach(v vm.Value, pos errors.Position) error {
	switch {
	case v.AsArrayBuffer() != nil:
		v.AsArrayBuffer().Detach()
		return nil
	case v.AsTypedArray() != nil:
		if buf, ok := v.AsTypedArray().Buffer().(*vm.ArrayBufferObject); ok {
			buf.Detach()
			return nil
		}
		return errors.NewTypeError(pos, "Cannot detach a SharedArrayBuffer")
	case v.AsSharedArrayBuffer() != nil:
		return errors.NewTypeError(pos, "Cannot detach a SharedArrayBuffer")
	}
	return errors.NewTypeError(pos, "%s is not an ArrayBuffer", vm.Inspect(v))
}

func setPrototype(target, proto vm.Value, pos errors.Position) error {
	obj := target.AsHeapObject()
	if obj == nil {
		return errors.NewTypeError(pos, "Cannot set prototype of %s", vm.Inspect(target))
	}
	if !proto.IsNull() && proto.AsHeapObject() == nil {
		return errors.NewTypeError(pos, "Object prototype may only be an Object or null: %s", vm.Inspect(proto))
	}
	if !obj.SetPrototype(proto) {
		return errors.NewTypeError(pos, "Cannot set prototype of %s", vm.Inspect(target))
	}
	return nil
}

// length evaluates a constructor size argument.
func (s *Session) length(e expr, what string) (int, error) {
	v, err := e(s)
	if err != nil {
		return 0, err
	}
	n, err := vm.ToNumber(v)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxInt32 || n != math.Trunc(n) {
		return 0, errors.NewRangeError(errors.Position{}, "Invalid %s length: %s", what, vm.Inspect(v))
	}
	return int(n), nil
}

type arrayDump struct {
	Storage  string
	Length   int64
	Holes    int
	Elements map[int64]string
}

type typedArrayDump struct {
	Kind       string
	Length     int
	ByteOffset int
	Detached   bool
}

type valueDump struct {
	Type  string
	Value string
}

// snapshot captures the storage-level view of v for dump.
func snapshot(v vm.Value) any {
	if a := v.AsArray(); a != nil {
		elems := make(map[int64]string)
		for i, e := range a.Elements() {
			elems[i] = vm.Inspect(e)
		}
		return arrayDump{
			Storage:  a.StorageKind().String(),
			Length:   a.Length(),
			Holes:    a.HoleCount(),
			Elements: elems,
		}
	}
	if ta := v.AsTypedArray(); ta != nil {
		return typedArrayDump{
			Kind:       ta.Kind().Name(),
			Length:     ta.Length(),
			ByteOffset: ta.ByteOffset(),
			Detached:   ta.IsDetached(),
		}
	}
	return valueDump{Type: v.Type().String(), Value: vm.Inspect(v)}
}

// scriptError stamps pos on errors raised without a site position and
// converts foreign failures into TypeErrors.
func scriptError(err error, pos errors.Position) errors.ScriptError {
	var se errors.ScriptError
	if !stderrors.As(err, &se) {
		return &errors.TypeError{Position: pos, Msg: err.Error(), Cause: err}
	}
	if !se.Pos().IsZero() {
		return se
	}
	switch e := se.(type) {
	case *errors.TypeError:
		located := *e
		located.Position = pos
		return &located
	case *errors.RangeError:
		located := *e
		located.Position = pos
		return &located
	case *errors.InteropError:
		located := *e
		located.Position = pos
		return &located
	}
	return se
}
