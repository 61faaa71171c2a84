package driver

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"elemwrite/pkg/config"
	"elemwrite/pkg/errors"
	"elemwrite/pkg/vm"
)

func newTestSession() (*Session, *bytes.Buffer, *bytes.Buffer) {
	s := NewSession(config.Default(), nil)
	var out, errOut bytes.Buffer
	s.SetOutput(&out, &errOut)
	return s, &out, &errOut
}

func mustRun(t *testing.T, s *Session, source string) {
	t.Helper()
	if errs := s.RunString(source); len(errs) > 0 {
		t.Fatalf("RunString(%q): %v", source, errs)
	}
}

func lookup(t *testing.T, s *Session, name string) vm.Value {
	t.Helper()
	v, ok := s.Lookup(name)
	if !ok {
		t.Fatalf("variable %s not defined", name)
	}
	return v
}

func TestSession_WriteAndPrint(t *testing.T) {
	s, out, _ := newTestSession()
	mustRun(t, s, "let a = []\na[0] = 1\na[1] = 2.5\nprint a\ndump a\n")

	got := out.String()
	if !strings.HasPrefix(got, "[1, 2.5]\n") {
		t.Errorf("print output = %q", got)
	}
	if !strings.Contains(got, `"Dense-Double"`) || !strings.Contains(got, "Length: (int64) 2") {
		t.Errorf("dump output missing storage details:\n%s", got)
	}
	if k := lookup(t, s, "a").AsArray().StorageKind(); k != vm.StorageDenseDouble {
		t.Errorf("storage = %s, want Dense-Double", k)
	}
}

func TestSession_RepeatUsesOneSite(t *testing.T) {
	s, out, _ := newTestSession()
	mustRun(t, s, "let a = []\nrepeat 10 a[i] = i\nstats\n")

	if n := s.Sites().Len(); n != 1 {
		t.Fatalf("sites = %d, want 1", n)
	}
	a := lookup(t, s, "a").AsArray()
	if a.Length() != 10 || a.StorageKind() != vm.StorageDenseInt {
		t.Errorf("array = %s (%s), want 10 ints", vm.Inspect(lookup(t, s, "a")), a.StorageKind())
	}
	site := s.Sites().Site(2, errors.Position{})
	if got := site.IndexShape(); got != "int" {
		t.Errorf("index shape = %q, want int", got)
	}
	if got := strings.Join(site.ReceiverHandlers(), " "); got != "Object" {
		t.Errorf("receiver handlers = %q, want Object", got)
	}
	if !strings.Contains(out.String(), "Cache sites: 1") || !strings.Contains(out.String(), "Site 2 (2:12)") {
		t.Errorf("stats output:\n%s", out.String())
	}
}

func TestSession_StrictStringWrite(t *testing.T) {
	s, _, errOut := newTestSession()
	src := "strict\nlet s = \"abc\"\ns[0] = \"x\"\n"
	errs := s.RunString(src)
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want one TypeError", errs)
	}
	e := errs[0]
	if e.Kind() != "TypeError" || e.Pos().Line != 3 || e.Pos().Column != 2 {
		t.Errorf("error = %s at %v, want TypeError at 3:2", e.Kind(), e.Pos())
	}
	if !strings.Contains(e.Message(), "read only property '0'") {
		t.Errorf("message = %q", e.Message())
	}
	if s.DisplayResult(src, errs) {
		t.Error("DisplayResult reported success")
	}
	if !strings.Contains(errOut.String(), "TypeError at 3:2") {
		t.Errorf("error report:\n%s", errOut.String())
	}
}

func TestSession_SloppyStringWriteIsSilent(t *testing.T) {
	s, out, _ := newTestSession()
	mustRun(t, s, "let s = 'abc'\ns[0] = 'x'\nprint s\n")
	if out.String() != "abc\n" {
		t.Errorf("output = %q, want abc", out.String())
	}
}

func TestSession_SyntaxErrorsStopExecution(t *testing.T) {
	s, _, _ := newTestSession()
	errs := s.RunString("let a = []\na[0 = 1\nprint b\n")
	if len(errs) != 2 {
		t.Fatalf("errors = %v, want 2", errs)
	}
	for i, line := range []int{2, 3} {
		if errs[i].Kind() != "SyntaxError" || errs[i].Pos().Line != line {
			t.Errorf("errs[%d] = %s at %v, want SyntaxError on line %d", i, errs[i].Kind(), errs[i].Pos(), line)
		}
	}
	if _, ok := s.Lookup("a"); ok {
		t.Error("statements ran despite syntax errors")
	}
}

func TestSession_StrictFlagAppliesToNewSites(t *testing.T) {
	s, _, _ := newTestSession()
	errs := s.RunString("let a = [1]\nfreeze a\na[0] = 2\nstrict\na[0] = 3\n")
	if len(errs) != 1 || errs[0].Pos().Line != 5 || errs[0].Kind() != "TypeError" {
		t.Fatalf("errors = %v, want one TypeError on line 5", errs)
	}
	if got := vm.Inspect(lookup(t, s, "a")); got != "[1]" {
		t.Errorf("frozen array = %s", got)
	}
	if !s.Strict() {
		t.Error("session not strict after strict statement")
	}
}

func TestSession_TypedArrays(t *testing.T) {
	s, out, _ := newTestSession()
	errs := s.RunString("let t = Uint8ClampedArray(2)\nt[0] = 300\nt[1] = -5\nt[7] = 1\nprint t\ndetach t\nprint t\nt[0] = 1\n")
	if len(errs) != 1 || errs[0].Kind() != "TypeError" || errs[0].Pos().Line != 8 {
		t.Fatalf("errors = %v, want detached TypeError on line 8", errs)
	}
	if got, want := out.String(), "Uint8ClampedArray(2) [255, 0]\nUint8ClampedArray(detached)\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestSession_BigIntTypedArray(t *testing.T) {
	s, out, _ := newTestSession()
	errs := s.RunString("let b = BigInt64Array(1)\nb[0] = 5\n")
	if len(errs) != 1 || errs[0].Kind() != "TypeError" {
		t.Fatalf("errors = %v, want TypeError for a number in a BigInt array", errs)
	}
	mustRun(t, s, "b[0] = -5n\nprint b\n")
	if out.String() != "BigInt64Array(1) [-5n]\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestSession_DeleteMakesHoles(t *testing.T) {
	s, out, _ := newTestSession()
	mustRun(t, s, "let a = [1, 2, 3]\ndelete a[1]\nprint a\ndump a\n")
	if !strings.HasPrefix(out.String(), "[1, <hole>, 3]\n") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), `"Holes-Int"`) || !strings.Contains(out.String(), "Holes: (int) 1") {
		t.Errorf("dump output:\n%s", out.String())
	}
}

func TestSession_StrictDeleteOfFrozenElement(t *testing.T) {
	s, _, _ := newTestSession()
	errs := s.RunString("let a = [1]\nfreeze a\nstrict\ndelete a[0]\n")
	if len(errs) != 1 || errs[0].Pos().Line != 4 {
		t.Fatalf("errors = %v, want one TypeError on line 4", errs)
	}
	if !strings.Contains(errs[0].Message(), "Cannot delete property '0'") {
		t.Errorf("message = %q", errs[0].Message())
	}
}

func TestSession_SetProtoInvalidatesAssumptions(t *testing.T) {
	s, _, _ := newTestSession()
	as := s.Realm().Assumptions()
	mustRun(t, s, "let p = [1]\nlet o = {}\nsetproto o p\n")
	if as.NoPrototypeElements.Valid() {
		t.Error("NoPrototypeElements still valid after an array became a prototype")
	}
	if !as.FastArray.Valid() {
		t.Error("FastArray invalidated by a plain object prototype change")
	}
	mustRun(t, s, "let q = []\nsetproto q o\n")
	if as.FastArray.Valid() {
		t.Error("FastArray still valid after an array prototype change")
	}

	errs := s.RunString("setproto o 1\n")
	if len(errs) != 1 || errs[0].Kind() != "TypeError" {
		t.Errorf("errors = %v, want TypeError for a primitive prototype", errs)
	}
}

func TestSession_StatePersistsAcrossRuns(t *testing.T) {
	s, _, _ := newTestSession()
	mustRun(t, s, "let a = []")
	mustRun(t, s, "a[0] = 1")
	mustRun(t, s, "a[1] = 2")
	if n := s.Sites().Len(); n != 2 {
		t.Errorf("sites = %d, want one per executed line", n)
	}
	if got := vm.Inspect(lookup(t, s, "a")); got != "[1, 2]" {
		t.Errorf("a = %s", got)
	}
}

func TestSession_ConstructorErrors(t *testing.T) {
	s, _, _ := newTestSession()
	errs := s.RunString("let ok = 1\nlet a = Array(-1)\n")
	if len(errs) != 1 || errs[0].Kind() != "RangeError" {
		t.Fatalf("errors = %v, want RangeError", errs)
	}
	if pos := errs[0].Pos(); pos.Line != 2 || pos.Column != 1 {
		t.Errorf("position = %v, want 2:1", pos)
	}

	errs = s.RunString("let v = Float32Array(ok, 2)\n")
	if len(errs) != 1 || errs[0].Kind() != "SyntaxError" {
		t.Errorf("errors = %v, want SyntaxError", errs)
	}
	errs = s.RunString("let w = Widget(1)\n")
	if len(errs) != 1 || !strings.Contains(errs[0].Message(), "Widget is not a constructor") {
		t.Errorf("errors = %v", errs)
	}
}

func TestSession_DefineForeignValue(t *testing.T) {
	s, _, _ := newTestSession()
	rec := &recordingForeign{}
	s.Define("f", vm.NewForeign(rec))
	mustRun(t, s, "f[\"name\"] = \"x\"\nf[2] = 3\n")
	if rec.member != "name" || rec.index != 2 {
		t.Errorf("foreign writes = member %q, index %d", rec.member, rec.index)
	}
}

type recordingForeign struct {
	member string
	index  int64
}

func (f *recordingForeign) IsNull() bool { return false }

func (f *recordingForeign) WriteMember(name string, _ any) error {
	f.member = name
	return nil
}

func (f *recordingForeign) WriteArrayElement(index int64, _ any) error {
	f.index = index
	return nil
}

func TestParser_Expressions(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"10n", "10n"},
		{"-7", "-7"},
		{"1.5e3", "1500"},
		{"NaN", "NaN"},
		{"-Infinity", "-Infinity"},
		{`"a\"b"`, `a"b`},
		{"'single'", "single"},
		{"null", "null"},
		{"undefined", "undefined"},
		{"true", "true"},
		{"{}", "{}"},
		{"Symbol(tag)", "Symbol(tag)"},
		{`Symbol("quoted")`, "Symbol(quoted)"},
		{"Array(3)", "[<hole>, <hole>, <hole>]"},
		{`[1, "a,b", [2]]`, `[1, "a,b", [2]]`},
		{"Int8Array(2)", "Int8Array(2) [0, 0]"},
		{"ArrayBuffer(8)", "ArrayBuffer { byteLength: 8 }"},
		{"Int32Array(ArrayBuffer(8))", "Int32Array(2) [0, 0]"},
		{"SharedArrayBuffer(4)", "SharedArrayBuffer { byteLength: 4 }"},
	}
	for _, tt := range tests {
		s, _, _ := newTestSession()
		mustRun(t, s, "let x = "+tt.src)
		if got := vm.Inspect(lookup(t, s, "x")); got != tt.want {
			t.Errorf("%s: Inspect = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestParser_RejectsMalformedStatements(t *testing.T) {
	tests := []string{
		"let null = 1",
		"a[0] = 1",
		"repeat 3 let i = 1",
		"frobnicate a",
		"let x = [1, ]",
		"let x = \"unterminated\\\"",
	}
	for _, src := range tests {
		s, _, _ := newTestSession()
		errs := s.RunString(src)
		if len(errs) != 1 || errs[0].Kind() != "SyntaxError" {
			t.Errorf("%q: errors = %v, want one SyntaxError", src, errs)
		}
	}
}

func TestSplitTopLevel(t *testing.T) {
	got := splitTopLevel(`1, "x,y", [2, 3], Symbol(a,b), 'q,'`)
	want := []string{"1", ` "x,y"`, " [2, 3]", " Symbol(a,b)", " 'q,'"}
	if len(got) != len(want) {
		t.Fatalf("splitTopLevel = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("part %d = %q, want %q", i, got[i], want[i])
		}
	}
	if splitTopLevel("  ") != nil {
		t.Error("blank list should have no parts")
	}
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.ew")
	bad := filepath.Join(dir, "bad.ew")
	if err := os.WriteFile(good, []byte("let a = []\nrepeat 3 a[i] = i\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("let a = null\na[0] = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !RunFile(good, config.Default(), nil) {
		t.Error("RunFile(good) = false")
	}
	if RunFile(bad, config.Default(), nil) {
		t.Error("RunFile(bad) = true")
	}
	if RunFile(filepath.Join(dir, "missing.ew"), config.Default(), nil) {
		t.Error("RunFile(missing) = true")
	}
}
