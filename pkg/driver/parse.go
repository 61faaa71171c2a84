package driver

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"elemwrite/pkg/errors"
	"elemwrite/pkg/vm"

	"github.com/dlclark/regexp2"
)

type stmtKind uint8

const (
	stmtLet stmtKind = iota
	stmtAssign
	stmtDelete
	stmtStrict
	stmtSloppy
	stmtFreeze
	stmtDetach
	stmtPrint
	stmtDump
	stmtStats
	stmtSetProto
	stmtRepeat
)

// statement is one parsed script line. Every statement on a line shares
// the line's write site, so a repeated body warms the same caches.
type statement struct {
	kind  stmtKind
	line  int
	pos   errors.Position
	name  string
	index expr
	value expr
	count int
	body  *statement
}

// expr evaluates an expression against the session's variables.
type expr func(s *Session) (vm.Value, error)

const ident = `[A-Za-z_$][\w$]*`

// bracket matches an index expression up to its closing bracket, skipping
// brackets inside string literals.
const bracket = `((?:"(?:[^"\\]|\\.)*"|'[^']*'|[^\]"'])*)`

var (
	letPattern      = regexp2.MustCompile(`^let\s+(`+ident+`)\s*=\s*(.+)$`, regexp2.None)
	assignPattern   = regexp2.MustCompile(`^(`+ident+`)(\[)`+bracket+`\]\s*=\s*(.+)$`, regexp2.None)
	deletePattern   = regexp2.MustCompile(`^delete\s+(`+ident+`)(\[)`+bracket+`\]$`, regexp2.None)
	unaryPattern    = regexp2.MustCompile(`^(freeze|detach|print|dump)\s+(.+)$`, regexp2.None)
	setProtoPattern = regexp2.MustCompile(`^setproto\s+(`+ident+`)\s+(.+)$`, regexp2.None)
	repeatPattern   = regexp2.MustCompile(`^repeat\s+(\d+)\s+(.+)$`, regexp2.None)

	identPattern  = regexp2.MustCompile(`^`+ident+`$`, regexp2.None)
	callPattern   = regexp2.MustCompile(`^(`+ident+`)\((.*)\)$`, regexp2.None)
	bigIntPattern = regexp2.MustCompile(`^(-?\d+)n$`, regexp2.None)
	numberPattern = regexp2.MustCompile(`^-?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?$`, regexp2.None)
)

var unaryKinds = map[string]stmtKind{
	"freeze": stmtFreeze,
	"detach": stmtDetach,
	"print":  stmtPrint,
	"dump":   stmtDump,
}

var reserved = map[string]bool{
	"let": true, "delete": true, "strict": true, "sloppy": true, "freeze": true,
	"detach": true, "print": true, "dump": true, "stats": true, "setproto": true,
	"repeat": true, "undefined": true, "null": true, "true": true, "false": true,
	"NaN": true, "Infinity": true,
}

func match(re *regexp2.Regexp, s string) *regexp2.Match {
	m, err := re.FindStringMatch(s)
	if err != nil {
		return nil
	}
	return m
}

func group(m *regexp2.Match, n int) string { return m.GroupByNumber(n).String() }

// parser turns script source into statements. declared tracks the names a
// statement may reference, seeded with the session's variables.
type parser struct {
	file     string
	declared map[string]bool
	errs     []errors.ScriptError
}

func newParser(file string, vars map[string]vm.Value) *parser {
	p := &parser{file: file, declared: make(map[string]bool, len(vars))}
	for name := range vars {
		p.declared[name] = true
	}
	return p
}

func (p *parser) parse(source string) []*statement {
	var stmts []*statement
	for i, raw := range strings.Split(source, "\n") {
		text := strings.TrimRight(raw, "\r\t ")
		trimmed := strings.TrimLeft(text, "\t ")
		if trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		col := len(text) - len(trimmed) + 1
		st, err := p.statement(trimmed, i+1, col)
		if err != nil {
			p.errs = append(p.errs, err)
			continue
		}
		stmts = append(stmts, st)
	}
	return stmts
}

func (p *parser) pos(line, col int) errors.Position {
	return errors.Position{Line: line, Column: col, File: p.file}
}

func (p *parser) statement(src string, line, col int) (*statement, errors.ScriptError) {
	st := &statement{line: line, pos: p.pos(line, col)}
	var err errors.ScriptError

	switch src {
	case "strict":
		st.kind = stmtStrict
		return st, nil
	case "sloppy":
		st.kind = stmtSloppy
		return st, nil
	case "stats":
		st.kind = stmtStats
		return st, nil
	}

	if m := match(letPattern, src); m != nil {
		st.kind = stmtLet
		st.name = group(m, 1)
		if reserved[st.name] {
			return nil, errors.NewSyntaxError(st.pos, "unexpected keyword '%s'", st.name)
		}
		if st.value, err = p.expr(group(m, 2), st.pos); err != nil {
			return nil, err
		}
		p.declared[st.name] = true
		return st, nil
	}
	if m := match(repeatPattern, src); m != nil {
		st.kind = stmtRepeat
		n, convErr := strconv.Atoi(group(m, 1))
		if convErr != nil {
			return nil, errors.NewSyntaxError(st.pos, "invalid repeat count %s", group(m, 1))
		}
		st.count = n
		fresh := !p.declared["i"]
		p.declared["i"] = true
		body, bodyErr := p.statement(group(m, 2), line, col+m.GroupByNumber(2).Index)
		if bodyErr != nil {
			if fresh {
				delete(p.declared, "i")
			}
			return nil, bodyErr
		}
		if body.kind == stmtLet && body.name == "i" {
			return nil, errors.NewSyntaxError(body.pos, "cannot redeclare the repeat counter 'i'")
		}
		st.body = body
		return st, nil
	}
	if m := match(deletePattern, src); m != nil {
		st.kind = stmtDelete
		st.pos.Column = col + m.GroupByNumber(2).Index
		if st.name, err = p.variable(group(m, 1), st.pos); err != nil {
			return nil, err
		}
		if st.index, err = p.expr(group(m, 3), st.pos); err != nil {
			return nil, err
		}
		return st, nil
	}
	if m := match(setProtoPattern, src); m != nil {
		st.kind = stmtSetProto
		if st.name, err = p.variable(group(m, 1), st.pos); err != nil {
			return nil, err
		}
		if st.value, err = p.expr(group(m, 2), st.pos); err != nil {
			return nil, err
		}
		return st, nil
	}
	if m := match(unaryPattern, src); m != nil {
		st.kind = unaryKinds[group(m, 1)]
		if st.value, err = p.expr(group(m, 2), st.pos); err != nil {
			return nil, err
		}
		return st, nil
	}
	if m := match(assignPattern, src); m != nil {
		st.kind = stmtAssign
		st.pos.Column = col + m.GroupByNumber(2).Index
		if st.name, err = p.variable(group(m, 1), st.pos); err != nil {
			return nil, err
		}
		if st.index, err = p.expr(group(m, 3), st.pos); err != nil {
			return nil, err
		}
		if st.value, err = p.expr(group(m, 4), st.pos); err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, errors.NewSyntaxError(st.pos, "unrecognized statement %q", src)
}

func (p *parser) variable(name string, pos errors.Position) (string, errors.ScriptError) {
	if !p.declared[name] {
		return "", errors.NewSyntaxError(pos, "%s is not defined", name)
	}
	return name, nil
}

func constant(v vm.Value) expr {
	return func(*Session) (vm.Value, error) { return v, nil }
}

func (p *parser) expr(src string, pos errors.Position) (expr, errors.ScriptError) {
	src = strings.TrimSpace(src)
	switch src {
	case "":
		return nil, errors.NewSyntaxError(pos, "expected expression")
	case "undefined":
		return constant(vm.Undefined), nil
	case "null":
		return constant(vm.Null), nil
	case "true":
		return constant(vm.BooleanValue(true)), nil
	case "false":
		return constant(vm.BooleanValue(false)), nil
	case "NaN":
		return constant(vm.NumberValue(math.NaN())), nil
	case "Infinity":
		return constant(vm.NumberValue(math.Inf(1))), nil
	case "-Infinity":
		return constant(vm.NumberValue(math.Inf(-1))), nil
	case "{}":
		return func(s *Session) (vm.Value, error) { return s.realm.NewObject(), nil }, nil
	}

	if str, ok, err := p.stringLiteral(src, pos); err != nil {
		return nil, err
	} else if ok {
		return constant(vm.NewString(str)), nil
	}
	if m := match(bigIntPattern, src); m != nil {
		n, _ := new(big.Int).SetString(group(m, 1), 10)
		return constant(vm.NewBigInt(n)), nil
	}
	if match(numberPattern, src) != nil {
		f, err := strconv.ParseFloat(src, 64)
		if err != nil {
			return nil, errors.NewSyntaxError(pos, "invalid number %s", src)
		}
		return constant(vm.Number(f)), nil
	}
	if strings.HasPrefix(src, "[") && strings.HasSuffix(src, "]") {
		return p.arrayLiteral(src[1:len(src)-1], pos)
	}
	if m := match(callPattern, src); m != nil {
		return p.construct(group(m, 1), group(m, 2), pos)
	}
	if match(identPattern, src) != nil {
		name, err := p.variable(src, pos)
		if err != nil {
			return nil, err
		}
		return func(s *Session) (vm.Value, error) { return s.vars[name], nil }, nil
	}
	return nil, errors.NewSyntaxError(pos, "unexpected expression %q", src)
}

func (p *parser) stringLiteral(src string, pos errors.Position) (string, bool, errors.ScriptError) {
	if len(src) < 2 {
		return "", false, nil
	}
	switch {
	case src[0] == '"' && src[len(src)-1] == '"':
		s, err := strconv.Unquote(src)
		if err != nil {
			return "", false, errors.NewSyntaxError(pos, "invalid string literal %s", src)
		}
		return s, true, nil
	case src[0] == '\'' && src[len(src)-1] == '\'':
		return src[1 : len(src)-1], true, nil
	}
	return "", false, nil
}

func (p *parser) arrayLiteral(body string, pos errors.Position) (expr, errors.ScriptError) {
	parts := splitTopLevel(body)
	elems := make([]expr, 0, len(parts))
	for _, part := range parts {
		e, err := p.expr(part, pos)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	return func(s *Session) (vm.Value, error) {
		values := make([]vm.Value, len(elems))
		for i, e := range elems {
			v, err := e(s)
			if err != nil {
				return vm.Undefined, err
			}
			values[i] = v
		}
		return s.realm.NewArrayFromValues(values...), nil
	}, nil
}

// splitTopLevel splits a comma separated list, ignoring commas nested in
// brackets, parentheses or string literals.
func splitTopLevel(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var parts []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '(' || c == '{':
			depth++
		case c == ']' || c == ')' || c == '}':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func (p *parser) construct(name, arg string, pos errors.Position) (expr, errors.ScriptError) {
	if name == "Symbol" {
		desc := strings.TrimSpace(arg)
		if str, ok, err := p.stringLiteral(desc, pos); err != nil {
			return nil, err
		} else if ok {
			desc = str
		}
		return func(*Session) (vm.Value, error) { return vm.NewSymbol(desc), nil }, nil
	}

	argExpr, err := p.expr(arg, pos)
	if err != nil {
		return nil, err
	}
	switch name {
	case "Array":
		return func(s *Session) (vm.Value, error) {
			n, err := s.length(argExpr, "array")
			if err != nil {
				return vm.Undefined, err
			}
			return s.realm.NewArrayWithLength(int64(n)), nil
		}, nil
	case "ArrayBuffer", "SharedArrayBuffer":
		shared := name == "SharedArrayBuffer"
		return func(s *Session) (vm.Value, error) {
			n, err := s.length(argExpr, "array buffer")
			if err != nil {
				return vm.Undefined, err
			}
			if shared {
				return s.realm.NewSharedArrayBuffer(n)
			}
			return s.realm.NewArrayBuffer(n)
		}, nil
	}
	kind, ok := vm.TypedArrayKindByName(name)
	if !ok {
		return nil, errors.NewSyntaxError(pos, "%s is not a constructor", name)
	}
	return func(s *Session) (vm.Value, error) {
		v, err := argExpr(s)
		if err != nil {
			return vm.Undefined, err
		}
		if v.AsArrayBuffer() != nil || v.AsSharedArrayBuffer() != nil {
			return s.realm.NewTypedArrayOnBuffer(kind, v, 0, -1)
		}
		n, err := s.length(constant(v), "typed array")
		if err != nil {
			return vm.Undefined, err
		}
		return s.realm.NewTypedArray(kind, n)
	}, nil
}
