package vm

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"unicode/utf16"

	"elemwrite/pkg/errors"
	"elemwrite/pkg/ic"
)

const debugWriteElement = false

// CallSite is one element write location. It owns the caches that let
// repeated writes at the same location skip the generic algorithm: the
// index shape, the receiver category chain, the array-type cache and the
// array write chains. A CallSite is safe for concurrent use.
type CallSite struct {
	realm    *Realm
	pos      errors.Position
	strict   bool
	writeOwn bool

	indexState atomic.Uint32

	targets    *ic.Chain[Value, targetHandler]
	arrayTypes *ic.BoundedCache[ObjectClass, bool]
	arrays     *ic.Chain[arrayKey, arrayWriter]
	retries    *ic.Chain[arrayKey, arrayWriter] // used only for the retry after a transition

	stats *ic.Stats
}

// SiteOption configures a call site.
type SiteOption func(*CallSite)

// WithStrict makes failed writes raise a TypeError instead of being
// dropped.
func WithStrict() SiteOption { return func(s *CallSite) { s.strict = true } }

// WithWriteOwn marks an initialising site, such as an array literal.
// Writes there never consult inherited elements.
func WithWriteOwn() SiteOption { return func(s *CallSite) { s.writeOwn = true } }

// NewCallSite creates an unspecialized call site at pos.
func (r *Realm) NewCallSite(pos errors.Position, opts ...SiteOption) *CallSite {
	s := &CallSite{
		realm: r,
		pos:   pos,
		stats: ic.NewStats(r.options.DetailedCacheStats),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.targets = ic.NewChain(specializeTarget, s.stats)
	s.targets.OnPolymorphic = func() { s.reportPolymorphic("receiver") }
	s.arrayTypes = ic.NewBoundedCache[ObjectClass, bool](r.options.MaxCachedArrayTypes, s.stats)
	s.arrays = ic.NewChain(selectArrayWriter, s.stats)
	s.arrays.OnPolymorphic = func() { s.reportPolymorphic("storage") }
	s.retries = ic.NewChain(selectArrayWriter, s.stats)
	return s
}

func (s *CallSite) reportPolymorphic(cache string) {
	s.realm.logger.Debug("write site became polymorphic", "site", s.pos.String(), "cache", cache)
}

func (s *CallSite) Pos() errors.Position { return s.pos }
func (s *CallSite) Strict() bool         { return s.strict }

// Stats returns a snapshot of every cache of the site.
func (s *CallSite) Stats() ic.Snapshot { return s.stats.Snapshot() }

// ReceiverHandlers names the receiver categories the site has specialized
// for, in dispatch order.
func (s *CallSite) ReceiverHandlers() []string {
	var out []string
	for _, h := range s.targets.Handlers() {
		out = append(out, h.name)
	}
	return out
}

// ArrayWriters names the storage strategies the site has specialized for,
// in dispatch order.
func (s *CallSite) ArrayWriters() []string {
	var out []string
	for _, w := range s.arrays.Handlers() {
		out = append(out, w.name)
	}
	return out
}

// ArrayTypeState reports the state of the array-type detection cache.
func (s *CallSite) ArrayTypeState() ic.CacheState { return s.arrayTypes.State() }

// WriteElement performs target[index] = value with target as the receiver.
func (s *CallSite) WriteElement(target, index, value Value) error {
	return s.WriteElementWithReceiver(target, index, value, target)
}

// WriteElementWithReceiver performs target[index] = value where setters
// and newly created properties see receiver instead of target.
func (s *CallSite) WriteElementWithReceiver(target, index, value, receiver Value) error {
	value = normalizeElement(value)
	idx, err := s.normalizeIndex(target, index)
	if err != nil {
		return err
	}
	if debugWriteElement {
		fmt.Printf("[write] %s %s[%s] = %s\n", s.pos, target.TypeName(), idx, Inspect(value))
	}
	h := s.targets.Lookup(target)
	return h.write(s, target, idx, value, receiver)
}

// WriteElement writes through a throwaway call site. It is the entry point
// for writes without a stable program location.
func (r *Realm) WriteElement(target, index, value, receiver Value, strict bool) error {
	var opts []SiteOption
	if strict {
		opts = append(opts, WithStrict())
	}
	return r.NewCallSite(errors.Position{}, opts...).WriteElementWithReceiver(target, index, value, receiver)
}

// --- Receiver categories ---

type receiverCategory uint8

const (
	categoryObject receiverCategory = iota
	categoryString
	categoryBoolean
	categoryInteger
	categoryFloat
	categorySymbol
	categoryBigInt
	categoryForeign
	categoryHost
)

func categoryOf(v Value) receiverCategory {
	switch v.typ {
	case TypeString:
		return categoryString
	case TypeBoolean:
		return categoryBoolean
	case TypeIntegerNumber:
		return categoryInteger
	case TypeFloatNumber:
		return categoryFloat
	case TypeSymbol:
		return categorySymbol
	case TypeBigInt:
		return categoryBigInt
	case TypeForeign:
		return categoryForeign
	}
	if v.IsObject() {
		return categoryObject
	}
	return categoryHost
}

// targetHandler writes to one receiver category.
type targetHandler struct {
	name  string
	write func(s *CallSite, target Value, idx ElementIndex, value, receiver Value) error
}

// specializeTarget builds the receiver-category entry for target. Foreign
// and host receivers are guarded on their Go type, everything else on its
// category.
func specializeTarget(target Value) (ic.Guard[Value], targetHandler) {
	switch cat := categoryOf(target); cat {
	case categoryForeign:
		t := reflect.TypeOf(target.AsForeign())
		guard := func(v Value) bool { return v.typ == TypeForeign && reflect.TypeOf(v.AsForeign()) == t }
		return guard, targetHandler{name: fmt.Sprintf("Foreign(%v)", t), write: writeForeignTarget}
	case categoryHost:
		t := reflect.TypeOf(target.AsHost())
		return func(v Value) bool {
			return categoryOf(v) == categoryHost && reflect.TypeOf(v.AsHost()) == t
		}, hostHandler
	default:
		return func(v Value) bool { return categoryOf(v) == cat }, categoryHandlers[cat]
	}
}

var categoryHandlers = [...]targetHandler{
	categoryObject:  {name: "Object", write: (*CallSite).writeObject},
	categoryString:  {name: "String", write: (*CallSite).writeString},
	categoryBoolean: {name: "Boolean", write: (*CallSite).writeWrapped},
	categoryInteger: {name: "Integer", write: (*CallSite).writeWrapped},
	categoryFloat:   {name: "Number", write: (*CallSite).writeWrapped},
	categorySymbol:  {name: "Symbol", write: (*CallSite).writeSymbol},
	categoryBigInt:  {name: "BigInt", write: (*CallSite).writeWrapped},
	categoryHost:    hostHandler,
}

func writeForeignTarget(s *CallSite, target Value, idx ElementIndex, value, _ Value) error {
	return s.writeForeign(target, idx, value)
}

// hostHandler drops writes to receivers the engine cannot address.
var hostHandler = targetHandler{
	name: "Host",
	write: func(*CallSite, Value, ElementIndex, Value, Value) error {
		return nil
	},
}

func (s *CallSite) writeObject(target Value, idx ElementIndex, value, receiver Value) error {
	obj := target.AsHeapObject()
	if idx.isIndex && sameObject(target, receiver) && s.isArrayLike(obj.Class()) {
		handled, err := s.writeArrayLike(obj, idx.index, value)
		if err != nil {
			return s.locate(err)
		}
		if handled {
			return nil
		}
	}
	return s.setGeneric(obj, idx.PropertyKey(), value, receiver)
}

// isArrayLike answers through the bounded array-type cache. Once the
// cache is megamorphic every write classifies afresh.
func (s *CallSite) isArrayLike(class ObjectClass) bool {
	if ok, hit := s.arrayTypes.Lookup(class); hit {
		return ok
	}
	ok := class == ClassArray || class == ClassTypedArray
	s.arrayTypes.Update(class, ok)
	return ok
}

// writeArrayLike runs the storage-level write. handled is false when the
// generic algorithm must take over.
func (s *CallSite) writeArrayLike(obj HeapObject, index int64, value Value) (handled bool, err error) {
	switch o := obj.(type) {
	case *ArrayObject:
		c := &storeContext{realm: s.realm, site: s, writeOwn: s.writeOwn}
		o.elements.Lock()
		handled = c.dispatch(o, index, value)
		o.elements.Unlock()
		return handled, nil
	case *TypedArrayObject:
		key := arrayKey{target: o, storage: o.view}
		return s.arrays.Lookup(key).write(nil, o, o.view, index, value)
	}
	return false, nil
}

// writeString addresses a string receiver. Characters are read-only;
// any other key is written to a transient String wrapper.
func (s *CallSite) writeString(target Value, idx ElementIndex, value, receiver Value) error {
	str := target.AsString()
	if idx.isIndex && idx.index < int64(utf16Len(str)) {
		if s.strict {
			return errors.NewTypeError(s.pos, "Cannot assign to read only property '%d' of string '%s'", idx.index, str)
		}
		return nil
	}
	return s.writeWrapped(target, idx, value, receiver)
}

// writeWrapped writes to the wrapper object of a primitive receiver while
// setters still see the primitive.
func (s *CallSite) writeWrapped(target Value, idx ElementIndex, value, receiver Value) error {
	wrapper, err := s.realm.ToObject(target)
	if err != nil {
		return s.locate(err)
	}
	return s.setGeneric(wrapper, idx.PropertyKey(), value, receiver)
}

func (s *CallSite) writeSymbol(target Value, idx ElementIndex, _, _ Value) error {
	if s.strict {
		return errors.NewTypeError(s.pos, "Cannot create property '%s' on symbol", idx)
	}
	return nil
}

// setGeneric is the universal fallback: the ordinary [[Set]] algorithm.
func (s *CallSite) setGeneric(target HeapObject, key PropertyKey, value, receiver Value) error {
	return s.locate(SetWithReceiver(target, key, value, receiver, s.strict))
}

// locate stamps the site position on errors raised without one.
func (s *CallSite) locate(err error) error {
	if err == nil || s.pos.IsZero() {
		return err
	}
	var te *errors.TypeError
	var re *errors.RangeError
	var ie *errors.InteropError
	switch {
	case stderrors.As(err, &te):
		if te.Position.IsZero() {
			te.Position = s.pos
		}
	case stderrors.As(err, &re):
		if re.Position.IsZero() {
			re.Position = s.pos
		}
	case stderrors.As(err, &ie):
		if ie.Position.IsZero() {
			ie.Position = s.pos
		}
	}
	return err
}

func sameObject(a, b Value) bool {
	return a.IsObject() && a.typ == b.typ && a.obj == b.obj
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
