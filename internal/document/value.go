package document

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind tells which variant a Value holds. It is decided once, when the
// document is parsed, and never probed again.
type Kind uint8

const (
	KindScalar Kind = iota
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is one node of a configuration document.
//
// Scalars hold nil, bool, float64 or string. Sequences and mappings share
// their backing storage when a Value is copied; use Clone for an
// independent tree.
type Value struct {
	kind   Kind
	scalar any
	items  []Value
	fields map[string]Value
}

func Null() Value { return Value{kind: KindScalar} }
func Bool(b bool) Value { return Value{kind: KindScalar, scalar: b} }
func Number(f float64) Value { return Value{kind: KindScalar, scalar: f} }
func String(s string) Value { return Value{kind: KindScalar, scalar: s} }
func Sequence(items ...Value) Value {
	return Value{kind: KindSequence, items: append([]Value(nil), items...)}
}

// NewMapping returns an empty mapping ready for Set.
func NewMapping() Value {
	return Value{kind: KindMapping, fields: make(map[string]Value)}
}

// Mapping builds a mapping from fields. The map is copied.
func Mapping(fields map[string]Value) Value {
	m := NewMapping()
	for k, v := range fields {
		m.fields[k] = v
	}
	return m
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsMapping() bool { return v.kind == KindMapping }
func (v Value) IsSequence() bool { return v.kind == KindSequence }
func (v Value) IsNull() bool { return v.kind == KindScalar && v.scalar == nil }
func (v Value) Scalar() any { return v.scalar }
func (v Value) Items() []Value { return v.items }

// Len is the number of items or fields; zero for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.items)
	case KindMapping:
		return len(v.fields)
	}
	return 0
}

// Get returns the field stored under key. ok is false for missing keys and
// for non-mapping values.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	f, ok := v.fields[key]
	return f, ok
}

// Has reports whether key is present and not null.
func (v Value) Has(key string) bool {
	f, ok := v.Get(key)
	return ok && !f.IsNull()
}

// Set stores a field. It panics on a non-mapping value.
func (v Value) Set(key string, f Value) {
	if v.kind != KindMapping || v.fields == nil {
		panic(fmt.Sprintf("document: Set on %s value", v.kind))
	}
	v.fields[key] = f
}

func (v Value) Delete(key string) {
	if v.kind == KindMapping {
		delete(v.fields, key)
	}
}

// Keys returns the mapping keys in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindMapping {
		return nil
	}
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Value) AsString() (string, bool) {
	s, ok := v.scalar.(string)
	return s, ok && v.kind == KindScalar
}

func (v Value) AsBool() (bool, bool) {
	b, ok := v.scalar.(bool)
	return b, ok && v.kind == KindScalar
}

// AsFloat accepts numbers and numeric strings.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindScalar {
		return 0, false
	}
	switch s := v.scalar.(type) {
	case float64:
		return s, true
	case string:
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// AsInt accepts integral numbers and decimal or 0x-prefixed strings.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindScalar {
		return 0, false
	}
	switch s := v.scalar.(type) {
	case float64:
		if s != math.Trunc(s) || math.IsInf(s, 0) {
			return 0, false
		}
		return int64(s), true
	case string:
		i, err := strconv.ParseInt(s, 0, 64)
		return i, err == nil
	}
	return 0, false
}

// String renders scalars the way they appear in a document.
func (v Value) String() string {
	switch v.kind {
	case KindSequence:
		return fmt.Sprintf("sequence(%d)", len(v.items))
	case KindMapping:
		return fmt.Sprintf("mapping(%d)", len(v.fields))
	}
	switch s := v.scalar.(type) {
	case nil:
		return "null"
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

// pending is one unit of work for the tree walkers below: a source node and
// the slot its converted form goes into.
type pending[S, D any] struct {
	src S
	set func(D)
}

// Clone returns a deep copy that shares no storage with v.
func (v Value) Clone() Value {
	var root Value
	work := []pending[Value, Value]{{src: v, set: func(c Value) { root = c }}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		switch p.src.kind {
		case KindMapping:
			fields := make(map[string]Value, len(p.src.fields))
			p.set(Value{kind: KindMapping, fields: fields})
			for k, child := range p.src.fields {
				work = append(work, pending[Value, Value]{src: child, set: func(c Value) { fields[k] = c }})
			}
		case KindSequence:
			items := make([]Value, len(p.src.items))
			p.set(Value{kind: KindSequence, items: items})
			for i, child := range p.src.items {
				work = append(work, pending[Value, Value]{src: child, set: func(c Value) { items[i] = c }})
			}
		default:
			p.set(p.src)
		}
	}
	return root
}

// FromInterface converts the output of encoding/json (or any tree of
// map[string]any, []any and scalars) into a Value.
func FromInterface(src any) Value {
	var root Value
	work := []pending[any, Value]{{src: src, set: func(c Value) { root = c }}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		switch s := p.src.(type) {
		case map[string]any:
			fields := make(map[string]Value, len(s))
			p.set(Value{kind: KindMapping, fields: fields})
			for k, child := range s {
				work = append(work, pending[any, Value]{src: child, set: func(c Value) { fields[k] = c }})
			}
		case []any:
			items := make([]Value, len(s))
			p.set(Value{kind: KindSequence, items: items})
			for i, child := range s {
				work = append(work, pending[any, Value]{src: child, set: func(c Value) { items[i] = c }})
			}
		default:
			p.set(scalarOf(s))
		}
	}
	return root
}

// Interface converts v back into plain Go values, the shape the schema
// validator and encoding/json expect.
func (v Value) Interface() any {
	var root any
	work := []pending[Value, any]{{src: v, set: func(c any) { root = c }}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		switch p.src.kind {
		case KindMapping:
			fields := make(map[string]any, len(p.src.fields))
			p.set(fields)
			for k, child := range p.src.fields {
				work = append(work, pending[Value, any]{src: child, set: func(c any) { fields[k] = c }})
			}
		case KindSequence:
			items := make([]any, len(p.src.items))
			p.set(items)
			for i, child := range p.src.items {
				work = append(work, pending[Value, any]{src: child, set: func(c any) { items[i] = c }})
			}
		default:
			p.set(p.src.scalar)
		}
	}
	return root
}

// MarshalJSON encodes the document with sorted keys.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Equal reports whether a and b hold the same tree.
func Equal(a, b Value) bool {
	type pair struct{ a, b Value }
	work := []pair{{a, b}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		if p.a.kind != p.b.kind {
			return false
		}
		switch p.a.kind {
		case KindMapping:
			if len(p.a.fields) != len(p.b.fields) {
				return false
			}
			for k, av := range p.a.fields {
				bv, ok := p.b.fields[k]
				if !ok {
					return false
				}
				work = append(work, pair{av, bv})
			}
		case KindSequence:
			if len(p.a.items) != len(p.b.items) {
				return false
			}
			for i := range p.a.items {
				work = append(work, pair{p.a.items[i], p.b.items[i]})
			}
		default:
			if p.a.scalar != p.b.scalar {
				return false
			}
		}
	}
	return true
}

func scalarOf(s any) Value {
	switch x := s.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case string:
		return String(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return Number(f)
		}
		return String(x.String())
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	default:
		return String(fmt.Sprint(x))
	}
}
