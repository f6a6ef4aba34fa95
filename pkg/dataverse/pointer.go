package dataverse

import (
	"reflect"
	"strconv"
	"strings"
)

// absentValue is the type of Absent.
type absentValue struct{}

func (absentValue) String() string { return "<absent>" }

// Absent is the value a pointer derivation resolves to when its path runs
// through a missing key or index.
var Absent any = absentValue{}

// IsAbsent reports whether v is Absent.
func IsAbsent(v any) bool {
	_, ok := v.(absentValue)
	return ok
}

// Segment is one step of a pointer path: a key or an index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// String formats the segment the way it appears in a path.
func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return "." + s.Key
}

// container is implemented by atoms a path can step into.
type container interface {
	lookup(s *Scope, seg Segment) (any, bool)
}

// anySource is implemented by sources a path reads through.
type anySource interface {
	readAny(s *Scope) (any, error)
}

// Pointer is an immutable path into an atom graph: a root plus an ordered
// list of segments. Composing pointers never touches the graph; resolution
// happens only when the derivation returned by Derivation is read.
type Pointer struct {
	root any
	path []Segment
}

func newPointer(root any) Pointer {
	return Pointer{root: root}
}

// Prop returns a pointer one key deeper.
func (p Pointer) Prop(key string) Pointer {
	return p.with(Segment{Key: key})
}

// Index returns a pointer one index deeper.
func (p Pointer) Index(i int) Pointer {
	return p.with(Segment{Index: i, IsIndex: true})
}

func (p Pointer) with(seg Segment) Pointer {
	path := make([]Segment, len(p.path), len(p.path)+1)
	copy(path, p.path)
	return Pointer{root: p.root, path: append(path, seg)}
}

// Path returns a copy of the segments.
func (p Pointer) Path() []Segment {
	out := make([]Segment, len(p.path))
	copy(out, p.path)
	return out
}

// String formats the pointer as "$" followed by its segments, e.g. "$.a[0].b".
func (p Pointer) String() string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range p.path {
		b.WriteString(seg.String())
	}
	return b.String()
}

// Derivation returns a derivation of the value at this path.
//
// Every evaluation walks the path from the root again, reading each
// intermediate container through the tracking scope. Replacing a container
// along the path therefore re-resolves the remaining segments. A missing key
// or out-of-range index resolves to Absent.
func (p Pointer) Derivation() *Derived[any] {
	return newDerived(KindPointer, p.resolve).Named(p.String())
}

// Lookup resolves the path once, failing with ErrUnresolvedPath when it
// runs through a missing key or index.
func (p Pointer) Lookup() (any, error) {
	v, err := p.Derivation().Value()
	if err != nil {
		return nil, err
	}
	if IsAbsent(v) {
		return nil, &PathError{Path: p.String()}
	}
	return v, nil
}

func (p Pointer) resolve(s *Scope) (any, error) {
	cur, err := unwrap(s, p.root)
	if err != nil {
		return nil, err
	}
	for _, seg := range p.path {
		next, ok := step(s, cur, seg)
		if !ok {
			return Absent, nil
		}
		if cur, err = unwrap(s, next); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// unwrap reads through boxes and derivations until it reaches a plain value
// or a container atom.
func unwrap(s *Scope, v any) (any, error) {
	for {
		src, ok := v.(anySource)
		if !ok {
			return v, nil
		}
		next, err := src.readAny(s)
		if err != nil {
			return nil, err
		}
		v = next
	}
}

// step resolves one segment against cur. Atoms are read through the scope;
// plain maps and slices held inside an atom are indexed directly.
func step(s *Scope, cur any, seg Segment) (any, bool) {
	switch c := cur.(type) {
	case container:
		return c.lookup(s, seg)
	case map[string]any:
		if seg.IsIndex {
			return nil, false
		}
		v, ok := c[seg.Key]
		return v, ok
	case []any:
		if !seg.IsIndex || seg.Index < 0 || seg.Index >= len(c) {
			return nil, false
		}
		return c[seg.Index], true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(cur)
	switch rv.Kind() {
	case reflect.Map:
		if seg.IsIndex || rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(seg.Key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		if !seg.IsIndex || seg.Index < 0 || seg.Index >= rv.Len() {
			return nil, false
		}
		return rv.Index(seg.Index).Interface(), true
	default:
		return nil, false
	}
}
