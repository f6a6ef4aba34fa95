package dataverse

import "fmt"

// Source is anything whose value can be pulled, tracked and subscribed to.
// It is implemented by *Box and *Derived only.
type Source[T any] interface {
	// Value returns the current value, evaluating stale derivations first.
	Value() (T, error)

	// Changes returns the change emitter of this source bound to c.
	Changes(c *Context) *Emitter[T]

	read(s *Scope) (T, error)
	graphNode() *node
}

// Derived is a lazy, memoized, dependency-tracked value.
//
// A Derived computes its value on first read and caches it. The cache is
// reused until a dependency observed during the last evaluation changes.
// Dependencies are rebuilt from scratch on every evaluation, so a derivation
// that reads different sources depending on its inputs is wired correctly.
type Derived[T any] struct {
	n       *node
	value   T
	has     bool
	compute func(s *Scope) (T, error)
	equal   func(a, b T) bool
}

func newDerived[T any](kind Kind, compute func(s *Scope) (T, error)) *Derived[T] {
	d := &Derived[T]{compute: compute}
	d.n = newNode(kind, "")
	d.n.eval = d
	return d
}

// Value returns the derivation's value, recomputing it if necessary.
// Pulls are always current: mutations made since the last tick are visible.
func (d *Derived[T]) Value() (T, error) {
	return d.read(newScope(nil))
}

func (d *Derived[T]) read(s *Scope) (T, error) {
	err := d.n.refresh(s)
	s.record(d.n)
	if err != nil {
		var zero T
		return zero, err
	}
	return d.value, nil
}

func (d *Derived[T]) readAny(s *Scope) (any, error) {
	return d.read(s)
}

func (d *Derived[T]) graphNode() *node {
	return d.n
}

// Changes returns the change emitter of this derivation bound to c.
func (d *Derived[T]) Changes(c *Context) *Emitter[T] {
	return &Emitter[T]{ctx: c, n: d.n}
}

// Named sets the label used for this derivation in errors, logs and traces.
func (d *Derived[T]) Named(label string) *Derived[T] {
	d.n.label = label
	return d
}

// WithEquals configures the equality used for the change cutoff. When a
// recomputed value is equal to the cached one, dependents are not
// re-evaluated and subscribers are not notified.
func (d *Derived[T]) WithEquals(fn func(a, b T) bool) *Derived[T] {
	d.equal = fn
	return d
}

// State returns the validity state of the cached value.
func (d *Derived[T]) State() State {
	return d.n.observedState()
}

// Kind returns the variant of this derivation.
func (d *Derived[T]) Kind() Kind {
	return d.n.kind
}

// ID returns the unique identifier of this derivation.
func (d *Derived[T]) ID() uint64 {
	return d.n.id
}

// Name returns the label of this derivation.
func (d *Derived[T]) Name() string {
	return d.n.name()
}

func (d *Derived[T]) evaluate(s *Scope) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			changed = false
			err = &EvaluationError{Node: d.n.name(), Kind: d.n.kind, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	v, err := d.compute(s)
	if err != nil {
		return false, wrapEvaluation(d.n, err)
	}
	if d.has && d.equals(d.value, v) {
		return false, nil
	}
	d.value, d.has = v, true
	return true, nil
}

func (d *Derived[T]) snapshot() any {
	return d.value
}

func (d *Derived[T]) same(v any) bool {
	tv, ok := v.(T)
	if !ok {
		return false
	}
	return d.has && d.equals(d.value, tv)
}

func (d *Derived[T]) equals(a, b T) bool {
	if d.equal != nil {
		return d.equal(a, b)
	}
	return defaultEquals(a, b)
}

// Constant returns a derivation with no dependencies that never turns dirty.
func Constant[T any](v T) *Derived[T] {
	d := newDerived(KindConstant, func(*Scope) (T, error) { return v, nil })
	d.value, d.has = v, true
	d.n.state = StateClean
	d.n.version = 1
	return d
}

// Map returns a derivation whose value is fn applied to the value of src.
//
// Example:
//
//	count := dataverse.NewBox(2)
//	doubled := dataverse.Map(count, func(n int) (int, error) { return n * 2, nil })
func Map[T, U any](src Source[T], fn func(T) (U, error)) *Derived[U] {
	return newDerived(KindMap, func(s *Scope) (U, error) {
		v, err := src.read(s)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v)
	})
}

// FlatMap returns a derivation that selects another source from the value
// of src and takes that source's value.
//
// The dependency set of each evaluation is src plus the currently selected
// source. When a later evaluation selects a different source, the previous
// one stops being a dependency. Plain values can be returned with Constant.
func FlatMap[T, U any](src Source[T], fn func(T) (Source[U], error)) *Derived[U] {
	return newDerived(KindFlatMap, func(s *Scope) (U, error) {
		var zero U
		v, err := src.read(s)
		if err != nil {
			return zero, err
		}
		inner, err := fn(v)
		if err != nil {
			return zero, err
		}
		if inner == nil {
			return zero, ErrNilSource
		}
		return inner.read(s)
	})
}

// AutoDerive returns a derivation computed by fn. Every source fn reads
// through Read becomes a dependency, and the whole block reruns when any of
// them changes.
func AutoDerive[T any](fn func(s *Scope) (T, error)) *Derived[T] {
	return newDerived(KindAutoDerive, fn)
}
