package dataverse

import "sort"

// Dict is an atom holding a mapping from string keys to values.
//
// Keys iterate in insertion order; the initial mapping is inserted in
// sorted key order. Values may themselves be atoms, which pointers resolve
// through.
type Dict[V any] struct {
	whole  *node
	shape  *node
	slots  map[string]*node
	values map[string]V
	order  []string
}

// NewDict creates a dict holding a copy of initial.
func NewDict[V any](initial map[string]V) *Dict[V] {
	d := &Dict[V]{
		whole:  newNode(KindDict, ""),
		shape:  newNode(KindSlot, "shape"),
		slots:  make(map[string]*node, len(initial)),
		values: make(map[string]V, len(initial)),
		order:  make([]string, 0, len(initial)),
	}
	keys := make([]string, 0, len(initial))
	for k := range initial {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.values[k] = initial[k]
		d.slots[k] = newNode(KindSlot, k)
		d.order = append(d.order, k)
	}
	return d
}

// Get returns the value stored under key without recording a dependency.
func (d *Dict[V]) Get(key string) (V, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (d *Dict[V]) Keys() []string {
	keys := make([]string, len(d.order))
	copy(keys, d.order)
	return keys
}

// Len returns the number of keys.
func (d *Dict[V]) Len() int {
	return len(d.values)
}

// SetProp stores v under key, creating the key if it is absent.
func (d *Dict[V]) SetProp(key string, v V) {
	slot, ok := d.slots[key]
	if !ok {
		slot = newNode(KindSlot, key)
		d.slots[key] = slot
	}
	_, exists := d.values[key]
	d.values[key] = v
	if !exists {
		d.order = append(d.order, key)
		d.shape.touch()
	}
	slot.touch()
	d.whole.touch()
}

// DeleteProp removes key, reporting whether it was present.
func (d *Dict[V]) DeleteProp(key string) bool {
	if _, ok := d.values[key]; !ok {
		return false
	}
	delete(d.values, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.slots[key].touch()
	d.shape.touch()
	d.whole.touch()
	return true
}

// Prop returns a pointer to the value under key.
func (d *Dict[V]) Prop(key string) Pointer {
	return d.Pointer().Prop(key)
}

// Pointer returns a pointer rooted at this dict.
func (d *Dict[V]) Pointer() Pointer {
	return newPointer(d)
}

// Derivation returns a derivation of a snapshot of the whole mapping. It
// changes on every mutation of the dict.
func (d *Dict[V]) Derivation() *Derived[map[string]V] {
	return newDerived(KindWrap, func(s *Scope) (map[string]V, error) {
		s.record(d.whole)
		out := make(map[string]V, len(d.values))
		for k, v := range d.values {
			out[k] = v
		}
		return out, nil
	})
}

// KeysDerivation returns a derivation of the keys in insertion order. It
// only changes when keys are added or removed.
func (d *Dict[V]) KeysDerivation() *Derived[[]string] {
	return newDerived(KindWrap, func(s *Scope) ([]string, error) {
		s.record(d.shape)
		return d.Keys(), nil
	})
}

func (d *Dict[V]) lookup(s *Scope, seg Segment) (any, bool) {
	if seg.IsIndex {
		return nil, false
	}
	v, ok := d.values[seg.Key]
	if !ok {
		s.record(d.shape)
		return nil, false
	}
	s.record(d.slots[seg.Key])
	return v, true
}
