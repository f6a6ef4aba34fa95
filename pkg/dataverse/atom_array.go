package dataverse

// Array is an atom holding an ordered sequence of values.
//
// Each index has its own tracking slot, so a derivation reading index i is
// only invalidated by mutations that touch position i or, when it read past
// the end, by length changes.
type Array[T any] struct {
	whole   *node
	length  *node
	slots   []*node
	items   []T
	derived *DerivedArray[T]
}

// NewArray creates an array holding a copy of initial.
func NewArray[T any](initial []T) *Array[T] {
	a := &Array[T]{
		whole:  newNode(KindArray, ""),
		length: newNode(KindSlot, "length"),
		items:  make([]T, len(initial)),
		slots:  make([]*node, len(initial)),
	}
	copy(a.items, initial)
	for i := range a.slots {
		a.slots[i] = newNode(KindSlot, "")
	}
	return a
}

// Len returns the current length without recording a dependency.
func (a *Array[T]) Len() int {
	return len(a.items)
}

// Index returns the value at i without recording a dependency.
func (a *Array[T]) Index(i int) (T, error) {
	if i < 0 || i >= len(a.items) {
		var zero T
		return zero, &RangeError{Op: "index", Index: i, Len: len(a.items)}
	}
	return a.items[i], nil
}

// Items returns a copy of the current sequence.
func (a *Array[T]) Items() []T {
	out := make([]T, len(a.items))
	copy(out, a.items)
	return out
}

// SetIndex replaces the value at i.
func (a *Array[T]) SetIndex(i int, v T) error {
	if i < 0 || i >= len(a.items) {
		return &RangeError{Op: "setIndex", Index: i, Len: len(a.items)}
	}
	a.items[i] = v
	a.slots[i].touch()
	a.whole.touch()
	return nil
}

// Push appends items to the end of the array.
func (a *Array[T]) Push(items ...T) {
	if len(items) == 0 {
		return
	}
	a.items = append(a.items, items...)
	for range items {
		a.slots = append(a.slots, newNode(KindSlot, ""))
	}
	a.length.touch()
	a.whole.touch()
}

// Splice removes deleteCount values starting at start and inserts items in
// their place, returning the removed values. start may equal the length, in
// which case nothing is removed; deleteCount is clamped to the values
// available.
func (a *Array[T]) Splice(start, deleteCount int, items ...T) ([]T, error) {
	n := len(a.items)
	if start < 0 || start > n {
		return nil, &RangeError{Op: "splice", Index: start, Len: n}
	}
	if deleteCount < 0 {
		return nil, &RangeError{Op: "splice", Index: deleteCount, Len: n}
	}
	if deleteCount > n-start {
		deleteCount = n - start
	}
	if deleteCount == 0 && len(items) == 0 {
		return nil, nil
	}

	removed := make([]T, deleteCount)
	copy(removed, a.items[start:start+deleteCount])

	next := make([]T, 0, n-deleteCount+len(items))
	next = append(next, a.items[:start]...)
	next = append(next, items...)
	next = append(next, a.items[start+deleteCount:]...)
	a.items = next

	// Every position from start on may now hold a different value.
	newLen := len(next)
	for i := start; i < n && i < newLen; i++ {
		a.slots[i].touch()
	}
	for i := newLen; i < n; i++ {
		a.slots[i].touch()
	}
	if newLen < n {
		a.slots = a.slots[:newLen]
	}
	for i := n; i < newLen; i++ {
		a.slots = append(a.slots, newNode(KindSlot, ""))
	}
	if newLen != n {
		a.length.touch()
	}
	a.whole.touch()
	return removed, nil
}

// Pointer returns a pointer rooted at this array.
func (a *Array[T]) Pointer() Pointer {
	return newPointer(a)
}

// Derivation returns a derivation of a snapshot of the whole sequence. It
// changes on every mutation of the array.
func (a *Array[T]) Derivation() *Derived[[]T] {
	return newDerived(KindWrap, func(s *Scope) ([]T, error) {
		s.record(a.whole)
		return a.Items(), nil
	})
}

// Derived returns the element-wise derived view of this array. The view is
// created once and shared, so element derivations are memoized per index.
func (a *Array[T]) Derived() *DerivedArray[T] {
	if a.derived == nil {
		a.derived = newDerivedArray(
			newDerived(KindElement, func(s *Scope) (int, error) {
				return a.readLen(s), nil
			}),
			func(i int) *Derived[T] {
				return newDerived(KindElement, func(s *Scope) (T, error) {
					v, ok := a.readAt(s, i)
					if !ok {
						return v, &RangeError{Op: "index", Index: i, Len: len(a.items)}
					}
					return v, nil
				})
			},
		)
	}
	return a.derived
}

func (a *Array[T]) readLen(s *Scope) int {
	s.record(a.length)
	return len(a.items)
}

// readAt reads index i, depending on the slot when i is in range and on the
// length otherwise.
func (a *Array[T]) readAt(s *Scope, i int) (T, bool) {
	if i < 0 || i >= len(a.items) {
		s.record(a.length)
		var zero T
		return zero, false
	}
	s.record(a.slots[i])
	return a.items[i], true
}

func (a *Array[T]) lookup(s *Scope, seg Segment) (any, bool) {
	if !seg.IsIndex {
		return nil, false
	}
	return a.readAt(s, seg.Index)
}
