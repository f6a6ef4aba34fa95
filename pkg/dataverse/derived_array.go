package dataverse

// DerivedArray is an ordered sequence of derivations: a length derivation
// and one memoized element derivation per index. It is obtained from
// Array.Derived and transformed element-wise with MapArray.
type DerivedArray[T any] struct {
	length *Derived[int]
	build  func(i int) *Derived[T]
	elems  map[int]*Derived[T]
}

func newDerivedArray[T any](length *Derived[int], build func(i int) *Derived[T]) *DerivedArray[T] {
	return &DerivedArray[T]{
		length: length,
		build:  build,
		elems:  make(map[int]*Derived[T]),
	}
}

// Len returns the length derivation.
func (a *DerivedArray[T]) Len() *Derived[int] {
	return a.length
}

// Index returns the derivation of element i. Reading it fails with
// ErrOutOfRange while i is outside the current bounds.
func (a *DerivedArray[T]) Index(i int) *Derived[T] {
	if d, ok := a.elems[i]; ok {
		return d
	}
	d := a.build(i)
	a.elems[i] = d
	return d
}

// ToSlice returns a derivation of all elements in index order.
func (a *DerivedArray[T]) ToSlice() *Derived[[]T] {
	return newDerived(KindReduce, func(s *Scope) ([]T, error) {
		n, err := a.length.read(s)
		if err != nil {
			return nil, err
		}
		out := make([]T, 0, n)
		for i := 0; i < n; i++ {
			v, err := a.Index(i).read(s)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	})
}

// MapArray returns the element-wise map of arr. Each element derivation
// depends only on the matching element of arr, so mutating one element
// recomputes one mapped element.
func MapArray[T, U any](arr *DerivedArray[T], fn func(T) (U, error)) *DerivedArray[U] {
	return newDerivedArray(arr.length, func(i int) *Derived[U] {
		return Map[T, U](arr.Index(i), fn)
	})
}

// Reduce folds the elements of arr left to right, starting from the value
// of seed and applying fn(accumulator, element) in index order.
//
// The fold is recomputed in full whenever the seed, the length or any
// element changes; unchanged mapped elements come from their own caches.
func Reduce[T, A any](arr *DerivedArray[T], fn func(acc A, cur T) (A, error), seed Source[A]) *Derived[A] {
	return newDerived(KindReduce, func(s *Scope) (A, error) {
		acc, err := seed.read(s)
		if err != nil {
			return acc, err
		}
		n, err := arr.length.read(s)
		if err != nil {
			return acc, err
		}
		for i := 0; i < n; i++ {
			v, err := arr.Index(i).read(s)
			if err != nil {
				return acc, err
			}
			if acc, err = fn(acc, v); err != nil {
				return acc, err
			}
		}
		return acc, nil
	})
}
