package dataverse

// Box is an atom holding a single value.
//
// Every Set is treated as a change: the new value is visible to the next
// read immediately, and every Context in which the box is hot records it for
// the next tick.
type Box[T any] struct {
	n     *node
	value T
	equal func(a, b T) bool
}

// NewBox creates a box holding initial.
func NewBox[T any](initial T) *Box[T] {
	b := &Box[T]{value: initial}
	b.n = newNode(KindBox, "")
	b.n.eval = b
	return b
}

// Get returns the current value without recording a dependency.
func (b *Box[T]) Get() T {
	return b.value
}

// Value returns the current value. It never fails; it exists so a box can be
// used wherever a Source is expected.
func (b *Box[T]) Value() (T, error) {
	return b.value, nil
}

// Set replaces the value.
func (b *Box[T]) Set(v T) {
	b.value = v
	b.n.touch()
}

// Update replaces the value with fn applied to the current value.
func (b *Box[T]) Update(fn func(T) T) {
	b.Set(fn(b.value))
}

// Named sets the label used for this box in errors and logs.
func (b *Box[T]) Named(label string) *Box[T] {
	b.n.label = label
	return b
}

// WithEquals configures the equality used when deciding whether a tapped
// box changed across a tick.
func (b *Box[T]) WithEquals(fn func(a, b T) bool) *Box[T] {
	b.equal = fn
	return b
}

// Changes returns the change emitter of this box bound to c.
func (b *Box[T]) Changes(c *Context) *Emitter[T] {
	return &Emitter[T]{ctx: c, n: b.n}
}

// Derivation returns a derivation tracking this box.
func (b *Box[T]) Derivation() *Derived[T] {
	return newDerived(KindWrap, b.read).Named(b.n.name())
}

// Pointer returns a pointer rooted at this box.
func (b *Box[T]) Pointer() Pointer {
	return newPointer(b)
}

func (b *Box[T]) read(s *Scope) (T, error) {
	s.record(b.n)
	return b.value, nil
}

func (b *Box[T]) readAny(s *Scope) (any, error) {
	return b.read(s)
}

func (b *Box[T]) graphNode() *node {
	return b.n
}

func (b *Box[T]) evaluate(*Scope) (bool, error) {
	return false, nil
}

func (b *Box[T]) snapshot() any {
	return b.value
}

func (b *Box[T]) same(v any) bool {
	tv, ok := v.(T)
	if !ok {
		return false
	}
	if b.equal != nil {
		return b.equal(b.value, tv)
	}
	return defaultEquals(b.value, tv)
}
