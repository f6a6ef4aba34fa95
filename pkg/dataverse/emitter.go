package dataverse

// Untap cancels a subscription. It takes effect immediately, including in
// the middle of a delivery loop, and is safe to call more than once.
type Untap func()

// subscription is one tap callback registered on a hot node.
type subscription struct {
	id     uint64
	fn     func(v any)
	active bool
}

// Emitter is the change stream of a source bound to one Context.
type Emitter[T any] struct {
	ctx *Context
	n   *node
}

// Tap registers fn to be called with the new value once per tick in which
// the source's value changed. Tapping makes the source and everything it
// depends on hot in the emitter's context.
//
// Example:
//
//	untap := total.Changes(ctx).Tap(func(v int) {
//	    fmt.Println("total:", v)
//	})
//	defer untap()
func (e *Emitter[T]) Tap(fn func(T)) Untap {
	return e.ctx.subscribe(e.n, func(v any) {
		tv, _ := v.(T)
		fn(tv)
	})
}
