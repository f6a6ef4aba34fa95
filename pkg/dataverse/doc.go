// Package dataverse provides a small reactive dataflow engine.
//
// State lives in atoms; everything computed from it is a derivation. Reads
// inside a derivation are tracked, so derivations know their dependencies
// without declaring them, and cache their value until one of them changes.
//
// # Atoms
//
// Box[T] holds a single value, Dict[V] a keyed mapping and Array[T] an
// ordered sequence:
//
//	name := dataverse.NewBox("world")
//	props := dataverse.NewDict(map[string]int{"x": 1})
//	items := dataverse.NewArray([]string{"a", "b"})
//
//	name.Set("gopher")
//	props.SetProp("y", 2)
//	items.Push("c")
//
// Mutations are synchronous and visible to the next read.
//
// # Derivations
//
// Derived[T] is a lazy, memoized value built with Map, FlatMap, Reduce,
// AutoDerive or Constant:
//
//	greeting := dataverse.Map(name, func(n string) (string, error) {
//	    return "hello " + n, nil
//	})
//	v, err := greeting.Value() // always current
//
// A recomputed value equal to the cached one stops propagation.
//
// # Pointers
//
// A Pointer addresses a path inside an atom graph without creating anything:
//
//	x := props.Prop("x").Derivation()
//
// Paths through a missing key or index resolve to Absent.
//
// # Ticks
//
// A Context batches mutations into ticks. Tapping a source makes it hot in
// the context; Tick re-evaluates the hot derivations affected by mutations
// since the previous tick, in dependency order, and calls each subscriber at
// most once with the settled value:
//
//	ctx := dataverse.NewContext()
//	untap := greeting.Changes(ctx).Tap(func(s string) {
//	    fmt.Println(s)
//	})
//	defer untap()
//
//	name.Set("a")
//	name.Set("b")
//	_ = ctx.Tick() // prints "hello b" once
//
// # Thread Safety
//
// None of the types in this package are safe for concurrent use. A graph
// and the contexts observing it belong to one goroutine; see package frame
// for a loop that owns a context and accepts work from other goroutines.
package dataverse
