package dataverse

import "fmt"

// State is the validity state of a node's cached value.
type State uint8

const (
	// StateUninitialized means the derivation has never been evaluated.
	StateUninitialized State = iota
	// StateComputing means the evaluation function is running. Reading a
	// derivation in this state closes a cycle.
	StateComputing
	// StateClean means the cached value is current.
	StateClean
	// StateDirty means a dependency may have changed since the last evaluation.
	StateDirty
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateComputing:
		return "computing"
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	default:
		return "unknown"
	}
}

// Kind identifies the atom or derivation variant behind a node.
type Kind uint8

const (
	KindBox Kind = iota + 1
	KindDict
	KindArray
	// KindSlot is a per-key, per-index or shape node inside a Dict or Array.
	KindSlot
	KindConstant
	// KindWrap is the derivation returned by an atom's Derivation method.
	KindWrap
	KindMap
	KindFlatMap
	KindReduce
	KindAutoDerive
	KindPointer
	// KindElement is an element or length derivation of a DerivedArray.
	KindElement
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindBox:
		return "box"
	case KindDict:
		return "dict"
	case KindArray:
		return "array"
	case KindSlot:
		return "slot"
	case KindConstant:
		return "constant"
	case KindWrap:
		return "wrap"
	case KindMap:
		return "map"
	case KindFlatMap:
		return "flatMap"
	case KindReduce:
		return "reduce"
	case KindAutoDerive:
		return "autoDerive"
	case KindPointer:
		return "pointer"
	case KindElement:
		return "element"
	default:
		return "unknown"
	}
}

// IsAtom reports whether nodes of this kind hold mutable state.
func (k Kind) IsAtom() bool {
	switch k {
	case KindBox, KindDict, KindArray, KindSlot:
		return true
	default:
		return false
	}
}

// dep is one dependency observed during an evaluation, together with the
// source version that evaluation saw.
type dep struct {
	src  *node
	seen uint64
}

// evaluator is implemented by the typed wrapper around a node.
type evaluator interface {
	// evaluate recomputes the cached value, reporting whether it changed.
	evaluate(s *Scope) (changed bool, err error)

	// snapshot returns the cached value.
	snapshot() any

	// same reports whether v equals the cached value.
	same(v any) bool
}

// node is the untyped graph vertex shared by atoms and derivations.
//
// version is bumped whenever the node's value changes. Dependents record the
// version they read, so a cold derivation validates itself on pull without
// being referenced by its sources. hot maps each Context in which the node
// is subscribed (directly or through a dependent) to its arena handle.
type node struct {
	id      uint64
	kind    Kind
	label   string
	state   State
	version uint64
	failed  bool
	deps    []dep
	hot     map[*Context]handle
	eval    evaluator
}

func newNode(kind Kind, label string) *node {
	n := &node{
		id:    nextID(),
		kind:  kind,
		label: label,
	}
	if kind.IsAtom() {
		n.state = StateClean
	}
	return n
}

// name returns the label used in errors and logs.
func (n *node) name() string {
	if n.label != "" {
		return n.label
	}
	return fmt.Sprintf("%s#%d", n.kind, n.id)
}

func (n *node) isHot() bool {
	return len(n.hot) > 0
}

// touch records a mutation of an atom node.
func (n *node) touch() {
	n.version++
	for c, h := range n.hot {
		c.invalidate(h)
	}
}

// refresh brings the node's cached value up to date.
//
// Hot clean nodes are trusted: every source they depend on is hot in the
// same context and flips them to dirty on mutation. Cold clean nodes and
// dirty nodes first refresh their recorded dependencies and only recompute
// when one of them reports a new version.
func (n *node) refresh(s *Scope) error {
	switch n.kind {
	case KindBox, KindDict, KindArray, KindSlot, KindConstant:
		return nil
	case KindWrap, KindMap, KindFlatMap, KindReduce, KindAutoDerive, KindPointer, KindElement:
	default:
		panic(fmt.Sprintf("dataverse: refresh of unknown node kind %d", n.kind))
	}

	if err, ok := s.failure(n); ok {
		return err
	}

	switch n.state {
	case StateComputing:
		return s.cycle(n)
	case StateClean:
		if n.isHot() || s.checked(n) {
			return nil
		}
		if !n.depsChanged(s) {
			s.markChecked(n)
			return nil
		}
	case StateDirty:
		if !n.failed && !n.depsChanged(s) {
			n.state = StateClean
			return nil
		}
	case StateUninitialized:
	}
	return n.recompute(s)
}

// depsChanged reports whether any recorded dependency has a newer version
// than the one observed. Dependencies are checked in read order and the walk
// stops at the first change, since later reads may not happen at all.
func (n *node) depsChanged(s *Scope) bool {
	for _, d := range n.deps {
		if err := d.src.refresh(s); err != nil {
			return true
		}
		if d.src.version != d.seen {
			return true
		}
	}
	return false
}

// recompute runs the evaluation function under a fresh tracking frame and
// replaces the dependency set with the one observed by this run.
func (n *node) recompute(s *Scope) error {
	n.state = StateComputing
	settled := false
	defer func() {
		if !settled {
			n.state = StateDirty
			n.failed = true
		}
	}()

	changed, deps, err := n.run(s)
	if err != nil {
		n.state = StateDirty
		n.failed = true
		s.fail(n, err)
	} else {
		n.state = StateClean
		n.failed = false
		if changed {
			n.version++
		}
		s.markChecked(n)
	}
	settled = true
	s.countRecompute()
	n.replaceDeps(deps)
	return err
}

func (n *node) run(s *Scope) (changed bool, deps []dep, err error) {
	release := s.enter(n)
	defer func() {
		deps = release()
	}()
	changed, err = n.eval.evaluate(s)
	return changed, deps, err
}

// replaceDeps installs a new dependency set and rewires every context in
// which the node is hot.
func (n *node) replaceDeps(deps []dep) {
	n.deps = deps
	if len(n.hot) == 0 {
		return
	}
	type binding struct {
		c *Context
		h handle
	}
	bindings := make([]binding, 0, len(n.hot))
	for c, h := range n.hot {
		bindings = append(bindings, binding{c, h})
	}
	for _, b := range bindings {
		b.c.rewire(b.h, deps)
	}
}

// observedState reports the state without evaluating anything. A cold
// clean derivation whose recorded sources moved on is reported as dirty.
func (n *node) observedState() State {
	if n.state == StateClean && !n.kind.IsAtom() && !n.isHot() && n.stale() {
		return StateDirty
	}
	return n.state
}

func (n *node) stale() bool {
	for _, d := range n.deps {
		if d.src.version != d.seen {
			return true
		}
		if !d.src.kind.IsAtom() && d.src.observedState() != StateClean {
			return true
		}
	}
	return false
}
