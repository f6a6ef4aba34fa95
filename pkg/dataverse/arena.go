package dataverse

// handle is an opaque, generation-checked reference to an arena entry.
// A handle to a released entry never resolves again, even after its slot
// is reused.
type handle uint64

func makeHandle(index, gen uint32) handle {
	return handle(uint64(gen)<<32 | uint64(index))
}

func (h handle) index() uint32 { return uint32(h) }
func (h handle) gen() uint32   { return uint32(h >> 32) }

// entry is the per-context record of a hot node. Edges to other hot nodes
// are stored as handles; refs counts the subscriptions on the node plus the
// hot dependents reading it.
type entry struct {
	n          *node
	gen        uint32
	live       bool
	refs       int
	deps       []handle
	dependents map[handle]struct{}
	subs       []*subscription

	// delivered is the value last delivered to subscribers, deliveredAt
	// the node version it was taken at.
	delivered   any
	deliveredAt uint64
}

// arena stores the hot nodes of one Context.
type arena struct {
	entries []*entry
	free    []uint32
	live    int
}

func (a *arena) alloc(n *node) handle {
	var idx uint32
	if k := len(a.free); k > 0 {
		idx = a.free[k-1]
		a.free = a.free[:k-1]
	} else {
		idx = uint32(len(a.entries))
		a.entries = append(a.entries, &entry{})
	}
	e := a.entries[idx]
	e.gen++
	e.n = n
	e.live = true
	e.refs = 0
	e.deps = nil
	e.dependents = make(map[handle]struct{})
	e.subs = nil
	e.delivered = nil
	e.deliveredAt = 0
	a.live++
	return makeHandle(idx, e.gen)
}

// get returns the live entry for h, or nil if h is stale.
func (a *arena) get(h handle) *entry {
	idx := h.index()
	if int(idx) >= len(a.entries) {
		return nil
	}
	e := a.entries[idx]
	if !e.live || e.gen != h.gen() {
		return nil
	}
	return e
}

func (a *arena) release(h handle) {
	e := a.get(h)
	if e == nil {
		return
	}
	e.live = false
	e.n = nil
	e.deps = nil
	e.dependents = nil
	e.subs = nil
	e.delivered = nil
	a.free = append(a.free, h.index())
	a.live--
}
