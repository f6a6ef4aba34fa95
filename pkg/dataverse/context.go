package dataverse

import (
	"errors"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"
)

// TickStats summarizes one tick.
type TickStats struct {
	Seq      uint64
	Started  time.Time
	Duration time.Duration

	// Changed is the number of hot atoms mutated since the previous tick.
	Changed int
	// Dirty is the number of hot derivations invalidated by those mutations.
	Dirty int
	// Recomputed counts evaluation function runs during the tick.
	Recomputed int
	// Delivered counts tap callbacks invoked.
	Delivered int
	// Failures counts evaluation errors and panicking callbacks.
	Failures int
	// Hot is the number of hot nodes after the tick.
	Hot int
}

// Observer receives the statistics of every tick. err is the error Tick
// returns, or nil.
type Observer interface {
	ObserveTick(stats TickStats, err error)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(stats TickStats, err error)

// ObserveTick calls f.
func (f ObserverFunc) ObserveTick(stats TickStats, err error) {
	f(stats, err)
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger used for evaluation failures and subscriber
// panics. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver installs an observer called at the end of every tick.
func WithObserver(o Observer) Option {
	return func(c *Context) {
		c.observer = o
	}
}

// WithName sets the name used in log records.
func WithName(name string) Option {
	return func(c *Context) {
		c.name = name
	}
}

// Context is the tick scheduler of one reactive graph.
//
// A Context owns the registry of hot nodes: those tapped in it, and
// everything they depend on. Mutating a hot atom records it as changed and
// flips every hot derivation reachable from it to dirty. Tick re-evaluates
// the dirty derivations in dependency order and delivers each changed value
// to its subscribers exactly once.
//
// Contexts are independent; an atom hot in several contexts is recorded in
// each. A Context is not safe for concurrent use: all reads, mutations and
// ticks of a graph must happen on one goroutine.
type Context struct {
	id       uint64
	name     string
	arena    arena
	changed  map[handle]struct{}
	dirty    map[handle]struct{}
	logger   *slog.Logger
	observer Observer
	seq      uint64
	ticking  bool
	nextSub  uint64
}

// NewContext creates an empty context.
func NewContext(opts ...Option) *Context {
	c := &Context{
		id:      nextID(),
		changed: make(map[handle]struct{}),
		dirty:   make(map[handle]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.name == "" {
		c.name = "context"
	}
	return c
}

// Name returns the context name.
func (c *Context) Name() string {
	return c.name
}

// Seq returns the number of ticks run so far.
func (c *Context) Seq() uint64 {
	return c.seq
}

// HotCount returns the number of hot nodes.
func (c *Context) HotCount() int {
	return c.arena.live
}

// Pending returns the number of hot nodes changed or invalidated since the
// last tick.
func (c *Context) Pending() int {
	return len(c.changed) + len(c.dirty)
}

// Tick propagates every mutation made since the previous tick.
//
// Dirty hot derivations are evaluated once each, a derivation only after all
// of its dependencies settled. Then every subscription whose value differs
// from the value it last received is called, in registration order.
// Mutations made by subscriber callbacks are propagated by the next tick.
//
// Evaluation errors and panicking callbacks do not stop the tick; they are
// logged and returned joined.
func (c *Context) Tick() error {
	if c.ticking {
		return ErrTickInProgress
	}
	c.ticking = true
	defer func() {
		c.ticking = false
	}()

	c.seq++
	stats := TickStats{Seq: c.seq, Started: time.Now()}

	changed, dirty := c.changed, c.dirty
	c.changed = make(map[handle]struct{})
	c.dirty = make(map[handle]struct{})
	stats.Changed, stats.Dirty = len(changed), len(dirty)

	order := c.schedule(changed, dirty)

	type failure struct {
		h   handle
		n   *node
		err error
	}
	var failures []failure
	ts := &tickState{}
	for _, h := range order {
		e := c.arena.get(h)
		if e == nil {
			continue
		}
		if err := e.n.refresh(newScope(ts)); err != nil {
			failures = append(failures, failure{h, e.n, err})
		}
	}

	// A node released during the tick, such as an element read past the end
	// of an array that shrank, no longer has anyone to report to.
	var errs []error
	reported := make(map[error]struct{})
	for _, f := range failures {
		if e := c.arena.get(f.h); e == nil || !f.n.failed {
			continue
		}
		root := rootCause(f.err)
		if _, dup := reported[root]; dup {
			continue
		}
		reported[root] = struct{}{}
		c.logger.Warn("evaluation failed",
			"context", c.name,
			"tick", c.seq,
			"node", f.n.name(),
			"error", f.err)
		errs = append(errs, f.err)
	}
	stats.Recomputed = ts.recomputed
	stats.Failures = len(errs)

	for _, h := range order {
		e := c.arena.get(h)
		if e == nil || len(e.subs) == 0 || e.n.failed || e.n.eval == nil {
			continue
		}
		n := e.n
		if n.version == e.deliveredAt {
			continue
		}
		if n.eval.same(e.delivered) {
			e.deliveredAt = n.version
			continue
		}
		v := n.eval.snapshot()
		e.delivered, e.deliveredAt = v, n.version

		subs := make([]*subscription, len(e.subs))
		copy(subs, e.subs)
		for _, sub := range subs {
			if !sub.active {
				continue
			}
			if err := c.deliver(n, sub, v); err != nil {
				errs = append(errs, err)
				stats.Failures++
				continue
			}
			stats.Delivered++
		}
	}

	stats.Hot = c.arena.live
	stats.Duration = time.Since(stats.Started)
	err := errors.Join(errs...)
	if c.observer != nil {
		c.observer.ObserveTick(stats, err)
	}
	return err
}

// deliver invokes one callback, converting a panic into a SubscriberError.
func (c *Context) deliver(n *node, sub *subscription, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("subscriber panic",
				"context", c.name,
				"tick", c.seq,
				"node", n.name(),
				"subscriber", sub.id,
				"panic", r,
				"stack", string(debug.Stack()))
			err = &SubscriberError{Node: n.name(), Subscriber: sub.id, Panic: r}
		}
	}()
	sub.fn(v)
	return nil
}

// schedule orders the given hot nodes so that every node comes after the
// ones it depends on. Edges are read from the arena as they are now, since
// flatMap rewiring changes them between ticks. Ties break on node ID.
func (c *Context) schedule(sets ...map[handle]struct{}) []handle {
	indegree := make(map[handle]int)
	for _, set := range sets {
		for h := range set {
			if c.arena.get(h) != nil {
				indegree[h] = 0
			}
		}
	}
	for h := range indegree {
		for _, dh := range c.arena.get(h).deps {
			if _, ok := indegree[dh]; ok {
				indegree[h]++
			}
		}
	}

	byID := func(hs []handle) {
		sort.Slice(hs, func(i, j int) bool {
			return c.arena.get(hs[i]).n.id < c.arena.get(hs[j]).n.id
		})
	}

	ready := make([]handle, 0, len(indegree))
	for h, d := range indegree {
		if d == 0 {
			ready = append(ready, h)
		}
	}
	byID(ready)

	order := make([]handle, 0, len(indegree))
	for len(ready) > 0 {
		h := ready[0]
		ready = ready[1:]
		order = append(order, h)

		var next []handle
		for dh := range c.arena.get(h).dependents {
			if _, ok := indegree[dh]; !ok {
				continue
			}
			indegree[dh]--
			if indegree[dh] == 0 {
				next = append(next, dh)
			}
		}
		byID(next)
		ready = append(ready, next...)
	}
	return order
}

// subscribe makes n hot and registers fn as a subscriber.
func (c *Context) subscribe(n *node, fn func(any)) Untap {
	h := c.acquire(n)
	e := c.arena.get(h)
	if len(e.subs) == 0 && n.eval != nil {
		e.delivered, e.deliveredAt = n.eval.snapshot(), n.version
	}
	c.nextSub++
	sub := &subscription{id: c.nextSub, fn: fn, active: true}
	e.subs = append(e.subs, sub)
	return func() {
		c.unsubscribe(n, sub)
	}
}

func (c *Context) unsubscribe(n *node, sub *subscription) {
	if !sub.active {
		return
	}
	sub.active = false
	h, ok := n.hot[c]
	if !ok {
		return
	}
	if e := c.arena.get(h); e != nil {
		for i, s := range e.subs {
			if s == sub {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				break
			}
		}
	}
	c.release(h)
}

// acquire makes n hot, or adds a reference if it already is. A node that
// becomes hot is brought up to date first so its dependency set is known,
// then its dependencies are acquired in turn.
func (c *Context) acquire(n *node) handle {
	if h, ok := n.hot[c]; ok {
		c.arena.get(h).refs++
		return h
	}

	err := n.refresh(newScope(nil))

	h := c.arena.alloc(n)
	if n.hot == nil {
		n.hot = make(map[*Context]handle)
	}
	n.hot[c] = h
	e := c.arena.get(h)
	e.refs = 1
	for _, d := range n.deps {
		dh := c.acquire(d.src)
		e.deps = append(e.deps, dh)
		c.arena.get(dh).dependents[h] = struct{}{}
	}

	// A node that could not be evaluated is retried, and its error
	// reported, by the next tick.
	if err != nil || n.state != StateClean {
		c.dirty[h] = struct{}{}
	}
	return h
}

// release drops one reference to h. When the last reference goes, the node
// turns cold in this context and releases its own dependencies.
func (c *Context) release(h handle) {
	e := c.arena.get(h)
	if e == nil {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	deps := e.deps
	n := e.n
	for _, dh := range deps {
		if de := c.arena.get(dh); de != nil {
			delete(de.dependents, h)
		}
	}
	delete(n.hot, c)
	delete(c.changed, h)
	delete(c.dirty, h)
	c.arena.release(h)
	for _, dh := range deps {
		c.release(dh)
	}
}

// rewire replaces the dependency edges of h after its node re-evaluated.
// New dependencies are acquired before old ones are released so shared
// sources stay hot.
func (c *Context) rewire(h handle, deps []dep) {
	e := c.arena.get(h)
	if e == nil {
		return
	}
	old := e.deps
	next := make([]handle, 0, len(deps))
	keep := make(map[handle]struct{}, len(deps))
	for _, d := range deps {
		dh := c.acquire(d.src)
		next = append(next, dh)
		keep[dh] = struct{}{}
		c.arena.get(dh).dependents[h] = struct{}{}
	}
	e.deps = next
	for _, dh := range old {
		if _, ok := keep[dh]; !ok {
			if de := c.arena.get(dh); de != nil {
				delete(de.dependents, h)
			}
		}
		c.release(dh)
	}
}

// invalidate records a mutation of the hot atom h.
func (c *Context) invalidate(h handle) {
	if c.arena.get(h) == nil {
		return
	}
	c.changed[h] = struct{}{}
	c.cascade(h)
}

// cascade flips every hot dependent of h to dirty. A dependent already
// marked in this tick is skipped unless a pull has cleaned it since.
func (c *Context) cascade(h handle) {
	e := c.arena.get(h)
	if e == nil {
		return
	}
	for dh := range e.dependents {
		de := c.arena.get(dh)
		if de == nil {
			continue
		}
		if _, marked := c.dirty[dh]; marked && de.n.state != StateClean {
			continue
		}
		c.dirty[dh] = struct{}{}
		if de.n.state == StateClean {
			de.n.state = StateDirty
		}
		c.cascade(dh)
	}
}

// rootCause returns the error a failure should be deduplicated on: the
// evaluation or cycle error it carries, so a failure propagating through
// several derivations is reported once.
func rootCause(err error) error {
	var ev *EvaluationError
	if errors.As(err, &ev) {
		return ev
	}
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce
	}
	var re *RangeError
	if errors.As(err, &re) {
		return re
	}
	return err
}
