package dataverse

// Scope is the dependency-tracking scope of one pull or one tick.
//
// Each derivation being evaluated pushes a frame on entry and pops it on
// exit; every atom or derivation read through the scope is recorded in the
// top frame. Evaluation functions that read sources themselves (AutoDerive)
// receive the scope and read through Read.
type Scope struct {
	top     *frame
	visited map[*node]struct{}
	tick    *tickState
}

// frame collects the dependencies of one evaluating derivation.
type frame struct {
	owner  *node
	deps   []dep
	index  map[*node]int
	parent *frame
}

// tickState is shared by every scope created during a single tick.
type tickState struct {
	recomputed int
	failures   map[*node]error
}

func newScope(t *tickState) *Scope {
	return &Scope{tick: t}
}

// enter pushes a tracking frame for n. The returned function pops it and
// returns the dependencies recorded while it was on top; callers release it
// with defer so the frame is popped even when evaluation panics.
func (s *Scope) enter(n *node) func() []dep {
	f := &frame{owner: n, parent: s.top}
	s.top = f
	released := false
	return func() []dep {
		if !released {
			released = true
			s.top = f.parent
		}
		return f.deps
	}
}

// record adds n as a dependency of the derivation on top of the stack.
// Nodes that are still computing are never recorded; reading them has
// already failed with a cycle.
func (s *Scope) record(n *node) {
	f := s.top
	if f == nil || n.state == StateComputing {
		return
	}
	if i, ok := f.index[n]; ok {
		f.deps[i].seen = n.version
		return
	}
	if f.index == nil {
		f.index = make(map[*node]int)
	}
	f.index[n] = len(f.deps)
	f.deps = append(f.deps, dep{src: n, seen: n.version})
}

// cycle builds the error for reading n while it is computing.
func (s *Scope) cycle(n *node) error {
	path := []string{n.name()}
	for f := s.top; f != nil; f = f.parent {
		path = append(path, f.owner.name())
		if f.owner == n {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return &CycleError{Path: path}
}

// checked reports whether n was already validated during this scope.
func (s *Scope) checked(n *node) bool {
	_, ok := s.visited[n]
	return ok
}

func (s *Scope) markChecked(n *node) {
	if s.visited == nil {
		s.visited = make(map[*node]struct{})
	}
	s.visited[n] = struct{}{}
}

// failure returns the error n already produced in the current tick, so a
// failing derivation is evaluated at most once per tick.
func (s *Scope) failure(n *node) (error, bool) {
	if s.tick == nil {
		return nil, false
	}
	err, ok := s.tick.failures[n]
	return err, ok
}

func (s *Scope) fail(n *node, err error) {
	if s.tick == nil {
		return
	}
	if s.tick.failures == nil {
		s.tick.failures = make(map[*node]error)
	}
	s.tick.failures[n] = err
}

func (s *Scope) countRecompute() {
	if s.tick != nil {
		s.tick.recomputed++
	}
}

// Read returns the current value of src and records it as a dependency of
// the derivation being evaluated in s.
//
// Example:
//
//	total := dataverse.AutoDerive(func(s *dataverse.Scope) (int, error) {
//	    a, err := dataverse.Read[int](s, width)
//	    if err != nil {
//	        return 0, err
//	    }
//	    b, err := dataverse.Read[int](s, height)
//	    return a * b, err
//	})
func Read[T any](s *Scope, src Source[T]) (T, error) {
	return src.read(s)
}
