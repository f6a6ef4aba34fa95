package dataverse

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycleDetected is returned when a derivation reads itself, directly or
// transitively, while it is being evaluated. It indicates a construction bug
// in the dependency graph and is never recovered automatically.
var ErrCycleDetected = errors.New("dataverse: cycle detected")

// ErrOutOfRange is returned by array accessors and mutators when an index is
// outside the current bounds.
var ErrOutOfRange = errors.New("dataverse: index out of range")

// ErrUnresolvedPath is returned by Pointer.Lookup when the path traverses a
// missing key or index. Pointer derivations never return it; they resolve to
// Absent instead.
var ErrUnresolvedPath = errors.New("dataverse: unresolved path")

// ErrTickInProgress is returned when Tick is called from inside a tick, for
// example from a subscriber callback.
var ErrTickInProgress = errors.New("dataverse: tick already in progress")

// ErrNilSource is returned when a FlatMap selector returns a nil source.
var ErrNilSource = errors.New("dataverse: flatMap selected a nil source")

// CycleError describes a dependency cycle found during evaluation.
type CycleError struct {
	// Path lists the derivations on the cycle, starting and ending with the
	// derivation that was read while computing.
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return ErrCycleDetected.Error()
	}
	return ErrCycleDetected.Error() + ": " + strings.Join(e.Path, " -> ")
}

// Unwrap returns ErrCycleDetected for errors.Is support.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// RangeError reports an index outside the bounds of an array.
type RangeError struct {
	Op    string
	Index int
	Len   int
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %s index %d with length %d", ErrOutOfRange, e.Op, e.Index, e.Len)
}

// Unwrap returns ErrOutOfRange for errors.Is support.
func (e *RangeError) Unwrap() error {
	return ErrOutOfRange
}

// PathError reports a pointer path that could not be resolved.
type PathError struct {
	Path string
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return ErrUnresolvedPath.Error() + ": " + e.Path
}

// Unwrap returns ErrUnresolvedPath for errors.Is support.
func (e *PathError) Unwrap() error {
	return ErrUnresolvedPath
}

// EvaluationError wraps an error returned by a user-supplied evaluation
// function (Map, FlatMap, Reduce, AutoDerive). It is created once, at the
// derivation whose function failed, and propagates unchanged to every
// derivation reading it.
type EvaluationError struct {
	Node string
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("dataverse: evaluating %s (%s): %v", e.Node, e.Kind, e.Err)
}

// Unwrap returns the error produced by the evaluation function.
func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// SubscriberError reports a tap callback that panicked during delivery.
// Delivery to the remaining subscribers continues.
type SubscriberError struct {
	Node       string
	Subscriber uint64
	Panic      any
}

// Error implements the error interface.
func (e *SubscriberError) Error() string {
	return fmt.Sprintf("dataverse: subscriber %d of %s panicked: %v", e.Subscriber, e.Node, e.Panic)
}

// wrapEvaluation attributes err to n unless it already is an engine error.
func wrapEvaluation(n *node, err error) error {
	var ev *EvaluationError
	if errors.As(err, &ev) || errors.Is(err, ErrCycleDetected) || errors.Is(err, ErrOutOfRange) {
		return err
	}
	return &EvaluationError{Node: n.name(), Kind: n.kind, Err: err}
}
