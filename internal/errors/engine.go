package errors

import (
	"errors"
	"strings"

	"github.com/vango-dev/dataverse/pkg/dataverse"
	"github.com/vango-dev/dataverse/pkg/frame"
)

// FromEngine maps an error returned by the engine or the frame loop onto a
// registered code. The first recognized error in a joined tick error
// decides the code. Unrecognized errors are returned wrapped without a
// code.
func FromEngine(err error) *DVError {
	if err == nil {
		return nil
	}
	var ve *DVError
	if errors.As(err, &ve) {
		return ve
	}

	for _, e := range flatten(err) {
		if dv := fromEngine(e); dv != nil {
			return dv.Wrap(err)
		}
	}
	return Newf(CategoryEngine, "%s", err.Error())
}

func fromEngine(err error) *DVError {
	var (
		ce *dataverse.CycleError
		pe *dataverse.PathError
		ev *dataverse.EvaluationError
		se *dataverse.SubscriberError
	)
	switch {
	case errors.As(err, &ce):
		return New("DV001").WithSuggestion("Break the cycle: " + strings.Join(ce.Path, " -> "))
	case errors.Is(err, dataverse.ErrCycleDetected):
		return New("DV001")
	case errors.Is(err, dataverse.ErrOutOfRange):
		return New("DV002")
	case errors.As(err, &pe):
		return New("DV003").WithSuggestion("Check that " + pe.Path + " exists, or read the pointer derivation and test for Absent")
	case errors.Is(err, dataverse.ErrUnresolvedPath):
		return New("DV003")
	case errors.As(err, &se):
		return New("DV005").WithSuggestion("Recover from panics inside tap callbacks of " + se.Node)
	case errors.As(err, &ev):
		return New("DV004").WithSuggestion("See the error returned by " + ev.Node)
	case errors.Is(err, dataverse.ErrNilSource):
		return New("DV004")
	case errors.Is(err, dataverse.ErrTickInProgress):
		return New("DV006")
	case errors.Is(err, frame.ErrLoopClosed):
		return New("DV007")
	default:
		return nil
	}
}

// flatten returns err followed by the parts of any joined error in it.
func flatten(err error) []error {
	out := []error{err}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			out = append(out, flatten(e)...)
		}
	}
	return out
}
