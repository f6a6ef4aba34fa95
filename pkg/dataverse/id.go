package dataverse

import "sync/atomic"

// idCounter is the source of node IDs. IDs label nodes in errors and
// give the tick scheduler a stable tie-break; they carry no graph state.
var idCounter atomic.Uint64

// nextID returns the next unique node ID.
// IDs are monotonically increasing and never reused.
func nextID() uint64 {
	return idCounter.Add(1)
}
