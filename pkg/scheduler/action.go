package scheduler

import (
	"context"
	"time"

	"github.com/commontoolsinc/loom/pkg/types"
)

// Tuple names a read or write set entry: an entity plus a path
// prefix. Two tuples overlap when they name the same entity and one
// path is a prefix of the other.
type Tuple struct {
	Space types.Space
	Of    types.EntityID
	The   types.MediaType
	Path  types.Path
}

// Overlaps reports whether writes under one tuple are observable
// through reads under the other.
func (t Tuple) Overlaps(other Tuple) bool {
	if t.Space != other.Space || t.Of != other.Of || t.The != other.The {
		return false
	}
	return t.Path.Overlaps(other.Path)
}

// TupleOf builds a tuple from an address.
func TupleOf(address types.Address) Tuple {
	return Tuple{Space: address.Space, Of: address.ID, The: address.Type, Path: address.Path}
}

// RunResult carries the read and write sets an action discovered
// during one execution.
type RunResult struct {
	Reads  []Tuple
	Writes []Tuple
}

// RunFunc is one action execution. The scheduler awaits each call
// before moving on; there is no parallelism within a run.
type RunFunc func(ctx context.Context) (RunResult, error)

// Options configure an action at registration.
type Options struct {
	// Effect actions run for their side effects and are ordered after
	// pure computations.
	Effect bool
	// Debounce defers each trigger by the window, restarting on
	// retrigger.
	Debounce time.Duration
	// Throttle fires at most once per window, coalescing triggers.
	Throttle time.Duration
	// Reads and Writes declare the action's sets up front. Leaving
	// them empty lets the first run discover them.
	Reads  []Tuple
	Writes []Tuple
}

// action is the scheduler's node: a callback plus its declared or
// discovered read/write sets and timing state.
type action struct {
	id     string
	run    RunFunc
	opts   Options
	order  int
	reads  []Tuple
	writes []Tuple

	ran      bool
	gated    bool
	timer    *time.Timer
	timerGen int
	lastFire time.Time
}

// readsOverlap reports whether any write of the novelty lands in the
// action's read set.
func (a *action) readsOverlap(novelty []Tuple) bool {
	for _, read := range a.reads {
		for _, write := range novelty {
			if read.Overlaps(write) {
				return true
			}
		}
	}
	return false
}

// feeds reports whether this action's writes reach the other's reads.
func (a *action) feeds(b *action) bool {
	return b.readsOverlap(a.writes)
}
