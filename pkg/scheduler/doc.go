/*
Package scheduler drives the reactive graph of actions over the
memory layer.

Actions register a callback plus read/write sets expressed as
(space, entity, type, path-prefix) tuples, either declared up front or
discovered during the first run. An edge A → B exists iff some write
of A overlaps some read of B by path prefix. Effects run for side
effects and are ordered after pure computations.

# Model

Single-threaded cooperative: all actions run on one goroutine, awaited
one at a time. A commit's novelty (via Notify) marks overlapping
readers dirty; the dirty frontier drains in topological order with
ties broken by registration order. Cycles are detected and broken by
at most one re-execution per action per drain.

# Timing

Debounced actions defer by their window after each trigger; throttled
actions fire at most once per window, coalescing triggers in between.
Idle resolves once the dirty frontier is empty and no timers are
pending.

# Event Streams

Cells whose schema declares asStream act as queues: QueueEvent appends
one event and a single-flight dispatcher delivers to the handlers
registered under the address. If an event arrives for a stream with no
handler, the auto-start hook boots the owning computation exactly once
per cell, then delivery retries.

# Integration Points

  - pkg/runtime registers cell sinks and pattern computations and
    forwards replica novelty into Notify
  - pkg/metrics observes run counts, latencies, and dirty depth
*/
package scheduler
