/*
Package transaction implements the journaled read/write engine over
space replicas.

A Transaction opens a reader per space it touches and at most one
writer; the first write locks the write space and any attempt to write
a second space fails with WriteIsolationError. Reads fix a per-entity
snapshot at first use (snapshot isolation against other transactions)
and see the transaction's own staged writes (read-your-writes). Every
read and write lands in the journal, whose ordered activity log splits
into history (reads observed) and novelty (writes staged).

# Commit

Commit composes the journal into the wire payload: one claim per
entity observed in the write space, carrying the hash fixed at first
read, and one fact per staged entity in first-write order, each caused
by the snapshot it supersedes. The replica verifies all claims and
applies all facts atomically; divergence surfaces as a ConflictError
and marks the transaction aborted. A transaction that only read
terminates without submitting anything. Commit and abort are
idempotent once the transaction is terminated; every other operation
then fails with CompleteError.

# Retry

EditWithRetry drives a body function through fresh transactions until
a commit lands, retrying on conflicts and explicit aborts with
exponential backoff, bounded by DefaultMaxRetries unless overridden.

# Flow Control

A transaction opened WithTaint joins the ifc labels of everything it
reads into a taint context. Writes check the taint against the
destination's labels: enforcing mode refuses the write and aborts the
transaction, dry-run records it via telemetry only.

# Integration Points

  - pkg/replica verifies claims and applies facts
  - pkg/attestation resolves and rewrites values at paths
  - pkg/cfc supplies the lattice and taint semantics
  - pkg/runtime opens transactions on behalf of cells and actions
*/
package transaction
