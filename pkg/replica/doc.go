/*
Package replica implements the per-space fact store.

A Replica holds typed facts keyed by (entity, media type) in two
layers: confirmed facts, durably acknowledged by the store underneath,
and a pending overlay of locally applied but not yet durable writes.
Queries read pending first and fall back to confirmed. History is an
append-only chain per entity keyed by fact hash, persisted through
pkg/storage.

# Conflict Model

A commit declares, for each entity it read, the hash it observed
(empty for unclaimed). Apply compares every claim against current
state; any divergence rejects the whole batch with a ConflictError
naming the diverging entities and the facts actually held. Nothing is
applied on failure — claims verify and facts land atomically under the
replica lock.

# Notifications

Subscribers register a predicate over fact keys and receive the
composed view of every matching applied fact, along with the commit
receipt. The scheduler rides on these direct subscriptions; the event
broker only carries best-effort observer traffic.

# Integration Points

  - pkg/transaction submits Changes built from its journal
  - pkg/storage persists facts, history chains, and commit sequences
  - pkg/runtime opens replicas through the Manager
*/
package replica
