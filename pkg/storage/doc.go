/*
Package storage provides the durable layer beneath space replicas.

The Store interface persists two things per space: the current fact of
every (entity, type) pair, and the append-only history chain keyed by
fact hash. BoltStore implements it on BoltDB with one database file
shared by all spaces; MemoryStore implements it without durability for
ephemeral runtimes and tests.

# Architecture

	┌──────────────── BOLTDB STORAGE ────────────────┐
	│                                                 │
	│  File: <dataDir>/loom.db                        │
	│                                                 │
	│  Buckets:                                       │
	│    facts     <space>|<of>|<the>         → Fact  │
	│    history   <space>|<of>|<the>|<hash>  → Fact  │
	│    sequence  <space>                    → uint64│
	│                                                 │
	│  Reads:  db.View()   — concurrent snapshots     │
	│  Writes: db.Update() — serialized, fsync        │
	└─────────────────────────────────────────────────┘

# Design Patterns

Upsert pattern: PutFacts overwrites the current fact per key inside a
single transaction, so a commit's whole batch lands atomically.
History entries are immutable once appended; nothing deletes them —
retraction is a history entry like any other.

# Integration Points

  - pkg/replica loads facts on open and persists applied commits
  - cmd/loom opens a BoltStore under its data directory
*/
package storage
