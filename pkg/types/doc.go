/*
Package types defines the shared data model of the loom runtime.

Every other package speaks in these terms: a Space owns a replica of
Facts, each Fact is the canonical value of an (entity, media type)
pair, and an Address names a position inside one fact's JSON value.

# Core Types

Space:
  - Authorisation/ownership domain, e.g. "did:key:z6Mk..."
  - One replica and one commit sequence per space

EntityID:
  - Opaque id in "of:<string>" form
  - Globally unique within its space

Fact:
  - { the, of, is?, cause? }
  - is == nil means the fact is a retraction
  - cause chains to the hash of the prior fact

Address:
  - (space, id, type) plus a path into the JSON value
  - path == [] addresses the whole fact

Path:
  - Object keys as-is, array indices in decimal form
  - "length" addresses an array's length

# Commit Payloads

A transaction submits Changes to a replica: Claims (the fact hash it
observed per entity read) and Facts (the composed writes). The replica
verifies every claim against current state and applies the facts
atomically, answering with a Commit receipt or a conflict.

# Integration Points

  - pkg/reference hashes Facts and values into References
  - pkg/replica stores Facts keyed by FactKey
  - pkg/transaction builds Changes from its journal
  - pkg/scheduler matches Addresses by path prefix overlap
*/
package types
