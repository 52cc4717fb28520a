/*
Package cfc implements contextual flow control: a classification
lattice attached to schemas, a per-transaction taint context, and the
write-down refusal that keeps classified data inside its boundary.

# Lattice

Labels form a finite join-semilattice with the designated bottom
"unclassified". The reference lattice is the four-level chain

	unclassified ≤ confidential ≤ secret ≤ topsecret

and user-configured lattices load from YAML:

	labels:
	  unclassified: [internal]
	  internal: [restricted]
	  restricted: []

# Taint

A transaction's taint is the least upper bound of every label reached
through its reads. A write to a destination labelled L is permitted
iff taint ≤ L. Three modes: disabled (no propagation or checks),
dry-run (violations computed and recorded via telemetry only), and
enforcing (violations refuse the write and surface as errors).

Labels are persisted as part of the schema ifc field; the core neither
mints nor removes labels except via schema.
*/
package cfc
