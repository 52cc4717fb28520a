/*
Package changeset turns (current, next) value pairs into minimal,
atomically applicable change sets.

The differ walks both values in parallel, skipping sub-trees whose
canonical hashes match. Object diffs emit writes for changed keys and
deletions for removed ones; an array length change emits a single
length write plus deletions for truncated indices in ascending order.
Applying the change set in order turns current into next exactly.

# Special Forms

Three shapes are rewritten before diffing:

  - Legacy $alias objects become link sigils targeting the document
    they sit in (or the cell they name).
  - Data-URI links inline their decoded payload as ordinary writes.
  - Objects carrying an ID marker allocate an entity by causal hash
    of (parent namespace, id), emit the object's writes at the
    allocated entity, and leave a link at the original position.
    ID_FIELD redirects the effective id to a named property.

# Compaction

Compact folds a write below an earlier wider write into the wider
value and drops writes superseded by a later wider one, preserving
observable semantics: applying the compacted set equals applying the
original.

# Integration Points

  - pkg/runtime diffs cell updates into transaction writes
  - pkg/attestation applies the folds during compaction
*/
package changeset
