/*
Package traverse walks composed values through links and schema.

Given a start address and a schema, the traverser loads referenced
facts on demand, materialising a tagged View tree: Leaf for scalars,
Object and Array for containers, and Ref where a position becomes a
handle instead of a value (asCell/asStream schema positions, cycle
cuts). Each follow is recorded as a read and as a schema claim for the
reached entity; documents absent from the source surface in Missing so
the caller can trigger a sync rather than fail.

Traversal is cycle-safe: links already on the current walk's stack cut
to a Ref instead of recursing, keyed by the normalised (address,
schema) pair with scope-guard release.

# Integration Points

  - pkg/runtime materialises cell reads and rewrites Ref positions
    into sub-handles
  - pkg/scheduler receives the recorded reads as an action's read set
  - pkg/cfc joins the collected labels into the transaction taint
*/
package traverse
