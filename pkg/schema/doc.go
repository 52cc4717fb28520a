/*
Package schema implements the JSON-schema subset that directs reads,
writes, and information-flow labelling.

The subset covers type, properties, additionalProperties, items,
prefixItems, required, $ref (fragment JSON pointers plus a table of
known absolute refs), $defs, anyOf and oneOf, plus three annotations:

  - asCell: the position materialises as a sub-cell handle
  - asStream: as asCell, but the cell is an event stream
  - ifc: classification labels attached to the position

# Schema At Path

AtPath computes the schema governing a position inside a value.
Objects walk properties then additionalProperties (absent means
anything); arrays use prefixItems for covered indices, items
otherwise, and type "length" as number. anyOf/oneOf recurse per
branch: a true branch short-circuits, false branches are pruned, and
duplicates are deduped by JSON form.

$ref cycles are guarded by a CycleTracker with scope-guard semantics:
a ref already on the walk's stack resolves as undefined instead of
recursing forever.

# Integration Points

  - pkg/traverse walks values under schemas and gathers ifc labels
  - pkg/cfc joins collected labels into a transaction taint
  - pkg/runtime rewrites asCell/asStream positions into handles
*/
package schema
