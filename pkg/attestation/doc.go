/*
Package attestation resolves and rewrites values at address paths.

An Attestation pairs an Address with the value that address resolves
to under some fact. Reads walk the value down a path; writes produce a
new attestation by cloning the containers along the affected path and
sharing everything else (copy-on-write).

# Read Semantics

  - An empty path returns the whole value
  - A missing final key succeeds with a nil value
  - Reading past the end of an array returns nil, not an error
  - A missing intermediate key fails with NotFoundError naming the
    last valid prefix
  - A non-container mid-path fails with TypeMismatchError
  - On arrays only non-negative integer segments and "length" resolve

# Write Semantics

  - A root write replaces the whole value
  - Writing nil deletes the final property
  - Writing a value equal to the current one is a no-op returning the
    original attestation
  - Writing an array's "length" truncates or nil-pads

# Integration Points

  - pkg/transaction stages writes through attestations and uses
    NotFoundError prefixes to synthesise parents
  - pkg/changeset applies minimal change sets via Write
  - pkg/traverse reads sub-values while following links
*/
package attestation
