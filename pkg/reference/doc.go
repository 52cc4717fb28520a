/*
Package reference implements content addressing for loom facts.

Values are normalised (nil-valued object entries removed, numbers
widened, link sigils reduced to their identifying tuple) and encoded
canonically (sorted object keys, minimal number form) before hashing
with SHA-256. Two facts with the same of, the, and canonical is
produce the same reference regardless of insertion order or transient
nil leaves.

# Link Sigils

A link embeds a reference from one fact's value to another fact:

	{"/": {"link@1": {"id": "of:abc", "path": ["items", "0"], "space": "did:..."}}}

Links are distinguished from plain JSON by this exact key shape. The
optional schema attribute is a hint and is excluded from link identity
and hashing. Links whose id begins with "data:" embed immutable JSON
directly; their media type must match the address they are read at.

# Integration Points

  - pkg/replica compares claim hashes computed with ReferFact
  - pkg/transaction chains facts via cause references
  - pkg/traverse follows parsed links across facts and spaces
  - pkg/changeset inlines data-URI links during diffing
*/
package reference
