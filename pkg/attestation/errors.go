package attestation

import (
	"fmt"

	"github.com/commontoolsinc/loom/pkg/types"
)

// NotFoundError reports a path whose intermediate step does not exist.
// Prefix is the last valid prefix, which callers use to synthesise
// missing parents.
type NotFoundError struct {
	Address types.Address
	Prefix  types.Path
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("address %s not found, last valid prefix %s", e.Address, e.Prefix)
}

// TypeMismatchError reports a path step that hit a value of the wrong
// JSON type. Prefix names the position of the offending value.
type TypeMismatchError struct {
	Address types.Address
	Prefix  types.Path
	Actual  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("address %s crosses a %s at %s", e.Address, e.Actual, e.Prefix)
}
