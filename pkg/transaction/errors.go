package transaction

import (
	"fmt"

	"github.com/commontoolsinc/loom/pkg/types"
)

// WriteIsolationError reports an attempt to write a second space in
// one transaction.
type WriteIsolationError struct {
	Open      types.Space
	Requested types.Space
}

func (e *WriteIsolationError) Error() string {
	return fmt.Sprintf("transaction already writes %s, cannot also write %s", e.Open, e.Requested)
}

// CompleteError reports an operation on a terminated transaction.
// Commit and abort themselves stay idempotent after termination.
type CompleteError struct {
	Status Status
}

func (e *CompleteError) Error() string {
	return fmt.Sprintf("transaction is %s", e.Status)
}
