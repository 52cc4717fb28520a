package replica

import (
	"fmt"

	"github.com/commontoolsinc/loom/pkg/types"
)

// Conflict names one entity whose observed hash diverged from the
// claim, with the actual fact the replica holds.
type Conflict struct {
	Of       types.EntityID
	The      types.MediaType
	Expected types.Reference
	Actual   types.Reference
	State    *types.Fact
}

// ConflictError is an optimistic-commit failure. The whole batch was
// rejected; nothing was applied.
type ConflictError struct {
	Space     types.Space
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 1 {
		return fmt.Sprintf("commit to %s conflicts on %s", e.Space, e.Conflicts[0].Of)
	}
	return fmt.Sprintf("commit to %s conflicts on %d entities", e.Space, len(e.Conflicts))
}
