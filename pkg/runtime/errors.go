package runtime

import (
	"fmt"

	"github.com/commontoolsinc/loom/pkg/types"
)

// CommitFailedError reports an ambient cell operation that exhausted
// its retries without committing.
type CommitFailedError struct {
	Address types.Address
}

func (e *CommitFailedError) Error() string {
	return fmt.Sprintf("commit for %s did not land", e.Address)
}

// UnknownRecipeError reports a recipe id with no stored fact behind
// it.
type UnknownRecipeError struct {
	Space types.Space
	ID    types.EntityID
}

func (e *UnknownRecipeError) Error() string {
	return fmt.Sprintf("no recipe stored at %s in %s", e.ID, e.Space)
}
