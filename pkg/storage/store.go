package storage

import (
	"github.com/commontoolsinc/loom/pkg/types"
)

// Store is the durable layer beneath a space replica. It persists the
// current fact per (entity, type) plus the append-only history chain
// keyed by fact hash, so a replica survives process restarts.
type Store interface {
	// Facts
	PutFacts(space types.Space, facts []types.Fact) error
	GetFact(space types.Space, key types.FactKey) (*types.Fact, error)
	ListFacts(space types.Space) ([]types.Fact, error)

	// History
	AppendHistory(space types.Space, fact types.Fact, hash types.Reference) error
	GetHistory(space types.Space, key types.FactKey, hash types.Reference) (*types.Fact, error)

	// Commit sequence
	PutSequence(space types.Space, since uint64) error
	GetSequence(space types.Space) (uint64, error)

	// Utility
	Close() error
}
