package transaction

import (
	"github.com/commontoolsinc/loom/pkg/types"
)

// Activity is one entry of a transaction's ordered log. Exactly one
// of Read or Write is set.
type Activity struct {
	Read  *types.Address `json:"read,omitempty"`
	Write *types.Address `json:"write,omitempty"`
}

// snapshot fixes the fact a transaction observed for one entity. A
// nil Fact records that the entity was unclaimed.
type snapshot struct {
	fact *types.Fact
	hash types.Reference
}

// Journal is the ordered activity log of one transaction. It is
// sufficient to reconstruct the reads (history) and writes (novelty)
// the transaction performed.
type Journal struct {
	activity []Activity
	history  map[types.Space]map[types.FactKey]snapshot
	novelty  map[types.Space]map[types.FactKey]any
	order    map[types.Space][]types.FactKey
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{
		history: make(map[types.Space]map[types.FactKey]snapshot),
		novelty: make(map[types.Space]map[types.FactKey]any),
		order:   make(map[types.Space][]types.FactKey),
	}
}

// Activity returns the ordered log of read and write records.
func (j *Journal) Activity() []Activity {
	return j.activity
}

// Novelty returns the composed value written per entity of a space.
func (j *Journal) Novelty(space types.Space) map[types.FactKey]any {
	return j.novelty[space]
}

// History returns the facts observed per entity of a space. Entities
// observed unclaimed map to nil.
func (j *Journal) History(space types.Space) map[types.FactKey]*types.Fact {
	observed := make(map[types.FactKey]*types.Fact, len(j.history[space]))
	for key, snap := range j.history[space] {
		observed[key] = snap.fact
	}
	return observed
}

func (j *Journal) recordRead(address types.Address) {
	addr := address
	j.activity = append(j.activity, Activity{Read: &addr})
}

func (j *Journal) recordWrite(address types.Address) {
	addr := address
	j.activity = append(j.activity, Activity{Write: &addr})
}

// observe fixes an entity's snapshot the first time it is read.
func (j *Journal) observe(space types.Space, key types.FactKey, fact *types.Fact, hash types.Reference) snapshot {
	if j.history[space] == nil {
		j.history[space] = make(map[types.FactKey]snapshot)
	}
	if existing, ok := j.history[space][key]; ok {
		return existing
	}
	snap := snapshot{fact: fact, hash: hash}
	j.history[space][key] = snap
	return snap
}

func (j *Journal) observed(space types.Space, key types.FactKey) (snapshot, bool) {
	snap, ok := j.history[space][key]
	return snap, ok
}

// stage records the composed value of an entity after a write.
func (j *Journal) stage(space types.Space, key types.FactKey, value any) {
	if j.novelty[space] == nil {
		j.novelty[space] = make(map[types.FactKey]any)
	}
	if _, ok := j.novelty[space][key]; !ok {
		j.order[space] = append(j.order[space], key)
	}
	j.novelty[space][key] = value
}

func (j *Journal) staged(space types.Space, key types.FactKey) (any, bool) {
	value, ok := j.novelty[space][key]
	return value, ok
}

// stagedOrder returns the entities of a space in first-write order.
func (j *Journal) stagedOrder(space types.Space) []types.FactKey {
	return j.order[space]
}
