package replica

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/commontoolsinc/loom/pkg/events"
	"github.com/commontoolsinc/loom/pkg/log"
	"github.com/commontoolsinc/loom/pkg/metrics"
	"github.com/commontoolsinc/loom/pkg/reference"
	"github.com/commontoolsinc/loom/pkg/storage"
	"github.com/commontoolsinc/loom/pkg/types"
)

// Predicate selects the facts a subscription covers.
type Predicate func(key types.FactKey) bool

// Callback receives the composed view of a changed fact.
type Callback func(fact types.Fact, commit types.Commit)

// Cancel removes a subscription.
type Cancel func()

type subscription struct {
	predicate Predicate
	callback  Callback
}

// Replica is the per-space fact store. It holds two layers: confirmed
// facts (durably acknowledged) and a pending overlay (applied locally
// but not yet durable). Queries read pending first, falling back to
// confirmed.
type Replica struct {
	space  types.Space
	store  storage.Store
	broker *events.Broker
	logger zerolog.Logger

	mu        sync.RWMutex
	confirmed map[types.FactKey]types.Fact
	pending   map[types.FactKey]types.Fact
	hashes    map[types.FactKey]types.Reference
	since     uint64
	subs      map[string]subscription
}

// Open loads a replica for a space. A nil store keeps the replica
// purely in memory; a nil broker disables event publication.
func Open(space types.Space, store storage.Store, broker *events.Broker) (*Replica, error) {
	r := &Replica{
		space:     space,
		store:     store,
		broker:    broker,
		logger:    log.WithComponent("replica"),
		confirmed: make(map[types.FactKey]types.Fact),
		pending:   make(map[types.FactKey]types.Fact),
		hashes:    make(map[types.FactKey]types.Reference),
		subs:      make(map[string]subscription),
	}
	if store != nil {
		facts, err := store.ListFacts(space)
		if err != nil {
			return nil, err
		}
		for _, fact := range facts {
			r.confirmed[fact.Key()] = fact
			r.hashes[fact.Key()] = reference.ReferFact(fact)
		}
		since, err := store.GetSequence(space)
		if err != nil {
			return nil, err
		}
		r.since = since
		r.logger.Debug().
			Str("space", string(space)).
			Int("facts", len(facts)).
			Uint64("since", since).
			Msg("Replica loaded from durable store")
	}
	return r, nil
}

// Space returns the space the replica belongs to.
func (r *Replica) Space() types.Space {
	return r.space
}

// Get returns the current fact for (of, the). The boolean is false
// when the entity is unclaimed.
func (r *Replica) Get(key types.FactKey) (types.Fact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(key)
}

func (r *Replica) get(key types.FactKey) (types.Fact, bool) {
	if fact, ok := r.pending[key]; ok {
		return fact, true
	}
	fact, ok := r.confirmed[key]
	return fact, ok
}

// Hash returns the hash of the current fact, or the empty reference
// when the entity is unclaimed.
func (r *Replica) Hash(key types.FactKey) types.Reference {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hash(key)
}

func (r *Replica) hash(key types.FactKey) types.Reference {
	fact, ok := r.get(key)
	if !ok {
		return ""
	}
	// The cache is kept warm by Open and Apply; recompute without
	// caching so reads stay safe under the shared lock.
	if hash, ok := r.hashes[key]; ok {
		return hash
	}
	return reference.ReferFact(fact)
}

// Since returns the replica's commit sequence number.
func (r *Replica) Since() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.since
}

// Apply atomically verifies every claim against current state, then
// applies all facts. On any divergence the whole batch fails with a
// ConflictError naming the diverging entities and their actual state.
func (r *Replica) Apply(changes types.Changes) (*types.Commit, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitApplyDuration)

	r.mu.Lock()
	conflict := r.verify(changes.Claims)
	if conflict != nil {
		r.mu.Unlock()
		metrics.CommitConflicts.WithLabelValues(string(r.space)).Inc()
		r.logger.Debug().
			Str("space", string(r.space)).
			Int("conflicts", len(conflict.Conflicts)).
			Msg("Commit rejected")
		r.publishConflict(conflict)
		return nil, conflict
	}

	// Stage into the pending overlay, then promote once durable.
	for _, fact := range changes.Facts {
		r.pending[fact.Key()] = fact
		r.hashes[fact.Key()] = reference.ReferFact(fact)
	}
	if r.store != nil {
		if err := r.store.PutFacts(r.space, changes.Facts); err != nil {
			// Durability failed; drop the overlay back to confirmed.
			for _, fact := range changes.Facts {
				delete(r.pending, fact.Key())
				delete(r.hashes, fact.Key())
			}
			r.mu.Unlock()
			return nil, err
		}
		for _, fact := range changes.Facts {
			if err := r.store.AppendHistory(r.space, fact, r.hashes[fact.Key()]); err != nil {
				r.logger.Error().Err(err).Msg("Failed to append history entry")
			}
		}
	}
	for _, fact := range changes.Facts {
		r.confirmed[fact.Key()] = fact
		delete(r.pending, fact.Key())
	}
	r.since++
	if r.store != nil {
		if err := r.store.PutSequence(r.space, r.since); err != nil {
			r.logger.Error().Err(err).Msg("Failed to persist commit sequence")
		}
	}
	commit := types.Commit{Space: r.space, Since: r.since, At: time.Now()}
	notify := r.match(changes.Facts)
	r.updateGauges()
	r.mu.Unlock()

	metrics.CommitsApplied.WithLabelValues(string(r.space)).Inc()
	for _, entry := range notify {
		entry.sub.callback(entry.fact, commit)
	}
	r.publishFacts(changes.Facts)
	return &commit, nil
}

// verify compares every claim's expected hash against current state.
func (r *Replica) verify(claims []types.Claim) *ConflictError {
	var conflicts []Conflict
	for _, claim := range claims {
		key := types.FactKey{Of: claim.Of, The: claim.The}
		actual := r.hash(key)
		if actual != claim.Expected {
			entry := Conflict{Of: claim.Of, The: claim.The, Expected: claim.Expected, Actual: actual}
			if fact, ok := r.get(key); ok {
				entry.State = &fact
			}
			conflicts = append(conflicts, entry)
		}
	}
	if len(conflicts) == 0 {
		return nil
	}
	return &ConflictError{Space: r.space, Conflicts: conflicts}
}

type notification struct {
	sub  subscription
	fact types.Fact
}

func (r *Replica) match(facts []types.Fact) []notification {
	var matched []notification
	for _, sub := range r.subs {
		for _, fact := range facts {
			if sub.predicate == nil || sub.predicate(fact.Key()) {
				matched = append(matched, notification{sub: sub, fact: fact})
			}
		}
	}
	return matched
}

// Subscribe registers a callback fired with the composed view of every
// applied fact the predicate matches. A nil predicate matches all.
func (r *Replica) Subscribe(predicate Predicate, callback Callback) Cancel {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New().String()
	r.subs[id] = subscription{predicate: predicate, callback: callback}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Select answers a query for the named entities, returning the
// composed view, version, and hash of each claimed one.
func (r *Replica) Select(selector types.Selector) map[types.EntityID]types.Revision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[types.EntityID]types.Revision, len(selector))
	for id := range selector {
		key := types.FactKey{Of: id, The: types.ApplicationJSON}
		fact, ok := r.get(key)
		if !ok {
			continue
		}
		result[id] = types.Revision{
			Value:   fact.Is,
			Hash:    r.hash(key),
			Version: r.since,
		}
	}
	return result
}

func (r *Replica) updateGauges() {
	metrics.FactsTotal.WithLabelValues(string(r.space), "confirmed").Set(float64(len(r.confirmed)))
	metrics.FactsTotal.WithLabelValues(string(r.space), "pending").Set(float64(len(r.pending)))
}

func (r *Replica) publishFacts(facts []types.Fact) {
	if r.broker == nil {
		return
	}
	for _, fact := range facts {
		eventType := events.EventFactAsserted
		if fact.Retracted() {
			eventType = events.EventFactRetracted
		}
		r.broker.Publish(&events.Event{
			Type:  eventType,
			Space: r.space,
			Of:    fact.Of,
		})
	}
}

func (r *Replica) publishConflict(conflict *ConflictError) {
	if r.broker == nil {
		return
	}
	for _, entry := range conflict.Conflicts {
		r.broker.Publish(&events.Event{
			Type:    events.EventCommitConflict,
			Space:   r.space,
			Of:      entry.Of,
			Message: "commit rejected: claim diverged",
		})
	}
}
