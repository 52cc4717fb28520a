package storage

import (
	"fmt"
	"sync"

	"github.com/commontoolsinc/loom/pkg/types"
)

// MemoryStore implements Store without durability. Ephemeral runtimes
// and tests use it in place of BoltDB.
type MemoryStore struct {
	mu       sync.RWMutex
	facts    map[string]types.Fact
	history  map[string]types.Fact
	sequence map[types.Space]uint64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		facts:    make(map[string]types.Fact),
		history:  make(map[string]types.Fact),
		sequence: make(map[types.Space]uint64),
	}
}

func (s *MemoryStore) PutFacts(space types.Space, facts []types.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fact := range facts {
		s.facts[string(factKey(space, fact.Key()))] = fact
	}
	return nil
}

func (s *MemoryStore) GetFact(space types.Space, key types.FactKey) (*types.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fact, ok := s.facts[string(factKey(space, key))]
	if !ok {
		return nil, fmt.Errorf("fact not found: %s", key)
	}
	return &fact, nil
}

func (s *MemoryStore) ListFacts(space types.Space) ([]types.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := string(space) + "|"
	var facts []types.Fact
	for key, fact := range s.facts {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			facts = append(facts, fact)
		}
	}
	return facts, nil
}

func (s *MemoryStore) AppendHistory(space types.Space, fact types.Fact, hash types.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[string(historyKey(space, fact.Key(), hash))] = fact
	return nil
}

func (s *MemoryStore) GetHistory(space types.Space, key types.FactKey, hash types.Reference) (*types.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fact, ok := s.history[string(historyKey(space, key, hash))]
	if !ok {
		return nil, fmt.Errorf("history entry not found: %s@%s", key, hash)
	}
	return &fact, nil
}

func (s *MemoryStore) PutSequence(space types.Space, since uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence[space] = since
	return nil
}

func (s *MemoryStore) GetSequence(space types.Space) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequence[space], nil
}

func (s *MemoryStore) Close() error {
	return nil
}
