package replica

import (
	"sync"

	"github.com/commontoolsinc/loom/pkg/events"
	"github.com/commontoolsinc/loom/pkg/storage"
	"github.com/commontoolsinc/loom/pkg/types"
)

// Manager owns the replicas of one runtime instance. Replicas are not
// shared between runtimes, but many runtimes may share the durable
// store underneath.
type Manager struct {
	store  storage.Store
	broker *events.Broker

	mu       sync.Mutex
	replicas map[types.Space]*Replica
}

// NewManager creates a manager over a durable store. Both the store
// and broker may be nil.
func NewManager(store storage.Store, broker *events.Broker) *Manager {
	return &Manager{
		store:    store,
		broker:   broker,
		replicas: make(map[types.Space]*Replica),
	}
}

// Open returns the replica for a space, loading it on first use.
func (m *Manager) Open(space types.Space) (*Replica, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.replicas[space]; ok {
		return r, nil
	}
	r, err := Open(space, m.store, m.broker)
	if err != nil {
		return nil, err
	}
	m.replicas[space] = r
	return r, nil
}

// Close releases the durable store.
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}
