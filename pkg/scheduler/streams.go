package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/commontoolsinc/loom/pkg/metrics"
	"github.com/commontoolsinc/loom/pkg/types"
)

// Handler consumes one event delivered to a stream address.
type Handler func(ctx context.Context, event any) error

// AutoStart is the hook the runtime installs to boot the computation
// owning a stream cell the first time an event arrives with no
// handler registered. It reports whether a start was initiated.
type AutoStart func(address types.Address) bool

type queuedEvent struct {
	address types.Address
	event   any
}

// streams holds event queues and handler registrations for cells
// whose schema declares asStream.
type streams struct {
	mu        sync.Mutex
	queue     []queuedEvent
	handlers  map[string]map[string]Handler
	autoStart AutoStart
	started   map[string]bool
}

func newStreams() *streams {
	return &streams{
		handlers: make(map[string]map[string]Handler),
		started:  make(map[string]bool),
	}
}

func streamKey(address types.Address) string {
	return address.String()
}

// QueueEvent appends one event to the stream at an address and
// schedules dispatch.
func (s *Scheduler) QueueEvent(address types.Address, event any) {
	s.streams.mu.Lock()
	s.streams.queue = append(s.streams.queue, queuedEvent{address: address, event: event})
	s.streams.mu.Unlock()
	metrics.EventsQueued.Inc()
	s.kick()
}

// RegisterHandler subscribes a handler to the stream at an address.
func (s *Scheduler) RegisterHandler(address types.Address, handler Handler) Cancel {
	key := streamKey(address)
	id := uuid.New().String()
	s.streams.mu.Lock()
	if s.streams.handlers[key] == nil {
		s.streams.handlers[key] = make(map[string]Handler)
	}
	s.streams.handlers[key][id] = handler
	s.streams.mu.Unlock()
	s.kick()
	return func() {
		s.streams.mu.Lock()
		delete(s.streams.handlers[key], id)
		s.streams.mu.Unlock()
	}
}

// SetAutoStart installs the runtime's stream owner boot hook.
func (s *Scheduler) SetAutoStart(hook AutoStart) {
	s.streams.mu.Lock()
	s.streams.autoStart = hook
	s.streams.mu.Unlock()
}

// dispatch delivers queued events one at a time. Events whose address
// has no handler consult the auto-start hook exactly once per cell to
// avoid infinite retry loops; events that still find no handler after
// that are dropped. Reports whether anything was delivered.
func (st *streams) dispatch(ctx context.Context, s *Scheduler) bool {
	worked := false
	for {
		st.mu.Lock()
		if len(st.queue) == 0 {
			st.mu.Unlock()
			return worked
		}
		next := st.queue[0]
		st.queue = st.queue[1:]
		key := streamKey(next.address)
		handlers := make([]Handler, 0, len(st.handlers[key]))
		for _, handler := range st.handlers[key] {
			handlers = append(handlers, handler)
		}
		hook := st.autoStart
		startable := hook != nil && len(handlers) == 0 && !st.started[key]
		if startable {
			st.started[key] = true
		}
		st.mu.Unlock()

		if startable {
			if hook(next.address) {
				// The owner registered its handler; requeue and retry.
				st.mu.Lock()
				st.queue = append([]queuedEvent{next}, st.queue...)
				st.mu.Unlock()
				worked = true
				continue
			}
		}
		for _, handler := range handlers {
			if err := handler(ctx, next.event); err != nil {
				s.logger.Error().Err(err).
					Str("stream", key).
					Msg("Stream handler failed")
			}
		}
		worked = worked || len(handlers) > 0
	}
}

func (st *streams) empty() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.queue) == 0
}
