package runtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/commontoolsinc/loom/pkg/cfc"
	"github.com/commontoolsinc/loom/pkg/events"
	"github.com/commontoolsinc/loom/pkg/log"
	"github.com/commontoolsinc/loom/pkg/replica"
	"github.com/commontoolsinc/loom/pkg/scheduler"
	"github.com/commontoolsinc/loom/pkg/storage"
	"github.com/commontoolsinc/loom/pkg/transaction"
	"github.com/commontoolsinc/loom/pkg/types"
)

// Config configures a runtime instance.
type Config struct {
	// Store is the durable layer; nil keeps everything in memory.
	Store storage.Store
	// Broker receives observer events; nil disables publication.
	Broker *events.Broker
	// Lattice and Mode configure flow control. A nil lattice with a
	// non-disabled mode falls back to the reference lattice.
	Lattice *cfc.Lattice
	Mode    cfc.Mode
	// MaxRetries bounds EditWithRetry; negative means the default.
	MaxRetries int
}

// Runtime is the façade tying the memory layer to the scheduler. One
// runtime owns its replicas and its action graph; many runtimes may
// share a durable store.
type Runtime struct {
	config    Config
	manager   *replica.Manager
	scheduler *scheduler.Scheduler
	patterns  *PatternRegistry
	logger    zerolog.Logger

	mu      sync.Mutex
	watched map[types.Space]replica.Cancel
	started map[string]bool
}

// New creates and starts a runtime.
func New(config Config) *Runtime {
	if config.MaxRetries < 0 {
		config.MaxRetries = transaction.DefaultMaxRetries
	}
	if config.Mode == "" {
		config.Mode = cfc.ModeDisabled
	}
	r := &Runtime{
		config:    config,
		manager:   replica.NewManager(config.Store, config.Broker),
		scheduler: scheduler.New(),
		patterns:  NewPatternRegistry(),
		logger:    log.WithComponent("runtime"),
		watched:   make(map[types.Space]replica.Cancel),
		started:   make(map[string]bool),
	}
	r.scheduler.SetAutoStart(r.autoStart)
	r.scheduler.Start()
	return r
}

// Scheduler exposes the runtime's action graph.
func (r *Runtime) Scheduler() *scheduler.Scheduler {
	return r.scheduler
}

// Patterns exposes the pattern registry the evaluation harness fills.
func (r *Runtime) Patterns() *PatternRegistry {
	return r.patterns
}

// Open satisfies transaction.Provider: replicas opened on behalf of
// transactions are watched, so their commits reach the scheduler.
func (r *Runtime) Open(space types.Space) (*replica.Replica, error) {
	return r.Replica(space)
}

// Edit opens a transaction bound to this runtime's replicas. Flow
// control follows the runtime's configured lattice and mode.
func (r *Runtime) Edit() *transaction.Transaction {
	var opts []transaction.Option
	if r.config.Mode != cfc.ModeDisabled {
		opts = append(opts, transaction.WithTaint(r.config.Lattice, r.config.Mode))
	}
	return transaction.New(r, opts...)
}

// EditWithRetry drives body through fresh transactions until a commit
// lands, retrying conflicts and explicit aborts. It reports whether a
// commit succeeded.
func (r *Runtime) EditWithRetry(body transaction.Body) (bool, error) {
	return transaction.EditWithRetry(r.Edit, body, r.config.MaxRetries)
}

// Replica opens (and starts watching) the replica of a space.
func (r *Runtime) Replica(space types.Space) (*replica.Replica, error) {
	rep, err := r.manager.Open(space)
	if err != nil {
		return nil, err
	}
	r.watch(space, rep)
	return rep, nil
}

// watch forwards a replica's applied facts into the scheduler as
// novelty, once per space.
func (r *Runtime) watch(space types.Space, rep *replica.Replica) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.watched[space]; ok {
		return
	}
	cancel := rep.Subscribe(nil, func(fact types.Fact, _ types.Commit) {
		r.scheduler.Notify([]scheduler.Tuple{{
			Space: space, Of: fact.Of, The: fact.The,
		}})
	})
	r.watched[space] = cancel
}

// Idle suspends until the scheduler is quiescent: dirty frontier
// empty and no timers pending.
func (r *Runtime) Idle(ctx context.Context) error {
	return r.scheduler.Idle(ctx)
}

// Dispose stops the scheduler and disconnects replica subscriptions.
// The durable store closes with it, so a later runtime can reopen the
// same state.
func (r *Runtime) Dispose() {
	r.scheduler.Stop()
	r.mu.Lock()
	for _, cancel := range r.watched {
		cancel()
	}
	r.watched = make(map[types.Space]replica.Cancel)
	r.mu.Unlock()
	if err := r.manager.Close(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to close storage manager")
	}
}
