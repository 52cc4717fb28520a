package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/commontoolsinc/loom/pkg/log"
	"github.com/commontoolsinc/loom/pkg/metrics"
)

// maxExecutionsPerDrain bounds re-execution inside one drain: cycles
// are broken after at most one re-run per action.
const maxExecutionsPerDrain = 2

// Cancel removes an action or handler from the scheduler.
type Cancel func()

// Scheduler drives the directed graph of actions. Edges are inferred
// from read/write set overlap; a commit's novelty marks dependents
// dirty and the dirty frontier drains in topological order on a
// single cooperative goroutine.
type Scheduler struct {
	logger zerolog.Logger

	mu       sync.Mutex
	actions  map[string]*action
	order    int
	dirty    map[string]bool
	draining bool
	waiters  []chan struct{}

	streams   *streams
	wake      chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
	stoppedCh chan struct{}
}

// New creates a scheduler. Start must be called before actions run.
func New() *Scheduler {
	return &Scheduler{
		logger:    log.WithComponent("scheduler"),
		actions:   make(map[string]*action),
		dirty:     make(map[string]bool),
		streams:   newStreams(),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	go s.run()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.stoppedCh
}

// Register adds an action under a stable id, replacing any prior
// action with the same id. Every new action is marked dirty so its
// first run can discover its sets.
func (s *Scheduler) Register(id string, run RunFunc, opts Options) Cancel {
	s.mu.Lock()
	a := &action{
		id:     id,
		run:    run,
		opts:   opts,
		order:  s.order,
		reads:  opts.Reads,
		writes: opts.Writes,
	}
	s.order++
	s.actions[id] = a
	// A fresh action runs once to discover (or act on) its inputs.
	s.markDirtyLocked(a)
	s.mu.Unlock()

	metrics.ActionsRegistered.Set(float64(len(s.actions)))
	s.kick()
	return func() { s.cancel(id) }
}

func (s *Scheduler) cancel(id string) {
	s.mu.Lock()
	if a, ok := s.actions[id]; ok {
		if a.timer != nil {
			a.timer.Stop()
			a.timer = nil
		}
		delete(s.actions, id)
		delete(s.dirty, id)
	}
	count := len(s.actions)
	s.mu.Unlock()
	metrics.ActionsRegistered.Set(float64(count))
	s.kick()
}

// Notify marks every action whose read set overlaps the novelty
// dirty and schedules a drain.
func (s *Scheduler) Notify(novelty []Tuple) {
	if len(novelty) == 0 {
		return
	}
	s.mu.Lock()
	for _, a := range s.actions {
		if a.readsOverlap(novelty) {
			s.markDirtyLocked(a)
		}
	}
	s.mu.Unlock()
	s.kick()
}

// markDirtyLocked adds an action to the dirty set, honouring its
// debounce/throttle windows through the gate and timer state.
func (s *Scheduler) markDirtyLocked(a *action) {
	s.dirty[a.id] = true
	metrics.DirtyDepth.Set(float64(len(s.dirty)))

	if a.opts.Debounce > 0 {
		// Each trigger restarts the window.
		a.gated = true
		if a.timer != nil {
			a.timer.Stop()
			a.timer = nil
		}
		a.timerGen++
		gen := a.timerGen
		a.timer = time.AfterFunc(a.opts.Debounce, func() { s.ungate(a.id, gen) })
		return
	}
	if a.opts.Throttle > 0 {
		wait := a.opts.Throttle - time.Since(a.lastFire)
		if a.ran && wait > 0 {
			a.gated = true
			if a.timer == nil {
				// Coalesce: one timer per window, later triggers ride it.
				a.timerGen++
				gen := a.timerGen
				a.timer = time.AfterFunc(wait, func() { s.ungate(a.id, gen) })
			}
			return
		}
	}
	a.gated = false
}

func (s *Scheduler) ungate(id string, gen int) {
	s.mu.Lock()
	if a, ok := s.actions[id]; ok && a.timer != nil && a.timerGen == gen {
		a.timer = nil
		a.gated = false
	}
	s.mu.Unlock()
	s.kick()
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run is the scheduler loop: a single cooperative goroutine draining
// dirty actions and stream queues until quiescent.
func (s *Scheduler) run() {
	defer close(s.stoppedCh)
	ctx := context.Background()
	for {
		select {
		case <-s.wake:
			s.drain(ctx)
		case <-s.stopCh:
			return
		}
	}
}

// drain executes the dirty frontier in topological order, then
// dispatches queued stream events, repeating until neither produces
// work.
func (s *Scheduler) drain(ctx context.Context) {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	executions := make(map[string]int)
	for {
		ran := s.step(ctx, executions)
		dispatched := s.streams.dispatch(ctx, s)
		if !ran && !dispatched {
			break
		}
	}

	s.mu.Lock()
	s.draining = false
	quiescent := s.quiescentLocked()
	var waiters []chan struct{}
	if quiescent {
		waiters = s.waiters
		s.waiters = nil
	}
	s.mu.Unlock()
	for _, waiter := range waiters {
		close(waiter)
	}
}

// step runs the next ready action of the dirty frontier. It reports
// false when nothing was runnable.
func (s *Scheduler) step(ctx context.Context, executions map[string]int) bool {
	s.mu.Lock()
	next := s.pickLocked(executions)
	if next == nil {
		s.mu.Unlock()
		return false
	}
	delete(s.dirty, next.id)
	metrics.DirtyDepth.Set(float64(len(s.dirty)))
	run := next.run
	s.mu.Unlock()

	executions[next.id]++
	timer := metrics.NewTimer()
	result, err := run(ctx)
	timer.ObserveDuration(metrics.ActionRunDuration)
	kind := "computation"
	if next.opts.Effect {
		kind = "effect"
	}
	metrics.ActionRuns.WithLabelValues(kind).Inc()
	if err != nil {
		s.logger.Error().Err(err).Str("action_id", next.id).Msg("Action run failed")
	}

	s.mu.Lock()
	next.ran = true
	next.lastFire = time.Now()
	if len(result.Reads) > 0 || len(result.Writes) > 0 {
		next.reads = result.Reads
		next.writes = result.Writes
	}
	// The run's writes mark dependents dirty, except actions that
	// already exhausted their budget for this drain.
	if len(next.writes) > 0 {
		for _, b := range s.actions {
			if b.readsOverlap(next.writes) && executions[b.id] < maxExecutionsPerDrain {
				s.markDirtyLocked(b)
			}
		}
	}
	s.mu.Unlock()
	return true
}

// pickLocked chooses the next runnable dirty action: topological
// order among the ready frontier, computations before effects, ties
// broken by registration order. When only cycle members remain, the
// lowest-ordered one runs anyway; members over budget are dropped.
func (s *Scheduler) pickLocked(executions map[string]int) *action {
	var runnable []*action
	for id := range s.dirty {
		a, ok := s.actions[id]
		if !ok || a.gated {
			continue
		}
		if executions[id] >= maxExecutionsPerDrain {
			// Cycle break: leave the loop rather than spin.
			delete(s.dirty, id)
			metrics.DirtyDepth.Set(float64(len(s.dirty)))
			continue
		}
		runnable = append(runnable, a)
	}
	if len(runnable) == 0 {
		return nil
	}
	sort.Slice(runnable, func(i, j int) bool {
		if runnable[i].opts.Effect != runnable[j].opts.Effect {
			return !runnable[i].opts.Effect
		}
		return runnable[i].order < runnable[j].order
	})
	// Prefer an action no other runnable action feeds.
	for _, candidate := range runnable {
		ready := true
		for _, other := range runnable {
			if other != candidate && other.feeds(candidate) {
				ready = false
				break
			}
		}
		if ready {
			return candidate
		}
	}
	return runnable[0]
}

func (s *Scheduler) quiescentLocked() bool {
	if len(s.dirty) > 0 || !s.streams.empty() {
		return false
	}
	for _, a := range s.actions {
		if a.timer != nil {
			return false
		}
	}
	return true
}

// Idle resolves after the dirty frontier is empty and no timers are
// pending.
func (s *Scheduler) Idle(ctx context.Context) error {
	s.mu.Lock()
	if !s.draining && s.quiescentLocked() {
		s.mu.Unlock()
		return nil
	}
	waiter := make(chan struct{})
	s.waiters = append(s.waiters, waiter)
	s.mu.Unlock()
	s.kick()

	select {
	case <-waiter:
		return nil
	case <-s.stopCh:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}
