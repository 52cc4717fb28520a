package runtime

import (
	"context"

	"github.com/commontoolsinc/loom/pkg/changeset"
	"github.com/commontoolsinc/loom/pkg/reference"
	"github.com/commontoolsinc/loom/pkg/replica"
	"github.com/commontoolsinc/loom/pkg/scheduler"
	"github.com/commontoolsinc/loom/pkg/transaction"
	"github.com/commontoolsinc/loom/pkg/types"
)

// Process is a running pattern instance: a computation wired from an
// input cell to a result cell, identified by a stable entity so it
// resumes across processes.
type Process struct {
	Entity types.EntityID
	cancel scheduler.Cancel
}

// Cancel removes the process's computation from the scheduler. The
// process fact stays put, so a later Run resumes it.
func (p *Process) Cancel() {
	if p.cancel != nil {
		p.cancel()
	}
}

// processFact is the stored shape describing a pattern instance.
func processFact(pattern string, input, result *Cell) map[string]any {
	return map[string]any{
		"pattern": pattern,
		"input":   input.GetAsNormalizedFullLink(),
		"result":  result.GetAsNormalizedFullLink(),
	}
}

// Run instantiates a pattern against an input cell, writing into the
// result cell whenever the input changes. The process entity derives
// causally from (pattern, input, result), so running the same triple
// again — in this runtime or a later one — resumes the same instance.
func (r *Runtime) Run(space types.Space, pattern string, input, result *Cell) (*Process, error) {
	fn, err := r.patterns.Get(pattern)
	if err != nil {
		return nil, err
	}
	entity := changeset.EntityFromCause(map[string]any{
		"type":    "process",
		"pattern": pattern,
		"input":   input.GetAsNormalizedFullLink(),
		"result":  result.GetAsNormalizedFullLink(),
	})
	address := types.Address{Space: space, ID: entity, Type: types.ApplicationJSON}

	ok, err := r.EditWithRetry(func(tx *transaction.Transaction) error {
		cell := &Cell{runtime: r, address: address, tx: tx}
		return cell.apply(tx, processFact(pattern, input, result))
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &CommitFailedError{Address: address}
	}

	cancel := r.scheduler.Register(string(entity), r.computation(fn, input, result), scheduler.Options{
		Reads: []scheduler.Tuple{scheduler.TupleOf(input.address)},
	})
	r.logger.Debug().
		Str("pattern", pattern).
		Str("process", string(entity)).
		Msg("Pattern instance running")
	return &Process{Entity: entity, cancel: cancel}, nil
}

// computation wraps a pattern function into a scheduler action: read
// the input through its schema, derive the output, stage the diff
// into the result cell, commit.
func (r *Runtime) computation(fn PatternFn, input, result *Cell) scheduler.RunFunc {
	return func(_ context.Context) (scheduler.RunResult, error) {
		var reads []scheduler.Tuple
		body := func(tx *transaction.Transaction) error {
			bound := input.WithTx(tx)
			view, tr, err := bound.traverse()
			if err != nil {
				return err
			}
			var value any
			if view != nil {
				value = view.Value()
			}
			reads = reads[:0]
			reads = append(reads, scheduler.TupleOf(input.address))
			if tr != nil {
				for _, read := range tr.Reads {
					reads = append(reads, scheduler.TupleOf(read))
				}
			}
			if value == nil {
				// Nothing to compute from yet.
				return nil
			}
			output, err := fn(value)
			if err != nil {
				return err
			}
			return result.WithTx(tx).apply(tx, output)
		}
		ok, err := r.EditWithRetry(body)
		if err != nil {
			return scheduler.RunResult{Reads: reads}, err
		}
		if !ok {
			return scheduler.RunResult{Reads: reads}, &CommitFailedError{Address: result.address}
		}
		return scheduler.RunResult{
			Reads:  reads,
			Writes: []scheduler.Tuple{scheduler.TupleOf(result.address)},
		}, nil
	}
}

// autoStart boots the computation owning a stream cell the first time
// an event arrives with no handler: if the cell's fact references a
// known pattern and a result link, the instance starts exactly once.
func (r *Runtime) autoStart(address types.Address) bool {
	rep, err := r.Replica(address.Space)
	if err != nil {
		return false
	}
	return r.startFromFact(rep, address)
}

func (r *Runtime) startFromFact(rep *replica.Replica, address types.Address) bool {
	fact, ok := rep.Get(types.FactKey{Of: address.ID, The: address.Type})
	if !ok || fact.Retracted() {
		return false
	}
	object, ok := fact.Is.(map[string]any)
	if !ok {
		return false
	}
	pattern, _ := object["pattern"].(string)
	if pattern == "" || !r.patterns.Has(pattern) {
		return false
	}
	inputLink, ok := reference.ParseLink(object["input"])
	if !ok {
		return false
	}
	resultLink, ok := reference.ParseLink(object["result"])
	if !ok {
		return false
	}

	r.mu.Lock()
	if r.started[string(address.ID)] {
		r.mu.Unlock()
		return false
	}
	r.started[string(address.ID)] = true
	r.mu.Unlock()

	input := &Cell{runtime: r, address: inputLink.Address(address.Space, address.Type)}
	result := &Cell{runtime: r, address: resultLink.Address(address.Space, address.Type)}
	if _, err := r.Run(address.Space, pattern, input, result); err != nil {
		r.logger.Error().Err(err).
			Str("pattern", pattern).
			Msg("Auto-start failed")
		return false
	}
	return true
}
