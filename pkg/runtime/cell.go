package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/commontoolsinc/loom/pkg/attestation"
	"github.com/commontoolsinc/loom/pkg/changeset"
	"github.com/commontoolsinc/loom/pkg/reference"
	"github.com/commontoolsinc/loom/pkg/scheduler"
	"github.com/commontoolsinc/loom/pkg/schema"
	"github.com/commontoolsinc/loom/pkg/transaction"
	"github.com/commontoolsinc/loom/pkg/traverse"
	"github.com/commontoolsinc/loom/pkg/types"
)

// Cell is a handle on one position of the memory graph: an address
// interpreted under a schema, optionally bound to a transaction.
type Cell struct {
	runtime *Runtime
	address types.Address
	schema  *schema.Schema
	tx      *transaction.Transaction
}

// GetCell names a cell. A string cause is a stable id; any other
// cause is hashed to derive the entity, so the pair (space, cause)
// names the same cell across processes.
func (r *Runtime) GetCell(space types.Space, cause any, s *schema.Schema) *Cell {
	var id types.EntityID
	switch c := cause.(type) {
	case types.EntityID:
		id = c
	case string:
		if strings.HasPrefix(c, types.EntityPrefix) || strings.HasPrefix(c, "data:") {
			id = types.EntityID(c)
		} else {
			id = types.NewEntityID(c)
		}
	default:
		id = changeset.EntityFromCause(cause)
	}
	return &Cell{
		runtime: r,
		address: types.Address{Space: space, ID: id, Type: types.ApplicationJSON},
		schema:  s,
	}
}

// Address returns the position the cell names.
func (c *Cell) Address() types.Address {
	return c.address
}

// Schema returns the schema the cell is interpreted under.
func (c *Cell) Schema() *schema.Schema {
	return c.schema
}

// WithTx rebinds the cell to a transaction. Reads and writes then go
// through it; the caller owns the commit.
func (c *Cell) WithTx(tx *transaction.Transaction) *Cell {
	clone := *c
	clone.tx = tx
	return &clone
}

// AsSchema reinterprets the cell under a new schema.
func (c *Cell) AsSchema(s *schema.Schema) *Cell {
	clone := *c
	clone.schema = s
	return &clone
}

// Key derives the handle of a child position.
func (c *Cell) Key(key string) *Cell {
	clone := *c
	clone.address = c.address.At(key)
	if c.schema != nil && !c.schema.IsTrue() {
		resolver := schema.NewResolver(c.schema)
		if next, err := resolver.AtPath(c.schema, types.Path{key}); err == nil {
			clone.schema = next
		} else {
			clone.schema = schema.True()
		}
	}
	return &clone
}

// Equals reports whether both handles name the same entity, type, and
// path under the same runtime.
func (c *Cell) Equals(other *Cell) bool {
	return other != nil &&
		c.runtime == other.runtime &&
		c.address.Space == other.address.Space &&
		c.address.ID == other.address.ID &&
		c.address.Type == other.address.Type &&
		c.address.Path.Equal(other.address.Path)
}

// GetAsLink renders the cell as a link sigil value.
func (c *Cell) GetAsLink() map[string]any {
	link := reference.Link{ID: c.address.ID, Path: c.address.Path}
	return link.ToValue()
}

// GetAsNormalizedFullLink renders the cell as a link with its space
// made explicit.
func (c *Cell) GetAsNormalizedFullLink() map[string]any {
	link := reference.Link{ID: c.address.ID, Path: c.address.Path, Space: c.address.Space}
	return link.ToValue()
}

// source returns the fact source reads resolve against: the bound
// transaction, or the replica layer directly.
func (c *Cell) source() (traverse.Source, error) {
	if c.tx != nil {
		return c.tx, nil
	}
	if _, err := c.runtime.Replica(c.address.Space); err != nil {
		return nil, err
	}
	return replicaSource{runtime: c.runtime}, nil
}

type replicaSource struct {
	runtime *Runtime
}

func (s replicaSource) Get(space types.Space, key types.FactKey) (types.Fact, bool) {
	rep, err := s.runtime.Replica(space)
	if err != nil {
		return types.Fact{}, false
	}
	return rep.Get(key)
}

// Get reads the cell through its schema, returning a structural view
// with asCell/asStream positions rewritten to sub-handles. A read
// that finds nothing yields nil.
func (c *Cell) Get() (any, error) {
	view, _, err := c.traverse()
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, nil
	}
	return c.materialize(view), nil
}

func (c *Cell) traverse() (traverse.View, *traverse.Traverser, error) {
	source, err := c.source()
	if err != nil {
		return nil, nil, err
	}
	tr := traverse.New(source)
	view, err := tr.Traverse(c.address, c.schema)
	if err != nil {
		var notFound *attestation.NotFoundError
		if errors.As(err, &notFound) {
			return nil, tr, nil
		}
		return nil, tr, err
	}
	if c.tx != nil && c.tx.Taint() != nil {
		c.tx.Taint().Observe(tr.Labels)
	}
	return view, tr, nil
}

func (c *Cell) materialize(view traverse.View) any {
	switch v := view.(type) {
	case traverse.Object:
		out := make(map[string]any, len(v.Entries))
		for key, entry := range v.Entries {
			out[key] = c.materialize(entry)
		}
		return out
	case traverse.Array:
		out := make([]any, len(v.Items))
		for i, item := range v.Items {
			out[i] = c.materialize(item)
		}
		return out
	case traverse.Ref:
		return &Cell{runtime: c.runtime, address: v.Address, schema: v.Schema, tx: c.tx}
	default:
		return view.Value()
	}
}

// GetRaw returns the stored JSON view at the cell's address, links
// intact. A not-found path yields nil.
func (c *Cell) GetRaw() (any, error) {
	read := func(tx *transaction.Transaction) (any, error) {
		att, err := tx.Read(c.address)
		if err != nil {
			var notFound *attestation.NotFoundError
			if errors.As(err, &notFound) {
				return nil, nil
			}
			return nil, err
		}
		return att.Value, nil
	}
	if c.tx != nil {
		return read(c.tx)
	}
	tx := c.runtime.Edit()
	value, err := read(tx)
	if err != nil {
		tx.Abort(err)
		return nil, err
	}
	_, err = tx.Commit()
	return value, err
}

// destinationLabels collects the cell schema's labels for flow
// control on writes.
func (c *Cell) destinationLabels() []string {
	if c.schema == nil {
		return nil
	}
	resolver := schema.NewResolver(c.schema)
	labels, err := resolver.LabelsAtPath(c.schema, nil)
	if err != nil {
		return nil
	}
	return labels
}

// apply diffs the cell's current value against next and stages the
// minimal change set on the transaction.
func (c *Cell) apply(tx *transaction.Transaction, next any) error {
	att, err := tx.Read(c.address)
	var current any
	if err == nil {
		current = att.Value
	} else {
		var notFound *attestation.NotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	source := transactionSource{tx: tx}
	differ := &changeset.Differ{
		Base: c.address,
		Exists: func(id types.EntityID) bool {
			_, ok := source.Get(c.address.Space, types.FactKey{Of: id, The: c.address.Type})
			return ok
		},
	}
	changes, err := differ.Diff(current, next)
	if err != nil {
		return err
	}
	opts := transaction.WriteOptions{Labels: c.destinationLabels()}
	for _, change := range changeset.Compact(changes) {
		if err := tx.WriteValueOrThrow(change.Address, change.Value, opts); err != nil {
			return err
		}
	}
	return nil
}

type transactionSource struct {
	tx *transaction.Transaction
}

func (s transactionSource) Get(space types.Space, key types.FactKey) (types.Fact, bool) {
	return s.tx.Get(space, key)
}

// Set writes a value to the cell, via the bound transaction or an
// ambient retrying one.
func (c *Cell) Set(value any) error {
	if c.tx != nil {
		return c.apply(c.tx, value)
	}
	ok, err := c.runtime.EditWithRetry(func(tx *transaction.Transaction) error {
		return c.apply(tx, value)
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("set of %s did not commit", c.address)
	}
	return nil
}

// Send behaves as Set, except on stream cells, where it queues the
// value as an event instead of storing it.
func (c *Cell) Send(value any) error {
	if c.schema != nil && c.schema.AsStream {
		c.runtime.scheduler.QueueEvent(c.address, value)
		return nil
	}
	return c.Set(value)
}

// Update merges the keys of a partial object into the cell's value.
func (c *Cell) Update(partial map[string]any) error {
	run := func(tx *transaction.Transaction) error {
		opts := transaction.WriteOptions{Labels: c.destinationLabels()}
		for key, value := range partial {
			address := c.address.At(key)
			if err := tx.WriteValueOrThrow(address, value, opts); err != nil {
				return err
			}
		}
		return nil
	}
	if c.tx != nil {
		return run(c.tx)
	}
	ok, err := c.runtime.EditWithRetry(run)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("update of %s did not commit", c.address)
	}
	return nil
}

// Push appends a value to the array at the cell, creating the array
// when the cell is empty.
func (c *Cell) Push(value any) error {
	run := func(tx *transaction.Transaction) error {
		att, err := tx.Read(c.address)
		opts := transaction.WriteOptions{Labels: c.destinationLabels()}
		if err != nil || att.Value == nil {
			_, werr := tx.Write(c.address, []any{value}, opts)
			return werr
		}
		container, ok := att.Value.([]any)
		if !ok {
			return &attestation.TypeMismatchError{
				Address: c.address,
				Prefix:  c.address.Path,
				Actual:  attestation.JSONType(att.Value),
			}
		}
		address := c.address.At(types.IndexSegment(len(container)))
		_, werr := tx.Write(address, value, opts)
		return werr
	}
	if c.tx != nil {
		return run(c.tx)
	}
	ok, err := c.runtime.EditWithRetry(run)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("push to %s did not commit", c.address)
	}
	return nil
}

// Sink registers an effect that fires with the cell's materialised
// value on any change visible through its schema. The callback runs
// once immediately to observe the initial state.
func (c *Cell) Sink(callback func(value any)) scheduler.Cancel {
	id := "sink/" + string(c.address.ID) + "/" + uuid.New().String()
	run := func(_ context.Context) (scheduler.RunResult, error) {
		view, tr, err := c.traverse()
		if err != nil {
			return scheduler.RunResult{}, err
		}
		var value any
		if view != nil {
			value = c.materialize(view)
		}
		callback(value)
		reads := []scheduler.Tuple{scheduler.TupleOf(c.address)}
		if tr != nil {
			for _, read := range tr.Reads {
				reads = append(reads, scheduler.TupleOf(read))
			}
		}
		return scheduler.RunResult{Reads: reads}, nil
	}
	return c.runtime.scheduler.Register(id, run, scheduler.Options{
		Effect: true,
		Reads:  []scheduler.Tuple{scheduler.TupleOf(c.address)},
	})
}
