package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commontoolsinc/loom/pkg/attestation"
	"github.com/commontoolsinc/loom/pkg/cfc"
	"github.com/commontoolsinc/loom/pkg/reference"
	"github.com/commontoolsinc/loom/pkg/replica"
	"github.com/commontoolsinc/loom/pkg/schema"
	"github.com/commontoolsinc/loom/pkg/types"
)

const (
	spaceA = types.Space("did:key:alpha")
	spaceB = types.Space("did:key:beta")
)

func manager(t *testing.T) *replica.Manager {
	t.Helper()
	return replica.NewManager(nil, nil)
}

func address(space types.Space, id types.EntityID, path ...string) types.Address {
	return types.Address{Space: space, ID: id, Type: types.ApplicationJSON, Path: path}
}

func seed(t *testing.T, m *replica.Manager, space types.Space, id types.EntityID, value any) {
	t.Helper()
	tx := New(m)
	_, err := tx.Write(address(space, id), value)
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
}

func TestReadYourWrites(t *testing.T) {
	m := manager(t)
	tx := New(m)

	_, err := tx.Write(address(spaceA, "of:doc"), map[string]any{"v": float64(1)})
	require.NoError(t, err)
	got, err := tx.Read(address(spaceA, "of:doc", "v"))
	require.NoError(t, err)
	assert.Equal(t, float64(1), got.Value)

	_, err = tx.Write(address(spaceA, "of:doc", "v"), float64(2))
	require.NoError(t, err)
	got, err = tx.Read(address(spaceA, "of:doc", "v"))
	require.NoError(t, err)
	assert.Equal(t, float64(2), got.Value)
}

func TestSnapshotIsolation(t *testing.T) {
	m := manager(t)
	seed(t, m, spaceA, "of:doc", map[string]any{"v": float64(1)})

	tx := New(m)
	got, err := tx.Read(address(spaceA, "of:doc", "v"))
	require.NoError(t, err)
	assert.Equal(t, float64(1), got.Value)

	// A concurrent transaction commits a new value.
	other := New(m)
	_, err = other.Write(address(spaceA, "of:doc", "v"), float64(9))
	require.NoError(t, err)
	_, err = other.Commit()
	require.NoError(t, err)

	// The first transaction keeps observing its snapshot.
	got, err = tx.Read(address(spaceA, "of:doc", "v"))
	require.NoError(t, err)
	assert.Equal(t, float64(1), got.Value)
}

func TestWriteIsolation(t *testing.T) {
	m := manager(t)
	tx := New(m)

	_, err := tx.Write(address(spaceA, "of:doc"), map[string]any{})
	require.NoError(t, err)
	_, err = tx.Write(address(spaceB, "of:doc"), map[string]any{})

	var isolation *WriteIsolationError
	require.ErrorAs(t, err, &isolation)
	assert.Equal(t, spaceA, isolation.Open)
	assert.Equal(t, spaceB, isolation.Requested)

	// Readers for other spaces stay allowed.
	_, err = tx.Read(address(spaceB, "of:doc"))
	require.NoError(t, err)
}

func TestSameSpaceWriterIsReturned(t *testing.T) {
	m := manager(t)
	tx := New(m)

	w1, err := tx.NewWriter(spaceA)
	require.NoError(t, err)
	w2, err := tx.NewWriter(spaceA)
	require.NoError(t, err)
	assert.Same(t, w1, w2)
}

func TestOperationsAfterTermination(t *testing.T) {
	m := manager(t)
	tx := New(m)
	require.NoError(t, tx.Abort("done with it"))

	_, err := tx.Read(address(spaceA, "of:doc"))
	var complete *CompleteError
	require.ErrorAs(t, err, &complete)
	assert.Equal(t, StatusAborted, complete.Status)

	// Abort is idempotent after termination.
	require.NoError(t, tx.Abort(nil))
	_, err = tx.Commit()
	require.ErrorAs(t, err, &complete)
}

func TestCommitIsIdempotentOnceDone(t *testing.T) {
	m := manager(t)
	tx := New(m)
	_, err := tx.Write(address(spaceA, "of:doc"), map[string]any{"v": true})
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
}

func TestReadOnlyCommitSubmitsNothing(t *testing.T) {
	m := manager(t)
	seed(t, m, spaceA, "of:doc", map[string]any{"v": float64(1)})

	tx := New(m)
	_, err := tx.Read(address(spaceA, "of:doc"))
	require.NoError(t, err)

	// The replica's sequence does not advance for read-only commits.
	rep, err := m.Open(spaceA)
	require.NoError(t, err)
	before := rep.Since()
	_, err = tx.Commit()
	require.NoError(t, err)
	assert.Equal(t, before, rep.Since())
}

func TestLastWriteWinsWithinTransaction(t *testing.T) {
	m := manager(t)
	tx := New(m)
	_, err := tx.Write(address(spaceA, "of:doc"), map[string]any{"v": float64(1)})
	require.NoError(t, err)
	_, err = tx.Write(address(spaceA, "of:doc"), map[string]any{"v": float64(2)})
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)

	rep, err := m.Open(spaceA)
	require.NoError(t, err)
	fact, ok := rep.Get(types.FactKey{Of: "of:doc", The: types.ApplicationJSON})
	require.True(t, ok)
	assert.Equal(t, map[string]any{"v": float64(2)}, fact.Is)
	// Both writes composed into a single fact with no cause.
	assert.Empty(t, fact.Cause)
}

func TestCommitChainsCause(t *testing.T) {
	m := manager(t)
	seed(t, m, spaceA, "of:doc", map[string]any{"v": float64(1)})
	rep, err := m.Open(spaceA)
	require.NoError(t, err)
	prior := rep.Hash(types.FactKey{Of: "of:doc", The: types.ApplicationJSON})

	tx := New(m)
	_, err = tx.Write(address(spaceA, "of:doc", "v"), float64(2))
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)

	fact, _ := rep.Get(types.FactKey{Of: "of:doc", The: types.ApplicationJSON})
	assert.Equal(t, prior, fact.Cause)
	assert.Equal(t, reference.ReferFact(fact), rep.Hash(types.FactKey{Of: "of:doc", The: types.ApplicationJSON}))
}

func TestConflictOnStaleRead(t *testing.T) {
	m := manager(t)
	seed(t, m, spaceA, "of:counter", map[string]any{"n": float64(0)})

	t1 := New(m)
	got, err := t1.Read(address(spaceA, "of:counter", "n"))
	require.NoError(t, err)
	_, err = t1.Write(address(spaceA, "of:counter", "n"), got.Value.(float64)+1)
	require.NoError(t, err)

	t2 := New(m)
	got, err = t2.Read(address(spaceA, "of:counter", "n"))
	require.NoError(t, err)
	_, err = t2.Write(address(spaceA, "of:counter", "n"), got.Value.(float64)+1)
	require.NoError(t, err)

	_, err = t1.Commit()
	require.NoError(t, err)

	_, err = t2.Commit()
	var conflict *replica.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, StatusAborted, t2.Status().Status)
}

func TestEditWithRetryResolvesConflicts(t *testing.T) {
	m := manager(t)
	seed(t, m, spaceA, "of:counter", map[string]any{"n": float64(0)})

	increment := func(tx *Transaction) error {
		got, err := tx.Read(address(spaceA, "of:counter", "n"))
		if err != nil {
			return err
		}
		_, err = tx.Write(address(spaceA, "of:counter", "n"), got.Value.(float64)+1)
		return err
	}

	// Interleave two increments the way conflicting writers would.
	t1 := New(m)
	require.NoError(t, incrementIn(t1))
	t2 := New(m)
	require.NoError(t, incrementIn(t2))
	_, err := t1.Commit()
	require.NoError(t, err)
	_, err = t2.Commit()
	var conflict *replica.ConflictError
	require.ErrorAs(t, err, &conflict)

	// The retry wrapper re-runs the loser's body and lands it.
	ok, err := EditWithRetry(func() *Transaction { return New(m) }, increment, DefaultMaxRetries)
	require.NoError(t, err)
	assert.True(t, ok)

	rep, err := m.Open(spaceA)
	require.NoError(t, err)
	fact, _ := rep.Get(types.FactKey{Of: "of:counter", The: types.ApplicationJSON})
	assert.Equal(t, map[string]any{"n": float64(2)}, fact.Is)
}

func incrementIn(tx *Transaction) error {
	got, err := tx.Read(address(spaceA, "of:counter", "n"))
	if err != nil {
		return err
	}
	_, err = tx.Write(address(spaceA, "of:counter", "n"), got.Value.(float64)+1)
	return err
}

func TestWriteValueOrThrowSynthesisesParents(t *testing.T) {
	m := manager(t)
	seed(t, m, spaceA, "of:doc", map[string]any{"existing": true})

	tx := New(m)
	err := tx.WriteValueOrThrow(address(spaceA, "of:doc", "a", "0", "b"), float64(7))
	require.NoError(t, err)

	got, err := tx.Read(address(spaceA, "of:doc"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"existing": true,
		"a":        []any{map[string]any{"b": float64(7)}},
	}, got.Value)
}

func TestWriteValueOrThrowOnUnclaimedEntity(t *testing.T) {
	m := manager(t)
	tx := New(m)

	err := tx.WriteValueOrThrow(address(spaceA, "of:new", "nested", "leaf"), "hello")
	require.NoError(t, err)

	got, err := tx.Read(address(spaceA, "of:new"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"nested": map[string]any{"leaf": "hello"}}, got.Value)
}

func TestWriteValueOrThrowKeepsTypeMismatch(t *testing.T) {
	m := manager(t)
	seed(t, m, spaceA, "of:doc", map[string]any{"leaf": "text"})

	tx := New(m)
	err := tx.WriteValueOrThrow(address(spaceA, "of:doc", "leaf", "deeper"), 1)

	var mismatch *attestation.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestDataURIReads(t *testing.T) {
	m := manager(t)
	tx := New(m)

	addr := types.Address{
		Space: spaceA,
		ID:    types.EntityID(`data:application/json,{"sum": 15}`),
		Type:  types.ApplicationJSON,
		Path:  types.Path{"sum"},
	}
	got, err := tx.Read(addr)
	require.NoError(t, err)
	assert.Equal(t, float64(15), got.Value)

	// Mismatched media type fails the read.
	addr.ID = types.EntityID("data:text/plain,hello")
	_, err = tx.Read(addr)
	var unsupported *reference.UnsupportedMediaTypeError
	require.ErrorAs(t, err, &unsupported)
}

func TestJournalActivityOrder(t *testing.T) {
	m := manager(t)
	tx := New(m)

	_, err := tx.Write(address(spaceA, "of:doc"), map[string]any{"v": float64(1)})
	require.NoError(t, err)
	_, err = tx.Read(address(spaceA, "of:doc", "v"))
	require.NoError(t, err)

	activity := tx.Journal().Activity()
	require.Len(t, activity, 2)
	assert.NotNil(t, activity[0].Write)
	assert.NotNil(t, activity[1].Read)

	novelty := tx.Journal().Novelty(spaceA)
	require.Len(t, novelty, 1)
	history := tx.Journal().History(spaceA)
	require.Len(t, history, 1)
	// The entity was unclaimed when first observed.
	assert.Nil(t, history[types.FactKey{Of: "of:doc", The: types.ApplicationJSON}])
}

func TestUnsupportedMediaType(t *testing.T) {
	m := manager(t)
	tx := New(m)

	addr := types.Address{Space: spaceA, ID: "of:doc", Type: "text/plain"}
	_, err := tx.Read(addr)
	var unsupported *reference.UnsupportedMediaTypeError
	require.ErrorAs(t, err, &unsupported)

	_, err = tx.Write(addr, "x")
	require.ErrorAs(t, err, &unsupported)
}

func secretSchema() *schema.Schema {
	return &schema.Schema{
		Type: "object",
		IFC:  &schema.IFC{Classification: []string{"secret"}},
	}
}

func TestEnforcedFlowViolation(t *testing.T) {
	m := manager(t)
	seed(t, m, spaceA, "of:secret", map[string]any{"token": "hunter2"})

	tx := New(m, WithTaint(cfc.NewReferenceLattice(), cfc.ModeEnforcing))
	_, err := tx.Read(address(spaceA, "of:secret"), ReadOptions{Schema: secretSchema()})
	require.NoError(t, err)
	assert.Equal(t, cfc.Label("secret"), tx.Taint().Current())

	// Writing to an unlabelled destination violates monotonicity and
	// aborts the transaction.
	_, err = tx.Write(address(spaceA, "of:public"), map[string]any{"leak": true})
	var violation *cfc.Violation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, StatusAborted, tx.Status().Status)

	// Writing to an equally-labelled destination is permitted.
	tx = New(m, WithTaint(cfc.NewReferenceLattice(), cfc.ModeEnforcing))
	_, err = tx.Read(address(spaceA, "of:secret"), ReadOptions{Schema: secretSchema()})
	require.NoError(t, err)
	_, err = tx.Write(address(spaceA, "of:vault"), map[string]any{"copy": true}, WriteOptions{Schema: secretSchema()})
	require.NoError(t, err)
}

func TestDryRunFlowViolationRecordsOnly(t *testing.T) {
	m := manager(t)
	seed(t, m, spaceA, "of:secret", map[string]any{"token": "hunter2"})

	tx := New(m, WithTaint(cfc.NewReferenceLattice(), cfc.ModeDryRun))
	_, err := tx.Read(address(spaceA, "of:secret"), ReadOptions{Schema: secretSchema()})
	require.NoError(t, err)

	_, err = tx.Write(address(spaceA, "of:public"), map[string]any{"leak": true})
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)

	require.Len(t, tx.Taint().Recorded, 1)
	assert.Equal(t, cfc.Label("secret"), tx.Taint().Recorded[0].Taint)
}
