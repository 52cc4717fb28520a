package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commontoolsinc/loom/pkg/cfc"
	"github.com/commontoolsinc/loom/pkg/schema"
	"github.com/commontoolsinc/loom/pkg/storage"
	"github.com/commontoolsinc/loom/pkg/transaction"
	"github.com/commontoolsinc/loom/pkg/types"
)

const space = types.Space("did:key:test")

func newRuntime(t *testing.T, store storage.Store) *Runtime {
	t.Helper()
	rt := New(Config{Store: store})
	t.Cleanup(rt.Dispose)
	return rt
}

func idle(t *testing.T, rt *Runtime) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Idle(ctx))
}

// sumAndFormat sums input values and renders a label.
func sumAndFormat(input any) (any, error) {
	object, ok := input.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", input)
	}
	values, _ := object["values"].([]any)
	sum := float64(0)
	for _, value := range values {
		n, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("expected numbers, got %T", value)
		}
		sum += n
	}
	label, _ := object["label"].(string)
	return map[string]any{
		"sum":    sum,
		"result": fmt.Sprintf("%s: %v", label, sum),
	}, nil
}

func TestCellSetAndGet(t *testing.T) {
	rt := newRuntime(t, nil)
	cell := rt.GetCell(space, "doc", nil)

	require.NoError(t, cell.Set(map[string]any{"label": "Numbers", "values": []any{float64(1)}}))

	value, err := cell.Get()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"label": "Numbers", "values": []any{float64(1)}}, value)
}

func TestCellGetUnclaimedYieldsNil(t *testing.T) {
	rt := newRuntime(t, nil)
	cell := rt.GetCell(space, "nothing-here", nil)

	value, err := cell.Get()
	require.NoError(t, err)
	assert.Nil(t, value)

	sub, err := cell.Key("deeper").Get()
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestCellKeyAndEquals(t *testing.T) {
	rt := newRuntime(t, nil)
	cell := rt.GetCell(space, "doc", nil)

	child := cell.Key("values")
	assert.False(t, cell.Equals(child))
	assert.True(t, child.Equals(cell.Key("values")))
	assert.False(t, child.Equals(rt.GetCell(space, "other", nil).Key("values")))
}

func TestCellIdentityByStructuredCause(t *testing.T) {
	rt := newRuntime(t, nil)
	a := rt.GetCell(space, map[string]any{"recipe": "sum", "instance": float64(1)}, nil)
	b := rt.GetCell(space, map[string]any{"instance": float64(1), "recipe": "sum"}, nil)
	c := rt.GetCell(space, map[string]any{"recipe": "sum", "instance": float64(2)}, nil)

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
}

func TestCellUpdateAndPush(t *testing.T) {
	rt := newRuntime(t, nil)
	cell := rt.GetCell(space, "doc", nil)
	require.NoError(t, cell.Set(map[string]any{"label": "old", "values": []any{float64(1)}}))

	require.NoError(t, cell.Update(map[string]any{"label": "new"}))
	require.NoError(t, cell.Key("values").Push(float64(2)))

	value, err := cell.Get()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"label": "new", "values": []any{float64(1), float64(2)}}, value)
}

func TestCellSinkFiresOnChange(t *testing.T) {
	rt := newRuntime(t, nil)
	cell := rt.GetCell(space, "doc", nil)
	require.NoError(t, cell.Set(map[string]any{"n": float64(1)}))

	var mu sync.Mutex
	var seen []any
	cancel := cell.Sink(func(value any) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, value)
	})
	defer cancel()
	idle(t, rt)

	require.NoError(t, cell.Set(map[string]any{"n": float64(2)}))
	idle(t, rt)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(seen), 2)
	assert.Equal(t, map[string]any{"n": float64(2)}, seen[len(seen)-1])
}

func TestCrossSessionReactivity(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)

	r1 := New(Config{Store: store})
	r1.Patterns().Register("sumAndFormat", sumAndFormat)
	input := r1.GetCell(space, "input", nil)
	result := r1.GetCell(space, "result", nil)

	_, err = r1.Run(space, "sumAndFormat", input, result)
	require.NoError(t, err)
	require.NoError(t, input.Set(map[string]any{
		"values": []any{float64(1), float64(2), float64(3), float64(4), float64(5)},
		"label":  "Numbers",
	}))
	idle(t, r1)

	value, err := result.Get()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sum": float64(15), "result": "Numbers: 15"}, value)
	r1.Dispose()

	// A second runtime over the same store resumes the result cell by
	// id and keeps reacting.
	store2, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	r2 := New(Config{Store: store2})
	defer r2.Dispose()
	r2.Patterns().Register("sumAndFormat", sumAndFormat)
	input2 := r2.GetCell(space, "input", nil)
	result2 := r2.GetCell(space, "result", nil)

	resumed, err := result2.Get()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sum": float64(15), "result": "Numbers: 15"}, resumed)

	_, err = r2.Run(space, "sumAndFormat", input2, result2)
	require.NoError(t, err)
	require.NoError(t, input2.Set(map[string]any{
		"values": []any{float64(10), float64(20), float64(30)},
		"label":  "Big",
	}))
	idle(t, r2)

	value, err = result2.Get()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sum": float64(60), "result": "Big: 60"}, value)
}

func TestInstanceIsolation(t *testing.T) {
	rt := newRuntime(t, nil)
	rt.Patterns().Register("sumAndFormat", sumAndFormat)

	inputA := rt.GetCell(space, "input-a", nil)
	resultA := rt.GetCell(space, "result-a", nil)
	inputB := rt.GetCell(space, "input-b", nil)
	resultB := rt.GetCell(space, "result-b", nil)

	_, err := rt.Run(space, "sumAndFormat", inputA, resultA)
	require.NoError(t, err)
	_, err = rt.Run(space, "sumAndFormat", inputB, resultB)
	require.NoError(t, err)

	require.NoError(t, inputA.Set(map[string]any{"values": []any{float64(1)}, "label": "A"}))
	require.NoError(t, inputB.Set(map[string]any{"values": []any{float64(2)}, "label": "B"}))
	idle(t, rt)

	before, err := resultB.Get()
	require.NoError(t, err)

	// Updating instance A leaves B's result untouched.
	require.NoError(t, inputA.Set(map[string]any{"values": []any{float64(9)}, "label": "A"}))
	idle(t, rt)

	after, err := resultB.Get()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	a, err := resultA.Get()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sum": float64(9), "result": "A: 9"}, a)
}

func TestConflictAndRetryScenario(t *testing.T) {
	rt := newRuntime(t, nil)
	counter := rt.GetCell(space, "counter", nil)
	require.NoError(t, counter.Set(map[string]any{"n": float64(0)}))

	increment := func(tx *transaction.Transaction) error {
		att, err := tx.Read(counter.Address())
		if err != nil {
			return err
		}
		n := att.Value.(map[string]any)["n"].(float64)
		return tx.WriteValueOrThrow(counter.Address().At("n"), n+1)
	}

	// Interleave two raw transactions so the second observes a stale
	// snapshot.
	t1 := rt.Edit()
	require.NoError(t, increment(t1))
	t2 := rt.Edit()
	require.NoError(t, increment(t2))
	_, err := t1.Commit()
	require.NoError(t, err)
	_, err = t2.Commit()
	require.Error(t, err)

	// editWithRetry drains and re-runs the loser.
	ok, err := rt.EditWithRetry(increment)
	require.NoError(t, err)
	assert.True(t, ok)

	value, err := counter.Get()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(2)}, value)
}

func TestRecipePersistence(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)

	recipe := Recipe{
		Main: "main.ts",
		Files: []RecipeFile{
			{Name: "main.ts", Contents: "export const sum = ..."},
			{Name: "main.d.ts", Contents: "declare const sum: number"},
		},
	}

	r1 := New(Config{Store: store})
	id, err := r1.SaveRecipe(space, recipe)
	require.NoError(t, err)

	// Type declarations do not contribute to identity.
	stripped := Recipe{Main: "main.ts", Files: recipe.Files[:1]}
	assert.Equal(t, id, stripped.ID())
	r1.Dispose()

	// A fresh runtime loads the recipe by id.
	store2, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	r2 := New(Config{Store: store2})
	defer r2.Dispose()

	loaded, err := r2.LoadRecipe(space, id)
	require.NoError(t, err)
	assert.Equal(t, recipe.Main, loaded.Main)
	require.Len(t, loaded.Files, 2)
	assert.Equal(t, recipe.Files[0], loaded.Files[0])
}

func TestStreamSendQueuesEvent(t *testing.T) {
	rt := newRuntime(t, nil)
	stream := rt.GetCell(space, "events", &schema.Schema{AsStream: true})

	var mu sync.Mutex
	var got []any
	cancel := rt.Scheduler().RegisterHandler(stream.Address(), func(_ context.Context, event any) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, event)
		return nil
	})
	defer cancel()

	require.NoError(t, stream.Send(map[string]any{"click": true}))
	idle(t, rt)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"click": true}, got[0])
}

func TestCFCDryRunEndToEnd(t *testing.T) {
	rt := New(Config{Mode: cfc.ModeDryRun})
	t.Cleanup(rt.Dispose)

	tx := rt.Edit()
	require.NotNil(t, tx.Taint())
	assert.Equal(t, cfc.ModeDryRun, tx.Taint().Mode())
}
