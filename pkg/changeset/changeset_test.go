package changeset

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commontoolsinc/loom/pkg/attestation"
	"github.com/commontoolsinc/loom/pkg/reference"
	"github.com/commontoolsinc/loom/pkg/types"
)

func base() types.Address {
	return types.Address{Space: "did:key:test", ID: "of:doc", Type: types.ApplicationJSON}
}

func differ() *Differ {
	return &Differ{Base: base()}
}

// apply replays a change set against a value, mirroring how the
// transaction layer lands it.
func apply(t *testing.T, value any, changes []Change) any {
	t.Helper()
	for _, change := range changes {
		if len(change.Address.Path) == 0 {
			value = change.Value
			continue
		}
		att := attestation.Attestation{Value: value}
		next, err := att.Write(change.Address.Path, change.Value)
		require.NoError(t, err)
		value = next.Value
	}
	return value
}

func TestDiffEqualValuesIsEmpty(t *testing.T) {
	value := map[string]any{"a": float64(1), "b": []any{"x"}}
	changes, err := differ().Diff(value, map[string]any{"b": []any{"x"}, "a": 1})

	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDiffChangedAndRemovedKeys(t *testing.T) {
	current := map[string]any{"keep": true, "change": float64(1), "drop": "old"}
	next := map[string]any{"keep": true, "change": float64(2)}

	changes, err := differ().Diff(current, next)
	require.NoError(t, err)

	require.Len(t, changes, 2)
	got := apply(t, current, changes)
	if diff := cmp.Diff(next, got); diff != "" {
		t.Fatalf("apply mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffArrayTruncation(t *testing.T) {
	items := make([]any, 100)
	for i := range items {
		items[i] = float64(i)
	}
	current := map[string]any{"items": items}
	next := map[string]any{"items": []any{}}

	changes, err := differ().Diff(current, next)
	require.NoError(t, err)

	// One length write plus a deletion per truncated index.
	require.Len(t, changes, 101)
	assert.Equal(t, types.Path{"items", "length"}, changes[0].Address.Path)
	assert.Equal(t, float64(0), changes[0].Value)
	for i := 1; i < 101; i++ {
		assert.Equal(t, types.Path{"items", types.IndexSegment(i - 1)}, changes[i].Address.Path)
		assert.Nil(t, changes[i].Value)
	}

	got := apply(t, current, changes)
	assert.Equal(t, map[string]any{"items": []any{}}, got)
}

func TestDiffArrayGrowth(t *testing.T) {
	current := map[string]any{"items": []any{float64(1)}}
	next := map[string]any{"items": []any{float64(1), float64(2), float64(3)}}

	changes, err := differ().Diff(current, next)
	require.NoError(t, err)

	got := apply(t, current, changes)
	if diff := cmp.Diff(next, got); diff != "" {
		t.Fatalf("apply mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffTypeChangeWritesWhole(t *testing.T) {
	current := map[string]any{"v": []any{float64(1)}}
	next := map[string]any{"v": map[string]any{"x": float64(1)}}

	changes, err := differ().Diff(current, next)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, types.Path{"v"}, changes[0].Address.Path)
}

func TestDiffSkipsIdenticalLinks(t *testing.T) {
	link := reference.Link{ID: "of:target", Path: types.Path{"a"}}
	withSchema := link
	withSchema.Schema = map[string]any{"type": "number"}

	current := map[string]any{"ref": link.ToValue()}
	next := map[string]any{"ref": withSchema.ToValue()}

	changes, err := differ().Diff(current, next)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDiffInlinesDataURILinks(t *testing.T) {
	current := map[string]any{}
	next := map[string]any{
		"config": reference.Link{ID: `data:application/json,{"depth": 3}`}.ToValue(),
	}

	changes, err := differ().Diff(current, next)
	require.NoError(t, err)

	got := apply(t, current, changes)
	assert.Equal(t, map[string]any{"config": map[string]any{"depth": float64(3)}}, got)
}

func TestDiffRewritesAliases(t *testing.T) {
	current := map[string]any{}
	next := map[string]any{
		"view": map[string]any{AliasKey: map[string]any{"path": []any{"items", float64(0)}}},
	}

	changes, err := differ().Diff(current, next)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	link, ok := reference.ParseLink(changes[0].Value)
	require.True(t, ok)
	assert.Equal(t, types.EntityID("of:doc"), link.ID)
	assert.Equal(t, types.Path{"items", "0"}, link.Path)
}

func TestDiffAllocatesIDMarkedObjects(t *testing.T) {
	d := differ()
	next := map[string]any{
		"child": map[string]any{
			IDKey:  "first",
			"name": "Ada",
		},
	}

	changes, err := d.Diff(map[string]any{}, next)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	// The allocated entity receives the stripped object.
	allocated := changes[0]
	assert.NotEqual(t, d.Base.ID, allocated.Address.ID)
	assert.Empty(t, allocated.Address.Path)
	assert.Equal(t, map[string]any{"name": "Ada"}, allocated.Value)

	// The original position receives a link to it.
	link, ok := reference.ParseLink(changes[1].Value)
	require.True(t, ok)
	assert.Equal(t, allocated.Address.ID, link.ID)

	// Allocation is causal: the same parent and id always land on
	// the same entity.
	again, err := differ().Diff(map[string]any{}, next)
	require.NoError(t, err)
	assert.Equal(t, allocated.Address.ID, again[0].Address.ID)
}

func TestDiffIDFieldRedirect(t *testing.T) {
	next := map[string]any{
		"child": map[string]any{
			IDFieldKey: "slug",
			"slug":     "ada-1815",
			"name":     "Ada",
		},
	}

	changes, err := differ().Diff(map[string]any{}, next)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, map[string]any{"slug": "ada-1815", "name": "Ada"}, changes[0].Value)
}

func TestDiffReusesExistingEntity(t *testing.T) {
	d := differ()
	d.Exists = func(types.EntityID) bool { return true }
	next := map[string]any{
		"child": map[string]any{IDKey: "first", "name": "Ada"},
	}

	changes, err := d.Diff(map[string]any{}, next)
	require.NoError(t, err)

	// Only the link write remains; the existing cell keeps its state.
	require.Len(t, changes, 1)
	_, ok := reference.ParseLink(changes[0].Value)
	assert.True(t, ok)
}

func TestCompactFoldsChildIntoParent(t *testing.T) {
	addr := base()
	parent := Change{Address: addr.At("nested"), Value: map[string]any{"a": float64(1)}}
	child := Change{Address: addr.At("nested", "b"), Value: float64(2)}

	compacted := Compact([]Change{parent, child})

	require.Len(t, compacted, 1)
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, compacted[0].Value)
}

func TestCompactDropsSupersededWrites(t *testing.T) {
	addr := base()
	narrow := Change{Address: addr.At("nested", "b"), Value: float64(2)}
	wide := Change{Address: addr.At("nested"), Value: map[string]any{"a": float64(1)}}

	compacted := Compact([]Change{narrow, wide})

	require.Len(t, compacted, 1)
	assert.Equal(t, types.Path{"nested"}, compacted[0].Address.Path)
	assert.Equal(t, map[string]any{"a": float64(1)}, compacted[0].Value)
}

func TestCompactKeepsUnrelatedWrites(t *testing.T) {
	addr := base()
	other := addr
	other.ID = "of:other"
	changes := []Change{
		{Address: addr.At("a"), Value: float64(1)},
		{Address: other.At("a", "b"), Value: float64(2)},
	}

	compacted := Compact(changes)
	assert.Len(t, compacted, 2)
}

func TestCompactPreservesSemantics(t *testing.T) {
	current := map[string]any{
		"nested": map[string]any{"a": float64(1)},
		"other":  true,
	}
	addr := base()
	changes := []Change{
		{Address: addr.At("nested"), Value: map[string]any{"a": float64(5)}},
		{Address: addr.At("nested", "b"), Value: float64(6)},
		{Address: addr.At("other"), Value: nil},
	}

	plain := apply(t, current, changes)
	compacted := apply(t, current, Compact(changes))

	if diff := cmp.Diff(plain, compacted); diff != "" {
		t.Fatalf("compaction changed semantics (-plain +compacted):\n%s", diff)
	}
}
