package attestation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commontoolsinc/loom/pkg/types"
)

func addr() types.Address {
	return types.Address{
		Space: "did:key:test",
		ID:    "of:doc",
		Type:  types.ApplicationJSON,
	}
}

func doc() Attestation {
	return New(addr(), map[string]any{
		"label": "Numbers",
		"values": []any{
			float64(1), float64(2), float64(3),
		},
		"nested": map[string]any{"deep": map[string]any{"leaf": true}},
		"count":  float64(3),
	})
}

// TestRead tests path resolution semantics
func TestRead(t *testing.T) {
	tests := []struct {
		name    string
		path    types.Path
		want    any
		errType any
	}{
		{
			name: "empty path returns whole value",
			path: nil,
			want: doc().Value,
		},
		{
			name: "object key",
			path: types.Path{"label"},
			want: "Numbers",
		},
		{
			name: "array index",
			path: types.Path{"values", "1"},
			want: float64(2),
		},
		{
			name: "array length",
			path: types.Path{"values", "length"},
			want: float64(3),
		},
		{
			name: "missing final key yields nil",
			path: types.Path{"missing"},
			want: nil,
		},
		{
			name: "past end of array yields nil",
			path: types.Path{"values", "9"},
			want: nil,
		},
		{
			name:    "missing intermediate key",
			path:    types.Path{"missing", "leaf"},
			errType: &NotFoundError{},
		},
		{
			name:    "primitive mid-path",
			path:    types.Path{"label", "leaf"},
			errType: &TypeMismatchError{},
		},
		{
			name:    "non-integer array segment",
			path:    types.Path{"values", "first"},
			errType: &TypeMismatchError{},
		},
		{
			name:    "negative array segment",
			path:    types.Path{"values", "-1"},
			errType: &TypeMismatchError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := doc().Read(tt.path)
			switch want := tt.errType.(type) {
			case *NotFoundError:
				require.ErrorAs(t, err, &want)
			case *TypeMismatchError:
				require.ErrorAs(t, err, &want)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got.Value)
				assert.Equal(t, tt.path, got.Address.Path)
			}
		})
	}
}

func TestReadReportsLastValidPrefix(t *testing.T) {
	_, err := doc().Read(types.Path{"nested", "deep", "leaf", "beyond"})

	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, types.Path{"nested", "deep", "leaf"}, mismatch.Prefix)
	assert.Equal(t, "boolean", mismatch.Actual)
}

func TestWriteRootReplaces(t *testing.T) {
	next, err := doc().Write(nil, map[string]any{"fresh": true})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"fresh": true}, next.Value)
}

func TestWriteIsCopyOnWrite(t *testing.T) {
	original := doc()
	next, err := original.Write(types.Path{"nested", "deep", "leaf"}, false)

	require.NoError(t, err)
	got, err := next.Read(types.Path{"nested", "deep", "leaf"})
	require.NoError(t, err)
	assert.Equal(t, false, got.Value)

	// The original attestation still sees the old leaf.
	old, err := original.Read(types.Path{"nested", "deep", "leaf"})
	require.NoError(t, err)
	assert.Equal(t, true, old.Value)

	// Untouched siblings are shared, not cloned.
	originalValues := original.Value.(map[string]any)["values"].([]any)
	nextValues := next.Value.(map[string]any)["values"].([]any)
	assert.Same(t, &originalValues[0], &nextValues[0])
}

func TestWriteSameValueIsNoOp(t *testing.T) {
	original := doc()
	next, err := original.Write(types.Path{"label"}, "Numbers")

	require.NoError(t, err)
	assert.Equal(t, original.Value, next.Value)
}

func TestWriteNilDeletesProperty(t *testing.T) {
	next, err := doc().Write(types.Path{"label"}, nil)

	require.NoError(t, err)
	_, ok := next.Value.(map[string]any)["label"]
	assert.False(t, ok)
}

func TestWriteLengthTruncates(t *testing.T) {
	next, err := doc().Write(types.Path{"values", "length"}, float64(1))

	require.NoError(t, err)
	assert.Equal(t, []any{float64(1)}, next.Value.(map[string]any)["values"])
}

func TestWriteLengthExtendsWithNil(t *testing.T) {
	next, err := doc().Write(types.Path{"values", "length"}, float64(5))

	require.NoError(t, err)
	values := next.Value.(map[string]any)["values"].([]any)
	assert.Len(t, values, 5)
	assert.Nil(t, values[4])
}

func TestWriteLengthRejectsNonNumber(t *testing.T) {
	_, err := doc().Write(types.Path{"values", "length"}, "zero")

	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestWriteMissingParentFails(t *testing.T) {
	_, err := doc().Write(types.Path{"missing", "leaf"}, 1)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Empty(t, notFound.Prefix)
}

func TestWritePrimitiveMidPathNamesPrefix(t *testing.T) {
	_, err := doc().Write(types.Path{"count", "digits"}, 1)

	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "number", mismatch.Actual)
	assert.Equal(t, types.Path{"count"}, mismatch.Prefix)
}

func TestWriteArrayIndexPastEnd(t *testing.T) {
	next, err := doc().Write(types.Path{"values", "4"}, float64(9))

	require.NoError(t, err)
	values := next.Value.(map[string]any)["values"].([]any)
	require.Len(t, values, 5)
	assert.Nil(t, values[3])
	assert.Equal(t, float64(9), values[4])
}
