package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commontoolsinc/loom/pkg/types"
)

// TestReferStability tests that key order and nil leaves do not change
// the hash
func TestReferStability(t *testing.T) {
	a := map[string]any{"x": 1, "y": []any{"a", "b"}, "z": nil}
	b := map[string]any{"y": []any{"a", "b"}, "x": 1.0}

	assert.Equal(t, Refer(a), Refer(b))
}

func TestReferNormalizeIdempotent(t *testing.T) {
	value := map[string]any{
		"n":    int64(5),
		"list": []any{nil, map[string]any{"drop": nil, "keep": true}},
	}

	once := Normalize(value)
	twice := Normalize(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, Refer(value), Refer(once))
}

func TestReferDistinguishesValues(t *testing.T) {
	assert.NotEqual(t, Refer(map[string]any{"a": 1}), Refer(map[string]any{"a": 2}))
	assert.NotEqual(t, Refer([]any{1, 2}), Refer([]any{2, 1}))
	assert.NotEqual(t, Refer("5"), Refer(5))
}

func TestReferFactChaining(t *testing.T) {
	first := types.Fact{The: types.ApplicationJSON, Of: "of:counter", Is: map[string]any{"value": 0}}
	hash := ReferFact(first)

	second := types.Fact{
		The:   types.ApplicationJSON,
		Of:    "of:counter",
		Is:    map[string]any{"value": 1},
		Cause: hash,
	}

	assert.NotEqual(t, hash, ReferFact(second))
	// Retraction hashes differently from the asserted fact.
	retraction := types.Fact{The: types.ApplicationJSON, Of: "of:counter", Cause: hash}
	assert.NotEqual(t, ReferFact(second), ReferFact(retraction))
}

// TestParseLink tests sigil recognition
func TestParseLink(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{
			name: "minimal link",
			value: map[string]any{"/": map[string]any{"link@1": map[string]any{
				"id": "of:target",
			}}},
			want: true,
		},
		{
			name: "link with path and space",
			value: map[string]any{"/": map[string]any{"link@1": map[string]any{
				"id":    "of:target",
				"path":  []any{"items", float64(2)},
				"space": "did:key:abc",
			}}},
			want: true,
		},
		{
			name:  "plain object",
			value: map[string]any{"id": "of:target"},
			want:  false,
		},
		{
			name:  "wrong tag",
			value: map[string]any{"/": map[string]any{"link@2": map[string]any{"id": "of:x"}}},
			want:  false,
		},
		{
			name:  "extra top-level key",
			value: map[string]any{"/": map[string]any{"link@1": map[string]any{"id": "of:x"}}, "other": 1},
			want:  false,
		},
		{
			name:  "not an object",
			value: "of:target",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseLink(tt.value)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestParseLinkRoundTrip(t *testing.T) {
	link := Link{
		ID:    "of:target",
		Path:  types.Path{"items", "2"},
		Space: "did:key:abc",
	}

	parsed, ok := ParseLink(link.ToValue())
	require.True(t, ok)
	assert.Equal(t, link.ID, parsed.ID)
	assert.Equal(t, link.Path, parsed.Path)
	assert.Equal(t, link.Space, parsed.Space)
}

func TestAreLinksSameIgnoresSchema(t *testing.T) {
	a := Link{ID: "of:x", Path: types.Path{"a"}, Schema: map[string]any{"type": "number"}}
	b := Link{ID: "of:x", Path: types.Path{"a"}}
	c := Link{ID: "of:x", Path: types.Path{"b"}}

	assert.True(t, AreLinksSame(a.ToValue(), b.ToValue()))
	assert.False(t, AreLinksSame(a.ToValue(), c.ToValue()))
	assert.False(t, AreLinksSame(a.ToValue(), map[string]any{"plain": true}))
}

func TestLinkHashIgnoresSchema(t *testing.T) {
	with := Link{ID: "of:x", Path: types.Path{"a"}, Schema: map[string]any{"type": "number"}}
	without := Link{ID: "of:x", Path: types.Path{"a"}}

	assert.Equal(t, Refer(with.ToValue()), Refer(without.ToValue()))
}

// TestParseDataURI tests data URI decoding
func TestParseDataURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr bool
		media   types.MediaType
		payload string
	}{
		{
			name:    "plain json",
			uri:     `data:application/json,{"x":1}`,
			media:   types.ApplicationJSON,
			payload: `{"x":1}`,
		},
		{
			name:    "base64 json",
			uri:     "data:application/json;base64,eyJ4IjoxfQ==",
			media:   types.ApplicationJSON,
			payload: `{"x":1}`,
		},
		{
			name:    "missing scheme",
			uri:     "http://example.com",
			wantErr: true,
		},
		{
			name:    "missing separator",
			uri:     "data:application/json",
			wantErr: true,
		},
		{
			name:    "bad base64",
			uri:     "data:application/json;base64,!!!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseDataURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				var invalid *InvalidDataURIError
				assert.ErrorAs(t, err, &invalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.media, parsed.MediaType)
			assert.Equal(t, tt.payload, string(parsed.Payload))
		})
	}
}

func TestDecodeDataValueMediaMismatch(t *testing.T) {
	_, err := DecodeDataValue("data:text/plain,hello", types.ApplicationJSON)

	var unsupported *UnsupportedMediaTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, types.MediaType("text/plain"), unsupported.Got)
}

func TestDecodeDataValue(t *testing.T) {
	value, err := DecodeDataValue(`data:application/json,{"sum":15}`, types.ApplicationJSON)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sum": float64(15)}, value)
}
