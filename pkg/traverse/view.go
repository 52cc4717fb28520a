package traverse

import (
	"github.com/commontoolsinc/loom/pkg/reference"
	"github.com/commontoolsinc/loom/pkg/schema"
	"github.com/commontoolsinc/loom/pkg/types"
)

// View is the materialised result of a traversal: a tagged variant
// tree in place of the source's lazy proxies. Access is explicit;
// Value flattens back to plain JSON with links rendered as sigils.
type View interface {
	// Value renders the view as a plain JSON value.
	Value() any
}

// Leaf holds a scalar or an opaque sub-tree that needed no walking.
type Leaf struct {
	V any
}

func (l Leaf) Value() any { return l.V }

// Object is a materialised JSON object.
type Object struct {
	Entries map[string]View
}

func (o Object) Value() any {
	out := make(map[string]any, len(o.Entries))
	for key, entry := range o.Entries {
		out[key] = entry.Value()
	}
	return out
}

// Key returns the view of one entry, nil when absent.
func (o Object) Key(key string) View {
	return o.Entries[key]
}

// Array is a materialised JSON array.
type Array struct {
	Items []View
}

func (a Array) Value() any {
	out := make([]any, len(a.Items))
	for i, item := range a.Items {
		out[i] = item.Value()
	}
	return out
}

// Index returns the view of one element, nil when out of range.
func (a Array) Index(i int) View {
	if i < 0 || i >= len(a.Items) {
		return nil
	}
	return a.Items[i]
}

// Ref marks a position that materialises as a handle rather than a
// value: an asCell/asStream schema position, a cycle cut, or a link
// left unfollowed.
type Ref struct {
	Address types.Address
	Schema  *schema.Schema
	Stream  bool
}

func (r Ref) Value() any {
	link := reference.Link{ID: r.Address.ID, Path: r.Address.Path}
	return link.ToValue()
}
