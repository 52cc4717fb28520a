package reference

import (
	"strings"

	"github.com/commontoolsinc/loom/pkg/types"
)

const (
	// SigilKey is the single top-level key of every sigil object.
	SigilKey = "/"
	// LinkTag identifies the link sigil variant.
	LinkTag = "link@1"
)

// Link is the parsed form of a link sigil embedded in a fact's value.
// Space is empty for links targeting the owning space. Schema carries
// an optional schema hint in raw JSON form; it is ignored for identity.
type Link struct {
	ID     types.EntityID
	Path   types.Path
	Space  types.Space
	Schema any
}

// IsData reports whether the link embeds its target as a data URI
// instead of referencing an entity.
func (l Link) IsData() bool {
	return strings.HasPrefix(string(l.ID), "data:")
}

// identity is the canonical shape links hash and compare by. The
// schema hint is deliberately excluded.
func (l Link) identity() map[string]any {
	id := map[string]any{
		"id":   string(l.ID),
		"path": pathValue(l.Path),
	}
	if l.Space != "" {
		id["space"] = string(l.Space)
	}
	return map[string]any{SigilKey: map[string]any{LinkTag: id}}
}

// ToValue renders the link back into its sigil JSON form, schema hint
// included.
func (l Link) ToValue() map[string]any {
	body := map[string]any{
		"id":   string(l.ID),
		"path": pathValue(l.Path),
	}
	if l.Space != "" {
		body["space"] = string(l.Space)
	}
	if l.Schema != nil {
		body["schema"] = l.Schema
	}
	return map[string]any{SigilKey: map[string]any{LinkTag: body}}
}

// Address resolves the link against the space it was found in.
func (l Link) Address(owner types.Space, the types.MediaType) types.Address {
	space := l.Space
	if space == "" {
		space = owner
	}
	return types.Address{Space: space, ID: l.ID, Type: the, Path: l.Path}
}

// ParseLink recognises the link sigil shape and returns its parsed
// form. Any other shape returns false.
func ParseLink(value any) (Link, bool) {
	object, ok := value.(map[string]any)
	if !ok || len(object) != 1 {
		return Link{}, false
	}
	sigil, ok := object[SigilKey].(map[string]any)
	if !ok || len(sigil) != 1 {
		return Link{}, false
	}
	body, ok := sigil[LinkTag].(map[string]any)
	if !ok {
		return Link{}, false
	}
	id, ok := body["id"].(string)
	if !ok || id == "" {
		return Link{}, false
	}
	link := Link{ID: types.EntityID(id)}
	if raw, found := body["path"]; found {
		path, ok := parsePath(raw)
		if !ok {
			return Link{}, false
		}
		link.Path = path
	}
	if space, found := body["space"]; found {
		s, ok := space.(string)
		if !ok {
			return Link{}, false
		}
		link.Space = types.Space(s)
	}
	link.Schema = body["schema"]
	return link, true
}

// IsLink reports whether the value has the link sigil shape.
func IsLink(value any) bool {
	_, ok := ParseLink(value)
	return ok
}

// AreLinksSame compares two values as links, ignoring incidental
// attributes such as schema hints. Non-link values are never the same.
func AreLinksSame(a, b any) bool {
	la, ok := ParseLink(a)
	if !ok {
		return false
	}
	lb, ok := ParseLink(b)
	if !ok {
		return false
	}
	return la.ID == lb.ID && la.Space == lb.Space && la.Path.Equal(lb.Path)
}

func parsePath(raw any) (types.Path, bool) {
	entries, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	path := make(types.Path, 0, len(entries))
	for _, entry := range entries {
		switch segment := entry.(type) {
		case string:
			path = append(path, segment)
		case float64:
			path = append(path, types.IndexSegment(int(segment)))
		default:
			return nil, false
		}
	}
	return path, true
}

func pathValue(path types.Path) []any {
	out := make([]any, len(path))
	for i, segment := range path {
		out[i] = segment
	}
	return out
}
