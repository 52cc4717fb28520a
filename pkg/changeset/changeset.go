package changeset

import (
	"fmt"
	"strings"

	"github.com/commontoolsinc/loom/pkg/reference"
	"github.com/commontoolsinc/loom/pkg/types"
)

const (
	// IDKey marks an object that names its own entity. The diff
	// allocates a cell for it and links it in place.
	IDKey = "$ID"
	// IDFieldKey redirects the effective id to a named property of
	// the value.
	IDFieldKey = "$ID_FIELD"
	// AliasKey is the legacy alias form rewritten into links.
	AliasKey = "$alias"
)

// Change is one minimal write of a change set.
type Change struct {
	Address types.Address
	Value   any
}

// Differ produces minimal change sets from (current, next) value
// pairs. Exists, when set, lets the differ reuse an already-allocated
// entity for an ID-marked object instead of re-initialising it.
type Differ struct {
	Base   types.Address
	Exists func(types.EntityID) bool
}

// Diff walks current and next in parallel and emits the minimal list
// of writes that turns current into next, applied in order.
func (d *Differ) Diff(current, next any) ([]Change, error) {
	return d.diff(current, next, d.Base.Path)
}

func (d *Differ) diff(current, next any, path types.Path) ([]Change, error) {
	next, extra, err := d.rewrite(next, path)
	if err != nil {
		return nil, err
	}

	if refEqual(current, next) {
		return extra, nil
	}

	// Links replace whole sub-trees; identical targets were already
	// caught by the equality check above.
	if reference.IsLink(next) {
		if reference.AreLinksSame(current, next) {
			return extra, nil
		}
		return append(extra, d.change(path, next)), nil
	}

	switch nextValue := next.(type) {
	case map[string]any:
		currentObject, ok := current.(map[string]any)
		if !ok {
			return append(extra, d.change(path, next)), nil
		}
		changes, err := d.diffObject(currentObject, nextValue, path)
		if err != nil {
			return nil, err
		}
		return append(extra, changes...), nil
	case []any:
		currentArray, ok := current.([]any)
		if !ok {
			return append(extra, d.change(path, next)), nil
		}
		changes, err := d.diffArray(currentArray, nextValue, path)
		if err != nil {
			return nil, err
		}
		return append(extra, changes...), nil
	default:
		return append(extra, d.change(path, next)), nil
	}
}

func (d *Differ) diffObject(current, next map[string]any, path types.Path) ([]Change, error) {
	var changes []Change
	for key, nextValue := range next {
		keyChanges, err := d.diff(current[key], nextValue, path.Append(key))
		if err != nil {
			return nil, err
		}
		changes = append(changes, keyChanges...)
	}
	// Deletions for removed keys.
	for key := range current {
		if _, kept := next[key]; !kept {
			changes = append(changes, d.change(path.Append(key), nil))
		}
	}
	return changes, nil
}

func (d *Differ) diffArray(current, next []any, path types.Path) ([]Change, error) {
	var changes []Change
	common := len(next)
	if len(current) < common {
		common = len(current)
	}
	for i := 0; i < common; i++ {
		indexChanges, err := d.diff(current[i], next[i], path.Append(types.IndexSegment(i)))
		if err != nil {
			return nil, err
		}
		changes = append(changes, indexChanges...)
	}
	if len(next) != len(current) {
		changes = append(changes, d.change(path.Append(types.LengthSegment), float64(len(next))))
		if len(next) < len(current) {
			// Truncated indices are deleted in ascending order.
			for i := len(next); i < len(current); i++ {
				changes = append(changes, d.change(path.Append(types.IndexSegment(i)), nil))
			}
		} else {
			for i := len(current); i < len(next); i++ {
				indexChanges, err := d.diff(nil, next[i], path.Append(types.IndexSegment(i)))
				if err != nil {
					return nil, err
				}
				changes = append(changes, indexChanges...)
			}
		}
	}
	return changes, nil
}

// rewrite resolves the special forms a next value may carry before
// diffing: legacy aliases become links, data-URI links inline their
// payload, and ID-marked objects allocate an entity, returning the
// link that takes their place plus the writes at the allocated entity.
func (d *Differ) rewrite(next any, path types.Path) (any, []Change, error) {
	object, ok := next.(map[string]any)
	if !ok {
		return next, nil, nil
	}
	if alias, ok := parseAlias(object); ok {
		if alias.ID == "" {
			// An alias without a cell targets the document it sits in.
			alias.ID = d.Base.ID
		}
		return alias.ToValue(), nil, nil
	}
	if link, ok := reference.ParseLink(object); ok && link.IsData() {
		value, err := reference.DecodeDataValue(string(link.ID), d.Base.Type)
		if err != nil {
			return nil, nil, err
		}
		return value, nil, nil
	}
	if hasIDMarker(object) {
		return d.allocate(object, path)
	}
	return next, nil, nil
}

// allocate derives an entity for an ID-marked object by causal hash
// of the parent namespace and the id, emits the object's value at the
// allocated entity, and substitutes a link at the original position.
func (d *Differ) allocate(object map[string]any, path types.Path) (any, []Change, error) {
	id := object[IDKey]
	if field, ok := object[IDFieldKey].(string); ok {
		id = object[field]
	}
	if id == nil {
		return nil, nil, fmt.Errorf("object at %s carries an ID marker without an id", path)
	}
	cause := map[string]any{
		"parent": string(d.Base.ID),
		"id":     id,
	}
	entity := entityFromCause(cause)

	stripped := make(map[string]any, len(object))
	for key, value := range object {
		if key == IDKey || key == IDFieldKey {
			continue
		}
		stripped[key] = value
	}

	link := reference.Link{ID: entity}
	var changes []Change
	if d.Exists == nil || !d.Exists(entity) {
		sub := &Differ{
			Base:   types.Address{Space: d.Base.Space, ID: entity, Type: d.Base.Type},
			Exists: d.Exists,
		}
		subChanges, err := sub.diff(nil, stripped, nil)
		if err != nil {
			return nil, nil, err
		}
		changes = subChanges
	}
	return link.ToValue(), changes, nil
}

// entityFromCause derives a stable entity id from a structured cause.
func entityFromCause(cause any) types.EntityID {
	ref := string(reference.Refer(cause))
	digest := strings.TrimPrefix(ref, "ref:")
	if len(digest) > 40 {
		digest = digest[:40]
	}
	return types.NewEntityID(digest)
}

// EntityFromCause exposes causal entity derivation for cell identity.
func EntityFromCause(cause any) types.EntityID {
	return entityFromCause(cause)
}

func hasIDMarker(object map[string]any) bool {
	_, ok := object[IDKey]
	if !ok {
		_, ok = object[IDFieldKey]
	}
	return ok
}

func parseAlias(object map[string]any) (reference.Link, bool) {
	if len(object) != 1 {
		return reference.Link{}, false
	}
	body, ok := object[AliasKey].(map[string]any)
	if !ok {
		return reference.Link{}, false
	}
	link := reference.Link{}
	if cell, ok := body["cell"].(string); ok {
		link.ID = types.EntityID(cell)
	}
	rawPath, ok := body["path"].([]any)
	if !ok {
		return reference.Link{}, false
	}
	for _, segment := range rawPath {
		switch s := segment.(type) {
		case string:
			link.Path = append(link.Path, s)
		case float64:
			link.Path = append(link.Path, types.IndexSegment(int(s)))
		default:
			return reference.Link{}, false
		}
	}
	return link, true
}

func (d *Differ) change(path types.Path, value any) Change {
	address := d.Base
	address.Path = path
	return Change{Address: address, Value: value}
}

// refEqual compares two values by canonical content hash, so integer
// and float encodings of the same number compare equal.
func refEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return reference.Refer(a) == reference.Refer(b)
}
