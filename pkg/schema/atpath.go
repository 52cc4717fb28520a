package schema

import (
	"github.com/commontoolsinc/loom/pkg/types"
)

// CycleTracker guards $ref resolution against reference cycles. Enter
// returns false when the key is already on the current scope's stack;
// the returned release restores the tracker on scope exit.
type CycleTracker struct {
	active map[string]int
}

// NewCycleTracker returns an empty tracker.
func NewCycleTracker() *CycleTracker {
	return &CycleTracker{active: make(map[string]int)}
}

// Enter marks a key active, reporting false if it already is.
func (t *CycleTracker) Enter(key string) bool {
	if t.active[key] > 0 {
		return false
	}
	t.active[key]++
	return true
}

// Exit releases a key entered with Enter.
func (t *CycleTracker) Exit(key string) {
	if t.active[key] > 0 {
		t.active[key]--
	}
}

// numberSchema describes array "length" positions.
func numberSchema() *Schema {
	return &Schema{Type: "number"}
}

// AtPath computes the schema governing the value at path. anyOf and
// oneOf recurse into each branch: a branch yielding true short-
// circuits the result to true, false branches are pruned, and
// surviving duplicates are deduped by JSON form. An unresolvable $ref
// yields an error the caller treats as undefined.
func (r *Resolver) AtPath(s *Schema, path types.Path) (*Schema, error) {
	return r.atPath(s, path, NewCycleTracker(), nil)
}

// AtPathCollect is AtPath with a visitor invoked for every schema node
// crossed along the walk, including anyOf branches. The traverser uses
// it to gather ifc labels.
func (r *Resolver) AtPathCollect(s *Schema, path types.Path, visit func(*Schema)) (*Schema, error) {
	return r.atPath(s, path, NewCycleTracker(), visit)
}

func (r *Resolver) atPath(s *Schema, path types.Path, seen *CycleTracker, visit func(*Schema)) (*Schema, error) {
	if s != nil && s.Ref != "" {
		ref := s.Ref
		if !seen.Enter(ref) {
			return nil, &UnresolvedRefError{Ref: ref}
		}
		defer seen.Exit(ref)
		resolved, err := r.Resolve(s)
		if err != nil {
			return nil, err
		}
		s = resolved
	}
	if s == nil || s.IsTrue() {
		if s != nil && visit != nil {
			visit(s)
		}
		if len(path) == 0 && s != nil {
			return s, nil
		}
		return True(), nil
	}
	if visit != nil {
		visit(s)
	}
	if s.IsFalse() {
		return False(), nil
	}
	if len(s.AnyOf) > 0 || len(s.OneOf) > 0 {
		branches := append(append([]*Schema{}, s.AnyOf...), s.OneOf...)
		return r.reduceBranches(branches, path, seen, visit)
	}
	if len(path) == 0 {
		return s, nil
	}

	segment, rest := path[0], path[1:]
	switch s.Type {
	case "object", "":
		next, ok := s.Properties[segment]
		if !ok {
			// additionalProperties governs unseen properties; absent
			// means anything goes.
			if s.AdditionalProperties == nil {
				return True(), nil
			}
			next = s.AdditionalProperties
		}
		return r.atPath(next, rest, seen, visit)
	case "array":
		if segment == types.LengthSegment {
			return numberSchema(), nil
		}
		index, ok := types.Index(segment)
		if !ok {
			return False(), nil
		}
		if index < len(s.PrefixItems) {
			return r.atPath(s.PrefixItems[index], rest, seen, visit)
		}
		if s.Items == nil {
			return True(), nil
		}
		return r.atPath(s.Items, rest, seen, visit)
	default:
		// Walking below a primitive never matches.
		return False(), nil
	}
}

// reduceBranches applies the anyOf reduction rules at a path.
func (r *Resolver) reduceBranches(branches []*Schema, path types.Path, seen *CycleTracker, visit func(*Schema)) (*Schema, error) {
	var reduced []*Schema
	forms := make(map[string]bool)
	for _, branch := range branches {
		option, err := r.atPath(branch, path, seen, visit)
		if err != nil {
			// An unresolvable branch is dropped rather than failing
			// the whole reduction.
			continue
		}
		if option.IsTrue() {
			return True(), nil
		}
		if option.IsFalse() {
			continue
		}
		form := option.Form()
		if forms[form] {
			continue
		}
		forms[form] = true
		reduced = append(reduced, option)
	}
	switch len(reduced) {
	case 0:
		return False(), nil
	case 1:
		return reduced[0], nil
	default:
		return &Schema{AnyOf: reduced}, nil
	}
}

// LabelsAtPath collects every ifc classification encountered walking
// from the schema root down to path, destination included.
func (r *Resolver) LabelsAtPath(s *Schema, path types.Path) ([]string, error) {
	var labels []string
	_, err := r.AtPathCollect(s, path, func(node *Schema) {
		if node != nil && node.IFC != nil {
			labels = append(labels, node.IFC.Classification...)
		}
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}
