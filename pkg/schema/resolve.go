package schema

import (
	"fmt"
	"strings"

	"github.com/commontoolsinc/loom/pkg/types"
)

// UnresolvedRefError reports a $ref the engine cannot resolve. At the
// engine boundary it surfaces as an undefined schema; callers may
// convert it to a not-found condition.
type UnresolvedRefError struct {
	Ref string
}

func (e *UnresolvedRefError) Error() string {
	return fmt.Sprintf("unresolved schema $ref %q", e.Ref)
}

// Resolver resolves $refs against a root schema plus a small table of
// known absolute refs.
type Resolver struct {
	Root  *Schema
	Known map[string]*Schema
}

// NewResolver builds a resolver rooted at root.
func NewResolver(root *Schema) *Resolver {
	return &Resolver{Root: root}
}

// Resolve follows the schema's $ref, if any, one step. Fragment-only
// JSON pointers are resolved against the root; absolute refs consult
// the known table.
func (r *Resolver) Resolve(s *Schema) (*Schema, error) {
	if s == nil || s.Ref == "" {
		return s, nil
	}
	if known, ok := r.Known[s.Ref]; ok {
		return known, nil
	}
	fragment, ok := strings.CutPrefix(s.Ref, "#")
	if !ok {
		return nil, &UnresolvedRefError{Ref: s.Ref}
	}
	target, ok := walkPointer(r.Root, splitPointer(fragment))
	if !ok {
		return nil, &UnresolvedRefError{Ref: s.Ref}
	}
	return target, nil
}

// deref fully resolves chained $refs, guarding against reference
// cycles with the tracker.
func (r *Resolver) deref(s *Schema, seen *CycleTracker) (*Schema, error) {
	for s != nil && s.Ref != "" {
		if !seen.Enter(s.Ref) {
			return nil, &UnresolvedRefError{Ref: s.Ref}
		}
		next, err := r.Resolve(s)
		if err != nil {
			return nil, err
		}
		s = next
	}
	return s, nil
}

func splitPointer(fragment string) []string {
	if fragment == "" || fragment == "/" {
		return nil
	}
	raw := strings.Split(strings.TrimPrefix(fragment, "/"), "/")
	segments := make([]string, len(raw))
	for i, segment := range raw {
		segment = strings.ReplaceAll(segment, "~1", "/")
		segments[i] = strings.ReplaceAll(segment, "~0", "~")
	}
	return segments
}

// walkPointer follows JSON-pointer segments through the schema's own
// structure. Container keywords ($defs, properties, anyOf, oneOf,
// prefixItems) consume the following segment as well.
func walkPointer(s *Schema, segments []string) (*Schema, bool) {
	for i := 0; i < len(segments); i++ {
		if s == nil {
			return nil, false
		}
		switch segments[i] {
		case "$defs":
			i++
			if i >= len(segments) {
				return nil, false
			}
			next, ok := s.Defs[segments[i]]
			if !ok {
				return nil, false
			}
			s = next
		case "properties":
			i++
			if i >= len(segments) {
				return nil, false
			}
			next, ok := s.Properties[segments[i]]
			if !ok {
				return nil, false
			}
			s = next
		case "anyOf", "oneOf", "prefixItems":
			branches := s.AnyOf
			if segments[i] == "oneOf" {
				branches = s.OneOf
			} else if segments[i] == "prefixItems" {
				branches = s.PrefixItems
			}
			i++
			if i >= len(segments) {
				return nil, false
			}
			index, ok := types.Index(segments[i])
			if !ok || index >= len(branches) {
				return nil, false
			}
			s = branches[index]
		case "items":
			if s.Items == nil {
				return nil, false
			}
			s = s.Items
		case "additionalProperties":
			if s.AdditionalProperties == nil {
				return nil, false
			}
			s = s.AdditionalProperties
		default:
			return nil, false
		}
	}
	return s, true
}
