package traverse

import (
	"fmt"

	"github.com/commontoolsinc/loom/pkg/attestation"
	"github.com/commontoolsinc/loom/pkg/reference"
	"github.com/commontoolsinc/loom/pkg/schema"
	"github.com/commontoolsinc/loom/pkg/types"
)

// Source supplies the facts a traversal loads. Both replicas and
// transactions satisfy it.
type Source interface {
	Get(space types.Space, key types.FactKey) (types.Fact, bool)
}

// Traverser walks a composed value through links and schema, loading
// referenced facts on demand. It records every (entity, type) read it
// performs, the schema claimed per reached entity, the documents it
// could not find, and the ifc labels crossed on the way.
type Traverser struct {
	source  Source
	visited map[string]bool

	Reads   []types.Address
	Claims  map[types.EntityID]*schema.Schema
	Missing []types.Address
	Labels  []string
}

// New builds a traverser over a fact source.
func New(source Source) *Traverser {
	return &Traverser{
		source:  source,
		visited: make(map[string]bool),
		Claims:  make(map[types.EntityID]*schema.Schema),
	}
}

// Traverse materialises the value at an address under a schema.
func (t *Traverser) Traverse(address types.Address, s *schema.Schema) (View, error) {
	if s == nil {
		s = schema.True()
	}
	return t.load(address, s)
}

// load fetches the fact behind an address and walks its value at the
// address's path.
func (t *Traverser) load(address types.Address, s *schema.Schema) (View, error) {
	key := visitKey(address, s)
	if t.visited[key] {
		// Cycle: cut with a reference instead of recursing.
		return Ref{Address: address, Schema: s}, nil
	}
	t.visited[key] = true
	defer delete(t.visited, key)

	var value any
	if link := (reference.Link{ID: address.ID}); link.IsData() {
		decoded, err := reference.DecodeDataValue(string(address.ID), address.Type)
		if err != nil {
			return nil, err
		}
		value = decoded
	} else {
		entity := types.Address{Space: address.Space, ID: address.ID, Type: address.Type}
		t.Reads = append(t.Reads, entity)
		t.claim(address.ID, s)
		fact, ok := t.source.Get(address.Space, address.Key())
		if !ok {
			// Not replicated yet; the caller decides whether to sync.
			t.Missing = append(t.Missing, entity)
			return Leaf{V: nil}, nil
		}
		value = fact.Is
	}

	root := attestation.New(types.Address{
		Space: address.Space, ID: address.ID, Type: address.Type,
	}, value)
	at, err := root.Read(address.Path)
	if err != nil {
		return nil, err
	}

	resolver := schema.NewResolver(s)
	var labels []string
	reached, err := resolver.AtPathCollect(s, address.Path, func(node *schema.Schema) {
		if node != nil && node.IFC != nil {
			labels = append(labels, node.IFC.Classification...)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schema at %s: %w", address, err)
	}
	t.Labels = append(t.Labels, labels...)

	return t.walk(address, at.Value, resolver, reached)
}

// walk materialises one value node under its schema.
func (t *Traverser) walk(address types.Address, value any, resolver *schema.Resolver, s *schema.Schema) (View, error) {
	if s != nil && s.IFC != nil {
		t.Labels = append(t.Labels, s.IFC.Classification...)
	}
	if s != nil && (s.AsCell || s.AsStream) {
		// The position materialises as a handle; the value stays put.
		return Ref{Address: address, Schema: s, Stream: s.AsStream}, nil
	}
	if link, ok := reference.ParseLink(value); ok {
		return t.follow(address, link, s)
	}

	switch container := value.(type) {
	case map[string]any:
		entries := make(map[string]View, len(container))
		for key, entry := range container {
			next, err := t.schemaAt(resolver, s, key)
			if err != nil {
				return nil, err
			}
			child, err := t.walk(address.At(key), entry, resolver, next)
			if err != nil {
				return nil, err
			}
			entries[key] = child
		}
		return Object{Entries: entries}, nil
	case []any:
		items := make([]View, len(container))
		for i, entry := range container {
			segment := types.IndexSegment(i)
			next, err := t.schemaAt(resolver, s, segment)
			if err != nil {
				return nil, err
			}
			child, err := t.walk(address.At(segment), entry, resolver, next)
			if err != nil {
				return nil, err
			}
			items[i] = child
		}
		return Array{Items: items}, nil
	default:
		return Leaf{V: value}, nil
	}
}

// follow loads the fact behind a link and continues there. The link's
// schema hint, when present, narrows the walk; every follow is
// recorded both as a read and as a schema claim.
func (t *Traverser) follow(from types.Address, link reference.Link, s *schema.Schema) (View, error) {
	target := link.Address(from.Space, from.Type)
	next := s
	if link.Schema != nil {
		hinted, err := schema.Parse(link.Schema)
		if err == nil {
			next = hinted
		}
	}
	return t.load(target, next)
}

func (t *Traverser) schemaAt(resolver *schema.Resolver, s *schema.Schema, segment string) (*schema.Schema, error) {
	if s == nil || s.IsTrue() {
		return schema.True(), nil
	}
	return resolver.AtPath(s, types.Path{segment})
}

// claim records the widest schema claimed for an entity. Later claims
// under a different schema widen to true rather than guessing a
// merge.
func (t *Traverser) claim(id types.EntityID, s *schema.Schema) {
	existing, ok := t.Claims[id]
	if !ok {
		t.Claims[id] = s
		return
	}
	if existing != s && existing.Form() != s.Form() {
		t.Claims[id] = schema.True()
	}
}

func visitKey(address types.Address, s *schema.Schema) string {
	return string(reference.Refer(map[string]any{
		"space":  string(address.Space),
		"id":     string(address.ID),
		"path":   address.Path.String(),
		"schema": s.Form(),
	}))
}
