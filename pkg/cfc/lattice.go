package cfc

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Label is an element of the classification lattice.
type Label string

// Unclassified is the designated bottom of every lattice.
const Unclassified Label = "unclassified"

// Lattice is a finite join-semilattice of classification labels with
// a unique bottom. Edges run upward: each label lists the labels
// directly above it.
type Lattice struct {
	above map[Label][]Label
	rank  map[Label]int
}

// LatticeConfig is the YAML shape a user-configured lattice loads
// from. Each entry names a label and the labels directly above it.
type LatticeConfig struct {
	Labels map[string][]string `yaml:"labels"`
}

// NewReferenceLattice returns the four-level chain
// unclassified ≤ confidential ≤ secret ≤ topsecret.
func NewReferenceLattice() *Lattice {
	lattice, err := NewLattice(map[Label][]Label{
		Unclassified:   {"confidential"},
		"confidential": {"secret"},
		"secret":       {"topsecret"},
		"topsecret":    {},
	})
	if err != nil {
		panic(err)
	}
	return lattice
}

// NewLattice builds a lattice from upward edges. Every label must be
// reachable from the bottom and joins must be unique.
func NewLattice(above map[Label][]Label) (*Lattice, error) {
	l := &Lattice{above: make(map[Label][]Label, len(above))}
	for label, parents := range above {
		l.above[label] = append([]Label{}, parents...)
		for _, parent := range parents {
			if _, ok := above[parent]; !ok {
				return nil, fmt.Errorf("lattice edge %s -> %s names an unknown label", label, parent)
			}
		}
	}
	if _, ok := l.above[Unclassified]; !ok {
		return nil, fmt.Errorf("lattice is missing the %s bottom", Unclassified)
	}
	if err := l.computeRanks(); err != nil {
		return nil, err
	}
	return l, nil
}

// ParseLattice loads a lattice from its YAML configuration.
func ParseLattice(data []byte) (*Lattice, error) {
	var cfg LatticeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse lattice config: %w", err)
	}
	return FromConfig(cfg)
}

// FromConfig builds a lattice from its decoded configuration.
func FromConfig(cfg LatticeConfig) (*Lattice, error) {
	above := make(map[Label][]Label, len(cfg.Labels))
	for label, parents := range cfg.Labels {
		edges := make([]Label, len(parents))
		for i, parent := range parents {
			edges[i] = Label(parent)
		}
		above[Label(label)] = edges
	}
	return NewLattice(above)
}

// computeRanks assigns every label its distance from the bottom,
// verifying reachability and acyclicity on the way.
func (l *Lattice) computeRanks() error {
	l.rank = map[Label]int{Unclassified: 0}
	frontier := []Label{Unclassified}
	for depth := 0; len(frontier) > 0; depth++ {
		// Ranks in an acyclic order never exceed the label count.
		if depth > len(l.above) {
			return fmt.Errorf("lattice contains a cycle")
		}
		var next []Label
		for _, label := range frontier {
			for _, parent := range l.above[label] {
				if current, ok := l.rank[parent]; ok && current >= l.rank[label]+1 {
					continue
				}
				l.rank[parent] = l.rank[label] + 1
				next = append(next, parent)
			}
		}
		frontier = next
	}
	for label := range l.above {
		if _, ok := l.rank[label]; !ok {
			return fmt.Errorf("label %s is unreachable from %s", label, Unclassified)
		}
	}
	return nil
}

// Has reports whether the label is part of the lattice.
func (l *Lattice) Has(label Label) bool {
	_, ok := l.above[label]
	return ok
}

// upSet returns every label reachable upward from the given one,
// itself included.
func (l *Lattice) upSet(label Label) map[Label]bool {
	set := map[Label]bool{label: true}
	frontier := []Label{label}
	for len(frontier) > 0 {
		var next []Label
		for _, current := range frontier {
			for _, parent := range l.above[current] {
				if !set[parent] {
					set[parent] = true
					next = append(next, parent)
				}
			}
		}
		frontier = next
	}
	return set
}

// Leq reports whether a flows to b, i.e. a ≤ b in the lattice.
func (l *Lattice) Leq(a, b Label) bool {
	if a == b {
		return true
	}
	return l.upSet(a)[b]
}

// Join computes the least upper bound of two labels. Unknown labels
// are treated as the bottom (Unclassified) before joining.
func (l *Lattice) Join(a, b Label) Label {
	if !l.Has(a) {
		a = Unclassified
	}
	if !l.Has(b) {
		b = Unclassified
	}
	if l.Leq(a, b) {
		return b
	}
	if l.Leq(b, a) {
		return a
	}
	common := Label("")
	best := -1
	for candidate := range l.upSet(a) {
		if !l.upSet(b)[candidate] {
			continue
		}
		if best == -1 || l.rank[candidate] < best {
			common, best = candidate, l.rank[candidate]
		}
	}
	return common
}

// JoinAll folds Join over a set of labels starting at the bottom.
func (l *Lattice) JoinAll(labels []Label) Label {
	result := Unclassified
	for _, label := range labels {
		result = l.Join(result, label)
	}
	return result
}
