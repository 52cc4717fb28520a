package changeset

import (
	"github.com/commontoolsinc/loom/pkg/attestation"
)

// Compact minimises a change set without changing its meaning. A
// write below an earlier wider write folds into the wider value; an
// earlier write below a later wider one is superseded and dropped.
// Everything else keeps its order.
func Compact(changes []Change) []Change {
	var out []Change
	for _, change := range changes {
		// A wider write supersedes earlier writes underneath it.
		kept := out[:0]
		for _, prior := range out {
			if sameEntity(prior, change) && prior.Address.Path.HasPrefix(change.Address.Path) {
				continue
			}
			kept = append(kept, prior)
		}
		out = kept
		merged := false
		for i := len(out) - 1; i >= 0; i-- {
			prior := &out[i]
			if !sameEntity(*prior, change) || !change.Address.Path.HasPrefix(prior.Address.Path) {
				continue
			}
			relative := change.Address.Path[len(prior.Address.Path):]
			if folded, ok := fold(prior.Value, relative, change.Value); ok {
				prior.Value = folded
				merged = true
			}
			break
		}
		if !merged {
			out = append(out, change)
		}
	}
	return out
}

func sameEntity(a, b Change) bool {
	return a.Address.Space == b.Address.Space &&
		a.Address.ID == b.Address.ID &&
		a.Address.Type == b.Address.Type
}

// fold applies a narrow write inside a wider value. Failures (the
// wider value lacks the path) keep both writes instead of guessing.
func fold(wider any, relative []string, value any) (any, bool) {
	att := attestation.Attestation{Value: wider}
	next, err := att.Write(relative, value)
	if err != nil {
		return nil, false
	}
	return next.Value, true
}
