package cfc

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/commontoolsinc/loom/pkg/log"
	"github.com/commontoolsinc/loom/pkg/metrics"
	"github.com/commontoolsinc/loom/pkg/types"
)

// Mode selects how flow-control checks behave at runtime.
type Mode string

const (
	// ModeDisabled performs no label propagation or checks.
	ModeDisabled Mode = "disabled"
	// ModeDryRun computes and records checks without enforcing them.
	ModeDryRun Mode = "dry-run"
	// ModeEnforcing aborts transactions on violations.
	ModeEnforcing Mode = "enforcing"
)

// Violation reports a write whose destination label is below the
// transaction's accumulated taint.
type Violation struct {
	Address     types.Address
	Taint       Label
	Destination Label
}

func (e *Violation) Error() string {
	return fmt.Sprintf("flow violation at %s: taint %s exceeds destination label %s",
		e.Address, e.Taint, e.Destination)
}

// Taint tracks the classification context of one transaction: the
// least upper bound of every label reached through its reads.
type Taint struct {
	lattice *Lattice
	mode    Mode
	current Label
	logger  zerolog.Logger

	// Violations recorded in dry-run mode.
	Recorded []*Violation
}

// NewTaint starts an empty taint context at the lattice bottom.
func NewTaint(lattice *Lattice, mode Mode) *Taint {
	if lattice == nil {
		lattice = NewReferenceLattice()
	}
	return &Taint{
		lattice: lattice,
		mode:    mode,
		current: Unclassified,
		logger:  log.WithComponent("cfc"),
	}
}

// Mode returns the taint's runtime mode.
func (t *Taint) Mode() Mode {
	if t == nil {
		return ModeDisabled
	}
	return t.mode
}

// Current returns the accumulated taint label.
func (t *Taint) Current() Label {
	if t == nil {
		return Unclassified
	}
	return t.current
}

// Observe joins labels reached by a read into the taint.
func (t *Taint) Observe(labels []string) {
	if t == nil || t.mode == ModeDisabled || len(labels) == 0 {
		return
	}
	for _, label := range labels {
		t.current = t.lattice.Join(t.current, Label(label))
	}
}

// CheckWrite verifies that the taint may flow to a destination whose
// labels are given. In enforcing mode a violation is returned; in
// dry-run it is recorded and logged via telemetry only.
func (t *Taint) CheckWrite(address types.Address, labels []string) error {
	if t == nil || t.mode == ModeDisabled {
		return nil
	}
	destination := t.lattice.JoinAll(toLabels(labels))
	if t.lattice.Leq(t.current, destination) {
		return nil
	}
	violation := &Violation{Address: address, Taint: t.current, Destination: destination}
	metrics.CFCViolations.WithLabelValues(string(t.mode)).Inc()
	if t.mode == ModeDryRun {
		t.Recorded = append(t.Recorded, violation)
		t.logger.Warn().
			Str("address", address.String()).
			Str("taint", string(t.current)).
			Str("destination", string(destination)).
			Msg("Flow violation recorded (dry-run)")
		return nil
	}
	return violation
}

func toLabels(labels []string) []Label {
	out := make([]Label, len(labels))
	for i, label := range labels {
		out[i] = Label(label)
	}
	return out
}
