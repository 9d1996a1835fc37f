// Package flow computes the boundary stabilizers a fragment creates and
// destroys.
//
// A creation flow starts at one reset of the fragment and is propagated
// forward to the measurements ending it. A destruction flow starts at one
// measurement and is propagated backward to the resets starting it.
package flow

import (
	"slices"

	"github.com/fyrsmithlabs/detectd/pkg/boundary"
	"github.com/fyrsmithlabs/detectd/pkg/circuit"
	"github.com/fyrsmithlabs/detectd/pkg/clifford"
	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/fragment"
	"github.com/fyrsmithlabs/detectd/pkg/measurement"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
)

// Flows holds the boundary stabilizers of one fragment. Measurement
// references are relative to the end of the fragment.
type Flows struct {
	Creation    []boundary.Stabilizer
	Destruction []boundary.Stabilizer
}

// Compute derives the flows of f. Resets must all happen in the leading
// reset moments of the fragment.
func Compute(f *fragment.Fragment) (Flows, error) {
	if err := checkResetsLead(f); err != nil {
		return Flows{}, err
	}
	prop, err := clifford.FromCircuit(f.Circuit())
	if err != nil {
		return Flows{}, err
	}

	resets := f.Resets()
	measurements := f.Measurements()
	n := len(measurements)

	var flows Flows
	for _, r := range resets {
		q, _, _ := r.SingleQubit()
		before := prop.Forward(r)
		var (
			collapsing []pauli.Operator
			refs       []measurement.Reference
		)
		for i, m := range measurements {
			mq, _, _ := m.SingleQubit()
			if before.Get(mq) == pauli.I {
				continue
			}
			ref, err := measurement.New(mq, i-n)
			if err != nil {
				return Flows{}, err
			}
			collapsing = append(collapsing, m)
			refs = append(refs, ref)
		}
		flows.Creation = append(flows.Creation,
			boundary.New(before, collapsing, refs, []int{q}, boundary.Forward))
	}

	for i, m := range measurements {
		q, _, _ := m.SingleQubit()
		before := prop.Backward(m)
		var collapsing []pauli.Operator
		for _, r := range resets {
			rq, _, _ := r.SingleQubit()
			if before.Get(rq) != pauli.I {
				collapsing = append(collapsing, r)
			}
		}
		ref, err := measurement.New(q, i-n)
		if err != nil {
			return Flows{}, err
		}
		flows.Destruction = append(flows.Destruction,
			boundary.New(before, collapsing, []measurement.Reference{ref}, []int{q}, boundary.Backward))
	}
	return flows, nil
}

// checkResetsLead rejects resets after the first computation moment: the
// propagation treats every reset as happening at the start of the fragment.
func checkResetsLead(f *fragment.Fragment) error {
	leading := len(f.Resets())
	seen := 0
	for _, inst := range f.Circuit().Instructions() {
		if inst.Gate().Kind == circuit.KindReset {
			seen += len(inst.Targets)
		}
	}
	if seen != leading {
		return detecterr.New(detecterr.MalformedCircuit,
			"fragment resets %d qubits after its leading reset moments:\n%s", seen-leading, f.Circuit())
	}
	return nil
}

// Deterministic reports whether s describes a detector on its own: its
// collapse is deterministic, leaves nothing behind, and involves at least one
// measurement.
func Deterministic(s boundary.Stabilizer) bool {
	if s.HasAnticommutingOperations() || len(s.Measurements()) == 0 {
		return false
	}
	after, err := s.AfterCollapse()
	return err == nil && after.IsIdentity()
}

// Open returns the stabilizers that survive their collapse with a
// non-trivial remainder, in order.
func Open(stabs []boundary.Stabilizer) []boundary.Stabilizer {
	return slices.DeleteFunc(slices.Clone(stabs), func(s boundary.Stabilizer) bool {
		if s.HasAnticommutingOperations() {
			return true
		}
		after, err := s.AfterCollapse()
		return err != nil || after.IsIdentity()
	})
}
