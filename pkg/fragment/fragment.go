// Package fragment decomposes a stabilizer circuit into fragments: pieces
// that start with resets, perform unitary gates and end with measurements.
// Repeated blocks of fragments become loops.
package fragment

import (
	"slices"

	"github.com/fyrsmithlabs/detectd/pkg/circuit"
	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
)

// Node is a *Fragment or a *Loop.
type Node interface {
	isNode()
}

// Fragment is a circuit whose leading moments hold its resets and whose
// trailing moments hold its measurements.
type Fragment struct {
	circuit      *circuit.Circuit
	resets       []pauli.Operator
	measurements []pauli.Operator
}

func (*Fragment) isNode() {}

// NewFragment derives the resets and measurements of c and checks the
// fragment shape.
func NewFragment(c *circuit.Circuit) (*Fragment, error) {
	if c.HasRepeat() {
		return nil, detecterr.New(detecterr.MalformedCircuit,
			"a fragment cannot contain a REPEAT block:\n%s", c)
	}
	moments := c.Moments()
	for _, m := range moments {
		if m.HasReset() && m.HasMeasurement() {
			return nil, detecterr.New(detecterr.MalformedCircuit,
				"a moment of the fragment contains both resets and measurements:\n%s", m)
		}
	}

	var resets []pauli.Operator
	for _, m := range moments {
		if m.IsVirtual() {
			continue
		}
		if !m.IsResetOnly() {
			break
		}
		resets = append(resets, byQubit(m.CollapsingOperations())...)
	}

	// Measurements keep record order: rec[] offsets index into it.
	var measurements []pauli.Operator
	for _, m := range slices.Backward(moments) {
		if m.IsVirtual() {
			continue
		}
		if !m.HasMeasurement() {
			break
		}
		measurements = append(m.CollapsingOperations(), measurements...)
	}

	if len(measurements) == 0 {
		return nil, detecterr.New(detecterr.MalformedCircuit,
			"a fragment should end with at least one measurement:\n%s", c)
	}
	return &Fragment{circuit: c, resets: resets, measurements: measurements}, nil
}

func byQubit(ops []pauli.Operator) []pauli.Operator {
	slices.SortStableFunc(ops, func(a, b pauli.Operator) int {
		qa, _, _ := a.SingleQubit()
		qb, _, _ := b.SingleQubit()
		return qa - qb
	})
	return ops
}

// Circuit returns the fragment's circuit.
func (f *Fragment) Circuit() *circuit.Circuit { return f.circuit }

// Resets returns the leading reset operations, moment by moment, each
// moment in increasing qubit order.
func (f *Fragment) Resets() []pauli.Operator { return slices.Clone(f.resets) }

// Measurements returns the trailing measurements in record order.
func (f *Fragment) Measurements() []pauli.Operator { return slices.Clone(f.measurements) }

// NumMeasurements is the number of records the fragment adds.
func (f *Fragment) NumMeasurements() int { return len(f.measurements) }

// MeasuredQubits returns the measured qubits in record order.
func (f *Fragment) MeasuredQubits() []int {
	qs := make([]int, len(f.measurements))
	for i, m := range f.measurements {
		qs[i], _, _ = m.SingleQubit()
	}
	return qs
}

// Loop repeats its children a fixed number of times.
type Loop struct {
	children    []Node
	repetitions int
}

func (*Loop) isNode() {}

// NewLoop checks that the body is non-empty and the count is at least one.
func NewLoop(children []Node, repetitions int) (*Loop, error) {
	if len(children) == 0 {
		return nil, detecterr.New(detecterr.InvalidConstruction, "a loop needs at least one fragment")
	}
	if repetitions < 1 {
		return nil, detecterr.New(detecterr.InvalidConstruction,
			"a loop must repeat at least once, got %d", repetitions)
	}
	return &Loop{children: slices.Clone(children), repetitions: repetitions}, nil
}

// Children returns the loop body.
func (l *Loop) Children() []Node { return slices.Clone(l.children) }

// Repetitions returns the repeat count.
func (l *Loop) Repetitions() int { return l.repetitions }

// WithRepetitions returns a copy of l with a different repeat count.
func (l *Loop) WithRepetitions(n int) (*Loop, error) {
	return NewLoop(l.children, n)
}

// NumMeasurements counts the records of one execution of the body.
func (l *Loop) NumMeasurements() int {
	n := 0
	for _, child := range l.children {
		n += numMeasurements(child)
	}
	return n
}

func numMeasurements(n Node) int {
	switch n := n.(type) {
	case *Fragment:
		return n.NumMeasurements()
	case *Loop:
		return n.repetitions * n.NumMeasurements()
	default:
		return 0
	}
}

// Count returns the number of fragments, expanding loops.
func Count(nodes []Node) int {
	total := 0
	for _, n := range nodes {
		switch n := n.(type) {
		case *Fragment:
			total++
		case *Loop:
			total += n.repetitions * Count(n.children)
		}
	}
	return total
}
