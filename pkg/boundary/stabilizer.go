// Package boundary implements stabilizers living on the boundary between two
// fragments, before and after the collapsing operations (resets or
// measurements) of that boundary.
package boundary

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/measurement"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
)

// Direction tells which way a stabilizer was propagated.
type Direction int

const (
	// Forward stabilizers start at resets and are propagated toward the
	// measurements at the end of a fragment.
	Forward Direction = iota
	// Backward stabilizers start at measurements and are propagated toward
	// the resets at the start of a fragment.
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Stabilizer is an immutable boundary stabilizer.
type Stabilizer struct {
	before       pauli.Operator
	collapsing   []pauli.Operator
	measurements []measurement.Reference
	anchors      []int
	direction    Direction
}

// New builds a stabilizer. Measurements and anchor qubits are sets:
// duplicates are dropped and order is not significant.
func New(
	before pauli.Operator,
	collapsing []pauli.Operator,
	measurements []measurement.Reference,
	anchors []int,
	direction Direction,
) Stabilizer {
	a := slices.Clone(anchors)
	slices.Sort(a)
	return Stabilizer{
		before:       before,
		collapsing:   slices.Clone(collapsing),
		measurements: measurement.Set(measurements),
		anchors:      slices.Compact(a),
		direction:    direction,
	}
}

// BeforeCollapse is the stabilizer before the collapsing operations.
func (s Stabilizer) BeforeCollapse() pauli.Operator { return s.before }

// CollapsingOperations returns the single-qubit collapsing operators.
func (s Stabilizer) CollapsingOperations() []pauli.Operator { return slices.Clone(s.collapsing) }

// Measurements returns the measurement references, ordered by offset.
func (s Stabilizer) Measurements() []measurement.Reference { return slices.Clone(s.measurements) }

// AnchorQubits returns the qubits the stabilizer originates from, sorted.
func (s Stabilizer) AnchorQubits() []int { return slices.Clone(s.anchors) }

// Direction returns the propagation direction.
func (s Stabilizer) Direction() Direction { return s.direction }

// HasAnticommutingOperations reports whether some collapsing operation
// anticommutes with the stabilizer before collapse.
func (s Stabilizer) HasAnticommutingOperations() bool {
	for _, op := range s.collapsing {
		if !op.Commutes(s.before) {
			return true
		}
	}
	return false
}

// AfterCollapse returns the stabilizer once the collapsing operations have
// been applied: the product of the stabilizer with every collapsing
// operation.
func (s Stabilizer) AfterCollapse() (pauli.Operator, error) {
	if s.HasAnticommutingOperations() {
		return pauli.Operator{}, detecterr.New(detecterr.NonDeterministicCollapse,
			"stabilizer %s anticommutes with at least one of its collapsing operations", s.before)
	}
	return s.before.Multiply(pauli.Product(s.collapsing...)), nil
}

// WithMeasurementOffset returns a copy with every measurement reference
// shifted by delta.
func (s Stabilizer) WithMeasurementOffset(delta int) (Stabilizer, error) {
	shifted := make([]measurement.Reference, len(s.measurements))
	for i, m := range s.measurements {
		r, err := m.OffsetBy(delta)
		if err != nil {
			return Stabilizer{}, err
		}
		shifted[i] = r
	}
	out := s
	out.measurements = shifted
	return out, nil
}

// Coordinates returns the mean of the anchor qubits' coordinates.
func (s Stabilizer) Coordinates(qubitCoordinates map[int][]float64) ([]float64, error) {
	if len(s.anchors) == 0 {
		return nil, detecterr.New(detecterr.MissingCoordinate, "stabilizer has no anchor qubit")
	}
	var sum []float64
	for _, q := range s.anchors {
		c, ok := qubitCoordinates[q]
		if !ok {
			return nil, detecterr.New(detecterr.MissingCoordinate,
				"qubit index %d required for detector assignment, but it does not have a valid QUBIT_COORDS statement", q)
		}
		if sum == nil {
			sum = make([]float64, len(c))
		}
		if len(c) != len(sum) {
			return nil, detecterr.New(detecterr.InvalidConstruction,
				"qubit %d has %d coordinates, expected %d", q, len(c), len(sum))
		}
		for i, v := range c {
			sum[i] += v
		}
	}
	for i := range sum {
		sum[i] /= float64(len(s.anchors))
	}
	return sum, nil
}

// ManhattanDistance is the L1 distance between the coordinates of a and b.
func ManhattanDistance(a, b Stabilizer, qubitCoordinates map[int][]float64) (float64, error) {
	ca, err := a.Coordinates(qubitCoordinates)
	if err != nil {
		return 0, err
	}
	cb, err := b.Coordinates(qubitCoordinates)
	if err != nil {
		return 0, err
	}
	if len(ca) != len(cb) {
		return 0, detecterr.New(detecterr.InvalidConstruction,
			"cannot compare coordinates of dimension %d and %d", len(ca), len(cb))
	}
	d := 0.0
	for i := range ca {
		d += math.Abs(ca[i] - cb[i])
	}
	return d, nil
}

// Merge combines two stabilizers anchored on disjoint qubits and propagated
// in the same direction. The stabilizers multiply, collapsing operations are
// united, and measurements appearing in both cancel out.
func (s Stabilizer) Merge(o Stabilizer) (Stabilizer, error) {
	if s.direction != o.direction {
		return Stabilizer{}, detecterr.New(detecterr.IncompatibleMerge,
			"cannot merge a %s stabilizer with a %s one", s.direction, o.direction)
	}
	for _, q := range o.anchors {
		if _, found := slices.BinarySearch(s.anchors, q); found {
			return Stabilizer{}, detecterr.New(detecterr.IncompatibleMerge,
				"cannot merge stabilizers sharing anchor qubit %d", q)
		}
	}

	collapsing := slices.Clone(s.collapsing)
	for _, op := range o.collapsing {
		if !slices.ContainsFunc(collapsing, op.Equal) {
			collapsing = append(collapsing, op)
		}
	}
	return New(
		s.before.Multiply(o.before),
		collapsing,
		measurement.SymmetricDifference(s.measurements, o.measurements),
		append(slices.Clone(s.anchors), o.anchors...),
		s.direction,
	), nil
}

// Equal reports structural equality; collapsing operations compare as sets.
func (s Stabilizer) Equal(o Stabilizer) bool {
	if s.direction != o.direction || !s.before.Equal(o.before) ||
		!slices.Equal(s.measurements, o.measurements) || !slices.Equal(s.anchors, o.anchors) {
		return false
	}
	return sameOperators(s.collapsing, o.collapsing)
}

func sameOperators(a, b []pauli.Operator) bool {
	set := func(ops []pauli.Operator) map[string]struct{} {
		m := make(map[string]struct{}, len(ops))
		for _, op := range ops {
			m[op.String()] = struct{}{}
		}
		return m
	}
	sa, sb := set(a), set(b)
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if _, ok := sb[k]; !ok {
			return false
		}
	}
	return true
}

func (s Stabilizer) String() string {
	ops := make([]string, len(s.collapsing))
	for i, op := range s.collapsing {
		ops[i] = op.String()
	}
	return fmt.Sprintf("Stabilizer{%s, collapsing=[%s], measurements=%v, anchors=%v, %s}",
		s.before, strings.Join(ops, " "), s.measurements, s.anchors, s.direction)
}
