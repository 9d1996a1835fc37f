// Package cover searches for sets of boundary stabilizers whose product
// reproduces a target stabilizer.
//
// FindCover enumerates subsets exhaustively and is meant for a handful of
// nearby candidates. FindExactCoverSAT and FindCommutingCoverOnTargetQubitsSAT
// encode the search as XOR constraints for a SAT solver and return the
// smallest cover found within a time budget.
//
// "No cover" is a normal outcome reported through the found result, never an
// error.
package cover

import (
	"github.com/fyrsmithlabs/detectd/pkg/boundary"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
)

// FindCover returns the first subset of sources, in include-before-exclude
// depth-first order, whose after-collapse product equals the target's
// after-collapse stabilizer. Sources farther than the maximum Manhattan
// distance from the target are ignored.
func FindCover(
	target boundary.Stabilizer,
	sources []boundary.Stabilizer,
	qubitCoordinates map[int][]float64,
	opts ...Option,
) ([]boundary.Stabilizer, bool, error) {
	o := apply(opts)

	var (
		near  []boundary.Stabilizer
		after []pauli.Operator
	)
	for _, s := range sources {
		d, err := boundary.ManhattanDistance(target, s, qubitCoordinates)
		if err != nil {
			return nil, false, err
		}
		if d > o.maxDistance {
			continue
		}
		a, err := s.AfterCollapse()
		if err != nil {
			return nil, false, err
		}
		near = append(near, s)
		after = append(after, a)
	}

	want, err := target.AfterCollapse()
	if err != nil {
		return nil, false, err
	}

	chosen, ok := firstSubset(after, want)
	if !ok {
		return nil, false, nil
	}
	out := make([]boundary.Stabilizer, len(chosen))
	for i, idx := range chosen {
		out[i] = near[idx]
	}
	return out, true, nil
}

// firstSubset walks the 2^n subsets depth first, including each element
// before excluding it, carrying the running product so every node costs one
// multiplication.
func firstSubset(ops []pauli.Operator, want pauli.Operator) ([]int, bool) {
	chosen := make([]int, 0, len(ops))
	var walk func(i int, acc pauli.Operator) bool
	walk = func(i int, acc pauli.Operator) bool {
		if i == len(ops) {
			return acc.Equal(want)
		}
		chosen = append(chosen, i)
		if walk(i+1, acc.Multiply(ops[i])) {
			return true
		}
		chosen = chosen[:len(chosen)-1]
		return walk(i+1, acc)
	}
	if !walk(0, pauli.Identity()) {
		return nil, false
	}
	return chosen, true
}
