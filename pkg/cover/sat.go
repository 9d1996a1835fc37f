package cover

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/fyrsmithlabs/detectd/pkg/pauli"
	"github.com/fyrsmithlabs/detectd/pkg/sat"
)

// FindExactCoverSAT returns indices into sources whose product is exactly
// target. An identity target is covered by the empty selection.
func FindExactCoverSAT(target pauli.Operator, sources []pauli.Operator, opts ...Option) ([]int, bool, error) {
	if target.IsIdentity() {
		return []int{}, true, nil
	}
	if len(sources) == 0 {
		return nil, false, nil
	}

	involved := map[int]struct{}{}
	for _, q := range target.Qubits() {
		involved[q] = struct{}{}
	}
	for _, s := range sources {
		for _, q := range s.Qubits() {
			involved[q] = struct{}{}
		}
	}
	qubits := make([]int, 0, len(involved))
	for q := range involved {
		qubits = append(qubits, q)
	}
	slices.Sort(qubits)

	return solve(len(sources), apply(opts), func(e *encoder) error {
		for _, q := range qubits {
			t := target.Get(q)
			var xs, zs []int
			for i, s := range sources {
				b := s.Get(q)
				if b.HasX() {
					xs = append(xs, i+1)
				}
				if b.HasZ() {
					zs = append(zs, i+1)
				}
			}
			if err := e.xor(xs, t.HasX()); err != nil {
				return err
			}
			if err := e.xor(zs, t.HasZ()); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindCommutingCoverOnTargetQubitsSAT returns a selection of sources whose
// product commutes with target on each qubit target acts on. Qubits outside
// the target's support are unconstrained. The empty selection qualifies, so
// a cover always exists.
func FindCommutingCoverOnTargetQubitsSAT(target pauli.Operator, sources []pauli.Operator, opts ...Option) ([]int, bool, error) {
	if len(sources) == 0 {
		return []int{}, true, nil
	}

	return solve(len(sources), apply(opts), func(e *encoder) error {
		for _, q := range target.Qubits() {
			t := target.Get(q)
			var anti []int
			for i, s := range sources {
				if pauli.Anticommute(s.Get(q), t) {
					anti = append(anti, i+1)
				}
			}
			if err := e.xor(anti, false); err != nil {
				return err
			}
		}
		return nil
	})
}

func solve(n int, o options, encode func(*encoder) error) (_ []int, _ bool, err error) {
	solver := o.newSolver()
	defer func() {
		if cerr := solver.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing SAT solver: %w", cerr)
		}
	}()

	e := &encoder{solver: solver, next: n + 1}
	if err := encode(e); err != nil {
		return nil, false, fmt.Errorf("encoding cover problem: %w", err)
	}

	selections := func(yield func([]int) bool) {
		for model := range solver.Models() {
			chosen := []int{}
			for _, v := range sat.Positive(model) {
				if v <= n {
					chosen = append(chosen, v-1)
				}
			}
			if !yield(chosen) {
				return
			}
		}
	}
	best, ok := smallestSolution(selections, o.lowerBound, o.timeout, o.now)
	return best, ok, nil
}

// encoder Tseitin-encodes parity constraints. Selection variables are
// 1..n; auxiliary variables are allocated from next.
type encoder struct {
	solver sat.Solver
	next   int
}

// xor constrains the parity of vars to equal parity. Auxiliary variables
// are fully determined by vars, so each selection has exactly one model.
func (e *encoder) xor(vars []int, parity bool) error {
	switch len(vars) {
	case 0:
		if parity {
			return e.solver.AddClause()
		}
		return nil
	case 1:
		if parity {
			return e.solver.AddClause(vars[0])
		}
		return e.solver.AddClause(-vars[0])
	}

	acc := vars[0]
	for _, v := range vars[1 : len(vars)-1] {
		t := e.next
		e.next++
		// t <-> acc xor v
		for _, c := range [][]int{{-t, acc, v}, {-t, -acc, -v}, {t, -acc, v}, {t, acc, -v}} {
			if err := e.solver.AddClause(c...); err != nil {
				return err
			}
		}
		acc = t
	}
	last := vars[len(vars)-1]
	clauses := [][]int{{acc, -last}, {-acc, last}}
	if parity {
		clauses = [][]int{{acc, last}, {-acc, -last}}
	}
	for _, c := range clauses {
		if err := e.solver.AddClause(c...); err != nil {
			return err
		}
	}
	return nil
}

// smallestSolution drains solutions looking for the shortest one. It returns
// as soon as a solution of lowerBound length is seen, or once timeout has
// elapsed since the call started, with the shortest solution seen so far.
// Among equally short solutions the earliest wins.
func smallestSolution(solutions iter.Seq[[]int], lowerBound int, timeout time.Duration, now func() time.Time) ([]int, bool) {
	start := now()
	var (
		best  []int
		found bool
	)
	for s := range solutions {
		if !found {
			best, found = s, true
			if len(s) == lowerBound {
				return best, true
			}
			continue
		}
		if len(s) == lowerBound {
			return s, true
		}
		if len(s) < len(best) {
			best = s
		}
		if now().Sub(start) > timeout {
			return best, true
		}
	}
	return best, found
}
