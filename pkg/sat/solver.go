// Package sat exposes the incremental SAT solving needed by the cover search:
// clauses in, a lazy sequence of models out.
//
// Literals use the DIMACS convention: variable v is the positive integer v,
// its negation is -v. Models are reported as one signed literal per variable
// 1..n, in variable order.
package sat

import (
	"errors"
	"iter"
)

// ErrClosed is returned when a solver is used after Close.
var ErrClosed = errors.New("sat: solver is closed")

// ErrZeroLiteral is returned for the literal 0, which names no variable.
var ErrZeroLiteral = errors.New("sat: literal 0 is not a variable")

// Solver is a scoped solver handle. Callers must Close it on every exit path.
type Solver interface {
	// AddClause adds the disjunction of lits. The empty clause makes the
	// instance unsatisfiable.
	AddClause(lits ...int) error
	// Models enumerates satisfying assignments lazily. Each model is
	// excluded from later solutions once yielded; breaking out of the range
	// stops the enumeration.
	Models() iter.Seq[[]int]
	// Close releases the solver.
	Close() error
}

// Factory creates a fresh solver.
type Factory func() Solver

// Positive returns the variables set to true in model.
func Positive(model []int) []int {
	var out []int
	for _, l := range model {
		if l > 0 {
			out = append(out, l)
		}
	}
	return out
}
