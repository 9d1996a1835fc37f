package sat

import (
	"iter"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
)

// Gini is a Solver backed by github.com/go-air/gini.
type Gini struct {
	g        *gini.Gini
	maxVar   int
	seen     map[int]bool
	unsat    bool
	closed   bool
	blocking []z.Lit
}

var _ Solver = (*Gini)(nil)

// NewGini returns an empty gini-backed solver.
func NewGini() Solver {
	return &Gini{g: gini.New(), seen: make(map[int]bool)}
}

// AddClause implements Solver.
func (s *Gini) AddClause(lits ...int) error {
	if s.closed {
		return ErrClosed
	}
	for _, l := range lits {
		if l == 0 {
			return ErrZeroLiteral
		}
	}
	if len(lits) == 0 {
		s.unsat = true
		return nil
	}
	for _, l := range lits {
		v := l
		if v < 0 {
			v = -v
		}
		s.seen[v] = true
		if v > s.maxVar {
			s.maxVar = v
		}
		s.g.Add(z.Dimacs2Lit(l))
	}
	s.g.Add(z.LitNull)
	return nil
}

// Models implements Solver. Variables that appear in no clause are reported
// false and are not enumerated.
func (s *Gini) Models() iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		if s.closed || s.unsat {
			return
		}
		if len(s.seen) == 0 {
			yield([]int{})
			return
		}
		for !s.closed && s.g.Solve() == 1 {
			model := make([]int, s.maxVar)
			s.blocking = s.blocking[:0]
			for v := 1; v <= s.maxVar; v++ {
				model[v-1] = -v
				if !s.seen[v] {
					continue
				}
				lit := z.Dimacs2Lit(v)
				if s.g.Value(lit) {
					model[v-1] = v
					s.blocking = append(s.blocking, lit.Not())
				} else {
					s.blocking = append(s.blocking, lit)
				}
			}
			for _, l := range s.blocking {
				s.g.Add(l)
			}
			s.g.Add(z.LitNull)
			if !yield(model) {
				return
			}
		}
	}
}

// Close implements Solver.
func (s *Gini) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.g = nil
	return nil
}
