package cover

import (
	"iter"
	"slices"
	"testing"
	"time"

	"github.com/fyrsmithlabs/detectd/pkg/pauli"
	"github.com/fyrsmithlabs/detectd/pkg/sat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(sources []pauli.Operator, indices []int) pauli.Operator {
	acc := pauli.Identity()
	for _, i := range indices {
		acc = acc.Multiply(sources[i])
	}
	return acc
}

func parseAll(ss ...string) []pauli.Operator {
	out := make([]pauli.Operator, len(ss))
	for i, s := range ss {
		out[i] = pauli.MustParse(s)
	}
	return out
}

func TestFindExactCoverSAT(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		sources []string
		found   bool
	}{
		{"single source", "X0*Z1", []string{"Z5", "X0*Z1"}, true},
		{"two sources", "Y0*Z1", []string{"X0", "Z0*Z1", "X3"}, true},
		{"chain", "Z0*Z4", []string{"Z0*Z1", "Z1*Z2", "Z2*Z3", "Z3*Z4", "X7"}, true},
		{"extra qubit cannot cancel", "Z0", []string{"Z0*Z1"}, false},
		{"wrong basis", "X0", []string{"Z0", "Y1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := pauli.MustParse(tt.target)
			sources := parseAll(tt.sources...)

			got, found, err := FindExactCoverSAT(target, sources)
			require.NoError(t, err)
			require.Equal(t, tt.found, found)
			if found {
				assert.True(t, product(sources, got).Equal(target), "cover %v", got)
			}
		})
	}
}

func TestFindExactCoverSAT_Trivial(t *testing.T) {
	got, found, err := FindExactCoverSAT(pauli.Identity(), parseAll("X0"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, got)

	_, found, err = FindExactCoverSAT(pauli.MustParse("X0"), nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindExactCoverSAT_UniqueCover(t *testing.T) {
	sources := parseAll("X0", "Z1", "X2*Z3", "Y4")
	got, found, err := FindExactCoverSAT(pauli.MustParse("X0*Z1*Y4"), sources)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []int{0, 1, 3}, got)
}

func TestFindCommutingCoverOnTargetQubitsSAT(t *testing.T) {
	target := pauli.MustParse("X0*X1")
	sources := parseAll("Z0", "Z1*Y5", "X0")

	got, found, err := FindCommutingCoverOnTargetQubitsSAT(target, sources)
	require.NoError(t, err)
	require.True(t, found)

	p := product(sources, got)
	for _, q := range target.Qubits() {
		assert.False(t, pauli.Anticommute(p.Get(q), target.Get(q)), "qubit %d", q)
	}
}

func TestFindCommutingCoverOnTargetQubitsSAT_EmptySelection(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		sources []string
	}{
		{"only anticommuting source", "X0", []string{"Z0"}},
		{"odd count on one qubit", "X0*X1", []string{"Z0*Z1", "Y1"}},
		{"no sources", "X0", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found, err := FindCommutingCoverOnTargetQubitsSAT(pauli.MustParse(tt.target), parseAll(tt.sources...))
			require.NoError(t, err)
			assert.True(t, found)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestFindCommutingCoverOnTargetQubitsSAT_IdentitySource(t *testing.T) {
	sources := parseAll("Z0", "Y0*Y0")
	got, found, err := FindCommutingCoverOnTargetQubitsSAT(pauli.MustParse("X0"), sources)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, product(sources, got).IsIdentity())
}

type closeTracker struct {
	sat.Solver
	closed *int
}

func (c closeTracker) Close() error {
	*c.closed++
	return c.Solver.Close()
}

func TestSolverIsClosedOnEveryPath(t *testing.T) {
	closed := 0
	factory := func() sat.Solver { return closeTracker{Solver: sat.NewGini(), closed: &closed} }

	_, found, err := FindExactCoverSAT(pauli.MustParse("X0"), parseAll("X0", "X0*Z1"), WithSolver(factory))
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = FindExactCoverSAT(pauli.MustParse("X0"), parseAll("Z0"), WithSolver(factory))
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = FindCommutingCoverOnTargetQubitsSAT(pauli.MustParse("X0"), parseAll("Z0"), WithSolver(factory))
	require.NoError(t, err)

	assert.Equal(t, 3, closed)
}

func seqOf(solutions ...[]int) iter.Seq[[]int] {
	return slices.Values(solutions)
}

func TestSmallestSolution(t *testing.T) {
	now := time.Now
	tests := []struct {
		name      string
		solutions [][]int
		want      []int
		found     bool
	}{
		{"empty", nil, nil, false},
		{"first at bound", [][]int{{1, 2}, {3}}, []int{1, 2}, true},
		{"later at bound", [][]int{{1, 2, 3}, {4}, {5, 6}}, []int{5, 6}, true},
		{"smallest wins", [][]int{{1, 2, 3}, {4, 5, 6, 7}, {8}}, []int{8}, true},
		{"earliest among ties", [][]int{{1, 2, 3}, {4}, {5}}, []int{4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := smallestSolution(seqOf(tt.solutions...), 2, time.Hour, now)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSmallestSolution_Timeout(t *testing.T) {
	base := time.Unix(0, 0)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 60 * time.Millisecond)
	}

	pulled := 0
	solutions := func(yield func([]int) bool) {
		for _, s := range [][]int{{1, 2, 3, 4}, {1, 2, 3}, {1}, {9, 9, 9}} {
			pulled++
			if !yield(s) {
				return
			}
		}
	}

	got, found := smallestSolution(solutions, 2, 100*time.Millisecond, clock)
	assert.True(t, found)
	assert.Equal(t, []int{1}, got)
	assert.Equal(t, 3, pulled, "stops pulling once the budget is spent")
}

func TestSmallestSolution_StopsAtBound(t *testing.T) {
	pulled := 0
	solutions := func(yield func([]int) bool) {
		for {
			pulled++
			if !yield([]int{pulled, pulled}) {
				return
			}
		}
	}
	got, found := smallestSolution(solutions, 2, time.Hour, time.Now)
	assert.True(t, found)
	assert.Equal(t, []int{1, 1}, got)
	assert.Equal(t, 1, pulled)
}

func TestSmallestSolution_BudgetCountsFromSearchStart(t *testing.T) {
	base := time.Unix(0, 0)
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(150 * time.Millisecond)
	}

	pulled := 0
	solutions := func(yield func([]int) bool) {
		for _, s := range [][]int{{1, 2, 3}, {4, 5, 6, 7}, {8}} {
			pulled++
			if !yield(s) {
				return
			}
		}
	}

	got, found := smallestSolution(solutions, 2, 100*time.Millisecond, clock)
	assert.True(t, found)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 2, pulled)
}
