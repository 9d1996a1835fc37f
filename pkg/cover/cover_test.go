package cover

import (
	"errors"
	"testing"

	"github.com/fyrsmithlabs/detectd/pkg/boundary"
	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineCoordinates(n int) map[int][]float64 {
	coords := make(map[int][]float64, n)
	for i := range n {
		coords[i] = []float64{float64(i), 0}
	}
	return coords
}

func stab(op string, anchor int) boundary.Stabilizer {
	return boundary.New(pauli.MustParse(op), nil, nil, []int{anchor}, boundary.Forward)
}

func TestFindCover(t *testing.T) {
	coords := lineCoordinates(10)
	target := stab("Z0*Z1*Z2", 1)
	sources := []boundary.Stabilizer{
		stab("Z0*Z1", 0),
		stab("X5", 2),
		stab("Z2", 2),
		stab("Z0*Z1*Z2", 9),
	}

	got, found, err := FindCover(target, sources, coords)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(sources[0]))
	assert.True(t, got[1].Equal(sources[2]))
}

func TestFindCover_DistanceFilter(t *testing.T) {
	coords := lineCoordinates(10)
	target := stab("Z0*Z1*Z2", 1)
	sources := []boundary.Stabilizer{stab("Z0*Z1*Z2", 9)}

	_, found, err := FindCover(target, sources, coords)
	require.NoError(t, err)
	assert.False(t, found)

	got, found, err := FindCover(target, sources, coords, WithMaxDistance(8))
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, got, 1)
}

func TestFindCover_ProductMatchesTarget(t *testing.T) {
	coords := lineCoordinates(6)
	target := stab("X0*Y3*Z5", 2)
	sources := []boundary.Stabilizer{
		stab("X0", 0), stab("X3", 3), stab("Z3*Z5", 4), stab("Y1", 1), stab("Z3", 5),
	}

	got, found, err := FindCover(target, sources, coords)
	require.NoError(t, err)
	require.True(t, found)

	acc := pauli.Identity()
	for _, s := range got {
		a, err := s.AfterCollapse()
		require.NoError(t, err)
		acc = acc.Multiply(a)
	}
	want, err := target.AfterCollapse()
	require.NoError(t, err)
	assert.True(t, acc.Equal(want))
}

func TestFindCover_IdentityTargetIsNotSpecialCased(t *testing.T) {
	coords := lineCoordinates(3)
	target := stab("I", 0)

	got, found, err := FindCover(target, nil, coords)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, got)

	sources := []boundary.Stabilizer{stab("X0", 0), stab("X0", 1)}
	got, found, err = FindCover(target, sources, coords)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, got, 2, "include-first order reaches {0, 1} before the empty set")
}

func TestFindCover_NoCover(t *testing.T) {
	_, found, err := FindCover(stab("Z0", 0), []boundary.Stabilizer{stab("X0", 0)}, lineCoordinates(2))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindCover_Errors(t *testing.T) {
	coords := lineCoordinates(2)

	_, _, err := FindCover(stab("Z0", 0), []boundary.Stabilizer{stab("Z0", 7)}, coords)
	assert.True(t, errors.Is(err, detecterr.ErrMissingCoordinate))

	anti := boundary.New(pauli.MustParse("X0"), []pauli.Operator{pauli.MustParse("Z0")}, nil, []int{1}, boundary.Forward)
	_, _, err = FindCover(stab("Z0", 0), []boundary.Stabilizer{anti}, coords)
	assert.True(t, errors.Is(err, detecterr.ErrNonDeterministicCollapse))

	_, _, err = FindCover(anti, nil, coords)
	assert.True(t, errors.Is(err, detecterr.ErrNonDeterministicCollapse))
}
