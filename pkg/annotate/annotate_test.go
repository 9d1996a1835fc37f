package annotate

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/detectd/pkg/boundary"
	"github.com/fyrsmithlabs/detectd/pkg/circuit"
	"github.com/fyrsmithlabs/detectd/pkg/cover"
	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/measurement"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const repetitionMemory = `QUBIT_COORDS(0) 0
QUBIT_COORDS(1) 1
QUBIT_COORDS(2) 2
R 0 1 2
TICK
CX 0 1
TICK
CX 2 1
TICK
M 1
REPEAT 2 {
    TICK
    R 1
    TICK
    CX 0 1
    TICK
    CX 2 1
    TICK
    M 1
}
TICK
M 0 2`

const round = `R 1
TICK
CX 0 1
TICK
CX 2 1
TICK
M 1
`

const annotatedMemory = `QUBIT_COORDS(0) 0
QUBIT_COORDS(1) 1
QUBIT_COORDS(2) 2
R 0 1 2
TICK
CX 0 1
TICK
CX 2 1
TICK
M 1
DETECTOR(1, 0) rec[-1]
TICK
` + round + `DETECTOR(1, 1) rec[-2] rec[-1]
TICK
` + round + `DETECTOR(1, 2) rec[-2] rec[-1]
TICK
M 0 2
DETECTOR(1, 3) rec[-3] rec[-2] rec[-1]`

const annotatedMemoryLoop = `QUBIT_COORDS(0) 0
QUBIT_COORDS(1) 1
QUBIT_COORDS(2) 2
R 0 1 2
TICK
CX 0 1
TICK
CX 2 1
TICK
M 1
DETECTOR(1, 0) rec[-1]
REPEAT 2 {
    TICK
    R 1
    TICK
    CX 0 1
    TICK
    CX 2 1
    TICK
    M 1
    DETECTOR(1, 1) rec[-2] rec[-1]
    SHIFT_COORDS(0, 1)
}
TICK
M 0 2
DETECTOR(1, 1) rec[-3] rec[-2] rec[-1]`

func TestRun_RepetitionMemory(t *testing.T) {
	res, err := Run(circuit.MustParse(repetitionMemory))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Fragments)
	assert.Empty(t, res.Warnings)

	require.Len(t, res.Detectors, 3)
	assert.Equal(t, []int{-1}, res.Detectors[0].Offsets())
	assert.Equal(t, []int{-2, -1}, res.Detectors[1].Offsets())
	assert.Equal(t, 2, res.Detectors[1].Repetitions)
	assert.Equal(t, []float64{1, 1}, res.Detectors[1].Coordinates)
	assert.Equal(t, []int{-3, -2, -1}, res.Detectors[2].Offsets())
	assert.Equal(t, 3, res.Detectors[2].Fragment)
	assert.Equal(t, []float64{1, 3}, res.Detectors[2].Coordinates)

	assert.Equal(t, annotatedMemoryLoop, res.Circuit.String())
	assert.Equal(t, circuit.MustParse(repetitionMemory).NumMeasurements(), res.Circuit.NumMeasurements())
}

func TestRun_RepetitionMemoryUnrolled(t *testing.T) {
	res, err := Run(circuit.MustParse(repetitionMemory).Flattened())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Fragments)

	require.Len(t, res.Detectors, 4)
	assert.Equal(t, []int{-1}, res.Detectors[0].Offsets())
	assert.Equal(t, []int{-2, -1}, res.Detectors[1].Offsets())
	assert.Equal(t, []int{-2, -1}, res.Detectors[2].Offsets())
	assert.Equal(t, []int{-3, -2, -1}, res.Detectors[3].Offsets())
	assert.Equal(t, []float64{1, 3}, res.Detectors[3].Coordinates)
	for _, d := range res.Detectors {
		assert.Equal(t, 1, d.Repetitions)
	}

	assert.Equal(t, annotatedMemory, res.Circuit.String())
}

// The first iteration sees the Z0 left by the initial fragment, later ones
// compare with the previous iteration.
const entryDiffers = `R 0 1
TICK
M 1
REPEAT %d {
    TICK
    R 1
    TICK
    CX 0 1
    TICK
    M 1
}`

func TestRun_PeelsFirstIteration(t *testing.T) {
	res, err := Run(circuit.MustParse(fmt.Sprintf(entryDiffers, 4)))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Fragments)

	assert.Equal(t, `R 0 1
TICK
M 1
DETECTOR(0) rec[-1]
TICK
R 1
TICK
CX 0 1
TICK
M 1
DETECTOR(1) rec[-1]
REPEAT 3 {
    TICK
    R 1
    TICK
    CX 0 1
    TICK
    M 1
    DETECTOR(2) rec[-2] rec[-1]
    SHIFT_COORDS(1)
}`, res.Circuit.String())

	require.Len(t, res.Detectors, 3)
	assert.Equal(t, []int{-1}, res.Detectors[1].Offsets())
	assert.Equal(t, 1, res.Detectors[1].Repetitions)
	assert.Equal(t, []int{-2, -1}, res.Detectors[2].Offsets())
	assert.Equal(t, 3, res.Detectors[2].Repetitions)
	assert.Equal(t, 2, res.Detectors[2].Fragment)
	assert.Equal(t, []float64{2}, res.Detectors[2].Coordinates)
}

func TestRun_TwoIterationsAreWrittenOut(t *testing.T) {
	res, err := Run(circuit.MustParse(fmt.Sprintf(entryDiffers, 2)))
	require.NoError(t, err)
	assert.NotContains(t, res.Circuit.String(), "REPEAT")
	assert.Equal(t, 3, strings.Count(res.Circuit.String(), "DETECTOR"))
}

func TestRun_MatchesUnrolledDetectors(t *testing.T) {
	for _, src := range []string{
		repetitionMemory,
		strings.Replace(repetitionMemory, "REPEAT 2", "REPEAT 5", 1),
		fmt.Sprintf(entryDiffers, 1),
		fmt.Sprintf(entryDiffers, 2),
		fmt.Sprintf(entryDiffers, 6),
	} {
		c := circuit.MustParse(src)
		looped, err := Run(c)
		require.NoError(t, err, src)
		unrolled, err := Run(c.Flattened())
		require.NoError(t, err, src)

		executed := 0
		for _, d := range looped.Detectors {
			executed += d.Repetitions
		}
		assert.Equal(t, len(unrolled.Detectors), executed, src)
		assert.Equal(t, unrolled.Fragments, looped.Fragments, src)
		assert.Equal(t, unrolled.Circuit.NumMeasurements(), looped.Circuit.NumMeasurements(), src)
	}
}

func TestRun_NestedRepeat(t *testing.T) {
	res, err := Run(circuit.MustParse(`R 0
TICK
M 0
REPEAT 2 {
    REPEAT 3 {
        TICK
        R 0
        TICK
        M 0
    }
}`))
	require.NoError(t, err)
	assert.Equal(t, 7, res.Fragments)
	assert.Equal(t, `R 0
TICK
M 0
DETECTOR(0) rec[-1]
REPEAT 2 {
    REPEAT 3 {
        TICK
        R 0
        TICK
        M 0
        DETECTOR(1) rec[-1]
        SHIFT_COORDS(1)
    }
}`, res.Circuit.String())
	require.Len(t, res.Detectors, 2)
	assert.Equal(t, 6, res.Detectors[1].Repetitions)
}

func TestRun_HugeRepeatIsNotUnrolled(t *testing.T) {
	src := "R 0\nTICK\nM 0\nREPEAT 1000000000 {\n    TICK\n    R 0\n    TICK\n    M 0\n}"

	start := time.Now()
	res, err := Run(circuit.MustParse(src))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, 1000000001, res.Fragments)
	assert.Contains(t, res.Circuit.String(), "REPEAT 1000000000 {")
	require.Len(t, res.Detectors, 2)
	assert.Equal(t, 1000000000, res.Detectors[1].Repetitions)
	assert.Equal(t, []float64{1}, res.Detectors[1].Coordinates)
}

// Each iteration leaves a reset for the next one, so the body alone is not
// a fragment and the loop has to be unrolled.
const resetCarried = `R 0
TICK
M 0
REPEAT %d {
    TICK
    M 0
    TICK
    R 0
}
TICK
M 0`

func TestRun_UnrollsLoopsEndingInResets(t *testing.T) {
	c := circuit.MustParse(fmt.Sprintf(resetCarried, 3))
	res, err := Run(c)
	require.NoError(t, err)
	assert.NotContains(t, res.Circuit.String(), "REPEAT")
	assert.Empty(t, res.Warnings)

	unrolled, err := Run(c.Flattened())
	require.NoError(t, err)
	assert.Equal(t, unrolled.Circuit.String(), res.Circuit.String())
	assert.Equal(t, 5, res.Fragments)
}

func TestRun_UnrollLimit(t *testing.T) {
	_, err := Run(circuit.MustParse(fmt.Sprintf(resetCarried, 1000000000)))
	require.Error(t, err)
	assert.Equal(t, detecterr.InvalidConstruction, detecterr.KindOf(err))
	assert.True(t, errors.Is(err, detecterr.ErrInvalidConstruction))
}

func TestMerge(t *testing.T) {
	stabs := []boundary.Stabilizer{
		boundary.New(pauli.MustParse("Z0"), nil,
			[]measurement.Reference{measurement.MustNew(0, -2), measurement.MustNew(1, -1)}, []int{0}, boundary.Backward),
		boundary.New(pauli.MustParse("Z2"), nil,
			[]measurement.Reference{measurement.MustNew(1, -1)}, []int{2}, boundary.Backward),
		boundary.New(pauli.MustParse("X0"), nil,
			[]measurement.Reference{measurement.MustNew(0, -3)}, []int{0}, boundary.Backward),
	}

	merged, ok, err := merge(stabs, []int{0, 1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, merged.BeforeCollapse().Equal(pauli.MustParse("Z0*Z2")))
	assert.Equal(t, []measurement.Reference{measurement.MustNew(0, -2)}, merged.Measurements())
	assert.Equal(t, []int{0, 2}, merged.AnchorQubits())

	_, ok, err = merge(stabs, []int{0, 2})
	require.NoError(t, err)
	assert.False(t, ok, "shared anchor qubit")
}

func TestRun_ReplacesExistingDetectors(t *testing.T) {
	src := "R 0\nTICK\nM 0\nDETECTOR(5) rec[-1]\nDETECTOR(6) rec[-1]"
	res, err := Run(circuit.MustParse(src))
	require.NoError(t, err)
	require.Len(t, res.Detectors, 1)
	assert.Equal(t, "R 0\nTICK\nM 0\nDETECTOR(0) rec[-1]", res.Circuit.String())
}

func TestRun_NoCoordinates(t *testing.T) {
	res, err := Run(circuit.MustParse("R 0 1\nTICK\nCX 0 1\nTICK\nM 1"),
		cover.WithTimeout(10*time.Millisecond))
	require.NoError(t, err)
	require.Len(t, res.Detectors, 1)
	assert.Equal(t, []float64{0}, res.Detectors[0].Coordinates)
}

func TestRun_KeepsLeftoverResets(t *testing.T) {
	res, err := Run(circuit.MustParse("R 0\nTICK\nM 0\nTICK\nR 0"))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "R 0\nTICK\nM 0\nDETECTOR(0) rec[-1]\nTICK\nR 0", res.Circuit.String())
}

func TestRun_Errors(t *testing.T) {
	for _, src := range []string{
		"R 0\nTICK\nMR 0",
		"R 0\nTICK\nH 0",
		"R 0\nTICK\nH 0\nTICK\nR 1\nTICK\nM 0 1",
	} {
		_, err := Run(circuit.MustParse(src))
		require.Error(t, err, src)
		assert.True(t, errors.Is(err, detecterr.ErrMalformedCircuit), src)
	}
}
