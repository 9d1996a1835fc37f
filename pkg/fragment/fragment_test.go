package fragment

import (
	"errors"
	"testing"

	"github.com/fyrsmithlabs/detectd/pkg/circuit"
	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFragment(t *testing.T) {
	f, err := NewFragment(circuit.MustParse(`QUBIT_COORDS(0, 0) 0
R 0 1
TICK
RX 2
TICK
CX 0 1
TICK
M 1 0
MX 2
DETECTOR rec[-1]`))
	require.NoError(t, err)

	resets := f.Resets()
	require.Len(t, resets, 3)
	assert.True(t, resets[0].Equal(pauli.Single(0, pauli.Z)))
	assert.True(t, resets[2].Equal(pauli.Single(2, pauli.X)))

	assert.Equal(t, 3, f.NumMeasurements())
	assert.Equal(t, []int{1, 0, 2}, f.MeasuredQubits())
	assert.True(t, f.Measurements()[2].Equal(pauli.Single(2, pauli.X)))
}

func TestNewFragment_ResetsInQubitOrder(t *testing.T) {
	f, err := NewFragment(circuit.MustParse("R 3 1\nRX 0\nTICK\nR 2\nTICK\nM 3 1 0 2"))
	require.NoError(t, err)

	var qubits []int
	for _, r := range f.Resets() {
		q, _, ok := r.SingleQubit()
		require.True(t, ok)
		qubits = append(qubits, q)
	}
	assert.Equal(t, []int{0, 1, 3, 2}, qubits)
	assert.True(t, f.Resets()[0].Equal(pauli.Single(0, pauli.X)))
	assert.Equal(t, []int{3, 1, 0, 2}, f.MeasuredQubits(), "measurements stay in record order")
}

func TestNewFragment_StopsAtFirstNonResetMoment(t *testing.T) {
	f, err := NewFragment(circuit.MustParse("R 0\nTICK\nH 0\nTICK\nR 1\nTICK\nM 0 1"))
	require.NoError(t, err)
	assert.Len(t, f.Resets(), 1)
}

func TestNewFragment_TrailingMeasurementMoments(t *testing.T) {
	f, err := NewFragment(circuit.MustParse("R 0 1\nTICK\nM 0\nTICK\nTICK\nMX 1"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, f.MeasuredQubits())
}

func TestNewFragment_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no measurement", "R 0\nTICK\nH 0"},
		{"mixed moment", "R 0\nM 1\nTICK\nM 0"},
		{"repeat block", "REPEAT 2 {\nM 0\n}"},
		{"measurement not trailing", "M 0\nTICK\nH 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFragment(circuit.MustParse(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, detecterr.ErrMalformedCircuit))
		})
	}
}

func TestNewLoop(t *testing.T) {
	f, err := NewFragment(circuit.MustParse("R 0\nTICK\nM 0"))
	require.NoError(t, err)

	loop, err := NewLoop([]Node{f}, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, loop.Repetitions())
	assert.Equal(t, 1, loop.NumMeasurements())

	again, err := loop.WithRepetitions(10)
	require.NoError(t, err)
	assert.Equal(t, 10, again.Repetitions())
	assert.Equal(t, 3, loop.Repetitions(), "original loop is unchanged")
	assert.Equal(t, loop.Children(), again.Children())

	_, err = NewLoop(nil, 2)
	assert.True(t, errors.Is(err, detecterr.ErrInvalidConstruction))
	_, err = loop.WithRepetitions(0)
	assert.True(t, errors.Is(err, detecterr.ErrInvalidConstruction))
}
