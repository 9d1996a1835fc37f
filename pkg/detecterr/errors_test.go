package detecterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	kinds := []Kind{
		KindUnknown,
		MalformedCircuit,
		InvalidOffset,
		NonDeterministicCollapse,
		IncompatibleMerge,
		MissingCoordinate,
		InvalidConstruction,
	}

	seen := make(map[string]bool)
	for _, k := range kinds {
		code := k.Code()
		assert.False(t, seen[code], "duplicate error code: %s", code)
		seen[code] = true
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name:     "kind only",
			err:      &Error{Kind: IncompatibleMerge},
			contains: []string{"DET004", "incompatible merge"},
		},
		{
			name:     "with message",
			err:      New(InvalidOffset, "offset %d", 3),
			contains: []string{"DET002", "invalid offset", "offset 3"},
		},
		{
			name:     "with cause",
			err:      Wrap(MalformedCircuit, errors.New("inner"), "splitting REPEAT block"),
			contains: []string{"DET001", "splitting REPEAT block", "inner"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				assert.Contains(t, msg, s)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := New(MissingCoordinate, "qubit 5")

	assert.True(t, errors.Is(err, ErrMissingCoordinate))
	assert.False(t, errors.Is(err, ErrInvalidOffset))
	assert.False(t, errors.Is(err, New(MissingCoordinate, "qubit 5")), "non-sentinel targets compare by identity")

	wrapped := fmt.Errorf("annotate: %w", err)
	assert.True(t, errors.Is(wrapped, ErrMissingCoordinate))
}

func TestError_Unwrap(t *testing.T) {
	cause := New(InvalidOffset, "inner")
	err := Wrap(MalformedCircuit, cause, "outer")

	assert.Same(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, ErrMalformedCircuit))
	assert.True(t, errors.Is(err, ErrInvalidOffset), "kind of the cause is reachable")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))

	err := fmt.Errorf("ctx: %w", Wrap(IncompatibleMerge, New(InvalidOffset, "x"), "merge"))
	require.Error(t, err)
	assert.Equal(t, IncompatibleMerge, KindOf(err))
}

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(New(MalformedCircuit, "bad")))
	assert.False(t, IsUserError(errors.New("io")))
	assert.False(t, IsUserError(nil))
}
