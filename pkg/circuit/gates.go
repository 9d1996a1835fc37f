package circuit

import (
	"sort"

	"github.com/fyrsmithlabs/detectd/pkg/pauli"
)

// Kind classifies what an instruction does to the state.
type Kind int

const (
	KindUnitary Kind = iota
	KindReset
	KindMeasurement
	KindMeasureReset
	KindAnnotation
	KindNoise
)

func (k Kind) String() string {
	switch k {
	case KindUnitary:
		return "unitary"
	case KindReset:
		return "reset"
	case KindMeasurement:
		return "measurement"
	case KindMeasureReset:
		return "measure-reset"
	case KindAnnotation:
		return "annotation"
	case KindNoise:
		return "noise"
	default:
		return "unknown"
	}
}

// Gate describes one supported instruction name.
type Gate struct {
	// Name is the canonical name; aliases resolve to it.
	Name string
	Kind Kind
	// Basis is the collapse basis of resets and measurements.
	Basis pauli.Basis
	// Arity is 2 for gates acting on target pairs, 1 otherwise.
	Arity int
	// Rec is true for annotations taking rec[-k] targets.
	Rec bool
}

var gateTable = map[string]Gate{}

var aliases = map[string]string{
	"H_XZ":       "H",
	"SQRT_Z":     "S",
	"SQRT_Z_DAG": "S_DAG",
	"CNOT":       "CX",
	"ZCX":        "CX",
	"ZCY":        "CY",
	"ZCZ":        "CZ",
	"MZ":         "M",
	"RZ":         "R",
	"MRZ":        "MR",
}

func register(g Gate) {
	if g.Arity == 0 {
		g.Arity = 1
	}
	gateTable[g.Name] = g
}

func init() {
	for _, g := range []Gate{
		{Name: "R", Kind: KindReset, Basis: pauli.Z},
		{Name: "RX", Kind: KindReset, Basis: pauli.X},
		{Name: "RY", Kind: KindReset, Basis: pauli.Y},
		{Name: "M", Kind: KindMeasurement, Basis: pauli.Z},
		{Name: "MX", Kind: KindMeasurement, Basis: pauli.X},
		{Name: "MY", Kind: KindMeasurement, Basis: pauli.Y},
		{Name: "MR", Kind: KindMeasureReset, Basis: pauli.Z},
		{Name: "MRX", Kind: KindMeasureReset, Basis: pauli.X},
		{Name: "MRY", Kind: KindMeasureReset, Basis: pauli.Y},

		{Name: "TICK", Kind: KindAnnotation},
		{Name: "DETECTOR", Kind: KindAnnotation, Rec: true},
		{Name: "OBSERVABLE_INCLUDE", Kind: KindAnnotation, Rec: true},
		{Name: "SHIFT_COORDS", Kind: KindAnnotation},
		{Name: "QUBIT_COORDS", Kind: KindAnnotation},

		{Name: "X_ERROR", Kind: KindNoise},
		{Name: "Y_ERROR", Kind: KindNoise},
		{Name: "Z_ERROR", Kind: KindNoise},
		{Name: "DEPOLARIZE1", Kind: KindNoise},
		{Name: "DEPOLARIZE2", Kind: KindNoise, Arity: 2},
		{Name: "PAULI_CHANNEL_1", Kind: KindNoise},
		{Name: "PAULI_CHANNEL_2", Kind: KindNoise, Arity: 2},

		{Name: "I", Kind: KindUnitary},
		{Name: "X", Kind: KindUnitary},
		{Name: "Y", Kind: KindUnitary},
		{Name: "Z", Kind: KindUnitary},
		{Name: "H", Kind: KindUnitary},
		{Name: "H_XY", Kind: KindUnitary},
		{Name: "H_YZ", Kind: KindUnitary},
		{Name: "S", Kind: KindUnitary},
		{Name: "S_DAG", Kind: KindUnitary},
		{Name: "SQRT_X", Kind: KindUnitary},
		{Name: "SQRT_X_DAG", Kind: KindUnitary},
		{Name: "SQRT_Y", Kind: KindUnitary},
		{Name: "SQRT_Y_DAG", Kind: KindUnitary},
		{Name: "C_XYZ", Kind: KindUnitary},
		{Name: "C_ZYX", Kind: KindUnitary},
		{Name: "CX", Kind: KindUnitary, Arity: 2},
		{Name: "CY", Kind: KindUnitary, Arity: 2},
		{Name: "CZ", Kind: KindUnitary, Arity: 2},
		{Name: "SWAP", Kind: KindUnitary, Arity: 2},
	} {
		register(g)
	}
}

// LookupGate resolves a (possibly aliased) instruction name.
func LookupGate(name string) (Gate, bool) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	g, ok := gateTable[name]
	return g, ok
}

// Gates returns every canonical gate, sorted by name.
func Gates() []Gate {
	out := make([]Gate, 0, len(gateTable))
	for _, g := range gateTable {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsVirtual reports whether instructions of this gate leave the quantum
// state untouched in a noiseless execution.
func (g Gate) IsVirtual() bool {
	return g.Kind == KindAnnotation || g.Kind == KindNoise
}
