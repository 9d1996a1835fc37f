// Package clifford propagates Pauli operators through the unitary part of a
// circuit, discarding signs.
package clifford

import (
	"slices"

	"github.com/fyrsmithlabs/detectd/pkg/circuit"
	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
)

// bits is a single-qubit Pauli as (x, z).
type bits struct{ x, z bool }

func fromBasis(b pauli.Basis) bits { return bits{x: b.HasX(), z: b.HasZ()} }

func (b bits) basis() pauli.Basis {
	var out pauli.Basis
	if b.x {
		out |= pauli.X
	}
	if b.z {
		out |= pauli.Z
	}
	return out
}

// singleQubit maps X, Y and Z to their images under conjugation.
type singleQubit struct{ x, y, z pauli.Basis }

func (m singleQubit) apply(b pauli.Basis) pauli.Basis {
	switch b {
	case pauli.X:
		return m.x
	case pauli.Y:
		return m.y
	case pauli.Z:
		return m.z
	default:
		return pauli.I
	}
}

var (
	identity = singleQubit{x: pauli.X, y: pauli.Y, z: pauli.Z}
	swapXZ   = singleQubit{x: pauli.Z, y: pauli.Y, z: pauli.X}
	swapXY   = singleQubit{x: pauli.Y, y: pauli.X, z: pauli.Z}
	swapYZ   = singleQubit{x: pauli.X, y: pauli.Z, z: pauli.Y}
	cycleXYZ = singleQubit{x: pauli.Y, y: pauli.Z, z: pauli.X}
	cycleZYX = singleQubit{x: pauli.Z, y: pauli.X, z: pauli.Y}
)

var singleQubitRules = map[string]singleQubit{
	"I":          identity,
	"X":          identity,
	"Y":          identity,
	"Z":          identity,
	"H":          swapXZ,
	"H_XY":       swapXY,
	"H_YZ":       swapYZ,
	"S":          swapXY,
	"S_DAG":      swapXY,
	"SQRT_X":     swapYZ,
	"SQRT_X_DAG": swapYZ,
	"SQRT_Y":     swapXZ,
	"SQRT_Y_DAG": swapXZ,
	"C_XYZ":      cycleXYZ,
	"C_ZYX":      cycleZYX,
}

// inverses lists the gates that are not their own inverse up to sign.
var inverses = map[string]string{
	"C_XYZ": "C_ZYX",
	"C_ZYX": "C_XYZ",
}

// twoQubitRules conjugate the Pauli pair on (control, target).
var twoQubitRules = map[string]func(c, t bits) (bits, bits){
	"CX": func(c, t bits) (bits, bits) {
		return bits{x: c.x, z: c.z != t.z}, bits{x: t.x != c.x, z: t.z}
	},
	"CZ": func(c, t bits) (bits, bits) {
		return bits{x: c.x, z: c.z != t.x}, bits{x: t.x, z: t.z != c.x}
	},
	"CY": func(c, t bits) (bits, bits) {
		return bits{x: c.x, z: c.z != (t.x != t.z)}, bits{x: t.x != c.x, z: t.z != c.x}
	},
	"SWAP": func(c, t bits) (bits, bits) {
		return t, c
	},
}

// Supports reports whether gate (canonical name) has a propagation rule.
func Supports(gate string) bool {
	if _, ok := singleQubitRules[gate]; ok {
		return true
	}
	_, ok := twoQubitRules[gate]
	return ok
}

type step struct {
	gate    string
	targets []int
}

// Propagator holds the unitary gates of a circuit in execution order.
type Propagator struct {
	steps []step
}

// FromCircuit collects the unitary instructions of c. Repeat blocks are
// unrolled; resets, measurements, noise and annotations are skipped.
func FromCircuit(c *circuit.Circuit) (*Propagator, error) {
	p := &Propagator{}
	for _, inst := range c.Flattened().Instructions() {
		g := inst.Gate()
		if g.Kind != circuit.KindUnitary {
			continue
		}
		if !Supports(g.Name) {
			return nil, detecterr.New(detecterr.MalformedCircuit, "no propagation rule for gate %s", g.Name)
		}
		p.steps = append(p.steps, step{gate: g.Name, targets: inst.Qubits()})
	}
	return p, nil
}

// Len is the number of collected unitary instructions.
func (p *Propagator) Len() int { return len(p.steps) }

// Forward conjugates op through the gates in order.
func (p *Propagator) Forward(op pauli.Operator) pauli.Operator {
	m := op.Map()
	for _, s := range p.steps {
		apply(m, s.gate, s.targets)
	}
	return pauli.New(m)
}

// Backward conjugates op through the inverse gates in reverse order.
func (p *Propagator) Backward(op pauli.Operator) pauli.Operator {
	m := op.Map()
	for _, s := range slices.Backward(p.steps) {
		gate := s.gate
		if inv, ok := inverses[gate]; ok {
			gate = inv
		}
		apply(m, gate, s.targets)
	}
	return pauli.New(m)
}

func apply(m map[int]pauli.Basis, gate string, targets []int) {
	if rule, ok := singleQubitRules[gate]; ok {
		for _, q := range targets {
			if b := m[q]; b != pauli.I {
				m[q] = rule.apply(b)
			}
		}
		return
	}
	rule := twoQubitRules[gate]
	for i := 0; i+1 < len(targets); i += 2 {
		c, t := targets[i], targets[i+1]
		nc, nt := rule(fromBasis(m[c]), fromBasis(m[t]))
		set(m, c, nc.basis())
		set(m, t, nt.basis())
	}
}

func set(m map[int]pauli.Basis, q int, b pauli.Basis) {
	if b == pauli.I {
		delete(m, q)
		return
	}
	m[q] = b
}
