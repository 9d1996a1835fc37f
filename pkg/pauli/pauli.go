// Package pauli implements sparse multi-qubit Pauli operators with the phase
// discarded.
//
// An Operator maps qubit indices to one of X, Y or Z; qubits absent from the
// map carry the identity. Operators are immutable values: every operation
// returns a new Operator.
package pauli

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Basis is a single-qubit Pauli basis encoded as (x, z) bits.
type Basis uint8

const (
	I Basis = 0
	X Basis = 1
	Z Basis = 2
	Y Basis = X | Z
)

// HasX reports whether the basis has an X component (X or Y).
func (b Basis) HasX() bool { return b&X != 0 }

// HasZ reports whether the basis has a Z component (Z or Y).
func (b Basis) HasZ() bool { return b&Z != 0 }

func (b Basis) String() string {
	switch b {
	case X:
		return "X"
	case Y:
		return "Y"
	case Z:
		return "Z"
	default:
		return "I"
	}
}

// ParseBasis parses one of "I", "X", "Y" or "Z".
func ParseBasis(s string) (Basis, error) {
	switch s {
	case "I", "_":
		return I, nil
	case "X":
		return X, nil
	case "Y":
		return Y, nil
	case "Z":
		return Z, nil
	default:
		return I, fmt.Errorf("unknown Pauli basis %q", s)
	}
}

// Anticommute reports whether two single-qubit bases anticommute.
func Anticommute(a, b Basis) bool {
	return a != I && b != I && a != b
}

type term struct {
	qubit int
	basis Basis
}

// Operator is a sparse Pauli operator. The zero value is the identity.
type Operator struct {
	terms []term // sorted by qubit, no identity entries
}

// Identity returns the identity operator.
func Identity() Operator {
	return Operator{}
}

// Single returns the operator acting with b on qubit q only.
func Single(q int, b Basis) Operator {
	if b == I {
		return Operator{}
	}
	return Operator{terms: []term{{qubit: q, basis: b}}}
}

// New builds an operator from a qubit to basis map. Identity entries are
// dropped.
func New(m map[int]Basis) Operator {
	terms := make([]term, 0, len(m))
	for q, b := range m {
		if b&Y == I {
			continue
		}
		terms = append(terms, term{qubit: q, basis: b & Y})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].qubit < terms[j].qubit })
	return Operator{terms: terms}
}

// Get returns the basis acting on qubit q.
func (p Operator) Get(q int) Basis {
	i, ok := slices.BinarySearchFunc(p.terms, q, func(t term, q int) int { return t.qubit - q })
	if !ok {
		return I
	}
	return p.terms[i].basis
}

// Qubits returns the qubits the operator acts on non-trivially, in
// increasing order.
func (p Operator) Qubits() []int {
	qs := make([]int, len(p.terms))
	for i, t := range p.terms {
		qs[i] = t.qubit
	}
	return qs
}

// Map returns a copy of the operator as a qubit to basis map.
func (p Operator) Map() map[int]Basis {
	m := make(map[int]Basis, len(p.terms))
	for _, t := range p.terms {
		m[t.qubit] = t.basis
	}
	return m
}

// Weight is the number of qubits acted on non-trivially.
func (p Operator) Weight() int {
	return len(p.terms)
}

// IsIdentity reports whether the operator acts trivially on every qubit.
func (p Operator) IsIdentity() bool {
	return len(p.terms) == 0
}

// SingleQubit returns the only qubit and basis of a weight-one operator.
func (p Operator) SingleQubit() (int, Basis, bool) {
	if len(p.terms) != 1 {
		return 0, I, false
	}
	return p.terms[0].qubit, p.terms[0].basis, true
}

// Equal reports structural equality.
func (p Operator) Equal(o Operator) bool {
	return slices.Equal(p.terms, o.terms)
}

// Multiply returns the product p·o with the phase discarded.
func (p Operator) Multiply(o Operator) Operator {
	out := make([]term, 0, len(p.terms)+len(o.terms))
	i, j := 0, 0
	for i < len(p.terms) && j < len(o.terms) {
		a, b := p.terms[i], o.terms[j]
		switch {
		case a.qubit < b.qubit:
			out = append(out, a)
			i++
		case a.qubit > b.qubit:
			out = append(out, b)
			j++
		default:
			if prod := a.basis ^ b.basis; prod != I {
				out = append(out, term{qubit: a.qubit, basis: prod})
			}
			i++
			j++
		}
	}
	out = append(out, p.terms[i:]...)
	out = append(out, o.terms[j:]...)
	return Operator{terms: out}
}

// Commutes reports whether p and o commute: the number of shared qubits on
// which they carry different non-identity bases is even.
func (p Operator) Commutes(o Operator) bool {
	anti := 0
	i, j := 0, 0
	for i < len(p.terms) && j < len(o.terms) {
		a, b := p.terms[i], o.terms[j]
		switch {
		case a.qubit < b.qubit:
			i++
		case a.qubit > b.qubit:
			j++
		default:
			if a.basis != b.basis {
				anti++
			}
			i++
			j++
		}
	}
	return anti%2 == 0
}

// Product multiplies all operators together. The empty product is the
// identity.
func Product(ops ...Operator) Operator {
	acc := Identity()
	for _, op := range ops {
		acc = acc.Multiply(op)
	}
	return acc
}

// String renders the operator as "X0*Z1", or "I" for the identity. The
// rendering is canonical and doubles as a hash key.
func (p Operator) String() string {
	if len(p.terms) == 0 {
		return "I"
	}
	var sb strings.Builder
	for i, t := range p.terms {
		if i > 0 {
			sb.WriteByte('*')
		}
		sb.WriteString(t.basis.String())
		sb.WriteString(strconv.Itoa(t.qubit))
	}
	return sb.String()
}

// Parse reads the String format. Factors may be separated by '*' or
// whitespace; repeated qubits are multiplied together.
func Parse(s string) (Operator, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "I" {
		return Identity(), nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '*' || r == ' ' || r == '\t' })
	acc := Identity()
	for _, f := range fields {
		if len(f) < 2 {
			return Operator{}, fmt.Errorf("invalid Pauli factor %q", f)
		}
		b, err := ParseBasis(f[:1])
		if err != nil {
			return Operator{}, err
		}
		q, err := strconv.Atoi(f[1:])
		if err != nil || q < 0 {
			return Operator{}, fmt.Errorf("invalid qubit index in factor %q", f)
		}
		acc = acc.Multiply(Single(q, b))
	}
	return acc, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Operator {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// MarshalText implements encoding.TextMarshaler.
func (p Operator) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Operator) UnmarshalText(text []byte) error {
	op, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = op
	return nil
}

var _ json.Marshaler = Operator{}

// MarshalJSON encodes the operator as its string form.
func (p Operator) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes the string form.
func (p *Operator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return p.UnmarshalText([]byte(s))
}
