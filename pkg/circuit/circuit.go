// Package circuit models stabilizer circuits in the stim line format:
// instructions, REPEAT blocks and TICK-separated moments.
//
// Only the subset of the format used by detector discovery is supported:
// Clifford gates, Pauli-basis resets and measurements, annotations and
// Pauli noise channels.
package circuit

import (
	"slices"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
)

// Target is an instruction target: a qubit index, or a measurement record
// lookback (rec[-k]) when Rec is set.
type Target struct {
	Value int
	Rec   bool
}

// Qubit returns a qubit target.
func Qubit(q int) Target { return Target{Value: q} }

// Rec returns a measurement record target. offset must be negative.
func Rec(offset int) Target { return Target{Value: offset, Rec: true} }

func (t Target) String() string {
	if t.Rec {
		return "rec[" + strconv.Itoa(t.Value) + "]"
	}
	return strconv.Itoa(t.Value)
}

// Operation is an *Instruction or a *RepeatBlock.
type Operation interface {
	isOperation()
}

// Instruction is a single named operation.
type Instruction struct {
	Name    string
	Args    []float64
	Targets []Target
	gate    Gate
}

func (*Instruction) isOperation() {}

// NewInstruction validates the gate name and targets.
func NewInstruction(name string, args []float64, targets ...Target) (*Instruction, error) {
	g, ok := LookupGate(name)
	if !ok {
		return nil, detecterr.New(detecterr.MalformedCircuit, "unsupported instruction %q", name)
	}
	for _, t := range targets {
		switch {
		case t.Rec && !g.Rec:
			return nil, detecterr.New(detecterr.MalformedCircuit, "%s does not take record targets", name)
		case !t.Rec && g.Rec:
			return nil, detecterr.New(detecterr.MalformedCircuit, "%s only takes record targets", name)
		case t.Rec && t.Value >= 0:
			return nil, detecterr.New(detecterr.MalformedCircuit, "record target %s must look back", t)
		case !t.Rec && t.Value < 0:
			return nil, detecterr.New(detecterr.MalformedCircuit, "negative qubit index %d", t.Value)
		}
	}
	if g.Arity == 2 && len(targets)%2 != 0 {
		return nil, detecterr.New(detecterr.MalformedCircuit, "%s needs an even number of targets, got %d", name, len(targets))
	}
	return &Instruction{
		Name:    name,
		Args:    slices.Clone(args),
		Targets: slices.Clone(targets),
		gate:    g,
	}, nil
}

// MustInstruction is like NewInstruction but panics on error.
func MustInstruction(name string, args []float64, targets ...Target) *Instruction {
	inst, err := NewInstruction(name, args, targets...)
	if err != nil {
		panic(err)
	}
	return inst
}

// Gate returns the resolved gate description.
func (i *Instruction) Gate() Gate { return i.gate }

// Qubits returns the qubit targets in order.
func (i *Instruction) Qubits() []int {
	qs := make([]int, 0, len(i.Targets))
	for _, t := range i.Targets {
		if !t.Rec {
			qs = append(qs, t.Value)
		}
	}
	return qs
}

func (i *Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(i.Name)
	if len(i.Args) > 0 {
		sb.WriteByte('(')
		for j, a := range i.Args {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.FormatFloat(a, 'g', -1, 64))
		}
		sb.WriteByte(')')
	}
	for _, t := range i.Targets {
		sb.WriteByte(' ')
		sb.WriteString(t.String())
	}
	return sb.String()
}

// RepeatBlock repeats Body Count times.
type RepeatBlock struct {
	Count int
	Body  *Circuit
}

func (*RepeatBlock) isOperation() {}

// NewRepeatBlock validates the repetition count.
func NewRepeatBlock(count int, body *Circuit) (*RepeatBlock, error) {
	if count < 1 {
		return nil, detecterr.New(detecterr.MalformedCircuit, "REPEAT count must be positive, got %d", count)
	}
	if body == nil {
		body = New()
	}
	return &RepeatBlock{Count: count, Body: body}, nil
}

// Circuit is an ordered list of operations.
type Circuit struct {
	ops []Operation
}

// New builds a circuit from operations.
func New(ops ...Operation) *Circuit {
	return &Circuit{ops: slices.Clone(ops)}
}

// Append adds operations at the end of the circuit.
func (c *Circuit) Append(ops ...Operation) {
	c.ops = append(c.ops, ops...)
}

// Operations returns a copy of the top-level operations.
func (c *Circuit) Operations() []Operation {
	return slices.Clone(c.ops)
}

// Len is the number of top-level operations.
func (c *Circuit) Len() int { return len(c.ops) }

// IsEmpty reports whether the circuit has no operations.
func (c *Circuit) IsEmpty() bool { return len(c.ops) == 0 }

// Copy returns a shallow copy with its own operation list.
func (c *Circuit) Copy() *Circuit {
	return New(c.ops...)
}

// Instructions returns the top-level instructions, skipping repeat blocks.
func (c *Circuit) Instructions() []*Instruction {
	out := make([]*Instruction, 0, len(c.ops))
	for _, op := range c.ops {
		if inst, ok := op.(*Instruction); ok {
			out = append(out, inst)
		}
	}
	return out
}

// Walk calls fn for every instruction, descending once into each repeat
// block body. Walking stops when fn returns false.
func (c *Circuit) Walk(fn func(*Instruction) bool) bool {
	for _, op := range c.ops {
		switch op := op.(type) {
		case *Instruction:
			if !fn(op) {
				return false
			}
		case *RepeatBlock:
			if !op.Body.Walk(fn) {
				return false
			}
		}
	}
	return true
}

// Repeat returns the block when the circuit is exactly one repeat block.
func (c *Circuit) Repeat() (*RepeatBlock, bool) {
	if len(c.ops) != 1 {
		return nil, false
	}
	rb, ok := c.ops[0].(*RepeatBlock)
	return rb, ok
}

// Moments splits the top level into moments. Each moment ends with its TICK;
// a repeat block is always a moment of its own and never merged with the
// instructions before it. Trailing instructions without a TICK form a last
// moment.
func (c *Circuit) Moments() []*Circuit {
	var (
		moments []*Circuit
		cur     = New()
	)
	for _, op := range c.ops {
		switch op := op.(type) {
		case *RepeatBlock:
			if !cur.IsEmpty() {
				moments = append(moments, cur)
				cur = New()
			}
			moments = append(moments, New(op))
		case *Instruction:
			cur.Append(op)
			if op.gate.Name == "TICK" {
				moments = append(moments, cur)
				cur = New()
			}
		}
	}
	if !cur.IsEmpty() {
		moments = append(moments, cur)
	}
	return moments
}

func (c *Circuit) hasKind(k Kind) bool {
	for _, inst := range c.Instructions() {
		if inst.gate.Kind == k {
			return true
		}
	}
	return false
}

// HasReset reports whether a top-level instruction is a reset.
func (c *Circuit) HasReset() bool { return c.hasKind(KindReset) }

// HasMeasurement reports whether a top-level instruction is a measurement.
func (c *Circuit) HasMeasurement() bool { return c.hasKind(KindMeasurement) }

// HasMeasureReset reports whether a top-level instruction is a combined
// measurement and reset.
func (c *Circuit) HasMeasureReset() bool { return c.hasKind(KindMeasureReset) }

// HasRepeat reports whether a top-level operation is a repeat block.
func (c *Circuit) HasRepeat() bool {
	for _, op := range c.ops {
		if _, ok := op.(*RepeatBlock); ok {
			return true
		}
	}
	return false
}

// IsVirtual reports whether the circuit only holds annotations and noise.
func (c *Circuit) IsVirtual() bool {
	if c.HasRepeat() {
		return false
	}
	for _, inst := range c.Instructions() {
		if !inst.gate.IsVirtual() {
			return false
		}
	}
	return true
}

// IsResetOnly reports whether every non-virtual instruction is a reset.
func (c *Circuit) IsResetOnly() bool {
	if c.HasRepeat() {
		return false
	}
	for _, inst := range c.Instructions() {
		if !inst.gate.IsVirtual() && inst.gate.Kind != KindReset {
			return false
		}
	}
	return true
}

// CollapsingOperations returns one single-qubit Pauli per reset or
// measurement target, in target order. For measurements this is the
// measurement record order.
func (c *Circuit) CollapsingOperations() []pauli.Operator {
	var ops []pauli.Operator
	for _, inst := range c.Instructions() {
		switch inst.gate.Kind {
		case KindReset, KindMeasurement, KindMeasureReset:
			for _, q := range inst.Qubits() {
				ops = append(ops, pauli.Single(q, inst.gate.Basis))
			}
		}
	}
	return ops
}

// NumMeasurements counts measurement records, expanding repeat blocks.
func (c *Circuit) NumMeasurements() int {
	n := 0
	for _, op := range c.ops {
		switch op := op.(type) {
		case *Instruction:
			if k := op.gate.Kind; k == KindMeasurement || k == KindMeasureReset {
				n += len(op.Targets)
			}
		case *RepeatBlock:
			n += op.Count * op.Body.NumMeasurements()
		}
	}
	return n
}

// Flattened returns a copy with every repeat block unrolled.
func (c *Circuit) Flattened() *Circuit {
	out := New()
	for _, op := range c.ops {
		switch op := op.(type) {
		case *Instruction:
			out.Append(op)
		case *RepeatBlock:
			body := op.Body.Flattened()
			for range op.Count {
				out.Append(body.ops...)
			}
		}
	}
	return out
}

// QubitCoordinates collects QUBIT_COORDS annotations. Later annotations of
// the same qubit win; SHIFT_COORDS does not apply to qubit coordinates here.
func (c *Circuit) QubitCoordinates() map[int][]float64 {
	coords := make(map[int][]float64)
	c.Walk(func(inst *Instruction) bool {
		if inst.gate.Name == "QUBIT_COORDS" {
			for _, q := range inst.Qubits() {
				coords[q] = slices.Clone(inst.Args)
			}
		}
		return true
	})
	return coords
}

// String renders the circuit in the stim line format.
func (c *Circuit) String() string {
	var sb strings.Builder
	c.write(&sb, "")
	return strings.TrimSuffix(sb.String(), "\n")
}

func (c *Circuit) write(sb *strings.Builder, indent string) {
	for _, op := range c.ops {
		switch op := op.(type) {
		case *Instruction:
			sb.WriteString(indent)
			sb.WriteString(op.String())
			sb.WriteByte('\n')
		case *RepeatBlock:
			sb.WriteString(indent)
			sb.WriteString("REPEAT ")
			sb.WriteString(strconv.Itoa(op.Count))
			sb.WriteString(" {\n")
			op.Body.write(sb, indent+"    ")
			sb.WriteString(indent)
			sb.WriteString("}\n")
		}
	}
}
