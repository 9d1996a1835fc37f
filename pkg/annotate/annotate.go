// Package annotate discovers detectors in a circuit and writes them back as
// DETECTOR instructions.
//
// The circuit is split into fragments and loops, and the flows of each
// fragment are matched inside the fragment and across each boundary between
// consecutive fragments. A loop body only depends on the fragment executed
// before it, so REPEAT blocks are kept: the first iteration is peeled off
// when it sees different detectors than the following ones, and every
// repeated body ends with a SHIFT_COORDS advancing the time coordinate.
package annotate

import (
	"math"
	"slices"

	"github.com/fyrsmithlabs/detectd/pkg/boundary"
	"github.com/fyrsmithlabs/detectd/pkg/circuit"
	"github.com/fyrsmithlabs/detectd/pkg/cover"
	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/flow"
	"github.com/fyrsmithlabs/detectd/pkg/fragment"
	"github.com/fyrsmithlabs/detectd/pkg/measurement"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
)

// MaxUnrolledOperations bounds the size of a circuit whose REPEAT blocks
// have to be unrolled before it can be split into fragments.
const MaxUnrolledOperations = 1 << 20

// Detector is a set of measurements with a deterministic parity.
type Detector struct {
	// Fragment is the index of the fragment after which the detector is
	// first placed, counting loop iterations.
	Fragment int `json:"fragment"`
	// Coordinates are the spatial coordinates followed by Fragment.
	Coordinates []float64 `json:"coordinates"`
	// Repetitions is the number of times the DETECTOR instruction runs.
	Repetitions int `json:"repetitions"`
	// Measurements are relative to the end of Fragment.
	Measurements []measurement.Reference `json:"-"`
}

// Offsets returns the record offsets of the detector.
func (d Detector) Offsets() []int {
	out := make([]int, len(d.Measurements))
	for i, m := range d.Measurements {
		out[i] = m.Offset()
	}
	return out
}

// Result is the outcome of Run.
type Result struct {
	// Circuit is the input with the detectors inserted.
	Circuit   *circuit.Circuit
	Detectors []Detector
	Fragments int
	Warnings  []fragment.Warning
}

// Run annotates c with the detectors it can find.
//
// When a REPEAT body does not split into whole fragments the circuit is
// unrolled first, which fails with InvalidConstruction beyond
// MaxUnrolledOperations.
func Run(c *circuit.Circuit, opts ...cover.Option) (*Result, error) {
	if err := fragment.Validate(c); err != nil {
		return nil, err
	}
	nodes, warnings, err := fragment.Split(c)
	if err != nil || slices.ContainsFunc(warnings, func(w fragment.Warning) bool { return w.Loop }) {
		if !c.HasRepeat() {
			return nil, err
		}
		size, ok := unrolledSize(c)
		if !ok || size > MaxUnrolledOperations {
			if err != nil {
				return nil, err
			}
			return nil, detecterr.New(detecterr.InvalidConstruction,
				"REPEAT bodies that end between fragments are unrolled, and this circuit unrolls to more than %d operations",
				MaxUnrolledOperations)
		}
		if nodes, warnings, err = fragment.Split(c.Flattened()); err != nil {
			return nil, err
		}
	}

	total, err := countFragments(nodes)
	if err != nil {
		return nil, err
	}

	coords := c.QubitCoordinates()
	dims := 0
	for _, v := range coords {
		dims = max(dims, len(v))
	}
	m := &matcher{opts: opts, coords: coords, dims: dims, flows: map[*fragment.Fragment]flow.Flows{}}
	e := &emitter{m: m, out: circuit.New()}
	if err := e.nodes(nodes); err != nil {
		return nil, err
	}
	for _, w := range warnings {
		if w.Leftover != nil {
			e.out.Append(slices.DeleteFunc(w.Leftover.Operations(), isCoordinateAnnotation)...)
		}
	}

	return &Result{
		Circuit:   e.out,
		Detectors: e.detectors,
		Fragments: total,
		Warnings:  warnings,
	}, nil
}

// emitter writes nodes with their detectors. idx is the index of the next
// fragment counting loop iterations, and shift is the time shift applied by
// the SHIFT_COORDS written so far, so idx-shift is the time coordinate to
// write.
type emitter struct {
	m         *matcher
	out       *circuit.Circuit
	detectors []Detector
	prev      *fragment.Fragment
	idx       int
	shift     int
}

func (e *emitter) fork() *emitter {
	return &emitter{m: e.m, out: circuit.New(), prev: e.prev, idx: e.idx, shift: e.shift}
}

func (e *emitter) nodes(nodes []fragment.Node) error {
	for _, n := range nodes {
		var err error
		switch n := n.(type) {
		case *fragment.Fragment:
			err = e.fragment(n)
		case *fragment.Loop:
			err = e.loop(n)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// fragment writes f, inserting its detectors before its trailing TICK.
// DETECTOR and SHIFT_COORDS instructions of the input are dropped.
func (e *emitter) fragment(f *fragment.Fragment) error {
	found, err := e.m.detect(e.prev, f)
	if err != nil {
		return err
	}

	ops := slices.DeleteFunc(f.Circuit().Operations(), isCoordinateAnnotation)
	var tick []circuit.Operation
	if n := len(ops); n > 0 {
		if inst, ok := ops[n-1].(*circuit.Instruction); ok && inst.Gate().Name == "TICK" {
			ops, tick = ops[:n-1], ops[n-1:]
		}
	}
	e.out.Append(ops...)
	for _, d := range found {
		d.Fragment = e.idx
		d.Repetitions = 1
		d.Coordinates = append(d.Coordinates, float64(e.idx))
		e.out.Append(d.instruction(float64(e.idx - e.shift)))
		e.detectors = append(e.detectors, d)
	}
	e.out.Append(tick...)

	e.prev = f
	e.idx++
	return nil
}

// loop writes l as REPEAT blocks. The body is written twice, once after
// the fragment preceding the loop and once after the last fragment of the
// body; when both agree the loop is kept whole, otherwise the first
// iteration is written out on its own.
func (e *emitter) loop(l *fragment.Loop) error {
	body := l.Children()
	n := l.Repetitions()
	span, err := countFragments(body)
	if err != nil {
		return err
	}

	entry := e.fork()
	if err := entry.nodes(body); err != nil {
		return err
	}
	steady := e.fork()
	steady.prev = lastFragment(body)
	if err := steady.nodes(body); err != nil {
		return err
	}
	if entry.out.String() == steady.out.String() {
		e.repeat(entry, n, span)
		return nil
	}

	e.absorb(entry)
	if n == 1 {
		return nil
	}
	rest := e.fork()
	if err := rest.nodes(body); err != nil {
		return err
	}
	if n == 2 {
		e.absorb(rest)
		return nil
	}
	e.repeat(rest, n-1, span)
	return nil
}

// absorb appends what body wrote, once.
func (e *emitter) absorb(body *emitter) {
	e.out.Append(body.out.Operations()...)
	e.detectors = append(e.detectors, body.detectors...)
	e.prev, e.idx, e.shift = body.prev, body.idx, body.shift
}

// repeat appends what body wrote as a REPEAT block of n iterations.
// Each iteration ends by shifting the time coordinate back to where the
// body started writing, plus span.
func (e *emitter) repeat(body *emitter, n, span int) {
	ops := body.out.Operations()
	if moved := (body.idx - body.shift) - (e.idx - e.shift); moved != 0 {
		args := make([]float64, e.m.dims+1)
		args[e.m.dims] = float64(moved)
		ops = append(ops, circuit.MustInstruction("SHIFT_COORDS", args))
	}
	e.out.Append(&circuit.RepeatBlock{Count: n, Body: circuit.New(ops...)})
	for _, d := range body.detectors {
		d.Repetitions *= n
		e.detectors = append(e.detectors, d)
	}
	e.prev = body.prev
	e.idx += n * span
	e.shift += n * span
}

func lastFragment(nodes []fragment.Node) *fragment.Fragment {
	switch n := nodes[len(nodes)-1].(type) {
	case *fragment.Fragment:
		return n
	case *fragment.Loop:
		return lastFragment(n.Children())
	}
	return nil
}

// countFragments is fragment.Count with an overflow check.
func countFragments(nodes []fragment.Node) (int, error) {
	total := 0
	for _, n := range nodes {
		k := 1
		if l, ok := n.(*fragment.Loop); ok {
			inner, err := countFragments(l.Children())
			if err != nil {
				return 0, err
			}
			if inner > 0 && l.Repetitions() > math.MaxInt/inner {
				return 0, detecterr.New(detecterr.InvalidConstruction, "REPEAT blocks expand to too many fragments")
			}
			k = inner * l.Repetitions()
		}
		if total > math.MaxInt-k {
			return 0, detecterr.New(detecterr.InvalidConstruction, "REPEAT blocks expand to too many fragments")
		}
		total += k
	}
	return total, nil
}

// unrolledSize counts the instructions of c with every REPEAT block
// unrolled, reporting false past MaxUnrolledOperations.
func unrolledSize(c *circuit.Circuit) (int, bool) {
	total := 0
	for _, op := range c.Operations() {
		k := 1
		if rb, ok := op.(*circuit.RepeatBlock); ok {
			inner, ok := unrolledSize(rb.Body)
			if !ok || (inner > 0 && rb.Count > MaxUnrolledOperations/inner) {
				return 0, false
			}
			k = inner * rb.Count
		}
		total += k
		if total > MaxUnrolledOperations {
			return 0, false
		}
	}
	return total, true
}

type matcher struct {
	opts   []cover.Option
	coords map[int][]float64
	dims   int
	flows  map[*fragment.Fragment]flow.Flows

	found []Detector
	seen  map[string]bool
}

// detect returns the detectors placed after f when prev runs just before
// it. Only Measurements and the spatial coordinates are set.
func (m *matcher) detect(prev, f *fragment.Fragment) ([]Detector, error) {
	cur, err := m.flowsOf(f)
	if err != nil {
		return nil, err
	}
	m.found, m.seen = nil, map[string]bool{}
	for _, s := range slices.Concat(cur.Creation, cur.Destruction) {
		if flow.Deterministic(s) {
			m.add(s.Measurements())
		}
	}
	if prev != nil {
		before, err := m.flowsOf(prev)
		if err != nil {
			return nil, err
		}
		if err := m.matchBoundary(before.Creation, cur.Destruction, f.NumMeasurements()); err != nil {
			return nil, err
		}
	}
	return m.found, nil
}

func (m *matcher) flowsOf(f *fragment.Fragment) (flow.Flows, error) {
	if fl, ok := m.flows[f]; ok {
		return fl, nil
	}
	fl, err := flow.Compute(f)
	if err != nil {
		return flow.Flows{}, err
	}
	m.flows[f] = fl
	return fl, nil
}

// add records a detector, skipping empty and repeated measurement sets.
func (m *matcher) add(refs []measurement.Reference) {
	refs = measurement.Set(refs)
	if len(refs) == 0 {
		return
	}
	key := ""
	for _, r := range refs {
		key += r.String() + ";"
	}
	if m.seen[key] {
		return
	}
	m.seen[key] = true
	m.found = append(m.found, Detector{
		Coordinates:  m.spatial(refs),
		Measurements: refs,
	})
}

// spatial averages the coordinates of the measured qubits. Missing or
// inconsistent coordinates give the origin.
func (m *matcher) spatial(refs []measurement.Reference) []float64 {
	qubits := make([]int, 0, len(refs))
	for _, r := range refs {
		qubits = append(qubits, r.Qubit())
	}
	s := boundary.New(pauli.Identity(), nil, nil, qubits, boundary.Forward)
	c, err := s.Coordinates(m.coords)
	if err != nil || len(c) != m.dims {
		return make([]float64, m.dims)
	}
	return c
}

// matchBoundary matches the creation flows of the previous fragment against
// the destruction flows of the current one, which adds shift records.
func (m *matcher) matchBoundary(created, destroyed []boundary.Stabilizer, shift int) error {
	var left []boundary.Stabilizer
	for _, s := range flow.Open(created) {
		shifted, err := s.WithMeasurementOffset(-shift)
		if err != nil {
			return err
		}
		left = append(left, shifted)
	}
	right := flow.Open(destroyed)
	if len(left) == 0 || len(right) == 0 {
		return nil
	}

	leftAfter := afterCollapse(left)
	rightAfter := afterCollapse(right)
	usedLeft := make([]bool, len(left))
	usedRight := make([]bool, len(right))

	for r := range right {
		for l := range left {
			if usedLeft[l] || !leftAfter[l].Equal(rightAfter[r]) {
				continue
			}
			usedLeft[l], usedRight[r] = true, true
			m.add(measurement.SymmetricDifference(left[l].Measurements(), right[r].Measurements()))
			break
		}
	}

	for r := range right {
		if usedRight[r] {
			continue
		}
		chosen, found, err := cover.FindExactCoverSAT(rightAfter[r], leftAfter, m.opts...)
		if err != nil {
			return err
		}
		if !found || len(chosen) == 0 {
			continue
		}
		merged, ok, err := merge(left, chosen)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		usedRight[r] = true
		for _, l := range chosen {
			usedLeft[l] = true
		}
		m.add(measurement.SymmetricDifference(merged.Measurements(), right[r].Measurements()))
	}

	for l := range left {
		if usedLeft[l] {
			continue
		}
		chosen, found, err := cover.FindExactCoverSAT(leftAfter[l], rightAfter, m.opts...)
		if err != nil {
			return err
		}
		if !found || len(chosen) == 0 {
			continue
		}
		merged, ok, err := merge(right, chosen)
		if err != nil {
			return err
		}
		if ok {
			m.add(measurement.SymmetricDifference(left[l].Measurements(), merged.Measurements()))
		}
	}
	return nil
}

// merge folds the chosen stabilizers into one. It reports false when two
// of them share an anchor qubit.
func merge(stabs []boundary.Stabilizer, chosen []int) (boundary.Stabilizer, bool, error) {
	acc := stabs[chosen[0]]
	for _, i := range chosen[1:] {
		next, err := acc.Merge(stabs[i])
		if detecterr.KindOf(err) == detecterr.IncompatibleMerge {
			return boundary.Stabilizer{}, false, nil
		}
		if err != nil {
			return boundary.Stabilizer{}, false, err
		}
		acc = next
	}
	return acc, true, nil
}

func afterCollapse(stabs []boundary.Stabilizer) []pauli.Operator {
	out := make([]pauli.Operator, len(stabs))
	for i, s := range stabs {
		// flow.Open only keeps stabilizers with a deterministic collapse.
		out[i], _ = s.AfterCollapse()
	}
	return out
}

// instruction renders the detector with time as its last coordinate.
func (d Detector) instruction(time float64) *circuit.Instruction {
	targets := make([]circuit.Target, len(d.Measurements))
	for i, m := range d.Measurements {
		targets[i] = circuit.Rec(m.Offset())
	}
	args := slices.Clone(d.Coordinates)
	args[len(args)-1] = time
	return circuit.MustInstruction("DETECTOR", args, targets...)
}

func isCoordinateAnnotation(op circuit.Operation) bool {
	inst, ok := op.(*circuit.Instruction)
	return ok && (inst.Gate().Name == "DETECTOR" || inst.Gate().Name == "SHIFT_COORDS")
}
