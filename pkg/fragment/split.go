package fragment

import (
	"strings"

	"github.com/fyrsmithlabs/detectd/pkg/circuit"
	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
)

// Warning reports trailing instructions that Split discarded.
type Warning struct {
	Message  string
	Leftover *circuit.Circuit
	// Loop is set when the instructions sit at the end of a REPEAT body.
	Loop bool
}

func (w Warning) String() string { return w.Message }

// Validate checks the circuit-wide preconditions of Split: no combined
// measure-and-reset instruction and no moment mixing resets with
// measurements, repeat block bodies included.
func Validate(c *circuit.Circuit) error {
	var combined []string
	c.Walk(func(inst *circuit.Instruction) bool {
		if inst.Gate().Kind == circuit.KindMeasureReset {
			combined = append(combined, inst.Name)
		}
		return true
	})
	if len(combined) > 0 {
		return detecterr.New(detecterr.MalformedCircuit,
			"combined measurement and reset instructions are not supported, found %s; split them into a measurement followed by a reset",
			strings.Join(combined, ", "))
	}
	return checkMixedMoments(c)
}

func checkMixedMoments(c *circuit.Circuit) error {
	for _, m := range c.Moments() {
		if rb, ok := m.Repeat(); ok {
			if err := checkMixedMoments(rb.Body); err != nil {
				return err
			}
			continue
		}
		if m.HasReset() && m.HasMeasurement() {
			return detecterr.New(detecterr.MalformedCircuit,
				"a moment contains both resets and measurements:\n%s", m)
		}
	}
	return nil
}

// Split decomposes c into fragments and loops. Warnings are returned for
// trailing reset-only or annotation-only instructions, which do not form a
// fragment and are dropped from the result.
func Split(c *circuit.Circuit) ([]Node, []Warning, error) {
	if err := Validate(c); err != nil {
		return nil, nil, err
	}
	return split(c)
}

func split(c *circuit.Circuit) ([]Node, []Warning, error) {
	var (
		nodes    []Node
		warnings []Warning
		buffer   = circuit.New()
	)
	for _, moment := range c.Moments() {
		if rb, ok := moment.Repeat(); ok {
			if !buffer.IsEmpty() {
				return nil, nil, detecterr.New(detecterr.MalformedCircuit,
					"found instructions that do not end with a measurement before a REPEAT block:\n%s", buffer)
			}
			body, bodyWarnings, err := split(rb.Body)
			if err != nil {
				return nil, nil, detecterr.Wrap(detecterr.KindOf(err), err,
					"splitting REPEAT block body:\n%s", rb.Body)
			}
			loop, err := NewLoop(body, rb.Count)
			if err != nil {
				return nil, nil, detecterr.Wrap(detecterr.KindOf(err), err,
					"REPEAT block body does not contain a fragment:\n%s", rb.Body)
			}
			nodes = append(nodes, loop)
			for _, w := range bodyWarnings {
				w.Loop = true
				warnings = append(warnings, w)
			}
			continue
		}

		buffer.Append(moment.Operations()...)
		if moment.HasMeasurement() {
			f, err := NewFragment(buffer)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, f)
			buffer = circuit.New()
		}
	}

	if !buffer.IsEmpty() {
		if !buffer.IsResetOnly() {
			return nil, nil, detecterr.New(detecterr.MalformedCircuit,
				"the circuit ends with instructions that are not followed by a measurement:\n%s", buffer)
		}
		warnings = append(warnings, Warning{
			Message:  "trailing resets or annotations do not form a fragment and were ignored",
			Leftover: buffer,
		})
	}
	return nodes, warnings, nil
}
