package circuit

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
)

// Parse reads a circuit in the stim line format.
func Parse(r io.Reader) (*Circuit, error) {
	p := &parser{scanner: bufio.NewScanner(r)}
	p.scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	c, closed, err := p.block()
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, p.errorf("unmatched '}'")
	}
	if err := p.scanner.Err(); err != nil {
		return nil, detecterr.Wrap(detecterr.MalformedCircuit, err, "reading circuit")
	}
	return c, nil
}

// ParseString parses a circuit held in memory.
func ParseString(s string) (*Circuit, error) {
	return Parse(strings.NewReader(s))
}

// MustParse is like ParseString but panics on error.
func MustParse(s string) *Circuit {
	c, err := ParseString(s)
	if err != nil {
		panic(err)
	}
	return c
}

type parser struct {
	scanner *bufio.Scanner
	line    int
}

func (p *parser) errorf(format string, args ...any) error {
	return detecterr.New(detecterr.MalformedCircuit, "line %d: "+format, append([]any{p.line}, args...)...)
}

// block parses operations until EOF or a closing brace. closed reports
// whether the block ended on '}'.
func (p *parser) block() (c *Circuit, closed bool, err error) {
	c = New()
	for p.scanner.Scan() {
		p.line++
		text := p.scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		switch {
		case text == "":
			continue
		case text == "}":
			return c, true, nil
		case strings.HasSuffix(text, "{"):
			rb, err := p.repeat(strings.TrimSpace(strings.TrimSuffix(text, "{")))
			if err != nil {
				return nil, false, err
			}
			c.Append(rb)
		default:
			inst, err := p.instruction(text)
			if err != nil {
				return nil, false, err
			}
			c.Append(inst)
		}
	}
	return c, false, nil
}

func (p *parser) repeat(header string) (*RepeatBlock, error) {
	fields := strings.Fields(header)
	if len(fields) != 2 || strings.ToUpper(fields[0]) != "REPEAT" {
		return nil, p.errorf("unsupported block %q", header)
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, p.errorf("invalid REPEAT count %q", fields[1])
	}
	start := p.line
	body, closed, err := p.block()
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, detecterr.New(detecterr.MalformedCircuit, "line %d: REPEAT block is never closed", start)
	}
	rb, err := NewRepeatBlock(count, body)
	if err != nil {
		return nil, detecterr.Wrap(detecterr.MalformedCircuit, err, "line %d", start)
	}
	return rb, nil
}

func (p *parser) instruction(text string) (*Instruction, error) {
	head, rest := text, ""
	if i := strings.IndexAny(text, " \t"); i >= 0 {
		head, rest = text[:i], text[i:]
	}

	var args []float64
	name := head
	if i := strings.IndexByte(head, '('); i >= 0 {
		// Arguments may contain spaces: "DETECTOR(1, 2) rec[-1]".
		end := strings.IndexByte(text, ')')
		if end < i {
			return nil, p.errorf("unterminated argument list in %q", text)
		}
		name = text[:i]
		for _, a := range strings.Split(text[i+1:end], ",") {
			a = strings.TrimSpace(a)
			if a == "" {
				continue
			}
			v, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return nil, p.errorf("invalid argument %q", a)
			}
			args = append(args, v)
		}
		rest = text[end+1:]
	}

	var targets []Target
	for _, f := range strings.Fields(rest) {
		t, err := parseTarget(f)
		if err != nil {
			return nil, p.errorf("%v", err)
		}
		targets = append(targets, t)
	}

	inst, err := NewInstruction(strings.ToUpper(name), args, targets...)
	if err != nil {
		return nil, detecterr.Wrap(detecterr.MalformedCircuit, err, "line %d", p.line)
	}
	return inst, nil
}

func parseTarget(s string) (Target, error) {
	if strings.HasPrefix(s, "rec[") && strings.HasSuffix(s, "]") {
		v, err := strconv.Atoi(s[len("rec[") : len(s)-1])
		if err != nil {
			return Target{}, detecterr.New(detecterr.MalformedCircuit, "invalid record target %q", s)
		}
		return Rec(v), nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return Target{}, detecterr.New(detecterr.MalformedCircuit, "unsupported target %q", s)
	}
	return Qubit(v), nil
}
