package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/detectd/internal/detect"
	"github.com/fyrsmithlabs/detectd/internal/problem"
	"github.com/fyrsmithlabs/detectd/pkg/circuit"
	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/fragment"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.registerCircuitTools()
	s.registerCoverTools()
}

// track starts the metrics for one invocation and returns the function
// that ends them.
func (s *Server) track(ctx context.Context, tool string) func(error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)
	return func(err error) {
		s.metrics.DecrementActive(ctx, tool)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
		if err != nil {
			s.logger.Warn(ctx, "tool failed", zap.String("tool", tool), zap.Error(err))
		}
	}
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

func (s *Server) parse(ctx context.Context, text string) (*circuit.Circuit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, detecterr.New(detecterr.MalformedCircuit, "circuit is empty")
	}
	return s.svc.Parse(ctx, strings.NewReader(text))
}

// ===== CIRCUIT TOOLS =====

type circuitInput struct {
	Circuit string `json:"circuit" jsonschema:"Circuit in stim text format"`
}

type validateOutput struct {
	Operations   int      `json:"operations" jsonschema:"Number of top-level operations"`
	Measurements int      `json:"measurements" jsonschema:"Number of measurements, repeat blocks expanded"`
	Fragments    int      `json:"fragments" jsonschema:"Number of fragments, loops expanded"`
	Loops        int      `json:"loops" jsonschema:"Number of repeat loops, nested ones included"`
	Warnings     []string `json:"warnings,omitempty" jsonschema:"Non-fatal findings such as a trailing reset block"`
}

type fragmentsOutput struct {
	Fragments int      `json:"fragments" jsonschema:"Number of fragments, loops expanded"`
	Tree      string   `json:"tree" jsonschema:"Indented fragment and loop tree"`
	Warnings  []string `json:"warnings,omitempty" jsonschema:"Non-fatal findings such as a trailing reset block"`
}

type detectorOutput struct {
	Fragment    int       `json:"fragment" jsonschema:"Index of the fragment after which the detector is first placed"`
	Coordinates []float64 `json:"coordinates" jsonschema:"Detector coordinates, fragment index last"`
	Records     []int     `json:"records" jsonschema:"Measurement record offsets relative to the end of the fragment"`
	Repetitions int       `json:"repetitions" jsonschema:"Number of times the DETECTOR instruction runs"`
}

type annotateOutput struct {
	Circuit   string           `json:"circuit" jsonschema:"Circuit with DETECTOR instructions, REPEAT blocks kept where possible"`
	Fragments int              `json:"fragments" jsonschema:"Number of fragments"`
	Detectors []detectorOutput `json:"detectors" jsonschema:"Detectors found"`
	Warnings  []string         `json:"warnings,omitempty" jsonschema:"Non-fatal findings such as a trailing reset block"`
}

func (s *Server) registerCircuitTools() {
	// circuit_validate
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "circuit_validate",
		Description: "Check that a stim circuit can be split into fragments and report its shape",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args circuitInput) (_ *mcp.CallToolResult, _ validateOutput, err error) {
		done := s.track(ctx, "circuit_validate")
		defer func() { done(err) }()

		c, err := s.parse(ctx, args.Circuit)
		if err != nil {
			return nil, validateOutput{}, err
		}
		report, err := s.svc.Validate(ctx, c)
		if err != nil {
			return nil, validateOutput{}, err
		}
		out := validateOutput{
			Operations:   report.Operations,
			Measurements: report.Measurements,
			Fragments:    report.Fragments,
			Loops:        report.Loops,
			Warnings:     report.Messages,
		}
		return textResult("Circuit valid: %d fragments, %d loops", out.Fragments, out.Loops), out, nil
	})

	// circuit_fragments
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "circuit_fragments",
		Description: "Split a stim circuit into fragments and repeat loops",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args circuitInput) (_ *mcp.CallToolResult, _ fragmentsOutput, err error) {
		done := s.track(ctx, "circuit_fragments")
		defer func() { done(err) }()

		c, err := s.parse(ctx, args.Circuit)
		if err != nil {
			return nil, fragmentsOutput{}, err
		}
		t, err := s.svc.Fragments(ctx, c)
		if err != nil {
			return nil, fragmentsOutput{}, err
		}
		var b strings.Builder
		writeTree(&b, t.Summary, 0)
		out := fragmentsOutput{
			Fragments: fragment.Count(t.Nodes),
			Tree:      b.String(),
			Warnings:  t.Messages,
		}
		return textResult("%s", out.Tree), out, nil
	})

	// circuit_annotate
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "circuit_annotate",
		Description: "Find the detectors of a stim circuit and insert DETECTOR instructions",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args circuitInput) (_ *mcp.CallToolResult, _ annotateOutput, err error) {
		done := s.track(ctx, "circuit_annotate")
		defer func() { done(err) }()

		c, err := s.parse(ctx, args.Circuit)
		if err != nil {
			return nil, annotateOutput{}, err
		}
		res, err := s.svc.Annotate(ctx, c)
		if err != nil {
			return nil, annotateOutput{}, err
		}
		s.metrics.RecordDetectors(ctx, len(res.Detectors))
		out := annotateOutput{
			Circuit:   res.Circuit.String(),
			Fragments: res.Fragments,
			Detectors: make([]detectorOutput, len(res.Detectors)),
		}
		for i, d := range res.Detectors {
			out.Detectors[i] = detectorOutput{
				Fragment:    d.Fragment,
				Coordinates: d.Coordinates,
				Records:     d.Offsets(),
				Repetitions: d.Repetitions,
			}
		}
		for _, w := range res.Warnings {
			out.Warnings = append(out.Warnings, w.Message)
		}
		return textResult("%s", out.Circuit), out, nil
	})
}

func writeTree(b *strings.Builder, nodes []detect.Node, depth int) {
	for _, n := range nodes {
		fmt.Fprintf(b, "%s%s\n", strings.Repeat("  ", depth), n.Label())
		writeTree(b, n.Children, depth+1)
	}
}

// ===== COVER TOOLS =====

type coverInput struct {
	Mode    string   `json:"mode,omitempty" jsonschema:"exact (default) or commuting"`
	Target  string   `json:"target" jsonschema:"Target Pauli string, e.g. X0*Z3"`
	Sources []string `json:"sources" jsonschema:"Candidate Pauli strings"`
}

type coverOutput struct {
	Found   bool   `json:"found" jsonschema:"Whether a cover exists"`
	Indices []int  `json:"indices" jsonschema:"Indices of the chosen sources"`
	Product string `json:"product" jsonschema:"Product of the chosen sources"`
}

func (s *Server) registerCoverTools() {
	// cover_find
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cover_find",
		Description: "Find the smallest set of Pauli strings whose product equals (exact) or commutes with (commuting) a target",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args coverInput) (_ *mcp.CallToolResult, _ coverOutput, err error) {
		done := s.track(ctx, "cover_find")
		defer func() { done(err) }()

		p, err := coverProblem(args)
		if err != nil {
			return nil, coverOutput{}, err
		}
		res, err := s.svc.Cover(ctx, p)
		if err != nil {
			return nil, coverOutput{}, err
		}
		out := coverOutput{
			Found:   res.Found,
			Indices: append([]int{}, res.Indices...),
			Product: res.Product.String(),
		}
		if !out.Found {
			return textResult("No cover found"), out, nil
		}
		return textResult("Cover %v with product %s", out.Indices, out.Product), out, nil
	})
}

func coverProblem(args coverInput) (*problem.Problem, error) {
	mode := problem.Mode(args.Mode)
	if mode == problem.ModeStabilizer {
		return nil, detecterr.New(detecterr.InvalidConstruction, "stabilizer covers are not available over MCP")
	}
	target, err := pauli.Parse(args.Target)
	if err != nil {
		return nil, detecterr.Wrap(detecterr.InvalidConstruction, err, "invalid target")
	}
	p := &problem.Problem{Mode: mode, Target: target}
	for i, src := range args.Sources {
		op, err := pauli.Parse(src)
		if err != nil {
			return nil, detecterr.Wrap(detecterr.InvalidConstruction, err, "invalid source %d", i)
		}
		p.Sources = append(p.Sources, op)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
