// Package detect is the instrumented facade the CLI, the HTTP API and the
// watcher use to run detector discovery.
//
// Every operation gets a run id, a span, Prometheus counters and log lines;
// the algorithms themselves live in pkg/ and know nothing about any of that.
package detect

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/detectd/internal/config"
	"github.com/fyrsmithlabs/detectd/internal/logging"
	"github.com/fyrsmithlabs/detectd/internal/problem"
	"github.com/fyrsmithlabs/detectd/internal/telemetry"
	"github.com/fyrsmithlabs/detectd/pkg/annotate"
	"github.com/fyrsmithlabs/detectd/pkg/boundary"
	"github.com/fyrsmithlabs/detectd/pkg/circuit"
	"github.com/fyrsmithlabs/detectd/pkg/cover"
	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/fragment"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// InstrumentationName is the OpenTelemetry scope of the service.
const InstrumentationName = "github.com/fyrsmithlabs/detectd/internal/detect"

// Service runs detector discovery operations.
type Service struct {
	logger  *logging.Logger
	tracer  trace.Tracer
	metrics *Metrics
	opts    []cover.Option
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTelemetry takes the tracer from tel.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *Service) { s.tracer = tel.Tracer(InstrumentationName) }
}

// WithSearch sets the cover search options used by every operation.
func WithSearch(search config.SearchConfig) Option {
	return func(s *Service) {
		s.opts = (&config.Config{Search: search}).CoverOptions()
	}
}

// WithCoverOptions appends raw cover options, for tests that need a fixed
// clock or solver.
func WithCoverOptions(opts ...cover.Option) Option {
	return func(s *Service) { s.opts = append(s.opts, opts...) }
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(next func() string) Option {
	return func(s *Service) { s.newID = next }
}

// New creates a service.
func New(opts ...Option) *Service {
	s := &Service{
		logger:  logging.Nop(),
		metrics: NewMetrics(),
		newID:   uuid.NewString,
	}
	WithTelemetry(nil)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// start opens a span and tags ctx with a fresh run id.
func (s *Service) start(ctx context.Context, op string) (context.Context, trace.Span, func(error)) {
	runID := s.newID()
	ctx = logging.WithRunID(ctx, runID)
	ctx, span := s.tracer.Start(ctx, "detect."+op, trace.WithAttributes(
		attribute.String("run.id", runID),
	))
	begin := time.Now()

	return ctx, span, func(err error) {
		s.metrics.RunDuration.WithLabelValues(op).Observe(time.Since(begin).Seconds())
		outcome := "ok"
		switch {
		case err == nil:
		case detecterr.IsUserError(err):
			outcome = "user_error"
		default:
			outcome = "error"
		}
		s.metrics.RunsTotal.WithLabelValues(op, outcome).Inc()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Warn(ctx, op+" failed", zap.Error(err), zap.String("kind", detecterr.KindOf(err).String()))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// Parse reads a circuit.
func (s *Service) Parse(ctx context.Context, r io.Reader) (_ *circuit.Circuit, err error) {
	ctx, span, done := s.start(ctx, "parse")
	defer func() { done(err) }()

	c, err := circuit.Parse(r)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("circuit.operations", c.Len()))
	s.logger.Debug(ctx, "circuit parsed", zap.Int("operations", c.Len()))
	return c, nil
}

// Report summarises a validated circuit.
type Report struct {
	Operations   int                `json:"operations"`
	Measurements int                `json:"measurements"`
	Fragments    int                `json:"fragments"`
	Loops        int                `json:"loops"`
	Warnings     []fragment.Warning `json:"-"`
	Messages     []string           `json:"warnings,omitempty"`
}

// Validate checks that c can be split into fragments and reports its shape.
func (s *Service) Validate(ctx context.Context, c *circuit.Circuit) (_ *Report, err error) {
	ctx, span, done := s.start(ctx, "validate")
	defer func() { done(err) }()

	tree, err := s.split(ctx, c)
	if err != nil {
		return nil, err
	}
	r := &Report{
		Operations:   c.Len(),
		Measurements: c.NumMeasurements(),
		Fragments:    fragment.Count(tree.Nodes),
		Warnings:     tree.Warnings,
		Messages:     tree.Messages,
	}
	for _, n := range tree.Summary {
		r.Loops += n.loops()
	}
	span.SetAttributes(
		attribute.Int("circuit.fragments", r.Fragments),
		attribute.Int("circuit.loops", r.Loops),
	)
	s.logger.Info(ctx, "circuit valid", zap.Int("fragments", r.Fragments), zap.Int("loops", r.Loops))
	return r, nil
}

// Tree is the fragment decomposition of a circuit.
type Tree struct {
	Nodes    []fragment.Node    `json:"-"`
	Summary  []Node             `json:"nodes"`
	Warnings []fragment.Warning `json:"-"`
	Messages []string           `json:"warnings,omitempty"`
}

// Node is a serialisable view of a fragment tree node.
type Node struct {
	Kind         string `json:"kind"` // "fragment" or "loop"
	Measurements int    `json:"measurements"`
	Resets       int    `json:"resets,omitempty"`
	Repetitions  int    `json:"repetitions,omitempty"`
	Children     []Node `json:"children,omitempty"`
}

func (n Node) loops() int {
	if n.Kind != "loop" {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += c.loops()
	}
	return total
}

// Label is a one-line description of the node.
func (n Node) Label() string {
	if n.Kind == "loop" {
		return fmt.Sprintf("REPEAT %d: %d measurements", n.Repetitions, n.Measurements)
	}
	return fmt.Sprintf("fragment: %d resets, %d measurements", n.Resets, n.Measurements)
}

// Fragments splits c into its fragment tree.
func (s *Service) Fragments(ctx context.Context, c *circuit.Circuit) (_ *Tree, err error) {
	ctx, _, done := s.start(ctx, "fragments")
	defer func() { done(err) }()
	return s.split(ctx, c)
}

func (s *Service) split(ctx context.Context, c *circuit.Circuit) (*Tree, error) {
	if err := fragment.Validate(c); err != nil {
		return nil, err
	}
	nodes, warnings, err := fragment.Split(c)
	if err != nil {
		return nil, err
	}
	s.metrics.FragmentCount.Observe(float64(fragment.Count(nodes)))
	s.warn(ctx, warnings)

	t := &Tree{Nodes: nodes, Warnings: warnings}
	for _, n := range nodes {
		t.Summary = append(t.Summary, summarize(n))
	}
	for _, w := range warnings {
		t.Messages = append(t.Messages, w.Message)
	}
	return t, nil
}

func summarize(n fragment.Node) Node {
	switch n := n.(type) {
	case *fragment.Fragment:
		return Node{Kind: "fragment", Measurements: n.NumMeasurements(), Resets: len(n.Resets())}
	case *fragment.Loop:
		out := Node{Kind: "loop", Measurements: n.NumMeasurements(), Repetitions: n.Repetitions()}
		for _, c := range n.Children() {
			out.Children = append(out.Children, summarize(c))
		}
		return out
	}
	return Node{}
}

func (s *Service) warn(ctx context.Context, warnings []fragment.Warning) {
	for _, w := range warnings {
		s.metrics.WarningsTotal.Inc()
		fields := []zap.Field{}
		if w.Leftover != nil {
			fields = append(fields, zap.Int("leftover_operations", w.Leftover.Len()))
		}
		s.logger.Warn(ctx, w.Message, fields...)
	}
}

// Annotate discovers detectors in c.
func (s *Service) Annotate(ctx context.Context, c *circuit.Circuit) (_ *annotate.Result, err error) {
	ctx, span, done := s.start(ctx, "annotate")
	defer func() { done(err) }()

	res, err := annotate.Run(c, s.opts...)
	if err != nil {
		return nil, err
	}
	s.warn(ctx, res.Warnings)
	s.metrics.FragmentCount.Observe(float64(res.Fragments))
	s.metrics.DetectorsTotal.Add(float64(len(res.Detectors)))
	span.SetAttributes(
		attribute.Int("circuit.fragments", res.Fragments),
		attribute.Int("detectors", len(res.Detectors)),
	)
	s.logger.Info(ctx, "annotation complete",
		zap.Int("fragments", res.Fragments),
		zap.Int("detectors", len(res.Detectors)),
	)
	return res, nil
}

// Source is one named circuit input for AnnotateAll.
type Source struct {
	Name   string
	Reader io.Reader
}

// Output is the result of annotating one Source.
type Output struct {
	Name   string
	Result *annotate.Result
}

// AnnotateAll parses and annotates sources concurrently, at most limit at a
// time, and returns the outputs in input order. The first error cancels the
// remaining work.
func (s *Service) AnnotateAll(ctx context.Context, sources []Source, limit int) ([]Output, error) {
	out := make([]Output, len(sources))
	g, gCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, src := range sources {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			sctx := logging.WithSource(gCtx, src.Name)
			c, err := s.Parse(sctx, src.Reader)
			if err != nil {
				return fmt.Errorf("%s: %w", src.Name, err)
			}
			res, err := s.Annotate(sctx, c)
			if err != nil {
				return fmt.Errorf("%s: %w", src.Name, err)
			}
			out[i] = Output{Name: src.Name, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CoverResult is the answer to a cover problem.
type CoverResult struct {
	Mode    problem.Mode         `json:"mode"`
	Found   bool                 `json:"found"`
	Indices []int                `json:"indices"`
	Product pauli.Operator       `json:"product"`
	Chosen  []problem.Stabilizer `json:"chosen,omitempty"`
}

// Cover solves a cover problem.
func (s *Service) Cover(ctx context.Context, p *problem.Problem) (_ *CoverResult, err error) {
	ctx, span, done := s.start(ctx, "cover")
	defer func() { done(err) }()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	mode := p.EffectiveMode()
	opts := p.Options(s.opts...)
	res := &CoverResult{Mode: mode, Indices: []int{}}

	switch mode {
	case problem.ModeStabilizer:
		res, err = s.coverStabilizer(p, opts)
		if err != nil {
			return nil, err
		}
	default:
		find := cover.FindExactCoverSAT
		if mode == problem.ModeCommuting {
			find = cover.FindCommutingCoverOnTargetQubitsSAT
		}
		idx, found, err := find(p.Target, p.Sources, opts...)
		if err != nil {
			return nil, err
		}
		res.Found = found
		if found {
			res.Indices = idx
			chosen := make([]pauli.Operator, len(idx))
			for i, j := range idx {
				chosen[i] = p.Sources[j]
			}
			res.Product = pauli.Product(chosen...)
		}
	}

	s.metrics.CoversTotal.WithLabelValues(string(mode), strconv.FormatBool(res.Found)).Inc()
	span.SetAttributes(
		attribute.String("cover.mode", string(mode)),
		attribute.Bool("cover.found", res.Found),
		attribute.Int("cover.size", len(res.Indices)),
	)
	s.logger.Info(ctx, "cover search complete",
		zap.String("mode", string(mode)),
		zap.Bool("found", res.Found),
		zap.Ints("indices", res.Indices),
	)
	return res, nil
}

func (s *Service) coverStabilizer(p *problem.Problem, opts []cover.Option) (*CoverResult, error) {
	target, err := p.Stabilizer.Build()
	if err != nil {
		return nil, err
	}
	candidates := make([]boundary.Stabilizer, len(p.Candidates))
	for i, c := range p.Candidates {
		if candidates[i], err = c.Build(); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
	}

	chosen, found, err := cover.FindCover(target, candidates, p.Coordinates(), opts...)
	if err != nil {
		return nil, err
	}
	res := &CoverResult{Mode: problem.ModeStabilizer, Found: found, Indices: []int{}}
	if !found {
		return res, nil
	}

	after := make([]pauli.Operator, 0, len(chosen))
	used := make(map[int]bool, len(chosen))
	for _, c := range chosen {
		a, err := c.AfterCollapse()
		if err != nil {
			return nil, err
		}
		after = append(after, a)
		res.Chosen = append(res.Chosen, problem.FromStabilizer(c))
		for i, cand := range candidates {
			if !used[i] && cand.Equal(c) {
				used[i] = true
				res.Indices = append(res.Indices, i)
				break
			}
		}
	}
	res.Product = pauli.Product(after...)
	return res, nil
}
