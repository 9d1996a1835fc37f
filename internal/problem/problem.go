// Package problem reads cover-search problems from JSON, YAML or TOML.
//
// A problem either asks for a SAT cover of a Pauli target by Pauli sources
// (modes "exact" and "commuting"), or for a brute-force cover of a boundary
// stabilizer by nearby candidate stabilizers (mode "stabilizer").
//
//	mode: exact
//	target: X0*X1
//	sources: [X0, X1, Z2]
//	search:
//	  timeout: 250ms
package problem

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fyrsmithlabs/detectd/internal/config"
	"github.com/fyrsmithlabs/detectd/pkg/boundary"
	"github.com/fyrsmithlabs/detectd/pkg/cover"
	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/measurement"
	"github.com/fyrsmithlabs/detectd/pkg/pauli"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned for formats other than json, yaml and toml.
var ErrUnknownFormat = errors.New("unknown problem format")

// Mode selects the cover search.
type Mode string

const (
	ModeExact      Mode = "exact"
	ModeCommuting  Mode = "commuting"
	ModeStabilizer Mode = "stabilizer"
)

// Format is a problem file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
}

// Problem is one cover search.
type Problem struct {
	Mode    Mode             `json:"mode,omitempty" yaml:"mode,omitempty" toml:"mode,omitempty"`
	Target  pauli.Operator   `json:"target" yaml:"target" toml:"target"`
	Sources []pauli.Operator `json:"sources,omitempty" yaml:"sources,omitempty" toml:"sources,omitempty"`

	Stabilizer *Stabilizer  `json:"stabilizer,omitempty" yaml:"stabilizer,omitempty" toml:"stabilizer,omitempty"`
	Candidates []Stabilizer `json:"candidates,omitempty" yaml:"candidates,omitempty" toml:"candidates,omitempty"`
	Qubits     []Qubit      `json:"qubits,omitempty" yaml:"qubits,omitempty" toml:"qubits,omitempty"`

	Search Search `json:"search,omitzero" yaml:"search,omitempty" toml:"search,omitempty"`
}

// Stabilizer describes a boundary stabilizer.
type Stabilizer struct {
	Before       pauli.Operator   `json:"before" yaml:"before" toml:"before"`
	Collapsing   []pauli.Operator `json:"collapsing" yaml:"collapsing" toml:"collapsing"`
	Measurements []Measurement    `json:"measurements" yaml:"measurements" toml:"measurements"`
	Anchors      []int            `json:"anchors" yaml:"anchors" toml:"anchors"`
	Direction    string           `json:"direction,omitempty" yaml:"direction,omitempty" toml:"direction,omitempty"`
}

// Measurement is a measurement reference.
type Measurement struct {
	Qubit  int `json:"qubit" yaml:"qubit" toml:"qubit"`
	Offset int `json:"offset" yaml:"offset" toml:"offset"`
}

// Qubit assigns coordinates to a qubit index.
type Qubit struct {
	Index       int       `json:"index" yaml:"index" toml:"index"`
	Coordinates []float64 `json:"coordinates" yaml:"coordinates" toml:"coordinates"`
}

// Search overrides the configured search parameters. Zero values keep the
// configured ones.
type Search struct {
	MaxDistance float64         `json:"max_distance,omitempty" yaml:"max_distance,omitempty" toml:"max_distance,omitempty"`
	Timeout     config.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	LowerBound  int             `json:"lower_bound,omitempty" yaml:"lower_bound,omitempty" toml:"lower_bound,omitempty"`
}

// Decode reads a problem and validates it.
func Decode(r io.Reader, format Format) (*Problem, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading problem: %w", err)
	}

	var p Problem
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&p)
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	case FormatTOML:
		var md toml.MetaData
		md, err = toml.Decode(string(data), &p)
		if err == nil {
			if extra := md.Undecoded(); len(extra) > 0 {
				err = fmt.Errorf("unknown keys: %v", extra)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s problem: %w", format, err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode writes p in the given format.
func Encode(w io.Writer, p *Problem, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(p)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// EffectiveMode returns the mode, defaulting to stabilizer when a
// stabilizer is given and to exact otherwise.
func (p *Problem) EffectiveMode() Mode {
	if p.Mode != "" {
		return p.Mode
	}
	if p.Stabilizer != nil {
		return ModeStabilizer
	}
	return ModeExact
}

// Validate checks that the fields needed by the mode are present.
func (p *Problem) Validate() error {
	switch p.EffectiveMode() {
	case ModeExact, ModeCommuting:
		if p.Stabilizer != nil || len(p.Candidates) > 0 {
			return detecterr.New(detecterr.InvalidConstruction, "mode %q takes target and sources, not stabilizers", p.EffectiveMode())
		}
	case ModeStabilizer:
		if p.Stabilizer == nil {
			return detecterr.New(detecterr.InvalidConstruction, "mode %q requires a stabilizer", ModeStabilizer)
		}
		if len(p.Sources) > 0 {
			return detecterr.New(detecterr.InvalidConstruction, "mode %q takes candidates, not sources", ModeStabilizer)
		}
	default:
		return detecterr.New(detecterr.InvalidConstruction, "unknown mode %q", p.Mode)
	}
	if p.Search.MaxDistance < 0 || p.Search.LowerBound < 0 {
		return detecterr.New(detecterr.InvalidConstruction, "search overrides cannot be negative")
	}
	return nil
}

// Options appends the problem's search overrides to base.
func (p *Problem) Options(base ...cover.Option) []cover.Option {
	opts := append([]cover.Option(nil), base...)
	if p.Search.MaxDistance > 0 {
		opts = append(opts, cover.WithMaxDistance(p.Search.MaxDistance))
	}
	if p.Search.Timeout > 0 {
		opts = append(opts, cover.WithTimeout(p.Search.Timeout.Duration()))
	}
	if p.Search.LowerBound > 0 {
		opts = append(opts, cover.WithLowerBound(p.Search.LowerBound))
	}
	return opts
}

// Coordinates returns the qubit coordinate map.
func (p *Problem) Coordinates() map[int][]float64 {
	out := make(map[int][]float64, len(p.Qubits))
	for _, q := range p.Qubits {
		out[q.Index] = q.Coordinates
	}
	return out
}

// Build converts the description into a boundary stabilizer.
func (s Stabilizer) Build() (boundary.Stabilizer, error) {
	var dir boundary.Direction
	switch strings.ToLower(s.Direction) {
	case "", "forward":
		dir = boundary.Forward
	case "backward":
		dir = boundary.Backward
	default:
		return boundary.Stabilizer{}, detecterr.New(detecterr.InvalidConstruction, "unknown direction %q", s.Direction)
	}

	refs := make([]measurement.Reference, 0, len(s.Measurements))
	for _, m := range s.Measurements {
		ref, err := measurement.New(m.Qubit, m.Offset)
		if err != nil {
			return boundary.Stabilizer{}, err
		}
		refs = append(refs, ref)
	}
	return boundary.New(s.Before, s.Collapsing, refs, s.Anchors, dir), nil
}

// FromStabilizer describes b.
func FromStabilizer(b boundary.Stabilizer) Stabilizer {
	s := Stabilizer{
		Before:     b.BeforeCollapse(),
		Collapsing: b.CollapsingOperations(),
		Anchors:    b.AnchorQubits(),
		Direction:  b.Direction().String(),
	}
	for _, m := range b.Measurements() {
		s.Measurements = append(s.Measurements, Measurement{Qubit: m.Qubit(), Offset: m.Offset()})
	}
	return s
}
