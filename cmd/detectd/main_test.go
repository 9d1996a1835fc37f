package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/detectd/internal/detect"
	httpapi "github.com/fyrsmithlabs/detectd/internal/http"
	"github.com/fyrsmithlabs/detectd/internal/problem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const repetitionMemory = `QUBIT_COORDS(0) 0
QUBIT_COORDS(1) 1
QUBIT_COORDS(2) 2
R 0 1 2
TICK
CX 0 1
TICK
CX 2 1
TICK
M 1
REPEAT 2 {
    TICK
    R 1
    TICK
    CX 0 1
    TICK
    CX 2 1
    TICK
    M 1
}
TICK
M 0 2
`

// execute runs rootCmd with fresh flag values and no config file.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	configPath, logLevel = "", "error"
	validateJSON, fragmentsJSON = false, false
	coverFormat, coverStrict = "", false
	annotateOutput, annotateWrite, annotateJobs, annotateJSON = "", false, 2, false
	serveHost, servePort = "", 0
	watchTUI = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCmd_Commands(t *testing.T) {
	want := []string{"annotate", "cover", "fragments", "mcp", "serve", "validate", "version", "watch"}
	var got []string
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			continue
		}
		got = append(got, cmd.Name())
		assert.NotEmpty(t, cmd.Short, cmd.Name())
	}
	assert.ElementsMatch(t, want, got)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
	assert.Contains(t, out, "Commit:")
}

func TestValidateCmd(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "memory.stim", repetitionMemory)
		out, err := execute(t, "", "validate", path)
		require.NoError(t, err)
		assert.Contains(t, out, "5 measurements, 4 fragments, 1 loops")
	})

	t.Run("stdin json", func(t *testing.T) {
		out, err := execute(t, repetitionMemory, "validate", "--json")
		require.NoError(t, err)
		var report detect.Report
		require.NoError(t, json.Unmarshal([]byte(out), &report), out)
		assert.Equal(t, 4, report.Fragments)
		assert.Equal(t, 1, report.Loops)
	})

	t.Run("trailing resets warn", func(t *testing.T) {
		out, err := execute(t, "R 0\nTICK\nM 0\nTICK\nR 0\n", "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "warning: ")
	})

	t.Run("mixed moment", func(t *testing.T) {
		_, err := execute(t, "R 0\nM 0\n", "validate")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stdin")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "", "validate", filepath.Join(t.TempDir(), "nope.stim"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestFragmentsCmd(t *testing.T) {
	out, err := execute(t, repetitionMemory, "fragments")
	require.NoError(t, err)
	assert.Contains(t, out, "stdin")
	assert.Contains(t, out, "fragment: 3 resets, 1 measurements")
	assert.Contains(t, out, "REPEAT 2: 1 measurements")
	assert.Contains(t, out, "fragment: 1 resets, 1 measurements")
	assert.Contains(t, out, "fragment: 0 resets, 2 measurements")
}

func TestRenderTree(t *testing.T) {
	nodes := []detect.Node{
		{Kind: "fragment", Resets: 2, Measurements: 1},
		{Kind: "loop", Repetitions: 3, Measurements: 2, Children: []detect.Node{
			{Kind: "fragment", Resets: 1, Measurements: 1},
			{Kind: "loop", Repetitions: 2, Measurements: 1, Children: []detect.Node{
				{Kind: "fragment", Measurements: 1},
			}},
		}},
	}
	out := renderTree("circuit", nodes)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 6, out)
	assert.Contains(t, lines[0], "circuit")
	assert.Contains(t, lines[1], "fragment: 2 resets, 1 measurements")
	assert.Contains(t, lines[2], "REPEAT 3: 2 measurements")
	assert.Contains(t, lines[5], "fragment: 0 resets, 1 measurements")

	// Nested nodes are indented further than their parent.
	indent := func(s string) int { return strings.Index(s, "fragment") }
	assert.Greater(t, indent(lines[5]), indent(lines[3]))
	assert.Greater(t, indent(lines[3]), indent(lines[1]))
}

func TestCoverCmd(t *testing.T) {
	t.Run("yaml file", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "problem.yaml", "mode: commuting\ntarget: Z0\nsources: [X0, Z0*X1]\n")
		out, err := execute(t, "", "cover", path)
		require.NoError(t, err)
		var res detect.CoverResult
		require.NoError(t, json.Unmarshal([]byte(out), &res), out)
		assert.True(t, res.Found)
		assert.Empty(t, res.Indices)
	})

	t.Run("stdin toml", func(t *testing.T) {
		out, err := execute(t, "target = \"X0*X1\"\nsources = [\"Z2\", \"X0\", \"X1\"]\n", "cover", "--format", "toml")
		require.NoError(t, err)
		var res detect.CoverResult
		require.NoError(t, json.Unmarshal([]byte(out), &res), out)
		assert.True(t, res.Found)
		assert.ElementsMatch(t, []int{1, 2}, res.Indices)
	})

	t.Run("strict not found", func(t *testing.T) {
		_, err := execute(t, `{"target": "Y0", "sources": ["X0"]}`, "cover", "--strict")
		assert.ErrorIs(t, err, errNoCover)
	})

	t.Run("unknown extension", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "problem.txt", "target: Z0\n")
		_, err := execute(t, "", "cover", path)
		assert.ErrorIs(t, err, problem.ErrUnknownFormat)
	})
}

func TestAnnotateCmd(t *testing.T) {
	t.Run("stdout", func(t *testing.T) {
		out, err := execute(t, repetitionMemory, "annotate")
		require.NoError(t, err)
		assert.Equal(t, 3, strings.Count(out, "DETECTOR"), out)
		assert.Contains(t, out, "REPEAT 2 {")
		assert.Contains(t, out, "SHIFT_COORDS(0, 1)")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, repetitionMemory, "annotate", "--json")
		require.NoError(t, err)
		var resp httpapi.AnnotateResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
		assert.Equal(t, 4, resp.Fragments)
		require.Len(t, resp.Detectors, 3)
		assert.Equal(t, 2, resp.Detectors[1].Repetitions)
		for _, d := range resp.Detectors {
			assert.NotEmpty(t, d.Records)
		}
	})

	t.Run("output file", func(t *testing.T) {
		dir := t.TempDir()
		in := writeFile(t, dir, "memory.stim", repetitionMemory)
		dst := filepath.Join(dir, "out.stim")
		out, err := execute(t, "", "annotate", "-o", dst, in)
		require.NoError(t, err)
		assert.Empty(t, out)
		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, 3, strings.Count(string(data), "DETECTOR"))
	})

	t.Run("write several", func(t *testing.T) {
		dir := t.TempDir()
		a := writeFile(t, dir, "a.stim", repetitionMemory)
		b := writeFile(t, dir, "b.stim", "R 0\nTICK\nM 0\n")
		out, err := execute(t, "", "annotate", "--write", a, b)
		require.NoError(t, err)
		assert.Contains(t, out, "a.stim: 3 detectors")

		for _, name := range []string{"a.detectors.stim", "b.detectors.stim"} {
			data, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err, name)
			assert.Contains(t, string(data), "DETECTOR", name)
		}
	})

	t.Run("several without write", func(t *testing.T) {
		_, err := execute(t, "", "annotate", "a.stim", "b.stim")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--write")
	})

	t.Run("output with write", func(t *testing.T) {
		_, err := execute(t, "", "annotate", "--write", "-o", "x.stim", "a.stim")
		require.Error(t, err)
	})
}

func TestServeAndWatchFlags(t *testing.T) {
	assert.NotNil(t, serveCmd.Flags().Lookup("port"))
	assert.NotNil(t, serveCmd.Flags().Lookup("host"))
	assert.NotNil(t, annotateCmd.Flags().Lookup("jobs"))
	assert.Error(t, watchCmd.Args(watchCmd, nil))
}
