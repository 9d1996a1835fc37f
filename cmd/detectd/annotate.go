package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/fyrsmithlabs/detectd/internal/detect"
	httpapi "github.com/fyrsmithlabs/detectd/internal/http"
	"github.com/fyrsmithlabs/detectd/internal/watch"
	"github.com/fyrsmithlabs/detectd/pkg/annotate"
	"github.com/spf13/cobra"
)

var (
	annotateOutput    string
	annotateWrite     bool
	annotateJobs      int
	annotateJSON      bool
)

func init() {
	rootCmd.AddCommand(annotateCmd)
	annotateCmd.Flags().StringVarP(&annotateOutput, "output", "o", "", "write the annotated circuit to this file (single input only)")
	annotateCmd.Flags().BoolVarP(&annotateWrite, "write", "w", false, "write each annotation next to its input, using watch.output_suffix")
	annotateCmd.Flags().IntVarP(&annotateJobs, "jobs", "j", runtime.NumCPU(), "number of circuits annotated concurrently")
	annotateCmd.Flags().BoolVar(&annotateJSON, "json", false, "print the circuit and its detectors as JSON")
}

var annotateCmd = &cobra.Command{
	Use:   "annotate [file...]",
	Short: "Insert DETECTOR instructions into circuits",
	Long: `Find the detectors of circuits and print them with DETECTOR instructions
inserted after the measurements of each fragment. REPEAT blocks are kept,
with SHIFT_COORDS advancing the time coordinate of each iteration; the
first iteration is written out on its own when its detectors differ.

With no file, or "-", the circuit is read from stdin. Several files require
--write.

Examples:
  detectd annotate memory.stim > annotated.stim
  detectd annotate -o annotated.stim memory.stim
  detectd annotate --write circuits/*.stim`,
	RunE: runAnnotate,
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	if len(args) > 1 && !annotateWrite {
		return errors.New("annotating several files requires --write")
	}
	if annotateOutput != "" && (annotateWrite || len(args) > 1) {
		return errors.New("--output cannot be combined with --write or several inputs")
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	sources := make([]detect.Source, 0, max(len(args), 1))
	if len(args) == 0 {
		args = []string{"-"}
	}
	for _, arg := range args {
		name, in, err := openInput(cmd, []string{arg})
		if err != nil {
			return err
		}
		defer in.Close()
		sources = append(sources, detect.Source{Name: name, Reader: in})
	}

	outputs, err := a.svc.AnnotateAll(cmd.Context(), sources, annotateJobs)
	if err != nil {
		return err
	}

	if annotateWrite {
		for _, o := range outputs {
			if o.Name == "stdin" {
				return errors.New("--write needs file inputs")
			}
			path := strings.TrimSuffix(o.Name, watch.CircuitExt) + a.cfg.Watch.OutputSuffix
			if err := os.WriteFile(path, []byte(o.Result.Circuit.String()+"\n"), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			cmd.Printf("%s: %d detectors -> %s\n", o.Name, len(o.Result.Detectors), path)
		}
		return nil
	}

	res := outputs[0].Result
	if annotateOutput == "" {
		return writeAnnotation(cmd.OutOrStdout(), res)
	}
	f, err := os.Create(annotateOutput)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", annotateOutput, err)
	}
	if err := writeAnnotation(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeAnnotation(w io.Writer, res *annotate.Result) error {
	if annotateJSON {
		return printJSON(w, httpapi.NewAnnotateResponse(res))
	}
	_, err := fmt.Fprintln(w, res.Circuit.String())
	return err
}
