package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var validateJSON bool

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the report as JSON")
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check that a circuit can be split into fragments",
	Long: `Check that a circuit can be split into fragments and loops.

A circuit is rejected when it uses combined measure-reset gates, mixes
resets and measurements in one moment, or has instructions dangling before
a REPEAT block. A trailing block of resets is reported as a warning.

Examples:
  detectd validate memory.stim
  cat memory.stim | detectd validate --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	name, in, err := openInput(cmd, args)
	if err != nil {
		return err
	}
	defer in.Close()

	c, err := a.svc.Parse(cmd.Context(), in)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	report, err := a.svc.Validate(cmd.Context(), c)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	out := cmd.OutOrStdout()
	if validateJSON {
		return printJSON(out, report)
	}
	fmt.Fprintf(out, "%s: ok (%d operations, %d measurements, %d fragments, %d loops)\n",
		name, report.Operations, report.Measurements, report.Fragments, report.Loops)
	for _, msg := range report.Messages {
		fmt.Fprintf(out, "warning: %s\n", msg)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
