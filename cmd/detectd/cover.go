package main

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/detectd/internal/problem"
	"github.com/spf13/cobra"
)

var (
	coverFormat string
	coverStrict bool
)

// errNoCover is returned with --strict when the search finds nothing.
var errNoCover = errors.New("no cover found")

func init() {
	rootCmd.AddCommand(coverCmd)
	coverCmd.Flags().StringVar(&coverFormat, "format", "", "problem format: json, yaml or toml (default from the file extension, json for stdin)")
	coverCmd.Flags().BoolVar(&coverStrict, "strict", false, "exit with an error when no cover exists")
}

var coverCmd = &cobra.Command{
	Use:   "cover [problem-file]",
	Short: "Solve a cover problem",
	Long: `Find a subset of source Pauli strings or boundary stabilizers whose
product covers a target.

Modes:
  exact       product of the sources equals the target (SAT)
  commuting   product commutes with the target on its qubits (SAT)
  stabilizer  product of the candidates' after-collapse values equals the
              target's (brute force, bounded by distance)

Examples:
  detectd cover problem.yaml
  detectd cover --format toml < problem.toml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCover,
}

func runCover(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	format := problem.Format(coverFormat)
	if format == "" {
		format = problem.FormatJSON
		if len(args) == 1 && args[0] != "-" {
			if format, err = problem.FormatFromPath(args[0]); err != nil {
				return err
			}
		}
	}

	name, in, err := openInput(cmd, args)
	if err != nil {
		return err
	}
	defer in.Close()

	p, err := problem.Decode(in, format)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	res, err := a.svc.Cover(cmd.Context(), p)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if coverStrict && !res.Found {
		return errNoCover
	}
	return nil
}
