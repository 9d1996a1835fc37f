package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/fyrsmithlabs/detectd/internal/detect"
	"github.com/spf13/cobra"
)

var fragmentsJSON bool

var (
	rootStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	loopStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	enumeratorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func init() {
	rootCmd.AddCommand(fragmentsCmd)
	fragmentsCmd.Flags().BoolVar(&fragmentsJSON, "json", false, "print the tree as JSON")
}

var fragmentsCmd = &cobra.Command{
	Use:   "fragments [file]",
	Short: "Show the fragment and loop tree of a circuit",
	Long: `Split a circuit into fragments and repeat loops and print the tree.

Examples:
  detectd fragments memory.stim
  detectd fragments --json memory.stim`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFragments,
}

func runFragments(cmd *cobra.Command, args []string) error {
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
	t, err := a.svc.Fragments(cmd.Context(), c)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	out := cmd.OutOrStdout()
	if fragmentsJSON {
		return printJSON(out, t)
	}
	fmt.Fprintln(out, renderTree(name, t.Summary))
	for _, msg := range t.Messages {
		fmt.Fprintf(out, "warning: %s\n", msg)
	}
	return nil
}

func renderTree(name string, nodes []detect.Node) string {
	t := tree.Root(rootStyle.Render(name)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(enumeratorStyle)
	for _, n := range nodes {
		t.Child(subtree(n))
	}
	return t.String()
}

func subtree(n detect.Node) any {
	if len(n.Children) == 0 {
		return n.Label()
	}
	t := tree.Root(loopStyle.Render(n.Label())).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(enumeratorStyle)
	for _, c := range n.Children {
		t.Child(subtree(c))
	}
	return t
}
