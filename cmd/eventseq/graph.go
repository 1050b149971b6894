package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/netra-systems/zen-sub295/internal/config"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the declared events and their dependencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, _ := cmd.Flags().GetBool("yaml")
		return runGraph(profile, asYAML, cmd.OutOrStdout())
	},
}

func init() {
	graphCmd.Flags().Bool("yaml", false, "Print the effective profile as YAML")
	rootCmd.AddCommand(graphCmd)
}

func runGraph(p *config.Profile, asYAML bool, out io.Writer) error {
	if p == nil {
		p = config.Default()
	}
	if asYAML {
		data, err := p.YAML()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	g, err := p.Graph()
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(out, "%s %s\n\n", cyan("Profile"), p.Version)

	fmt.Fprintln(out, cyan("Declared events:"))
	for _, t := range g.Declared() {
		line := fmt.Sprintf("  %s", t)
		if deps := g.Dependencies(t); len(deps) > 0 {
			line += " <- " + joinTypes(deps)
		}
		if g.Repeatable(t) {
			line += " (repeatable)"
		}
		fmt.Fprintln(out, line)
	}

	fmt.Fprintf(out, "\n%s\n  %s\n", cyan("Topological order:"), joinTypes(g.TopologicalOrder()))
	return nil
}
