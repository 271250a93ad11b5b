package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/flowctl/internal/render"
	"github.com/sourceplane/flowctl/internal/solver"
)

var planTargets []string
var planGiven []string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Solve a module order for a set of targets, without running anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan()
	},
}

func init() {
	planCmd.Flags().StringSliceVarP(&planTargets, "target", "t", nil, "Target item key to solve for (repeatable)")
	planCmd.Flags().StringSliceVarP(&planGiven, "given", "g", nil, "Item key already available without a producing module (repeatable)")
}

func runPlan() error {
	if len(planTargets) == 0 {
		return fmt.Errorf("at least one --target is required")
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	targets := toSet(planTargets)
	given := toSet(planGiven)

	transforms := solver.FromModules(registry.Modules())
	plan, err := solver.Solve(transforms, given, targets)
	if err != nil {
		return fmt.Errorf("solve plan: %w", err)
	}

	fmt.Print(render.ViewDAG(plan, registry))
	return nil
}

func toSet(vs []string) map[string]bool {
	out := make(map[string]bool, len(vs))
	for _, v := range vs {
		out[v] = true
	}
	return out
}
