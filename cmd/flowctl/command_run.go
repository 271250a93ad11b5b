package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sourceplane/flowctl/internal/shellexec"
	"github.com/sourceplane/flowctl/internal/workflow"
)

var (
	runTargets     []string
	runGiven       []string
	runCatchErrors bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Solve and run the modules needed to produce --target",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRun()
	},
}

func init() {
	runCmd.Flags().StringSliceVarP(&runTargets, "target", "t", nil, "Target item key to produce (repeatable)")
	runCmd.Flags().StringSliceVarP(&runGiven, "given", "g", nil, "key=path given input value (repeatable)")
	runCmd.Flags().BoolVar(&runCatchErrors, "catch-errors", false, "Log and continue past non-fatal input-linking errors instead of aborting")
}

func doRun() error {
	if len(runTargets) == 0 {
		return fmt.Errorf("at least one --target is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := buildLogger()

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	given, err := parseGiven(runGiven)
	if err != nil {
		return err
	}

	wf := workflow.New(registry, cfg.RefFolder, logger)
	opts := workflow.RunOptions{
		Workspace:   cfg.Workspace,
		Targets:     toSet(runTargets),
		Given:       given,
		Executor:    shellexec.New(nil, nil),
		Params:      cfg.Params,
		CatchErrors: runCatchErrors,
	}

	if err := wf.Run(context.Background(), opts); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

// parseGiven turns a list of "key=path" strings into one InputGroup per
// entry, each rooted at its own value with no children.
func parseGiven(raw []string) ([]*workflow.InputGroup, error) {
	groups := make([]*workflow.InputGroup, 0, len(raw))
	for _, g := range raw {
		key, value, ok := strings.Cut(g, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --given %q, expected key=path", g)
		}
		groups = append(groups, workflow.NewInputGroup(key, value))
	}
	return groups, nil
}
