package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/flowctl/internal/shellexec"
	"github.com/sourceplane/flowctl/internal/workflow"
)

var resumeTargets []string

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a workspace's saved state and continue any pending jobs",
	Long:  "resume loads workflow_state.json from the workspace and continues planning/running from there, without linking any new given inputs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doResume()
	},
}

func init() {
	resumeCmd.Flags().StringSliceVarP(&resumeTargets, "target", "t", nil, "Target item key to produce (repeatable)")
}

func doResume() error {
	if len(resumeTargets) == 0 {
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

	wf := workflow.New(registry, cfg.RefFolder, logger)
	opts := workflow.RunOptions{
		Workspace: cfg.Workspace,
		Targets:   toSet(resumeTargets),
		Executor:  shellexec.New(nil, nil),
		Params:    cfg.Params,
	}

	if err := wf.Run(context.Background(), opts); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	return nil
}
