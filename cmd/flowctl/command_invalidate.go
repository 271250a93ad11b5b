package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/flowctl/internal/state"
)

var invalidateItems []string

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Remove jobs and downstream instances produced from the given item keys",
	Long:  "invalidate walks forward from the given item keys through every module that consumed them (directly or transitively), removes the affected job and item instances from workspace state, and archives their output folders under previous_run_NNN.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doInvalidate()
	},
}

func init() {
	invalidateCmd.Flags().StringSliceVarP(&invalidateItems, "item", "i", nil, "Item key to invalidate (repeatable)")
}

func doInvalidate() error {
	if len(invalidateItems) == 0 {
		return fmt.Errorf("at least one --item is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	st, err := state.ResumeIfPossible(registry, cfg.Workspace, nil)
	if err != nil {
		return fmt.Errorf("load workflow state: %w", err)
	}

	if err := st.Invalidate(invalidateItems); err != nil {
		return fmt.Errorf("invalidate %v: %w", invalidateItems, err)
	}

	return st.Save()
}
