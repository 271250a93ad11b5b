package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/flowctl/internal/render"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List every module loaded from --modules, with its inputs and outputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		fmt.Print(render.ListModules(registry))
		return nil
	},
}
