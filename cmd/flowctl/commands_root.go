package main

import "github.com/spf13/cobra"

var (
	moduleDir string
	workspace string
	refFolder string
	jsonLogs  bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "flowctl",
	Short: "Data-driven workflow orchestrator",
	Long:  "flowctl plans and runs data-driven workflows: declare modules over typed items, and flowctl solves, materializes, and executes the jobs needed to reach a set of targets.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&moduleDir, "modules", "m", "modules", "Directory of module.yaml declarations")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (overrides flowctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&refFolder, "ref", "", "Reference folder for shared read-only module assets (overrides flowctl.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit line-delimited JSON logs instead of console output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(invalidateCmd)
	rootCmd.AddCommand(modulesCmd)
}
