package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/sourceplane/flowctl/internal/config"
	"github.com/sourceplane/flowctl/internal/item"
	"github.com/sourceplane/flowctl/internal/logging"
	"github.com/sourceplane/flowctl/internal/moduledef"
)

// loadConfig reads flowctl.yaml from the current directory and layers
// persistent CLI flags over it, flags winning.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return config.Config{}, err
	}
	return cfg.Merge(workspace, refFolder, 0, 0, 0), nil
}

func buildLogger() zerolog.Logger {
	return logging.New(os.Stderr, logLevel, jsonLogs)
}

func loadRegistry() (*item.Registry, error) {
	registry := item.NewRegistry()
	if err := moduledef.LoadDir(moduleDir, registry); err != nil {
		return nil, fmt.Errorf("load modules from %s: %w", moduleDir, err)
	}
	return registry, nil
}
