// Package config loads flowctl's optional workspace configuration file,
// flowctl.yaml, via viper. Values here are defaults only: CLI flags always
// win over anything found in config.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/sourceplane/flowctl/internal/executor"
)

// Config holds flowctl's workspace-level defaults.
type Config struct {
	Workspace string
	RefFolder string
	Params    executor.Params
}

// Default returns the built-in defaults used when no flowctl.yaml is found.
func Default() Config {
	return Config{
		Workspace: "workspace",
		RefFolder: "ref",
		Params: executor.Params{
			Threads:           1,
			MemoryGB:          4,
			FileSystemWaitSec: 5,
		},
	}
}

// Load reads flowctl.yaml from dir (if present) layered over the built-in
// defaults. A missing file is not an error; a malformed one is.
func Load(dir string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("flowctl")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("FLOWCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("workspace", cfg.Workspace)
	v.SetDefault("ref_folder", cfg.RefFolder)
	v.SetDefault("params.threads", cfg.Params.Threads)
	v.SetDefault("params.mem_gb", cfg.Params.MemoryGB)
	v.SetDefault("params.file_system_wait_sec", cfg.Params.FileSystemWaitSec)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read flowctl.yaml: %w", err)
		}
	}

	cfg.Workspace = v.GetString("workspace")
	cfg.RefFolder = v.GetString("ref_folder")
	cfg.Params.Threads = v.GetInt("params.threads")
	cfg.Params.MemoryGB = v.GetInt("params.mem_gb")
	cfg.Params.FileSystemWaitSec = v.GetInt("params.file_system_wait_sec")

	return cfg, nil
}

// Merge overrides a field on cfg with the corresponding flag value whenever
// that flag value is non-empty / positive, so that explicit CLI flags beat
// config file values; a zero flag value leaves the field unchanged.
func (c Config) Merge(workspace, refFolder string, threads, memGB, fsWaitSec int) Config {
	if workspace != "" {
		c.Workspace = workspace
	}
	if refFolder != "" {
		c.RefFolder = refFolder
	}
	if threads > 0 {
		c.Params.Threads = threads
	}
	if memGB > 0 {
		c.Params.MemoryGB = memGB
	}
	if fsWaitSec > 0 {
		c.Params.FileSystemWaitSec = fsWaitSec
	}
	return c
}
