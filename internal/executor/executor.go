// Package executor defines the minimal contract the core consumes from an
// external module runner. The runner itself (shelling out, environment
// management, resource telemetry) is deliberately out of core scope; this
// package only names the shape the supervisor drives it through.
package executor

import "github.com/sourceplane/flowctl/internal/instance"

// Params carries resource hints through to the executor. The core does not
// interpret them; no scheduling decision depends on their values.
type Params struct {
	Threads           int
	MemoryGB          int
	FileSystemWaitSec int
}

// ManifestValue is a job's reported output for one item key: either a
// single opaque value or an ordered list, mirroring the module's declared
// shape for that output (grouped-producing modules may emit lists).
type ManifestValue struct {
	list   []string
	single string
	isList bool
}

// SingleValue wraps one produced value.
func SingleValue(v string) ManifestValue { return ManifestValue{single: v} }

// ListValue wraps an ordered list of produced values.
func ListValue(vs []string) ManifestValue { return ManifestValue{list: vs, isList: true} }

// IsList reports whether this value is a list.
func (m ManifestValue) IsList() bool { return m.isList }

// Single returns the wrapped scalar and true, or "", false if this is a list.
func (m ManifestValue) Single() (string, bool) {
	if m.isList {
		return "", false
	}
	return m.single, true
}

// List returns the wrapped list and true, or nil, false if this is a scalar.
func (m ManifestValue) List() ([]string, bool) {
	if !m.isList {
		return nil, false
	}
	return m.list, true
}

// JobResult is what Run reports back to the supervisor for one job.
type JobResult struct {
	ExitCode     int
	ErrorMessage string
	MadeBy       string // job ID
	Manifest     map[string]ManifestValue
	ResourceLog  string
	OutLog       string
	ErrLog       string
	Commands     []string
}

// Executor is the contract a module runner implements. PrepareRun is
// called once before any job submission (e.g. to stage a shared
// environment); Run executes a single job and must not block past the
// job's own completion or failure.
type Executor interface {
	PrepareRun(steps []string, inputsDir string, params Params) error
	Run(job *instance.JobInstance, workspace string, params Params, targets map[string]bool) (JobResult, error)
}
