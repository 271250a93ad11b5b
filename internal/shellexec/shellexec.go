// Package shellexec is a reference Executor: it shells a module's
// Procedure out via "sh -c", writes an env.json describing the job's
// inputs before running, and reads a result.json the procedure is expected
// to write back. This mirrors the original engine's CondaExecutor, adapted
// to the Executor contract: the actual module runner remains an external
// collaborator, this is just a usable default for running flowctl
// end-to-end.
package shellexec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sourceplane/flowctl/internal/executor"
	"github.com/sourceplane/flowctl/internal/instance"
)

// Executor runs a job's procedure as a shell command in its own output
// folder, workspace/<module>--<jobID>/.
type Executor struct {
	Stdout, Stderr *os.File
}

// New builds a shell Executor logging to the given streams; nil defaults
// to os.Stdout/os.Stderr.
func New(stdout, stderr *os.File) *Executor {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Executor{Stdout: stdout, Stderr: stderr}
}

// PrepareRun is a no-op for the shell executor: there is no shared
// environment to stage beyond each job's own folder.
func (e *Executor) PrepareRun(steps []string, inputsDir string, params executor.Params) error {
	return nil
}

type envFile struct {
	JobID   string              `json:"job_id"`
	Module  string              `json:"module"`
	Inputs  map[string][]string `json:"inputs"`
	Targets []string            `json:"targets"`
	Params  executor.Params     `json:"params"`
}

type resultFile struct {
	ExitCode     int                          `json:"exit_code"`
	ErrorMessage string                       `json:"error_message"`
	Manifest     map[string]resultManifestRaw `json:"manifest"`
	Commands     []string                     `json:"commands"`
}

type resultManifestRaw struct {
	Single string   `json:"single,omitempty"`
	List   []string `json:"list,omitempty"`
}

// Run writes env.json into the job's output folder, runs the module's
// procedure via "sh -c", then reads result.json back. A missing
// result.json is treated as exit code 1, per the original engine's
// fallback.
func (e *Executor) Run(job *instance.JobInstance, workspace string, params executor.Params, targets map[string]bool) (executor.JobResult, error) {
	folder := filepath.Join(workspace, fmt.Sprintf("%s--%s", job.Module.Name, job.ID()))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return executor.JobResult{}, fmt.Errorf("create job folder: %w", err)
	}

	env := envFile{JobID: job.ID(), Module: job.Module.Name, Inputs: map[string][]string{}, Params: params}
	for key := range targets {
		env.Targets = append(env.Targets, key)
	}
	for key, v := range job.Inputs {
		for _, ii := range v.Flatten() {
			env.Inputs[key] = append(env.Inputs[key], ii.Value)
		}
	}
	envBytes, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return executor.JobResult{}, fmt.Errorf("marshal env.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(folder, "env.json"), envBytes, 0o644); err != nil {
		return executor.JobResult{}, fmt.Errorf("write env.json: %w", err)
	}

	var outBuf, errBuf bytes.Buffer
	cmd := exec.Command("sh", "-c", job.Module.Procedure)
	cmd.Dir = folder
	cmd.Stdout = io.MultiWriter(&outBuf, e.Stdout)
	cmd.Stderr = io.MultiWriter(&errBuf, e.Stderr)
	runErr := cmd.Run()

	os.WriteFile(filepath.Join(folder, "out.log"), outBuf.Bytes(), 0o644)
	os.WriteFile(filepath.Join(folder, "err.log"), errBuf.Bytes(), 0o644)

	resultPath := filepath.Join(folder, "result.json")
	resultBytes, readErr := os.ReadFile(resultPath)
	if readErr != nil {
		msg := "missing result.json"
		if runErr != nil {
			msg = runErr.Error()
		}
		return executor.JobResult{
			ExitCode:     1,
			ErrorMessage: msg,
			MadeBy:       job.ID(),
			OutLog:       outBuf.String(),
			ErrLog:       errBuf.String(),
		}, nil
	}

	var rf resultFile
	if err := json.Unmarshal(resultBytes, &rf); err != nil {
		return executor.JobResult{}, fmt.Errorf("parse result.json: %w", err)
	}

	manifest := make(map[string]executor.ManifestValue, len(rf.Manifest))
	for key, v := range rf.Manifest {
		if v.List != nil {
			manifest[key] = executor.ListValue(v.List)
		} else {
			manifest[key] = executor.SingleValue(v.Single)
		}
	}

	return executor.JobResult{
		ExitCode:     rf.ExitCode,
		ErrorMessage: rf.ErrorMessage,
		MadeBy:       job.ID(),
		Manifest:     manifest,
		OutLog:       outBuf.String(),
		ErrLog:       errBuf.String(),
		Commands:     rf.Commands,
	}, nil
}
