// Package supervisor drives a run: submits pending jobs to an Executor
// concurrently, collects results, updates and persists the planner state,
// and handles graceful termination on SIGINT/SIGTERM.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog"

	"github.com/sourceplane/flowctl/internal/executor"
	"github.com/sourceplane/flowctl/internal/instance"
	"github.com/sourceplane/flowctl/internal/item"
	"github.com/sourceplane/flowctl/internal/planner"
	"github.com/sourceplane/flowctl/internal/state"
)

// Supervisor owns one run's execution loop.
type Supervisor struct {
	Executor  executor.Executor
	Params    executor.Params
	Workspace string
	Logger    zerolog.Logger
}

// New builds a Supervisor that logs through logger as given.
func New(exec executor.Executor, params executor.Params, workspace string, logger zerolog.Logger) *Supervisor {
	return &Supervisor{Executor: exec, Params: params, Workspace: workspace, Logger: logger}
}

type outcome struct {
	jobID   string
	module  string
	result  executor.JobResult
	err     error
}

// Run executes the planner/submit/collect loop until no pending jobs
// remain or a termination signal arrives. targets names the item keys
// whose produced values should be symlinked into the workspace's outputs/
// directory.
func (sup *Supervisor) Run(ctx context.Context, st *state.WorkflowState, modules []*item.Module, ids *instance.IDAllocator, targets map[string]bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	planner.Update(modules, st, ids)
	if err := st.Save(); err != nil {
		return fmt.Errorf("save initial state: %w", err)
	}

	if len(st.PendingJobs()) == 0 {
		sup.Logger.Info().Msg("□ nothing to do")
		return nil
	}

	steps := make([]string, len(modules))
	for i, m := range modules {
		steps[i] = m.Name
	}
	if err := sup.Executor.PrepareRun(steps, filepath.Join(sup.Workspace, "inputs"), sup.Params); err != nil {
		return fmt.Errorf("prepare run: %w", err)
	}

	for {
		if ctx.Err() != nil {
			sup.Logger.Info().Msg("□ termination requested, not submitting further jobs")
			break
		}
		pending := st.PendingJobs()
		if len(pending) == 0 {
			break
		}

		results := sup.submit(ctx, pending, targets)
		for _, o := range results {
			sup.applyOutcome(st, o, targets)
		}

		planner.Update(modules, st, ids)
		if err := st.Save(); err != nil {
			return fmt.Errorf("save state: %w", err)
		}

		if ctx.Err() != nil {
			break
		}
	}

	sup.Logger.Info().Msg("✓ run loop exited")
	return nil
}

// submit runs every pending job concurrently via an errgroup, returning
// all outcomes once the batch drains. A job's own failure never cancels
// its siblings: each goroutine absorbs its error into the outcome instead
// of returning it.
func (sup *Supervisor) submit(ctx context.Context, pending []*instance.JobInstance, targets map[string]bool) []outcome {
	out := make([]outcome, len(pending))
	var g errgroup.Group
	var mu sync.Mutex
	for i, ji := range pending {
		i, ji := i, ji
		g.Go(func() error {
			params := sup.Params
			if ji.Module.Threads > 0 {
				params.Threads = ji.Module.Threads
			}
			if ji.Module.MemoryGB > 0 {
				params.MemoryGB = ji.Module.MemoryGB
			}
			res, err := sup.Executor.Run(ji, sup.Workspace, params, targets)
			mu.Lock()
			out[i] = outcome{jobID: ji.ID(), module: ji.Module.Name, result: res, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (sup *Supervisor) applyOutcome(st *state.WorkflowState, o outcome, targets map[string]bool) {
	log := sup.Logger.With().Str("job_id", o.jobID).Str("module", o.module).Logger()

	if o.err != nil || o.result.ExitCode != 0 {
		if err := st.RegisterJobFailed(o.jobID); err != nil {
			log.Error().Err(err).Msg("✗ failed to record job failure")
		}
		log.Error().Err(o.err).Int("exit_code", o.result.ExitCode).Str("message", o.result.ErrorMessage).Msg("✗ job failed")
		return
	}

	if err := st.RegisterJobComplete(o.jobID, o.result.Manifest); err != nil {
		log.Error().Err(err).Msg("✗ failed to record job completion")
		return
	}
	if err := sup.linkTargetOutputs(o, targets); err != nil {
		log.Error().Err(err).Msg("✗ failed to link target outputs")
	}
	log.Info().Msg("✓ job complete")
}

// linkTargetOutputs symlinks any manifest value for a targeted item key
// that is an existing filesystem path into outputs/, and appends any
// plain-string (non-path) manifest value to a companion .txt file instead,
// matching the original engine's dual output-recording behavior.
func (sup *Supervisor) linkTargetOutputs(o outcome, targets map[string]bool) error {
	if len(targets) == 0 {
		return nil
	}
	outDir := filepath.Join(sup.Workspace, "outputs")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create outputs dir: %w", err)
	}
	for key, mv := range o.result.Manifest {
		if !targets[key] {
			continue
		}
		var values []string
		if list, ok := mv.List(); ok {
			values = list
		} else if single, ok := mv.Single(); ok {
			values = []string{single}
		}
		for _, v := range values {
			if err := linkOrAppend(outDir, o.module, o.jobID, key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func linkOrAppend(outDir, module, jobID, key, value string) error {
	if info, err := os.Stat(value); err == nil && !info.IsDir() {
		name := fmt.Sprintf("%s--%s.%s", module, jobID, filepath.Base(value))
		dest := filepath.Join(outDir, name)
		_ = os.Remove(dest)
		return os.Symlink(value, dest)
	}
	name := fmt.Sprintf("%s--%s.%s.txt", module, jobID, key)
	f, err := os.OpenFile(filepath.Join(outDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open output text file: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(value + "\n")
	return err
}
