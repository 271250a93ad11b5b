// Package workflow wires the solver, WorkflowState, and supervisor behind
// the public API a caller drives a run through: Workflow, InputGroup,
// Setup, and Run.
package workflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sourceplane/flowctl/internal/executor"
	"github.com/sourceplane/flowctl/internal/item"
	"github.com/sourceplane/flowctl/internal/provenance"
	"github.com/sourceplane/flowctl/internal/solver"
	"github.com/sourceplane/flowctl/internal/state"
	"github.com/sourceplane/flowctl/internal/supervisor"
)

// Workflow is the top-level entry point: a module registry plus the
// reference folder modules may use for shared, read-only assets.
type Workflow struct {
	Registry  *item.Registry
	RefFolder string
	Logger    zerolog.Logger
}

// New builds a Workflow over an already-populated registry.
func New(registry *item.Registry, refFolder string, logger zerolog.Logger) *Workflow {
	return &Workflow{Registry: registry, RefFolder: refFolder, Logger: logger}
}

// Installer performs a module's out-of-core install step. A nil Installer
// makes Setup a no-op.
type Installer interface {
	Setup(module *item.Module, installType string) error
}

// Setup delegates installation to every registered module via installer.
func (w *Workflow) Setup(installType string, installer Installer) error {
	if installer == nil {
		return nil
	}
	for _, m := range w.Registry.Modules() {
		if err := installer.Setup(m, installType); err != nil {
			return fmt.Errorf("setup module %s: %w", m.Name, err)
		}
	}
	return nil
}

// RunOptions configures one Run invocation.
type RunOptions struct {
	Workspace   string
	Targets     map[string]bool
	Given       []*InputGroup
	Executor    executor.Executor
	Params      executor.Params
	Regenerate  []string // item keys to invalidate before planning
	CatchErrors bool      // log and continue past input-linking errors instead of aborting
}

// Run resolves a plan for opts.Targets against the given item keys,
// loads-or-creates workspace state, optionally invalidates
// opts.Regenerate, links given inputs, and drives the supervisor loop to
// completion or graceful termination.
func (w *Workflow) Run(ctx context.Context, opts RunOptions) error {
	givenKeys := make(map[string]bool)
	var givenLinks []provenance.GivenLink
	for _, ig := range opts.Given {
		givenKeys[ig.RootKey] = true
		for childKey := range ig.Children {
			givenKeys[childKey] = true
			givenLinks = append(givenLinks, provenance.GivenLink{RootKey: ig.RootKey, ChildKey: childKey})
		}
	}

	transforms := solver.FromModules(w.Registry.Modules())
	plan, err := solver.Solve(transforms, givenKeys, opts.Targets)
	if err != nil {
		return fmt.Errorf("solve plan: %w", err)
	}

	st, err := state.ResumeIfPossible(w.Registry, opts.Workspace, givenLinks)
	if err != nil {
		return fmt.Errorf("load workflow state: %w", err)
	}

	if len(opts.Regenerate) > 0 {
		if err := st.Invalidate(opts.Regenerate); err != nil {
			return fmt.Errorf("invalidate %v: %w", opts.Regenerate, err)
		}
	}

	for _, ig := range opts.Given {
		if err := ig.LinkInputs(opts.Workspace, st); err != nil {
			if opts.CatchErrors {
				w.Logger.Error().Err(err).Str("root", ig.RootKey).Msg("✗ failed to link input group, continuing")
				continue
			}
			return fmt.Errorf("link input group %s: %w", ig.RootKey, err)
		}
	}

	required := make([]*item.Module, 0, len(plan.Order))
	for _, name := range plan.Order {
		m, ok := w.Registry.Module(name)
		if !ok {
			return fmt.Errorf("planned module %s not found in registry", name)
		}
		required = append(required, m)
	}

	sup := supervisor.New(opts.Executor, opts.Params, opts.Workspace, w.Logger)
	return sup.Run(ctx, st, required, st.IDs(), opts.Targets)
}
