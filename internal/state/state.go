// Package state implements WorkflowState: the aggregate of every item and
// job instance in a run, its persistence to workflow_state.json, and
// invalidation cascades.
package state

import (
	"fmt"

	"github.com/sourceplane/flowctl/internal/executor"
	"github.com/sourceplane/flowctl/internal/instance"
	"github.com/sourceplane/flowctl/internal/item"
	"github.com/sourceplane/flowctl/internal/provenance"
)

// WorkflowState is the planner's aggregate. It is not safe for concurrent
// use; the supervisor serializes all access to it on one goroutine.
type WorkflowState struct {
	registry   *item.Registry
	ids        *instance.IDAllocator
	groupPaths map[provenance.PathKey][]string

	itemsByID  map[string]*instance.ItemInstance
	itemLookup map[string][]*instance.ItemInstance
	givenIDs   map[string]bool

	jobInstances  map[string]*instance.JobInstance
	jobSignatures map[string]*instance.JobInstance
	pendingJobs   map[string]*instance.JobInstance
	pendingOrder  []string

	reservations map[string][]*instance.JobInstance

	workspace string
	changed   bool
}

// New builds a fresh WorkflowState for registry, precomputing every
// group-by provenance path declared by its modules plus the caller's given
// links (root->child edges established by InputGroups rather than by a
// module). Returns provenance.ErrInvalidGrouping if a declared group_by has
// no path.
func New(registry *item.Registry, workspace string, given []provenance.GivenLink) (*WorkflowState, error) {
	paths, err := provenance.PrecomputePaths(registry.Modules(), given)
	if err != nil {
		return nil, err
	}
	return &WorkflowState{
		registry:      registry,
		ids:           instance.NewIDAllocator(),
		groupPaths:    paths,
		itemsByID:     make(map[string]*instance.ItemInstance),
		itemLookup:    make(map[string][]*instance.ItemInstance),
		givenIDs:      make(map[string]bool),
		jobInstances:  make(map[string]*instance.JobInstance),
		jobSignatures: make(map[string]*instance.JobInstance),
		pendingJobs:   make(map[string]*instance.JobInstance),
		reservations:  make(map[string][]*instance.JobInstance),
		workspace:     workspace,
	}, nil
}

// Registry returns the item/module registry backing this state.
func (s *WorkflowState) Registry() *item.Registry { return s.registry }

// IDs returns the ID allocator backing this state, for callers that mint
// instances outside the planner (e.g. AddGiven).
func (s *WorkflowState) IDs() *instance.IDAllocator { return s.ids }

// Changed reports whether any mutation has occurred since the last Save.
func (s *WorkflowState) Changed() bool { return s.changed }

// MarkSaved clears the changed flag after a successful Save.
func (s *WorkflowState) MarkSaved() { s.changed = false }

func (s *WorkflowState) registerItemInstance(ii *instance.ItemInstance) {
	s.itemsByID[ii.ID()] = ii
	s.itemLookup[ii.ItemKey] = append(s.itemLookup[ii.ItemKey], ii)
}

// AddGiven registers a given (initial) ItemInstance for itemKey with value,
// marking it as given so Invalidate never removes it.
func (s *WorkflowState) AddGiven(itemKey, value string) *instance.ItemInstance {
	ii := instance.NewItemInstance(s.ids, itemKey, value, nil)
	s.registerItemInstance(ii)
	s.givenIDs[ii.ID()] = true
	s.changed = true
	return ii
}

// AddGivenChild registers a given ItemInstance for itemKey with value,
// linked to parent as its provenance root. This is the link an InputGroup
// establishes between its root value and the child values given alongside
// it, followed by provenance.Group via a synthetic group-by path step
// instead of a compute job.
func (s *WorkflowState) AddGivenChild(itemKey, value string, parent *instance.ItemInstance) *instance.ItemInstance {
	ii := instance.NewGivenChildInstance(s.ids, itemKey, value, parent)
	s.registerItemInstance(ii)
	s.givenIDs[ii.ID()] = true
	s.changed = true
	return ii
}

// Instances returns every ItemInstance currently known for itemKey, in
// discovery order. Satisfies planner.State and provenance lookups.
func (s *WorkflowState) Instances(itemKey string) []*instance.ItemInstance {
	return s.itemLookup[itemKey]
}

// HasSignature reports whether a JobInstance with this signature already
// exists.
func (s *WorkflowState) HasSignature(signature string) bool {
	_, ok := s.jobSignatures[signature]
	return ok
}

// GroupPath returns the precomputed provenance path from ancestorKey to
// inputKey, if one was required by some module's group_by.
func (s *WorkflowState) GroupPath(ancestorKey, inputKey string) ([]string, bool) {
	p, ok := s.groupPaths[provenance.PathKey{Start: ancestorKey, Target: inputKey}]
	return p, ok
}

// JobsConsuming returns the JobInstances that have consumed the
// ItemInstance identified by itemInstanceID. Satisfies
// provenance.Reservations.
func (s *WorkflowState) JobsConsuming(itemInstanceID string) []*instance.JobInstance {
	return s.reservations[itemInstanceID]
}

// GivenChildren returns the given ItemInstances of childItemKey directly
// linked to parentInstanceID by an InputGroup, rather than produced by a
// compute job. Satisfies provenance.Reservations.
func (s *WorkflowState) GivenChildren(parentInstanceID, childItemKey string) []*instance.ItemInstance {
	var out []*instance.ItemInstance
	for _, ii := range s.itemLookup[childItemKey] {
		if ii.GivenParent != nil && ii.GivenParent.ID() == parentInstanceID {
			out = append(out, ii)
		}
	}
	return out
}

// Register adds a freshly materialized JobInstance to every index:
// job_instances, pending_jobs, job_signatures, and reservations for each of
// its input instances. Satisfies planner.State.
func (s *WorkflowState) Register(ji *instance.JobInstance) {
	s.jobInstances[ji.ID()] = ji
	s.pendingJobs[ji.ID()] = ji
	s.pendingOrder = append(s.pendingOrder, ji.ID())
	sig := instance.Signature(ji.Inputs)
	s.jobSignatures[sig] = ji
	for _, ii := range ji.InputInstances() {
		s.reservations[ii.ID()] = append(s.reservations[ii.ID()], ji)
	}
	s.changed = true
}

// PendingJobs returns every uncompleted JobInstance in submission (insertion)
// order.
func (s *WorkflowState) PendingJobs() []*instance.JobInstance {
	out := make([]*instance.JobInstance, 0, len(s.pendingOrder))
	for _, id := range s.pendingOrder {
		if ji, ok := s.pendingJobs[id]; ok {
			out = append(out, ji)
		}
	}
	return out
}

func (s *WorkflowState) removeFromPendingOrder(jobID string) {
	for i, id := range s.pendingOrder {
		if id == jobID {
			s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
			return
		}
	}
}

// RegisterJobComplete converts a successful executor manifest into
// ItemInstances (made_by this job), assigns them as the job's outputs, and
// removes the job from pending_jobs.
func (s *WorkflowState) RegisterJobComplete(jobID string, manifest map[string]executor.ManifestValue) error {
	ji, ok := s.pendingJobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPendingJob, jobID)
	}
	outputs := make(map[string]instance.Values, len(manifest))
	for key, mv := range manifest {
		if list, isList := mv.List(); isList {
			iis := make([]*instance.ItemInstance, 0, len(list))
			for _, v := range list {
				ii := instance.NewItemInstance(s.ids, key, v, ji)
				s.registerItemInstance(ii)
				iis = append(iis, ii)
			}
			outputs[key] = instance.Multi(iis).Normalized()
			continue
		}
		single, _ := mv.Single()
		ii := instance.NewItemInstance(s.ids, key, single, ji)
		s.registerItemInstance(ii)
		outputs[key] = instance.Single(ii)
	}
	ji.MarkComplete(outputs)
	delete(s.pendingJobs, jobID)
	s.removeFromPendingOrder(jobID)
	s.changed = true
	return nil
}

// RegisterJobFailed marks a job complete with no outputs, so it is never
// retried and downstream jobs simply never become satisfied on its outputs.
func (s *WorkflowState) RegisterJobFailed(jobID string) error {
	ji, ok := s.pendingJobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPendingJob, jobID)
	}
	ji.MarkComplete(map[string]instance.Values{})
	delete(s.pendingJobs, jobID)
	s.removeFromPendingOrder(jobID)
	s.changed = true
	return nil
}
