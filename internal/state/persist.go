package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sourceplane/flowctl/internal/instance"
	"github.com/sourceplane/flowctl/internal/item"
	"github.com/sourceplane/flowctl/internal/provenance"
)

// StateFileName is the on-disk name of the persisted state, written to the
// workspace root.
const StateFileName = "workflow_state.json"

type instanceRefFile struct {
	Single string   `json:"single,omitempty"`
	List   []string `json:"list,omitempty"`
}

func refFromValues(v instance.Values) instanceRefFile {
	if list, ok := v.ListValue(); ok {
		ids := make([]string, len(list))
		for i, ii := range list {
			ids[i] = ii.ID()
		}
		return instanceRefFile{List: ids}
	}
	single, _ := v.SingleValue()
	return instanceRefFile{Single: single.ID()}
}

type moduleFile struct {
	Inputs    []string          `json:"inputs"`
	Outputs   []string          `json:"outputs"`
	GroupBy   map[string]string `json:"group_by"`
	UnusedOut []string          `json:"unused_out"`
}

type jobFile struct {
	Complete bool                       `json:"complete"`
	Inputs   map[string]instanceRefFile `json:"inputs"`
	Outputs  map[string]instanceRefFile `json:"outputs,omitempty"`
}

type itemInstanceFile struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	MadeBy      string `json:"made_by,omitempty"`
	GivenParent string `json:"given_parent,omitempty"`
}

type stateFile struct {
	Modules                  map[string]moduleFile         `json:"modules"`
	ParentMap                parentMapFile                 `json:"parent_map"`
	ModuleExecutions         map[string]map[string]jobFile `json:"module_executions"`
	CompletedModules         []string                      `json:"completed_modules"`
	ItemInstances            map[string][]itemInstanceFile `json:"item_instances"`
	Given                    []string                      `json:"given"`
	ItemInstanceReservations map[string][]string            `json:"item_instance_reservations"`
	PendingJobs              []string                       `json:"pending_jobs"`
}

type parentMapFile struct {
	ItemToModules map[string][]string `json:"item_to_modules"`
	ModuleToItems map[string][]string `json:"module_to_items"`
}

func buildParentMap(modules []*item.Module) parentMapFile {
	pm := parentMapFile{ItemToModules: map[string][]string{}, ModuleToItems: map[string][]string{}}
	for _, m := range modules {
		for inputKey := range m.Inputs {
			pm.ItemToModules[inputKey] = append(pm.ItemToModules[inputKey], m.Name)
		}
		for outKey := range m.UnmaskedOutputs() {
			pm.ModuleToItems[m.Name] = append(pm.ModuleToItems[m.Name], outKey)
		}
	}
	for k := range pm.ItemToModules {
		sort.Strings(pm.ItemToModules[k])
	}
	for k := range pm.ModuleToItems {
		sort.Strings(pm.ModuleToItems[k])
	}
	return pm
}

// Save serializes the state to workspace/workflow_state.json, writing to a
// temp file and renaming into place so a crash mid-write never leaves a
// corrupt file behind.
func (s *WorkflowState) Save() error {
	sf := stateFile{
		Modules:                  map[string]moduleFile{},
		ParentMap:                buildParentMap(s.registry.Modules()),
		ModuleExecutions:         map[string]map[string]jobFile{},
		ItemInstances:            map[string][]itemInstanceFile{},
		Given:                    make([]string, 0, len(s.givenIDs)),
		ItemInstanceReservations: map[string][]string{},
		PendingJobs:              append([]string(nil), s.pendingOrder...),
	}

	for _, m := range s.registry.Modules() {
		unused := make([]string, 0)
		for k, masked := range m.OutputMask {
			if masked {
				unused = append(unused, k)
			}
		}
		sort.Strings(unused)
		groupBy := make(map[string]string, len(m.GroupBy))
		for inputKey, ancestor := range m.GroupBy {
			groupBy[inputKey] = ancestor.Key()
		}
		outKeys := make([]string, 0, len(m.Outputs))
		for k := range m.Outputs {
			outKeys = append(outKeys, k)
		}
		sort.Strings(outKeys)
		sf.Modules[m.Name] = moduleFile{
			Inputs:    m.InputOrder(),
			Outputs:   outKeys,
			GroupBy:   groupBy,
			UnusedOut: unused,
		}
	}

	completedByModule := map[string]int{}
	totalByModule := map[string]int{}
	for _, ji := range s.jobInstances {
		moduleName := ji.Module.Name
		if sf.ModuleExecutions[moduleName] == nil {
			sf.ModuleExecutions[moduleName] = map[string]jobFile{}
		}
		jf := jobFile{Complete: ji.Complete, Inputs: map[string]instanceRefFile{}}
		for k, v := range ji.Inputs {
			jf.Inputs[k] = refFromValues(v)
		}
		if ji.Complete {
			jf.Outputs = map[string]instanceRefFile{}
			for k, v := range ji.Outputs {
				jf.Outputs[k] = refFromValues(v)
			}
			completedByModule[moduleName]++
		}
		totalByModule[moduleName]++
		sf.ModuleExecutions[moduleName][ji.ID()] = jf
	}
	for name, total := range totalByModule {
		if total > 0 && completedByModule[name] == total {
			sf.CompletedModules = append(sf.CompletedModules, name)
		}
	}
	sort.Strings(sf.CompletedModules)

	for key, iis := range s.itemLookup {
		entries := make([]itemInstanceFile, 0, len(iis))
		for _, ii := range iis {
			entry := itemInstanceFile{ID: ii.ID(), Path: ii.Value}
			if ii.MadeBy != nil {
				entry.MadeBy = ii.MadeBy.ID()
			}
			if ii.GivenParent != nil {
				entry.GivenParent = ii.GivenParent.ID()
			}
			entries = append(entries, entry)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
		sf.ItemInstances[key] = entries
	}

	for id := range s.givenIDs {
		sf.Given = append(sf.Given, id)
	}
	sort.Strings(sf.Given)

	for id, jobs := range s.reservations {
		ids := make([]string, len(jobs))
		for i, ji := range jobs {
			ids[i] = ji.ID()
		}
		sort.Strings(ids)
		sf.ItemInstanceReservations[id] = ids
	}

	data, err := json.MarshalIndent(sf, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}

	if err := os.MkdirAll(s.workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	target := filepath.Join(s.workspace, StateFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write workflow state: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("rename workflow state into place: %w", err)
	}
	s.MarkSaved()
	return nil
}

type itemInstanceRaw struct {
	itemKey     string
	id          string
	path        string
	madeBy      string
	givenParent string
}

type jobInstanceRaw struct {
	moduleName string
	id         string
	complete   bool
	inputs     map[string]instanceRefFile
	outputs    map[string]instanceRefFile
}

// LoadFromDisk reads workspace/workflow_state.json and reconstructs a
// WorkflowState against registry, given the caller's given links (root->
// child edges established by InputGroups rather than by a module). Module
// shapes recorded in the file are checked against registry's current
// declarations; a mismatch fails with ErrModuleShapeMismatch. Items and
// jobs are resolved iteratively since each references another by ID; a
// full pass with no progress fails with ErrCorruptState.
func LoadFromDisk(registry *item.Registry, workspace string, given []provenance.GivenLink) (*WorkflowState, error) {
	data, err := os.ReadFile(filepath.Join(workspace, StateFileName))
	if err != nil {
		return nil, fmt.Errorf("read workflow state: %w", err)
	}
	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	for name, mf := range sf.Modules {
		m, ok := registry.Module(name)
		if !ok {
			return nil, fmt.Errorf("%w: saved module %q is no longer declared", ErrModuleShapeMismatch, name)
		}
		if !sameSet(mf.Inputs, keys(m.Inputs)) || !sameSet(mf.Outputs, keys(m.Outputs)) {
			return nil, fmt.Errorf("%w: module %q", ErrModuleShapeMismatch, name)
		}
		for _, k := range mf.UnusedOut {
			m.OutputMask[k] = true
		}
	}

	s, err := New(registry, workspace, given)
	if err != nil {
		return nil, err
	}

	var pendingItems []itemInstanceRaw
	for itemKey, entries := range sf.ItemInstances {
		for _, e := range entries {
			pendingItems = append(pendingItems, itemInstanceRaw{itemKey: itemKey, id: e.ID, path: e.Path, madeBy: e.MadeBy, givenParent: e.GivenParent})
		}
	}
	givenIDs := make(map[string]bool, len(sf.Given))
	for _, id := range sf.Given {
		givenIDs[id] = true
	}

	var pendingJobsRaw []jobInstanceRaw
	awaitingOutputs := map[string]map[string]instanceRefFile{}
	for moduleName, jobs := range sf.ModuleExecutions {
		for id, jf := range jobs {
			pendingJobsRaw = append(pendingJobsRaw, jobInstanceRaw{moduleName: moduleName, id: id, complete: jf.Complete, inputs: jf.Inputs, outputs: jf.Outputs})
			if jf.Complete {
				awaitingOutputs[id] = jf.Outputs
			}
		}
	}

	resolvedJobs := map[string]*instance.JobInstance{}

	progressed := true
	for progressed && (len(pendingItems) > 0 || len(pendingJobsRaw) > 0) {
		progressed = false

		var stillItems []itemInstanceRaw
		for _, it := range pendingItems {
			if it.madeBy != "" {
				job, ok := resolvedJobs[it.madeBy]
				if !ok {
					stillItems = append(stillItems, it)
					continue
				}
				ii := instance.RestoreItemInstance(it.id, it.itemKey, it.path, job, nil)
				s.ids.Reserve(it.id)
				s.registerItemInstance(ii)
				progressed = true
				continue
			}
			if it.givenParent != "" {
				parent, ok := s.itemsByID[it.givenParent]
				if !ok {
					stillItems = append(stillItems, it)
					continue
				}
				ii := instance.RestoreItemInstance(it.id, it.itemKey, it.path, nil, parent)
				s.ids.Reserve(it.id)
				s.registerItemInstance(ii)
				if givenIDs[it.id] {
					s.givenIDs[it.id] = true
				}
				progressed = true
				continue
			}
			ii := instance.RestoreItemInstance(it.id, it.itemKey, it.path, nil, nil)
			s.ids.Reserve(it.id)
			s.registerItemInstance(ii)
			if givenIDs[it.id] {
				s.givenIDs[it.id] = true
			}
			progressed = true
		}
		pendingItems = stillItems

		var stillJobs []jobInstanceRaw
		for _, jr := range pendingJobsRaw {
			if !refsResolved(jr.inputs, s.itemsByID) {
				stillJobs = append(stillJobs, jr)
				continue
			}
			module, ok := registry.Module(jr.moduleName)
			if !ok {
				return nil, fmt.Errorf("%w: job for undeclared module %q", ErrModuleShapeMismatch, jr.moduleName)
			}
			inputs, err := resolveValues(jr.inputs, s.itemsByID)
			if err != nil {
				return nil, err
			}
			ji := instance.RestoreJobInstance(jr.id, module, inputs)
			s.ids.Reserve(jr.id)
			s.jobInstances[jr.id] = ji
			sig := instance.Signature(inputs)
			s.jobSignatures[sig] = ji
			for _, ii := range ji.InputInstances() {
				s.reservations[ii.ID()] = append(s.reservations[ii.ID()], ji)
			}
			if !jr.complete {
				s.pendingJobs[jr.id] = ji
				s.pendingOrder = append(s.pendingOrder, jr.id)
			}
			resolvedJobs[jr.id] = ji
			progressed = true
		}
		pendingJobsRaw = stillJobs
	}

	if len(pendingItems) > 0 || len(pendingJobsRaw) > 0 {
		return nil, ErrCorruptState
	}

	for jobID, outRefs := range awaitingOutputs {
		ji := resolvedJobs[jobID]
		outputs, err := resolveValues(outRefs, s.itemsByID)
		if err != nil {
			return nil, fmt.Errorf("%w: unresolved outputs for job %s", ErrCorruptState, jobID)
		}
		ji.MarkComplete(outputs)
	}

	s.MarkSaved()
	return s, nil
}

// MakeNew constructs a fresh WorkflowState, equivalent to New, named to
// mirror the load-or-create entry points callers choose between.
func MakeNew(registry *item.Registry, workspace string, given []provenance.GivenLink) (*WorkflowState, error) {
	return New(registry, workspace, given)
}

// ResumeIfPossible loads workspace/workflow_state.json if present,
// otherwise starts a fresh WorkflowState. given carries the run's
// InputGroup root->child links so group_by over given inputs resolves
// whether this is a fresh or a resumed run.
func ResumeIfPossible(registry *item.Registry, workspace string, given []provenance.GivenLink) (*WorkflowState, error) {
	if _, err := os.Stat(filepath.Join(workspace, StateFileName)); err != nil {
		if os.IsNotExist(err) {
			return MakeNew(registry, workspace, given)
		}
		return nil, fmt.Errorf("stat workflow state: %w", err)
	}
	return LoadFromDisk(registry, workspace, given)
}

func refsResolved(refs map[string]instanceRefFile, resolved map[string]*instance.ItemInstance) bool {
	for _, ref := range refs {
		if ref.List != nil {
			for _, id := range ref.List {
				if _, ok := resolved[id]; !ok {
					return false
				}
			}
			continue
		}
		if _, ok := resolved[ref.Single]; !ok {
			return false
		}
	}
	return true
}

func resolveValues(refs map[string]instanceRefFile, resolved map[string]*instance.ItemInstance) (map[string]instance.Values, error) {
	out := make(map[string]instance.Values, len(refs))
	for key, ref := range refs {
		if ref.List != nil {
			iis := make([]*instance.ItemInstance, 0, len(ref.List))
			for _, id := range ref.List {
				ii, ok := resolved[id]
				if !ok {
					return nil, fmt.Errorf("%w: missing instance %s", ErrCorruptState, id)
				}
				iis = append(iis, ii)
			}
			out[key] = instance.Multi(iis).Normalized()
			continue
		}
		ii, ok := resolved[ref.Single]
		if !ok {
			return nil, fmt.Errorf("%w: missing instance %s", ErrCorruptState, ref.Single)
		}
		out[key] = instance.Single(ii)
	}
	return out, nil
}

func keys(m map[string]item.Item) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
