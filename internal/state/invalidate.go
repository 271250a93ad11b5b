package state

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/sourceplane/flowctl/internal/instance"
)

// Invalidate removes every module downstream of items (transitively) along
// with their JobInstances and produced ItemInstances (given instances are
// never removed), then relocates the affected jobs' output folders and the
// previous state file into the next previous_run_NNN directory.
func (s *WorkflowState) Invalidate(items []string) error {
	itemSet := make(map[string]bool, len(items))
	for _, k := range items {
		itemSet[k] = true
	}

	affectedModules := make(map[string]bool)
	for _, m := range s.registry.Modules() {
		for outKey := range m.UnmaskedOutputs() {
			if itemSet[outKey] {
				affectedModules[m.Name] = true
				break
			}
		}
	}

	for {
		producedByAffected := make(map[string]bool, len(itemSet))
		for k := range itemSet {
			producedByAffected[k] = true
		}
		for _, m := range s.registry.Modules() {
			if !affectedModules[m.Name] {
				continue
			}
			for outKey := range m.UnmaskedOutputs() {
				producedByAffected[outKey] = true
			}
		}
		added := false
		for _, m := range s.registry.Modules() {
			if affectedModules[m.Name] {
				continue
			}
			for inKey := range m.Inputs {
				if producedByAffected[inKey] {
					affectedModules[m.Name] = true
					added = true
					break
				}
			}
		}
		if !added {
			break
		}
	}

	affectedItemKeys := make(map[string]bool, len(itemSet))
	for k := range itemSet {
		affectedItemKeys[k] = true
	}
	for _, m := range s.registry.Modules() {
		if !affectedModules[m.Name] {
			continue
		}
		for outKey := range m.UnmaskedOutputs() {
			affectedItemKeys[outKey] = true
		}
	}

	var removedJobIDs []string
	for id, ji := range s.jobInstances {
		if !affectedModules[ji.Module.Name] {
			continue
		}
		removedJobIDs = append(removedJobIDs, fmt.Sprintf("%s--%s", ji.Module.Name, id))

		delete(s.jobInstances, id)
		delete(s.pendingJobs, id)
		s.removeFromPendingOrder(id)

		sig := instance.Signature(ji.Inputs)
		if cur, ok := s.jobSignatures[sig]; ok && cur.ID() == id {
			delete(s.jobSignatures, sig)
		}
		for _, ii := range ji.InputInstances() {
			s.reservations[ii.ID()] = removeJob(s.reservations[ii.ID()], id)
		}
	}

	for key := range affectedItemKeys {
		kept := make([]*instance.ItemInstance, 0, len(s.itemLookup[key]))
		for _, ii := range s.itemLookup[key] {
			if s.givenIDs[ii.ID()] {
				kept = append(kept, ii)
				continue
			}
			delete(s.itemsByID, ii.ID())
			delete(s.reservations, ii.ID())
		}
		s.itemLookup[key] = kept
	}

	s.changed = true

	if s.workspace == "" || len(removedJobIDs) == 0 {
		return nil
	}
	return s.archivePreviousRun(removedJobIDs)
}

func removeJob(jobs []*instance.JobInstance, id string) []*instance.JobInstance {
	out := jobs[:0]
	for _, j := range jobs {
		if j.ID() != id {
			out = append(out, j)
		}
	}
	return out
}

var previousRunPattern = regexp.MustCompile(`^previous_run_(\d+)$`)

func (s *WorkflowState) archivePreviousRun(jobFolderNames []string) error {
	entries, err := os.ReadDir(s.workspace)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read workspace: %w", err)
	}
	next := 1
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if m := previousRunPattern.FindStringSubmatch(e.Name()); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= next {
				next = n + 1
			}
		}
	}
	dest := filepath.Join(s.workspace, fmt.Sprintf("previous_run_%03d", next))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	sort.Strings(jobFolderNames)
	for _, name := range jobFolderNames {
		src := filepath.Join(s.workspace, name)
		if _, err := os.Stat(src); err != nil {
			continue // failed or never-materialized job has no output folder
		}
		if err := os.Rename(src, filepath.Join(dest, name)); err != nil {
			return fmt.Errorf("archive %s: %w", name, err)
		}
	}

	oldState := filepath.Join(s.workspace, StateFileName)
	if _, err := os.Stat(oldState); err == nil {
		if err := os.Rename(oldState, filepath.Join(dest, StateFileName)); err != nil {
			return fmt.Errorf("archive %s: %w", StateFileName, err)
		}
	}
	return nil
}
