// Package planner implements the planner's Update pass: for each satisfied
// module, compute input namespaces (cross-products and grouped joins) and
// materialize new JobInstances via signature dedup.
package planner

import (
	"github.com/sourceplane/flowctl/internal/instance"
	"github.com/sourceplane/flowctl/internal/item"
	"github.com/sourceplane/flowctl/internal/provenance"
)

// State is what the planner needs from the aggregate WorkflowState: the
// current item index, the group-by path table, signature dedup, job
// consumption lookup for provenance traversal, and a hook to register a
// freshly materialized JobInstance into all of the state's indices.
type State interface {
	provenance.Reservations
	Instances(itemKey string) []*instance.ItemInstance
	HasSignature(signature string) bool
	GroupPath(ancestorKey, inputKey string) ([]string, bool)
	Register(ji *instance.JobInstance)
}

// namespace is one candidate input assignment for a module during planning.
type namespace struct {
	values     map[string]instance.Values
	groupRoots map[string]string // ancestor item key -> chosen root ItemInstance ID
}

func (ns namespace) clone() namespace {
	values := make(map[string]instance.Values, len(ns.values))
	for k, v := range ns.values {
		values[k] = v
	}
	roots := make(map[string]string, len(ns.groupRoots))
	for k, v := range ns.groupRoots {
		roots[k] = v
	}
	return namespace{values: values, groupRoots: roots}
}

// Update runs one planning pass over every module, returning the
// JobInstances newly materialized this pass. Calling Update again with no
// new ItemInstances produces none, since signatures are registered as each
// job is created.
func Update(modules []*item.Module, st State, ids *instance.IDAllocator) []*instance.JobInstance {
	var created []*instance.JobInstance
	for _, m := range modules {
		if !satisfied(m, st) {
			continue
		}
		namespaces, ok := buildNamespaces(m, st)
		if !ok {
			continue // a grouped input's traversal hit an incomplete job; try again next pass
		}
		for _, ns := range namespaces {
			sig := instance.Signature(ns.values)
			if st.HasSignature(sig) {
				continue
			}
			ji := instance.NewJobInstance(ids, m, ns.values)
			st.Register(ji)
			created = append(created, ji)
		}
	}
	return created
}

// satisfied reports whether every declared input key has at least one
// ItemInstance available.
func satisfied(m *item.Module, st State) bool {
	for _, key := range m.InputOrder() {
		if len(st.Instances(key)) == 0 {
			return false
		}
	}
	return true
}

// buildNamespaces computes every namespace for m, or ok=false if a grouped
// input's provenance traversal is blocked on an incomplete job.
func buildNamespaces(m *item.Module, st State) ([]namespace, bool) {
	namespaces := []namespace{{values: map[string]instance.Values{}, groupRoots: map[string]string{}}}

	for _, inputKey := range m.InputOrder() {
		ancestor, grouped := m.Grouped(inputKey)
		if !grouped {
			instances := st.Instances(inputKey)
			var next []namespace
			for _, ns := range namespaces {
				for _, inst := range instances {
					n := ns.clone()
					n.values[inputKey] = instance.Single(inst)
					next = append(next, n)
				}
			}
			namespaces = next
			continue
		}

		ancestorKey := ancestor.Key()
		path, ok := st.GroupPath(ancestorKey, inputKey)
		if !ok {
			return nil, false // should not happen once state construction validated group_by
		}

		if !rootAlreadyRegistered(namespaces, ancestorKey) {
			roots := st.Instances(ancestorKey)
			var next []namespace
			for _, ns := range namespaces {
				for _, root := range roots {
					group, pending := provenance.Group(path, root, st)
					if pending {
						return nil, false
					}
					if len(group) == 0 {
						continue
					}
					n := ns.clone()
					n.values[inputKey] = instance.Multi(group).Normalized()
					n.groupRoots[ancestorKey] = root.ID()
					next = append(next, n)
				}
			}
			namespaces = next
			continue
		}

		// Merge: the ancestor root is already fixed for this namespace by an
		// earlier grouped input sharing the same ancestor; recompute this
		// input's group for that exact root and intersect.
		rootsByID := make(map[string]*instance.ItemInstance)
		for _, root := range st.Instances(ancestorKey) {
			rootsByID[root.ID()] = root
		}
		var next []namespace
		for _, ns := range namespaces {
			rootID, ok := ns.groupRoots[ancestorKey]
			if !ok {
				continue
			}
			root, ok := rootsByID[rootID]
			if !ok {
				continue
			}
			group, pending := provenance.Group(path, root, st)
			if pending {
				return nil, false
			}
			if len(group) == 0 {
				continue
			}
			n := ns.clone()
			n.values[inputKey] = instance.Multi(group).Normalized()
			next = append(next, n)
		}
		namespaces = next
	}

	return namespaces, true
}

func rootAlreadyRegistered(namespaces []namespace, ancestorKey string) bool {
	for _, ns := range namespaces {
		if _, ok := ns.groupRoots[ancestorKey]; ok {
			return true
		}
	}
	return false
}
