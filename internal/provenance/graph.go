// Package provenance builds the item/module producer graph and the
// group-by provenance paths derived from it, and traverses concrete
// instance provenance chains to answer "what ItemInstances of key k
// descend from root R along path P".
package provenance

import (
	"fmt"
	"strings"

	"github.com/sourceplane/flowctl/internal/instance"
	"github.com/sourceplane/flowctl/internal/item"
)

// Graph is the static item-key/module-name producer/consumer graph built
// from a module set: item key -> modules consuming it as input, module
// name -> unmasked output item keys.
type Graph struct {
	itemToModules map[string][]string
	moduleToItems map[string][]string
}

// GivenLink is a direct provenance edge from a root item key to a child
// item key, established when an InputGroup links given values together
// rather than by any module execution. PrecomputePaths treats it as a
// single-hop edge through a synthetic module name, so a group_by between
// two given item keys resolves without requiring a producing module.
type GivenLink struct {
	RootKey  string
	ChildKey string
}

const givenLinkPrefix = "given:"

// GivenLinkModule returns the synthetic module name standing in for the
// logistical (non-compute) link from rootKey to its given children.
func GivenLinkModule(rootKey string) string { return givenLinkPrefix + rootKey }

// IsGivenLinkModule reports whether name is a synthetic given-link module
// name rather than a real declared module.
func IsGivenLinkModule(name string) bool { return strings.HasPrefix(name, givenLinkPrefix) }

// Build constructs a Graph from declared modules plus any given-input
// links. Only unmasked outputs count as producer edges, matching the
// invariant that a masked output has no producer in the plan; given links
// add a direct root->child edge through a synthetic per-root module name so
// distinct roots never leak edges into each other.
func Build(modules []*item.Module, given []GivenLink) *Graph {
	g := &Graph{
		itemToModules: make(map[string][]string),
		moduleToItems: make(map[string][]string),
	}
	for _, m := range modules {
		for inputKey := range m.Inputs {
			g.itemToModules[inputKey] = append(g.itemToModules[inputKey], m.Name)
		}
		for outputKey := range m.UnmaskedOutputs() {
			g.moduleToItems[m.Name] = append(g.moduleToItems[m.Name], outputKey)
		}
	}
	for _, gl := range given {
		mod := GivenLinkModule(gl.RootKey)
		g.itemToModules[gl.RootKey] = append(g.itemToModules[gl.RootKey], mod)
		g.moduleToItems[mod] = append(g.moduleToItems[mod], gl.ChildKey)
	}
	return g
}

// PathKey identifies a required group-by path: from an ancestor item key
// to a descendant (grouped) input item key.
type PathKey struct {
	Start  string // ancestor item key (group_by's target)
	Target string // grouped input item key
}

// LongestPath returns the longest simple path from start to target,
// alternating item keys and module names, or false if none exists. The
// longest path is preferred over the shortest so intermediate items are
// traversed for a tighter grouping, per the planner's design.
func (g *Graph) LongestPath(start, target string) ([]string, bool) {
	if start == target {
		return []string{start}, true
	}

	var best []string
	visited := make(map[string]bool)

	var dfsFromItem func(node string, path []string)
	var dfsFromModule func(node string, path []string)

	dfsFromItem = func(node string, path []string) {
		if node == target {
			if len(path) > len(best) {
				best = append([]string(nil), path...)
			}
			return
		}
		for _, mod := range g.itemToModules[node] {
			key := "m:" + mod
			if visited[key] {
				continue
			}
			visited[key] = true
			dfsFromModule(mod, append(path, mod))
			visited[key] = false
		}
	}

	dfsFromModule = func(node string, path []string) {
		for _, out := range g.moduleToItems[node] {
			key := "i:" + out
			if visited[key] {
				continue
			}
			visited[key] = true
			dfsFromItem(out, append(path, out))
			visited[key] = false
		}
	}

	visited["i:"+start] = true
	dfsFromItem(start, []string{start})
	if best == nil {
		return nil, false
	}
	return best, true
}

// PrecomputePaths computes the group-by path for every (ancestor, input)
// pair required by any module's GroupBy map, given links included so a
// group_by between two given item keys resolves via their logistical link
// instead of failing for lack of a producing module. Returns
// ErrInvalidGrouping if any required pair has no path.
func PrecomputePaths(modules []*item.Module, given []GivenLink) (map[PathKey][]string, error) {
	g := Build(modules, given)
	paths := make(map[PathKey][]string)
	for _, m := range modules {
		for inputKey, ancestor := range m.GroupBy {
			k := PathKey{Start: ancestor.Key(), Target: inputKey}
			if _, done := paths[k]; done {
				continue
			}
			path, ok := g.LongestPath(k.Start, k.Target)
			if !ok {
				return nil, fmt.Errorf("%w: module %s groups %q by %q with no provenance path between them", ErrInvalidGrouping, m.Name, inputKey, k.Start)
			}
			paths[k] = path
		}
	}
	return paths, nil
}

// Reservations resolves which JobInstances have consumed a given
// ItemInstance, the lookup the planner's state keeps as
// item_instance_reservations, plus which given ItemInstances were linked to
// a root by an InputGroup rather than by a compute job. Implemented by
// internal/state.
type Reservations interface {
	JobsConsuming(itemInstanceID string) []*instance.JobInstance
	GivenChildren(parentInstanceID, childItemKey string) []*instance.ItemInstance
}

// Group returns every ItemInstance of the path's target item key reachable
// from root, following either completed jobs matching each path step or a
// direct given-input link (for a step whose module name is a synthetic
// GivenLinkModule), per the BFS frontier traversal. pending reports that
// some job along the way has not completed yet (so this module pass should
// be skipped, not treated as an empty group).
func Group(path []string, root *instance.ItemInstance, res Reservations) (group []*instance.ItemInstance, pending bool) {
	frontier := []*instance.ItemInstance{root}
	for step := 0; step+2 < len(path); step += 2 {
		moduleName := path[step+1]
		nextKey := path[step+2]

		var next []*instance.ItemInstance
		seen := make(map[string]bool)
		for _, cur := range frontier {
			if IsGivenLinkModule(moduleName) {
				for _, child := range res.GivenChildren(cur.ID(), nextKey) {
					if !seen[child.ID()] {
						seen[child.ID()] = true
						next = append(next, child)
					}
				}
				continue
			}
			for _, job := range res.JobsConsuming(cur.ID()) {
				if job.Module.Name != moduleName {
					continue
				}
				if !job.Complete {
					return nil, true
				}
				values, ok := job.Outputs[nextKey]
				if !ok {
					continue
				}
				for _, oi := range values.Flatten() {
					if !seen[oi.ID()] {
						seen[oi.ID()] = true
						next = append(next, oi)
					}
				}
			}
		}
		if len(next) == 0 {
			return nil, false
		}
		frontier = next
	}
	return frontier, false
}
