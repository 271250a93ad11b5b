// Package solver implements the dependency solver: given a module set, a
// given-key set, and a target-key set, produce a linearized plan and a
// per-module upstream-dependency map.
package solver

import (
	"fmt"
	"sort"

	"github.com/sourceplane/flowctl/internal/item"
)

// Transform is the solver's view of a module: its declared input and
// output key sets plus its name, independent of the item.Module it came
// from so the solver stays decoupled from the registry.
type Transform struct {
	Name    string
	Inputs  map[string]bool
	Outputs map[string]bool
}

// FromModules builds Transforms from registered modules.
func FromModules(modules []*item.Module) []Transform {
	out := make([]Transform, 0, len(modules))
	for _, m := range modules {
		t := Transform{Name: m.Name, Inputs: map[string]bool{}, Outputs: map[string]bool{}}
		for k := range m.Inputs {
			t.Inputs[k] = true
		}
		for k := range m.Outputs {
			t.Outputs[k] = true
		}
		out = append(out, t)
	}
	return out
}

// Plan is the solver's result: a linearized module order and a per-module
// list of upstream modules whose outputs feed that module's inputs.
type Plan struct {
	Order  []string
	DepMap map[string][]string
}

// Solve walks backward from targets, gathering every module needed to
// produce them from given, then returns a deterministic topological order.
func Solve(transforms []Transform, given map[string]bool, targets map[string]bool) (*Plan, error) {
	byName := make(map[string]Transform, len(transforms))
	for _, t := range transforms {
		byName[t.Name] = t
	}

	// key -> module names producing it, for backward resolution.
	producers := make(map[string][]string)
	for _, t := range transforms {
		for k := range t.Outputs {
			producers[k] = append(producers[k], t.Name)
		}
	}
	for k := range producers {
		sort.Strings(producers[k])
	}

	required := make(map[string]bool)
	var walk func(key string) error
	visiting := make(map[string]bool)
	walk = func(key string) error {
		if given[key] {
			return nil
		}
		names, ok := producers[key]
		if !ok || len(names) == 0 {
			return fmt.Errorf("%w: no module produces %q and it is not given", ErrMissingTarget, key)
		}
		for _, name := range names {
			if required[name] {
				continue
			}
			if visiting[name] {
				continue // cycle; topoSort below will catch and report it
			}
			visiting[name] = true
			required[name] = true
			t := byName[name]
			inputKeys := make([]string, 0, len(t.Inputs))
			for k := range t.Inputs {
				inputKeys = append(inputKeys, k)
			}
			sort.Strings(inputKeys)
			for _, ik := range inputKeys {
				if err := walk(ik); err != nil {
					return err
				}
			}
			visiting[name] = false
		}
		return nil
	}

	targetKeys := make([]string, 0, len(targets))
	for k := range targets {
		targetKeys = append(targetKeys, k)
	}
	sort.Strings(targetKeys)
	for _, k := range targetKeys {
		if given[k] {
			continue
		}
		if err := walk(k); err != nil {
			return nil, err
		}
	}

	moduleNames := make([]string, 0, len(required))
	for name := range required {
		moduleNames = append(moduleNames, name)
	}
	sort.Strings(moduleNames)

	order, depMap, err := topoSort(moduleNames, byName, given, producers)
	if err != nil {
		return nil, err
	}

	return &Plan{Order: order, DepMap: depMap}, nil
}

// topoSort orders required modules so that every non-given input of a
// module is produced by an earlier module, tie-broken by name.
func topoSort(moduleNames []string, byName map[string]Transform, given map[string]bool, producers map[string][]string) ([]string, map[string][]string, error) {
	inRequired := make(map[string]bool, len(moduleNames))
	for _, n := range moduleNames {
		inRequired[n] = true
	}

	depMap := make(map[string][]string, len(moduleNames))
	inDegree := make(map[string]int, len(moduleNames))
	dependents := make(map[string][]string, len(moduleNames))
	for _, name := range moduleNames {
		inDegree[name] = 0
		dependents[name] = nil
	}

	for _, name := range moduleNames {
		t := byName[name]
		seenUpstream := make(map[string]bool)
		for inputKey := range t.Inputs {
			if given[inputKey] {
				continue
			}
			for _, producer := range producers[inputKey] {
				if !inRequired[producer] || producer == name || seenUpstream[producer] {
					continue
				}
				seenUpstream[producer] = true
				depMap[name] = append(depMap[name], producer)
				dependents[producer] = append(dependents[producer], name)
				inDegree[name]++
			}
		}
		sort.Strings(depMap[name])
	}

	// Kahn's algorithm, always picking the lexicographically smallest ready
	// module for deterministic output.
	ready := make([]string, 0)
	for _, name := range moduleNames {
		if inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		next := append([]string(nil), dependents[current]...)
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(moduleNames) {
		return nil, fmt.Errorf("%w: cycle among %v", ErrNoPlan, moduleNames)
	}

	return order, depMap, nil
}
