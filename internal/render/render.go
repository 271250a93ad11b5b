// Package render produces human-readable views of a solved plan: a
// box-drawing dependency tree, plus a flat module listing.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sourceplane/flowctl/internal/item"
	"github.com/sourceplane/flowctl/internal/solver"
)

// ViewDAG renders plan's module order as a tree: each module lists the
// modules it depends on beneath it, using box-drawing glyphs (├─, └─, │).
func ViewDAG(plan *solver.Plan, registry *item.Registry) string {
	if len(plan.Order) == 0 {
		return "No modules in plan"
	}

	var sb strings.Builder
	for i, name := range plan.Order {
		isLast := i == len(plan.Order)-1
		prefix := "├─ "
		if isLast {
			prefix = "└─ "
		}

		m, _ := registry.Module(name)
		sb.WriteString(fmt.Sprintf("%s%s [%s]\n", prefix, name, moduleShape(m)))

		deps := append([]string(nil), plan.DepMap[name]...)
		sort.Strings(deps)
		for j, dep := range deps {
			isLastDep := j == len(deps)-1
			depPrefix := "│  ├─ "
			if isLastDep {
				depPrefix = "│  └─ "
			}
			if isLast {
				depPrefix = strings.Replace(depPrefix, "│", " ", 1)
			}
			sb.WriteString(fmt.Sprintf("%sneeds %s\n", depPrefix, dep))
		}
	}
	return sb.String()
}

func moduleShape(m *item.Module) string {
	if m == nil {
		return "?"
	}
	return fmt.Sprintf("%d in, %d out", len(m.Inputs), len(m.Outputs))
}

// ListModules renders a flat, alphabetized summary of every module a
// registry knows about, for the "modules" CLI command.
func ListModules(registry *item.Registry) string {
	modules := registry.Modules()
	names := make([]string, 0, len(modules))
	byName := make(map[string]*item.Module, len(modules))
	for _, m := range modules {
		names = append(names, m.Name)
		byName[m.Name] = m
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		m := byName[name]
		sb.WriteString(fmt.Sprintf("%s (%s)\n", name, moduleShape(m)))
		for k := range m.Inputs {
			sb.WriteString(fmt.Sprintf("    in:  %s\n", k))
		}
		for k := range m.Outputs {
			sb.WriteString(fmt.Sprintf("    out: %s\n", k))
		}
	}
	return sb.String()
}
