package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowctl/internal/item"
	"github.com/sourceplane/flowctl/internal/solver"
)

func TestViewDAGRendersOrderAndDeps(t *testing.T) {
	r := item.NewRegistry()
	trim := &item.Module{Name: "trim", Inputs: map[string]item.Item{"reads": r.Intern("reads")}, Outputs: map[string]item.Item{"trimmed": r.Intern("trimmed")}}
	align := &item.Module{Name: "align", Inputs: map[string]item.Item{"trimmed": r.Intern("trimmed")}, Outputs: map[string]item.Item{"bam": r.Intern("bam")}}
	require.NoError(t, r.Register(trim))
	require.NoError(t, r.Register(align))

	plan := &solver.Plan{Order: []string{"trim", "align"}, DepMap: map[string][]string{"align": {"trim"}}}
	out := ViewDAG(plan, r)

	assert.Contains(t, out, "trim")
	assert.Contains(t, out, "align")
	assert.Contains(t, out, "needs trim")
}

func TestViewDAGEmptyPlan(t *testing.T) {
	assert.Equal(t, "No modules in plan", ViewDAG(&solver.Plan{}, item.NewRegistry()))
}

func TestListModulesListsInputsAndOutputs(t *testing.T) {
	r := item.NewRegistry()
	m := &item.Module{Name: "trim", Inputs: map[string]item.Item{"reads": r.Intern("reads")}, Outputs: map[string]item.Item{"trimmed": r.Intern("trimmed")}}
	require.NoError(t, r.Register(m))

	out := ListModules(r)
	assert.True(t, strings.Contains(out, "trim"))
	assert.True(t, strings.Contains(out, "in:  reads"))
	assert.True(t, strings.Contains(out, "out: trimmed"))
}
