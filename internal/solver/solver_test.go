package solver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transform(name string, inputs, outputs []string) Transform {
	t := Transform{Name: name, Inputs: map[string]bool{}, Outputs: map[string]bool{}}
	for _, k := range inputs {
		t.Inputs[k] = true
	}
	for _, k := range outputs {
		t.Outputs[k] = true
	}
	return t
}

func TestSolveLinearChain(t *testing.T) {
	transforms := []Transform{
		transform("trim", []string{"reads"}, []string{"trimmed"}),
		transform("align", []string{"trimmed", "reference"}, []string{"bam"}),
	}
	given := map[string]bool{"reads": true, "reference": true}
	targets := map[string]bool{"bam": true}

	plan, err := Solve(transforms, given, targets)
	require.NoError(t, err)
	assert.Equal(t, []string{"trim", "align"}, plan.Order)
	assert.Equal(t, []string{"trim"}, plan.DepMap["align"])
}

func TestSolveMissingTarget(t *testing.T) {
	_, err := Solve(nil, nil, map[string]bool{"bam": true})
	assert.True(t, errors.Is(err, ErrMissingTarget))
}

func TestSolveTieBreaksByName(t *testing.T) {
	transforms := []Transform{
		transform("zeta", []string{"in"}, []string{"out"}),
		transform("alpha", []string{"in"}, []string{"out2"}),
	}
	given := map[string]bool{"in": true}
	targets := map[string]bool{"out": true, "out2": true}

	plan, err := Solve(transforms, given, targets)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, plan.Order)
}

func TestSolveCycleIsRejected(t *testing.T) {
	transforms := []Transform{
		transform("a", []string{"y"}, []string{"x"}),
		transform("b", []string{"x"}, []string{"y"}),
	}
	_, err := Solve(transforms, nil, map[string]bool{"x": true})
	assert.True(t, errors.Is(err, ErrNoPlan))
}

func TestSolveSkipsModulesNotNeededForTargets(t *testing.T) {
	transforms := []Transform{
		transform("needed", []string{"in"}, []string{"target"}),
		transform("unrelated", []string{"in"}, []string{"other"}),
	}
	given := map[string]bool{"in": true}
	plan, err := Solve(transforms, given, map[string]bool{"target": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"needed"}, plan.Order)
}
