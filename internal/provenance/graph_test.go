package provenance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowctl/internal/instance"
	"github.com/sourceplane/flowctl/internal/item"
)

func modules(r *item.Registry) []*item.Module {
	trim := &item.Module{
		Name:    "trim",
		Inputs:  map[string]item.Item{"reads": r.Intern("reads")},
		Outputs: map[string]item.Item{"trimmed": r.Intern("trimmed")},
	}
	align := &item.Module{
		Name:    "align",
		Inputs:  map[string]item.Item{"trimmed": r.Intern("trimmed"), "reference": r.Intern("reference")},
		Outputs: map[string]item.Item{"bam": r.Intern("bam")},
		GroupBy: map[string]item.Item{"trimmed": r.Intern("reads")},
	}
	return []*item.Module{trim, align}
}

func TestLongestPathFindsAlternatingRoute(t *testing.T) {
	r := item.NewRegistry()
	g := Build(modules(r), nil)

	path, ok := g.LongestPath("reads", "bam")
	require.True(t, ok)
	assert.Equal(t, []string{"reads", "trim", "trimmed", "align", "bam"}, path)
}

func TestLongestPathSameStartTarget(t *testing.T) {
	r := item.NewRegistry()
	g := Build(modules(r), nil)
	path, ok := g.LongestPath("reads", "reads")
	require.True(t, ok)
	assert.Equal(t, []string{"reads"}, path)
}

func TestLongestPathUnreachable(t *testing.T) {
	r := item.NewRegistry()
	g := Build(modules(r), nil)
	_, ok := g.LongestPath("bam", "reads")
	assert.False(t, ok)
}

func TestPrecomputePathsDetectsInvalidGrouping(t *testing.T) {
	r := item.NewRegistry()
	broken := &item.Module{
		Name:    "mutate",
		Inputs:  map[string]item.Item{"x": r.Intern("x")},
		Outputs: map[string]item.Item{"y": r.Intern("y")},
		GroupBy: map[string]item.Item{"x": r.Intern("unrelated")},
	}
	_, err := PrecomputePaths([]*item.Module{broken}, nil)
	assert.True(t, errors.Is(err, ErrInvalidGrouping))
}

func TestPrecomputePathsSucceeds(t *testing.T) {
	r := item.NewRegistry()
	paths, err := PrecomputePaths(modules(r), nil)
	require.NoError(t, err)
	path, ok := paths[PathKey{Start: "reads", Target: "trimmed"}]
	require.True(t, ok)
	assert.Equal(t, []string{"reads", "trim", "trimmed"}, path)
}

type fakeReservations struct {
	byInstance map[string][]*instance.JobInstance
	given      map[string][]*instance.ItemInstance
}

func (f fakeReservations) JobsConsuming(id string) []*instance.JobInstance {
	return f.byInstance[id]
}

func (f fakeReservations) GivenChildren(parentID, childItemKey string) []*instance.ItemInstance {
	return f.given[parentID+"|"+childItemKey]
}

func TestGroupFollowsCompletedJobs(t *testing.T) {
	ids := instance.NewIDAllocator()
	trimMod := &item.Module{Name: "trim"}

	root := instance.NewItemInstance(ids, "reads", "r1.fq", nil)
	trimJob := instance.NewJobInstance(ids, trimMod, map[string]instance.Values{"reads": instance.Single(root)})
	trimmed := instance.NewItemInstance(ids, "trimmed", "r1.trimmed.fq", trimJob)
	trimJob.MarkComplete(map[string]instance.Values{"trimmed": instance.Single(trimmed)})

	res := fakeReservations{byInstance: map[string][]*instance.JobInstance{
		root.ID(): {trimJob},
	}}

	path := []string{"reads", "trim", "trimmed"}
	group, pending := Group(path, root, res)
	require.False(t, pending)
	assert.Equal(t, []*instance.ItemInstance{trimmed}, group)
}

func TestGroupReportsPendingForIncompleteJob(t *testing.T) {
	ids := instance.NewIDAllocator()
	trimMod := &item.Module{Name: "trim"}

	root := instance.NewItemInstance(ids, "reads", "r1.fq", nil)
	trimJob := instance.NewJobInstance(ids, trimMod, map[string]instance.Values{"reads": instance.Single(root)})

	res := fakeReservations{byInstance: map[string][]*instance.JobInstance{
		root.ID(): {trimJob},
	}}

	_, pending := Group([]string{"reads", "trim", "trimmed"}, root, res)
	assert.True(t, pending)
}

func TestLongestPathFindsGivenLinkRoute(t *testing.T) {
	r := item.NewRegistry()
	r.Intern("sample")
	r.Intern("reads")
	g := Build(nil, []GivenLink{{RootKey: "sample", ChildKey: "reads"}})

	path, ok := g.LongestPath("sample", "reads")
	require.True(t, ok)
	assert.Equal(t, []string{"sample", GivenLinkModule("sample"), "reads"}, path)
}

func TestGroupFollowsGivenChildren(t *testing.T) {
	ids := instance.NewIDAllocator()
	sample := instance.NewItemInstance(ids, "sample", "s1", nil)
	read := instance.NewGivenChildInstance(ids, "reads", "r1.fq", sample)

	res := fakeReservations{given: map[string][]*instance.ItemInstance{
		sample.ID() + "|reads": {read},
	}}

	path := []string{"sample", GivenLinkModule("sample"), "reads"}
	group, pending := Group(path, sample, res)
	require.False(t, pending)
	assert.Equal(t, []*instance.ItemInstance{read}, group)
}
