package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowctl/internal/instance"
	"github.com/sourceplane/flowctl/internal/item"
)

// fakeState is a minimal in-memory State for planner tests, independent of
// internal/state so planner tests do not depend on persistence.
type fakeState struct {
	byKey      map[string][]*instance.ItemInstance
	signatures map[string]bool
	paths      map[string][]string // "ancestor|input" -> path
	consuming  map[string][]*instance.JobInstance
	registered []*instance.JobInstance
}

func newFakeState() *fakeState {
	return &fakeState{
		byKey:      map[string][]*instance.ItemInstance{},
		signatures: map[string]bool{},
		paths:      map[string][]string{},
		consuming:  map[string][]*instance.JobInstance{},
	}
}

func (s *fakeState) add(key string, ii *instance.ItemInstance) {
	s.byKey[key] = append(s.byKey[key], ii)
}

func (s *fakeState) Instances(key string) []*instance.ItemInstance { return s.byKey[key] }
func (s *fakeState) HasSignature(sig string) bool                  { return s.signatures[sig] }
func (s *fakeState) GroupPath(ancestor, input string) ([]string, bool) {
	p, ok := s.paths[ancestor+"|"+input]
	return p, ok
}
func (s *fakeState) JobsConsuming(id string) []*instance.JobInstance { return s.consuming[id] }
func (s *fakeState) GivenChildren(parentID, childItemKey string) []*instance.ItemInstance {
	return nil
}
func (s *fakeState) Register(ji *instance.JobInstance) {
	s.signatures[instance.Signature(ji.Inputs)] = true
	s.registered = append(s.registered, ji)
}

func TestUpdateSkipsUnsatisfiedModule(t *testing.T) {
	st := newFakeState()
	m := &item.Module{Name: "align", Inputs: map[string]item.Item{"reads": {}}}
	created := Update([]*item.Module{m}, st, instance.NewIDAllocator())
	assert.Empty(t, created)
}

func TestUpdateCrossProductsUngroupedInputs(t *testing.T) {
	ids := instance.NewIDAllocator()
	st := newFakeState()
	r := item.NewRegistry()

	m := &item.Module{
		Name: "merge",
		Inputs: map[string]item.Item{
			"a": r.Intern("a"),
			"b": r.Intern("b"),
		},
	}

	st.add("a", instance.NewItemInstance(ids, "a", "a1", nil))
	st.add("a", instance.NewItemInstance(ids, "a", "a2", nil))
	st.add("b", instance.NewItemInstance(ids, "b", "b1", nil))

	created := Update([]*item.Module{m}, st, ids)
	assert.Len(t, created, 2)

	again := Update([]*item.Module{m}, st, ids)
	assert.Empty(t, again, "re-running Update with no new instances must not duplicate jobs")
}

func TestUpdateGroupedInputUsesProvenancePath(t *testing.T) {
	ids := instance.NewIDAllocator()
	st := newFakeState()
	r := item.NewRegistry()

	trimMod := &item.Module{Name: "trim"}
	alignMod := &item.Module{
		Name: "align",
		Inputs: map[string]item.Item{
			"trimmed": r.Intern("trimmed"),
		},
		GroupBy: map[string]item.Item{"trimmed": r.Intern("reads")},
	}

	root := instance.NewItemInstance(ids, "reads", "r1.fq", nil)
	st.add("reads", root)

	trimJob := instance.NewJobInstance(ids, trimMod, map[string]instance.Values{"reads": instance.Single(root)})
	trimmed := instance.NewItemInstance(ids, "trimmed", "r1.trimmed.fq", trimJob)
	trimJob.MarkComplete(map[string]instance.Values{"trimmed": instance.Single(trimmed)})
	st.add("trimmed", trimmed)
	st.consuming[root.ID()] = []*instance.JobInstance{trimJob}
	st.paths["reads|trimmed"] = []string{"reads", "trim", "trimmed"}

	created := Update([]*item.Module{alignMod}, st, ids)
	require.Len(t, created, 1)
	v := created[0].Inputs["trimmed"]
	got, ok := v.SingleValue()
	require.True(t, ok)
	assert.Equal(t, trimmed, got)
}

func TestUpdatePendingGroupSkipsModule(t *testing.T) {
	ids := instance.NewIDAllocator()
	st := newFakeState()
	r := item.NewRegistry()

	trimMod := &item.Module{Name: "trim"}
	alignMod := &item.Module{
		Name:    "align",
		Inputs:  map[string]item.Item{"trimmed": r.Intern("trimmed")},
		GroupBy: map[string]item.Item{"trimmed": r.Intern("reads")},
	}

	root := instance.NewItemInstance(ids, "reads", "r1.fq", nil)
	st.add("reads", root)
	st.add("trimmed", instance.NewItemInstance(ids, "trimmed", "placeholder", nil))

	trimJob := instance.NewJobInstance(ids, trimMod, map[string]instance.Values{"reads": instance.Single(root)})
	st.consuming[root.ID()] = []*instance.JobInstance{trimJob} // never marked complete
	st.paths["reads|trimmed"] = []string{"reads", "trim", "trimmed"}

	created := Update([]*item.Module{alignMod}, st, ids)
	assert.Empty(t, created)
}
