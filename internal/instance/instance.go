// Package instance implements the instance model: ItemInstance and
// JobInstance value types with stable IDs, provenance back-links, and
// signature-based deduplication.
package instance

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/sourceplane/flowctl/internal/item"
)

// ItemInstance is one concrete occurrence of an Item. Equality and use as a
// map key is by pointer identity: a distinct value per occurrence, even when
// its Value repeats.
type ItemInstance struct {
	id      string
	ItemKey string
	Value   string // opaque path-like handle, treated as a string by the core
	MadeBy  *JobInstance

	// GivenParent is set when this is a given (MadeBy == nil) instance
	// registered as a child of another given instance by an InputGroup: a
	// provenance link established by that logistical action, not by a
	// compute job. nil for a root given instance or any produced instance.
	GivenParent *ItemInstance
}

// ID returns the instance's stable 12-hex-char token.
func (ii *ItemInstance) ID() string { return ii.id }

// NewItemInstance constructs a given (MadeBy == nil) or produced ItemInstance.
// ids allocates and reserves a fresh 12-char token.
func NewItemInstance(ids *IDAllocator, itemKey, value string, madeBy *JobInstance) *ItemInstance {
	return &ItemInstance{
		id:      ids.New(12),
		ItemKey: itemKey,
		Value:   value,
		MadeBy:  madeBy,
	}
}

// NewGivenChildInstance constructs a given ItemInstance linked to parent as
// its provenance root, for an InputGroup's non-root values.
func NewGivenChildInstance(ids *IDAllocator, itemKey, value string, parent *ItemInstance) *ItemInstance {
	return &ItemInstance{
		id:          ids.New(12),
		ItemKey:     itemKey,
		Value:       value,
		GivenParent: parent,
	}
}

// RestoreItemInstance reconstructs an ItemInstance with a known ID, for use
// by the persistence loader, where IDs come from the save file rather than
// being freshly allocated.
func RestoreItemInstance(id, itemKey, value string, madeBy *JobInstance, givenParent *ItemInstance) *ItemInstance {
	return &ItemInstance{id: id, ItemKey: itemKey, Value: value, MadeBy: madeBy, GivenParent: givenParent}
}

// Values is a module input or output: either a single ItemInstance or an
// ordered list (grouped inputs / multi-valued outputs). The zero Values is
// invalid; use Single or Multi to construct one.
type Values struct {
	single *ItemInstance
	list   []*ItemInstance
}

// Single wraps one ItemInstance.
func Single(ii *ItemInstance) Values { return Values{single: ii} }

// Multi wraps an ordered list of ItemInstances. A single-element list is
// still stored as a list here; normalization to a scalar happens only at
// materialization time.
func Multi(iis []*ItemInstance) Values { return Values{list: iis} }

// IsList reports whether this Values holds a list (even of length 1).
func (v Values) IsList() bool { return v.list != nil }

// Flatten returns every ItemInstance contained, list or scalar.
func (v Values) Flatten() []*ItemInstance {
	if v.list != nil {
		return v.list
	}
	if v.single != nil {
		return []*ItemInstance{v.single}
	}
	return nil
}

// Normalized collapses a length-1 list to a scalar Values: lists of length
// 1 are normalized to scalars for storage.
func (v Values) Normalized() Values {
	if v.list != nil && len(v.list) == 1 {
		return Values{single: v.list[0]}
	}
	return v
}

// SingleValue returns the wrapped scalar and true, or nil/false if this is a list.
func (v Values) SingleValue() (*ItemInstance, bool) {
	if v.single != nil {
		return v.single, true
	}
	return nil, false
}

// ListValue returns the wrapped list and true, or nil/false if this is a scalar.
func (v Values) ListValue() ([]*ItemInstance, bool) {
	if v.list != nil {
		return v.list, true
	}
	return nil, false
}

// JobInstance is one scheduled execution of a module over specific
// ItemInstances.
type JobInstance struct {
	id       string
	Module   *item.Module
	Inputs   map[string]Values
	Outputs  map[string]Values // nil until completion
	Complete bool
}

// ID returns the job's stable 6-hex-char token.
func (ji *JobInstance) ID() string { return ji.id }

// NewJobInstance allocates a fresh JobInstance over the given input
// namespace.
func NewJobInstance(ids *IDAllocator, module *item.Module, inputs map[string]Values) *JobInstance {
	return &JobInstance{id: ids.New(6), Module: module, Inputs: inputs}
}

// RestoreJobInstance reconstructs a JobInstance with a known ID, for the
// persistence loader.
func RestoreJobInstance(id string, module *item.Module, inputs map[string]Values) *JobInstance {
	return &JobInstance{id: id, Module: module, Inputs: inputs}
}

// MarkComplete records a job's outputs and flips Complete. This is the only
// place a JobInstance changes after creation.
func (ji *JobInstance) MarkComplete(outputs map[string]Values) {
	ji.Outputs = outputs
	ji.Complete = true
}

// InputInstances flattens every ItemInstance consumed by this job, in
// signature order is not guaranteed here (callers needing deterministic
// order should sort by ID, see Signature).
func (ji *JobInstance) InputInstances() []*ItemInstance {
	return flattenValues(ji.Inputs)
}

// OutputInstances flattens every ItemInstance this job produced, or nil if
// the job has not completed.
func (ji *JobInstance) OutputInstances() []*ItemInstance {
	if ji.Outputs == nil {
		return nil
	}
	return flattenValues(ji.Outputs)
}

func flattenValues(m map[string]Values) []*ItemInstance {
	var out []*ItemInstance
	for _, v := range m {
		out = append(out, v.Flatten()...)
	}
	return out
}

// Signature computes a job's dedup key: the sorted, lexicographically
// concatenated IDs of every input instance (grouped inputs contribute their
// full set).
func Signature(inputs map[string]Values) string {
	var ids []string
	for _, v := range inputs {
		for _, ii := range v.Flatten() {
			ids = append(ids, ii.ID())
		}
	}
	sort.Strings(ids)
	return strings.Join(ids, "-")
}

// IDAllocator draws unique ID tokens, retrying on collision against a
// shared allocated set.
type IDAllocator struct {
	taken map[string]bool
}

// NewIDAllocator creates an allocator with no IDs reserved yet.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{taken: make(map[string]bool)}
}

// New draws a fresh token of length n, reserving it before returning.
func (a *IDAllocator) New(n int) string {
	for {
		raw := strings.ReplaceAll(uuid.NewString(), "-", "")
		if len(raw) < n {
			continue // practically unreachable: uuid hex is 32 chars
		}
		candidate := raw[:n]
		if a.taken[candidate] {
			continue
		}
		a.taken[candidate] = true
		return candidate
	}
}

// Reserve marks an externally-sourced ID (e.g. loaded from disk) as taken,
// so future New calls never collide with it.
func (a *IDAllocator) Reserve(id string) {
	a.taken[id] = true
}

// Taken reports whether id has already been allocated or reserved.
func (a *IDAllocator) Taken(id string) bool {
	return a.taken[id]
}
