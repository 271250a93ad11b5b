package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowctl/internal/item"
)

func TestIDAllocatorNoDuplicates(t *testing.T) {
	a := NewIDAllocator()
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		id := a.New(6)
		require.False(t, seen[id], "allocator produced duplicate id %s", id)
		seen[id] = true
		assert.True(t, a.Taken(id))
	}
}

func TestIDAllocatorReserve(t *testing.T) {
	a := NewIDAllocator()
	a.Reserve("abc123")
	assert.True(t, a.Taken("abc123"))
}

func TestValuesFlattenAndNormalize(t *testing.T) {
	ids := NewIDAllocator()
	one := NewItemInstance(ids, "reads", "r1.fq", nil)

	single := Single(one)
	assert.False(t, single.IsList())
	assert.Equal(t, []*ItemInstance{one}, single.Flatten())

	multi := Multi([]*ItemInstance{one})
	assert.True(t, multi.IsList())
	normalized := multi.Normalized()
	assert.False(t, normalized.IsList())
	got, ok := normalized.SingleValue()
	require.True(t, ok)
	assert.Equal(t, one, got)

	two := NewItemInstance(ids, "reads", "r2.fq", nil)
	wide := Multi([]*ItemInstance{one, two})
	assert.True(t, wide.Normalized().IsList())
}

func TestSignatureIsOrderIndependent(t *testing.T) {
	ids := NewIDAllocator()
	a := NewItemInstance(ids, "reads", "r1.fq", nil)
	b := NewItemInstance(ids, "reads", "r2.fq", nil)

	sig1 := Signature(map[string]Values{"reads": Multi([]*ItemInstance{a, b})})
	sig2 := Signature(map[string]Values{"reads": Multi([]*ItemInstance{b, a})})
	assert.Equal(t, sig1, sig2)

	c := NewItemInstance(ids, "reads", "r3.fq", nil)
	sig3 := Signature(map[string]Values{"reads": Multi([]*ItemInstance{a, c})})
	assert.NotEqual(t, sig1, sig3)
}

func TestJobInstanceMarkComplete(t *testing.T) {
	ids := NewIDAllocator()
	m := &item.Module{Name: "align"}
	in := NewItemInstance(ids, "reads", "r1.fq", nil)

	job := NewJobInstance(ids, m, map[string]Values{"reads": Single(in)})
	assert.False(t, job.Complete)
	assert.Nil(t, job.OutputInstances())

	out := NewItemInstance(ids, "bam", "out.bam", job)
	job.MarkComplete(map[string]Values{"bam": Single(out)})

	assert.True(t, job.Complete)
	assert.Equal(t, []*ItemInstance{out}, job.OutputInstances())
	assert.Equal(t, []*ItemInstance{in}, job.InputInstances())
}
