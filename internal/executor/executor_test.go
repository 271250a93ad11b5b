package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestValueSingle(t *testing.T) {
	v := SingleValue("out.bam")
	assert.False(t, v.IsList())
	single, ok := v.Single()
	require.True(t, ok)
	assert.Equal(t, "out.bam", single)
	_, ok = v.List()
	assert.False(t, ok)
}

func TestManifestValueList(t *testing.T) {
	v := ListValue([]string{"a.bam", "b.bam"})
	assert.True(t, v.IsList())
	list, ok := v.List()
	require.True(t, ok)
	assert.Equal(t, []string{"a.bam", "b.bam"}, list)
	_, ok = v.Single()
	assert.False(t, ok)
}
