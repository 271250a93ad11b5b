package moduledef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowctl/internal/item"
)

func writeModule(t *testing.T, dir, name, yaml string) {
	t.Helper()
	sub := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, fileName), []byte(yaml), 0o644))
}

func TestLoadDirRegistersValidModule(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "trim", `
name: trim
inputs: [reads]
outputs: [trimmed]
group_by:
  trimmed: reads
output_mask: []
procedure: "trim.sh"
threads: 2
memory_gb: 4
`)

	registry := item.NewRegistry()
	require.NoError(t, LoadDir(dir, registry))

	m, ok := registry.Module("trim")
	require.True(t, ok)
	assert.Equal(t, "trim.sh", m.Procedure)
	assert.Equal(t, 2, m.Threads)
	_, hasReads := m.Inputs["reads"]
	assert.True(t, hasReads)
	anc, grouped := m.Grouped("trimmed")
	require.True(t, grouped)
	assert.Equal(t, "reads", anc.Key())
}

func TestLoadDirRejectsInvalidDeclaration(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "broken", `
inputs: [reads]
outputs: [trimmed]
`) // missing required "name"

	registry := item.NewRegistry()
	err := LoadDir(dir, registry)
	assert.Error(t, err)
}

func TestLoadDirErrorsWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	registry := item.NewRegistry()
	err := LoadDir(dir, registry)
	assert.Error(t, err)
}
