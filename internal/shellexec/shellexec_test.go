package shellexec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowctl/internal/executor"
	"github.com/sourceplane/flowctl/internal/instance"
	"github.com/sourceplane/flowctl/internal/item"
)

func TestRunReadsResultJSON(t *testing.T) {
	dir := t.TempDir()
	ids := instance.NewIDAllocator()
	m := &item.Module{
		Name: "trim",
		Procedure: `cat > result.json <<'EOF'
{"exit_code": 0, "manifest": {"trimmed": {"single": "out.fq"}}}
EOF`,
	}
	given := instance.NewItemInstance(ids, "reads", "r1.fq", nil)
	job := instance.NewJobInstance(ids, m, map[string]instance.Values{"reads": instance.Single(given)})

	e := New(nil, nil)
	res, err := e.Run(job, dir, executor.Params{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	single, ok := res.Manifest["trimmed"].Single()
	require.True(t, ok)
	assert.Equal(t, "out.fq", single)

	folder := filepath.Join(dir, "trim--"+job.ID())
	assert.DirExists(t, folder)
	assert.FileExists(t, filepath.Join(folder, "env.json"))
}

func TestRunMissingResultJSONFallsBackToExitCodeOne(t *testing.T) {
	dir := t.TempDir()
	ids := instance.NewIDAllocator()
	m := &item.Module{Name: "trim", Procedure: "true"}
	given := instance.NewItemInstance(ids, "reads", "r1.fq", nil)
	job := instance.NewJobInstance(ids, m, map[string]instance.Values{"reads": instance.Single(given)})

	e := New(nil, nil)
	res, err := e.Run(job, dir, executor.Params{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "missing result.json", res.ErrorMessage)
}

func TestRunWritesOutAndErrLogs(t *testing.T) {
	dir := t.TempDir()
	ids := instance.NewIDAllocator()
	m := &item.Module{Name: "trim", Procedure: "echo hello; echo oops 1>&2"}
	given := instance.NewItemInstance(ids, "reads", "r1.fq", nil)
	job := instance.NewJobInstance(ids, m, map[string]instance.Values{"reads": instance.Single(given)})

	e := New(nil, nil)
	_, err := e.Run(job, dir, executor.Params{}, nil)
	require.NoError(t, err)

	folder := filepath.Join(dir, "trim--"+job.ID())
	out, err := os.ReadFile(filepath.Join(folder, "out.log"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "hello")
	errOut, err := os.ReadFile(filepath.Join(folder, "err.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errOut), "oops")
}
