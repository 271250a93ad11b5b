package workflow

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sourceplane/flowctl/internal/state"
)

// InputGroup is one root given value plus the child given values provided
// alongside it (e.g. a sample and its paired read files). LinkInputs
// registers the whole group as given ItemInstances in one call.
type InputGroup struct {
	RootKey   string
	RootValue string
	Children  map[string][]string // item key -> values
}

// NewInputGroup starts a group rooted at one given value.
func NewInputGroup(rootKey, rootValue string) *InputGroup {
	return &InputGroup{RootKey: rootKey, RootValue: rootValue, Children: map[string][]string{}}
}

// AddChild appends given values for a child item key.
func (g *InputGroup) AddChild(key string, values ...string) {
	g.Children[key] = append(g.Children[key], values...)
}

// LinkInputs symlinks the root value and every child value into
// workspace/inputs, named NNNN--<basename> in discovery order, and
// registers each as a given ItemInstance on st. The root is registered
// first; every child is linked to it as its provenance parent, matching
// spec.md's requirement that the root's construction establishes provenance
// over all of its children. Returns ErrGivenPathMissing if any value does
// not exist on disk.
func (g *InputGroup) LinkInputs(workspace string, st *state.WorkflowState) error {
	inputsDir := filepath.Join(workspace, "inputs")
	if err := os.MkdirAll(inputsDir, 0o755); err != nil {
		return fmt.Errorf("create inputs dir: %w", err)
	}

	next, err := nextInputIndex(inputsDir)
	if err != nil {
		return err
	}

	symlink := func(value string) (string, error) {
		if _, statErr := os.Stat(value); statErr != nil {
			return "", fmt.Errorf("%w: %s", ErrGivenPathMissing, value)
		}
		linkPath := filepath.Join(inputsDir, fmt.Sprintf("%04d--%s", next, filepath.Base(value)))
		next++
		if err := os.Symlink(value, linkPath); err != nil {
			return "", fmt.Errorf("link input %s: %w", value, err)
		}
		return linkPath, nil
	}

	rootPath, err := symlink(g.RootValue)
	if err != nil {
		return err
	}
	root := st.AddGiven(g.RootKey, rootPath)

	for key, values := range g.Children {
		for _, v := range values {
			childPath, err := symlink(v)
			if err != nil {
				return err
			}
			st.AddGivenChild(key, childPath, root)
		}
	}
	return nil
}

func nextInputIndex(inputsDir string) (int, error) {
	entries, err := os.ReadDir(inputsDir)
	if err != nil {
		return 0, fmt.Errorf("read inputs dir: %w", err)
	}
	return len(entries), nil
}
