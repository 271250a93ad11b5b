// Package moduledef loads ComputeModule declarations from a directory of
// module.yaml files, validating each against an embedded JSON Schema
// before registering it. Loading a module's declaration is a calling-side
// concern, distinct from the planner that consumes the resulting
// *item.Module: the module's own procedure (what actually runs) stays
// external, named only by the opaque Procedure field.
package moduledef

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/sourceplane/flowctl/internal/item"
)

// fileName is the declaration file moduledef looks for in each module
// subdirectory.
const fileName = "module.yaml"

const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "inputs", "outputs"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "inputs": {"type": "array", "items": {"type": "string"}},
    "outputs": {"type": "array", "items": {"type": "string"}},
    "group_by": {"type": "object", "additionalProperties": {"type": "string"}},
    "output_mask": {"type": "array", "items": {"type": "string"}},
    "procedure": {"type": "string"},
    "threads": {"type": "integer", "minimum": 0},
    "memory_gb": {"type": "integer", "minimum": 0}
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	schema, err := jsonschema.CompileString("module.schema.json", schemaJSON)
	if err != nil {
		panic(fmt.Sprintf("moduledef: schema does not compile: %v", err))
	}
	return schema
}

type declaration struct {
	Name       string            `yaml:"name"`
	Inputs     []string          `yaml:"inputs"`
	Outputs    []string          `yaml:"outputs"`
	GroupBy    map[string]string `yaml:"group_by"`
	OutputMask []string          `yaml:"output_mask"`
	Procedure  string            `yaml:"procedure"`
	Threads    int               `yaml:"threads"`
	MemoryGB   int               `yaml:"memory_gb"`
}

// LoadDir scans dir for immediate subdirectories each containing a
// module.yaml, validates each against the embedded schema, and registers
// the resulting *item.Module into registry. Items referenced by name are
// interned on registry as they are encountered.
func LoadDir(dir string, registry *item.Registry) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read module directory %s: %w", dir, err)
	}

	found := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), fileName)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		found++
		if err := loadOne(path, registry); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}

	if found == 0 {
		return fmt.Errorf("no %s files found under %s", fileName, dir)
	}
	return nil
}

func loadOne(path string, registry *item.Registry) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	var obj interface{}
	if err := yaml.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	jsonBytes, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("convert to json: %w", err)
	}
	var validateObj interface{}
	if err := json.Unmarshal(jsonBytes, &validateObj); err != nil {
		return fmt.Errorf("re-parse json: %w", err)
	}
	if err := compiledSchema.Validate(validateObj); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	var decl declaration
	if err := yaml.Unmarshal(raw, &decl); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	m := &item.Module{
		Name:       decl.Name,
		Inputs:     make(map[string]item.Item, len(decl.Inputs)),
		Outputs:    make(map[string]item.Item, len(decl.Outputs)),
		GroupBy:    make(map[string]item.Item, len(decl.GroupBy)),
		OutputMask: make(map[string]bool, len(decl.OutputMask)),
		Procedure:  decl.Procedure,
		Threads:    decl.Threads,
		MemoryGB:   decl.MemoryGB,
	}
	for _, k := range decl.Inputs {
		m.Inputs[k] = registry.Intern(k)
	}
	for _, k := range decl.Outputs {
		m.Outputs[k] = registry.Intern(k)
	}
	for inputKey, ancestorKey := range decl.GroupBy {
		m.GroupBy[inputKey] = registry.Intern(ancestorKey)
	}
	for _, k := range decl.OutputMask {
		m.OutputMask[k] = true
	}

	return registry.Register(m)
}
