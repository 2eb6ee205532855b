package workflow

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"condo-manager/backend/internal/validation"
	"condo-manager/backend/pkg/models"
)

//go:embed definition.schema.json
var definitionSchema string

const definitionSchemaURL = "https://condo-manager.local/schemas/workflow-definition.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(definitionSchemaURL, strings.NewReader(definitionSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile(definitionSchemaURL)
	})
	return compiledSchema, schemaErr
}

// DecodeDefinition parses one YAML definition document, checks it against the
// definition schema and compiles its custom expressions with v. v may be nil
// to skip expression compilation.
func DecodeDefinition(data []byte, v *validation.Validator) (models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return def, fmt.Errorf("parse yaml: %w", err)
	}
	// The schema validator wants JSON-shaped values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return def, fmt.Errorf("normalize document: %w", err)
	}
	var jsonDoc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&jsonDoc); err != nil {
		return def, fmt.Errorf("normalize document: %w", err)
	}

	sch, err := schema()
	if err != nil {
		return def, fmt.Errorf("compile definition schema: %w", err)
	}
	if err := sch.Validate(jsonDoc); err != nil {
		return def, fmt.Errorf("invalid definition: %w", err)
	}

	if err := yaml.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("decode definition: %w", err)
	}
	if v != nil {
		for _, step := range def.Steps {
			for _, rule := range step.ValidationRules {
				if rule.Expression == "" {
					continue
				}
				if err := v.Compile(rule.Expression); err != nil {
					return def, fmt.Errorf("step %s field %s: %w", step.ID, rule.Field, err)
				}
			}
		}
	}
	return def, nil
}

// LoadDefinitions reads every *.yaml and *.yml file below dir. Definitions
// are returned ordered by file path.
func LoadDefinitions(dir string, v *validation.Validator) ([]models.WorkflowDefinition, error) {
	paths, err := doublestar.FilepathGlob(filepath.Join(dir, "**", "*.{yaml,yml}"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	sort.Strings(paths)

	defs := make([]models.WorkflowDefinition, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		def, err := DecodeDefinition(data, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// RegisterDir loads the definitions below dir into r and returns how many
// were registered.
func RegisterDir(r *Registry, dir string, v *validation.Validator) (int, error) {
	defs, err := LoadDefinitions(dir, v)
	if err != nil {
		return 0, err
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return 0, err
		}
	}
	return len(defs), nil
}
