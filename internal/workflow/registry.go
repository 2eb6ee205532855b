package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"condo-manager/backend/pkg/models"
)

// ScopeSeparator splits a scoped workflow key such as "assembly-minutes:42"
// into its definition id and scope.
const ScopeSeparator = ":"

// Registry holds workflow definitions by id. Registering a definition never
// touches instances that are already running.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]models.WorkflowDefinition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]models.WorkflowDefinition)}
}

// Register adds def, replacing any definition with the same id.
func (r *Registry) Register(def models.WorkflowDefinition) error {
	if def.ID == "" {
		return errors.New("workflow definition has no id")
	}
	if strings.Contains(def.ID, ScopeSeparator) {
		return fmt.Errorf("workflow id %q must not contain %q", def.ID, ScopeSeparator)
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("workflow %s has no steps", def.ID)
	}
	seen := make(map[string]bool, len(def.Steps))
	for _, step := range def.Steps {
		if step.ID == "" {
			return fmt.Errorf("workflow %s has a step without id", def.ID)
		}
		if seen[step.ID] {
			return fmt.Errorf("workflow %s repeats step %s", def.ID, step.ID)
		}
		seen[step.ID] = true
	}

	r.mu.Lock()
	r.defs[def.ID] = def
	r.mu.Unlock()
	return nil
}

// Get returns the definition registered under id.
func (r *Registry) Get(id string) (models.WorkflowDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}

// Resolve finds the definition for a workflow key, which is either a plain
// definition id or a scoped "<definition>:<scope>" key.
func (r *Registry) Resolve(key string) (models.WorkflowDefinition, bool) {
	if def, ok := r.Get(key); ok {
		return def, true
	}
	id, _, found := strings.Cut(key, ScopeSeparator)
	if !found {
		return models.WorkflowDefinition{}, false
	}
	return r.Get(id)
}

// List returns every definition ordered by id.
func (r *Registry) List() []models.WorkflowDefinition {
	r.mu.RLock()
	out := make([]models.WorkflowDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ScopedKey builds the workflow key for one subject of a definition.
func ScopedKey(definitionID, scope string) string {
	if scope == "" {
		return definitionID
	}
	return definitionID + ScopeSeparator + scope
}
