// Package workflow runs guided, multi-step procedures. A Registry holds the
// step definitions; an Engine keeps one live instance per workflow key, gates
// forward transitions on the current step's validation rules and persists
// instances through a Store.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"condo-manager/backend/internal/validation"
	"condo-manager/backend/pkg/models"
)

var (
	// ErrUnknownWorkflow is returned by Start when no definition matches the key.
	ErrUnknownWorkflow = errors.New("workflow not found")
	// ErrNotActive is returned by Mutate when no instance is active for the key.
	ErrNotActive = errors.New("no active workflow")
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Engine drives workflow instances. All methods are safe for concurrent use;
// states handed to callers are copies.
type Engine struct {
	registry  *Registry
	store     Store
	validator *validation.Validator
	logger    Logger
	clock     func() time.Time
	newID     func() string
	meter     metric.Meter

	starts      metric.Int64Counter
	transitions metric.Int64Counter

	mu     sync.Mutex
	active map[string]*models.WorkflowState
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithValidator shares a validator, and its compiled expression cache, with the engine.
func WithValidator(v *validation.Validator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithLogger sets the engine logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMeter records engine counters on m instead of the global meter.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) { e.meter = m }
}

// WithIDGenerator overrides how instance ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New creates an engine over registry and store.
func New(registry *Registry, store Store, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	e := &Engine{
		registry: registry,
		store:    store,
		logger:   nopLogger{},
		clock:    time.Now,
		newID:    uuid.NewString,
		active:   make(map[string]*models.WorkflowState),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.validator == nil {
		v, err := validation.New()
		if err != nil {
			return nil, fmt.Errorf("build validator: %w", err)
		}
		e.validator = v
	}
	if e.meter == nil {
		e.meter = otel.Meter("condo-manager/workflow")
	}

	var err error
	e.starts, err = e.meter.Int64Counter("workflow.starts",
		metric.WithDescription("Workflow instances started"))
	if err != nil {
		return nil, err
	}
	e.transitions, err = e.meter.Int64Counter("workflow.transitions",
		metric.WithDescription("Workflow step transitions by direction"))
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Registry returns the definition registry backing the engine.
func (e *Engine) Registry() *Registry { return e.registry }

// Validator returns the validator used to gate transitions.
func (e *Engine) Validator() *validation.Validator { return e.validator }

// Start creates a fresh instance for key, replacing any active one.
func (e *Engine) Start(key string, data map[string]any) (*models.WorkflowState, error) {
	def, ok := e.registry.Resolve(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, key)
	}

	now := e.clock()
	state := &models.WorkflowState{
		WorkflowID:     key,
		DefinitionID:   def.ID,
		InstanceID:     e.newID(),
		Data:           make(map[string]any, len(data)),
		CompletedSteps: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for k, v := range data {
		state.Data[k] = v
	}

	e.mu.Lock()
	e.active[key] = state
	out := state.Clone()
	e.mu.Unlock()

	e.starts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("workflow", def.ID)))
	e.logger.Info("workflow started", "workflow", key, "instance", state.InstanceID)
	return out, nil
}

// State returns a snapshot of the active instance, or nil.
func (e *Engine) State(key string) *models.WorkflowState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active[key].Clone()
}

// Definition returns the definition an active instance runs, falling back to
// resolving the key against the registry.
func (e *Engine) Definition(key string) (models.WorkflowDefinition, bool) {
	e.mu.Lock()
	state := e.active[key]
	e.mu.Unlock()
	if state != nil {
		return e.registry.Get(state.DefinitionID)
	}
	return e.registry.Resolve(key)
}

// CurrentStep returns the step the instance is on, or nil when there is no
// instance or its index no longer falls inside the definition.
func (e *Engine) CurrentStep(key string) *models.WorkflowStep {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, step := e.current(key)
	if step == nil {
		return nil
	}
	out := *step
	return &out
}

// current must be called with e.mu held.
func (e *Engine) current(key string) (*models.WorkflowState, *models.WorkflowStep) {
	state := e.active[key]
	if state == nil {
		return nil, nil
	}
	def, ok := e.registry.Get(state.DefinitionID)
	if !ok || state.CurrentStepIndex < 0 || state.CurrentStepIndex >= len(def.Steps) {
		return state, nil
	}
	return state, &def.Steps[state.CurrentStepIndex]
}

// UpdateData shallow-merges partial into the instance data. Keys are added or
// overwritten, never removed. It reports false when no instance is active.
func (e *Engine) UpdateData(key string, partial map[string]any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.active[key]
	if state == nil {
		return false
	}
	for k, v := range partial {
		state.Data[k] = v
	}
	state.UpdatedAt = e.clock()
	return true
}

// Mutate computes a partial update from the instance data and merges it, all
// under the engine lock, so concurrent read-modify-write sequences on the same
// instance never lose each other's keys. fn receives a shallow copy of the
// data and must not call back into the engine. Nothing is merged when fn
// returns an error.
func (e *Engine) Mutate(key string, fn func(data map[string]any) (map[string]any, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.active[key]
	if state == nil {
		return fmt.Errorf("%w: %s", ErrNotActive, key)
	}
	partial, err := fn(maps.Clone(state.Data))
	if err != nil {
		return err
	}
	for k, v := range partial {
		state.Data[k] = v
	}
	state.UpdatedAt = e.clock()
	return nil
}

// Prefill merges data fetched in the background into the instance started as
// instanceID. It applies at most once per instance, never overwrites keys that
// are already set, and is dropped when the instance was replaced or reset.
func (e *Engine) Prefill(key, instanceID string, data map[string]any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.active[key]
	if state == nil || state.InstanceID != instanceID || state.Prefilled {
		return false
	}
	for k, v := range data {
		if _, set := state.Data[k]; !set {
			state.Data[k] = v
		}
	}
	state.Prefilled = true
	state.UpdatedAt = e.clock()
	return true
}

// ValidateStep runs step's rules against data without touching any instance.
func (e *Engine) ValidateStep(step models.WorkflowStep, data map[string]any) validation.Result {
	return e.validator.Validate(step.ValidationRules, data)
}

// CanGoToNextStep reports whether the current step's rules pass.
func (e *Engine) CanGoToNextStep(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, step := e.current(key)
	if step == nil {
		return false
	}
	return e.validator.Validate(step.ValidationRules, state.Data).Valid
}

// NextStep validates the current step and, when it passes, marks it completed
// and advances. On the last step it completes the instance instead. It
// returns nil when the step fails validation, the instance is already
// complete or there is no instance; failures are kept in the state's Errors.
func (e *Engine) NextStep(key string) *models.WorkflowState {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, step := e.current(key)
	if step == nil || state.IsComplete {
		return nil
	}
	res := e.validator.Validate(step.ValidationRules, state.Data)
	if !res.Valid {
		state.Errors = res.ByField()
		e.record(state, "rejected")
		e.logger.Debug("workflow step rejected", "workflow", key, "step", step.ID, "errors", len(res.Errors))
		return nil
	}

	if !state.HasCompleted(step.ID) {
		state.CompletedSteps = append(state.CompletedSteps, step.ID)
	}
	def, _ := e.registry.Get(state.DefinitionID)
	direction := "next"
	if state.CurrentStepIndex < len(def.Steps)-1 {
		state.CurrentStepIndex++
	} else {
		state.IsComplete = true
		direction = "complete"
	}
	state.Errors = nil
	state.UpdatedAt = e.clock()
	e.record(state, direction)
	return state.Clone()
}

// SkipStep advances past the current step without validating it, provided
// the step allows skipping. A skipped step is not marked completed.
func (e *Engine) SkipStep(key string) *models.WorkflowState {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, step := e.current(key)
	if step == nil || state.IsComplete || !step.CanSkip {
		return nil
	}
	def, _ := e.registry.Get(state.DefinitionID)
	if state.CurrentStepIndex < len(def.Steps)-1 {
		state.CurrentStepIndex++
	} else {
		state.IsComplete = true
	}
	state.Errors = nil
	state.UpdatedAt = e.clock()
	e.record(state, "skip")
	return state.Clone()
}

// PreviousStep moves back one step and drops that step from the completed
// set. It returns nil on the first step or without an instance.
func (e *Engine) PreviousStep(key string) *models.WorkflowState {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.active[key]
	if state == nil || state.CurrentStepIndex <= 0 {
		return nil
	}
	state.CurrentStepIndex--
	if def, ok := e.registry.Get(state.DefinitionID); ok && state.CurrentStepIndex < len(def.Steps) {
		stepID := def.Steps[state.CurrentStepIndex].ID
		kept := state.CompletedSteps[:0]
		for _, id := range state.CompletedSteps {
			if id != stepID {
				kept = append(kept, id)
			}
		}
		state.CompletedSteps = kept
	}
	state.IsComplete = false
	state.Errors = nil
	state.UpdatedAt = e.clock()
	e.record(state, "previous")
	return state.Clone()
}

// Progress is round(index/total*100); 0 without an instance.
func (e *Engine) Progress(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.active[key]
	if state == nil {
		return 0
	}
	def, ok := e.registry.Get(state.DefinitionID)
	if !ok || len(def.Steps) == 0 {
		return 0
	}
	return int(math.Round(float64(state.CurrentStepIndex) / float64(len(def.Steps)) * 100))
}

// Save writes the active instance to the store. Without an instance it does nothing.
func (e *Engine) Save(ctx context.Context, key string) error {
	state := e.State(key)
	if state == nil {
		return nil
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode workflow %s: %w", key, err)
	}
	if err := e.store.Put(ctx, StateKey(key), blob); err != nil {
		return fmt.Errorf("save workflow %s: %w", key, err)
	}
	e.logger.Debug("workflow saved", "workflow", key, "bytes", len(blob))
	return nil
}

// Load restores a persisted instance and makes it the active one. It returns
// (nil, nil) when nothing is stored under key. Data values come back in their
// JSON-decoded form.
func (e *Engine) Load(ctx context.Context, key string) (*models.WorkflowState, error) {
	blob, err := e.store.Get(ctx, StateKey(key))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", key, err)
	}

	var state models.WorkflowState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", key, err)
	}
	if state.DefinitionID == "" {
		if def, ok := e.registry.Resolve(key); ok {
			state.DefinitionID = def.ID
		}
	}
	state.WorkflowID = key
	if state.Data == nil {
		state.Data = map[string]any{}
	}
	if state.CompletedSteps == nil {
		state.CompletedSteps = []string{}
	}
	if def, ok := e.registry.Get(state.DefinitionID); ok {
		if i := clampIndex(state.CurrentStepIndex, len(def.Steps)); i != state.CurrentStepIndex {
			e.logger.Error("stored step index out of range", "workflow", key, "index", state.CurrentStepIndex, "steps", len(def.Steps))
			state.CurrentStepIndex = i
		}
	}

	e.mu.Lock()
	e.active[key] = &state
	out := state.Clone()
	e.mu.Unlock()
	return out, nil
}

// Reset drops the active instance and its persisted state.
func (e *Engine) Reset(ctx context.Context, key string) error {
	e.mu.Lock()
	delete(e.active, key)
	e.mu.Unlock()

	if err := e.store.Delete(ctx, StateKey(key)); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("reset workflow %s: %w", key, err)
	}
	e.logger.Info("workflow reset", "workflow", key)
	return nil
}

// Active lists the keys of running instances.
func (e *Engine) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.active))
	for k := range e.active {
		out = append(out, k)
	}
	return out
}

func clampIndex(i, steps int) int {
	switch {
	case steps == 0 || i < 0:
		return 0
	case i >= steps:
		return steps - 1
	}
	return i
}

func (e *Engine) record(state *models.WorkflowState, direction string) {
	e.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("workflow", state.DefinitionID),
		attribute.String("direction", direction),
	))
}
