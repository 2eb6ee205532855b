package models

import (
	"fmt"
	"time"
)

// RuleKind is the check a ValidationRule performs
type RuleKind string

const (
	RuleRequired RuleKind = "required"
	RuleDate     RuleKind = "date"
	RuleNumber   RuleKind = "number"
	RuleEmail    RuleKind = "email"
	RuleCustom   RuleKind = "custom"
)

// Valid reports whether k is a known rule kind.
func (k RuleKind) Valid() bool {
	switch k {
	case RuleRequired, RuleDate, RuleNumber, RuleEmail, RuleCustom:
		return true
	}
	return false
}

// UnmarshalText rejects unknown rule kinds.
func (k *RuleKind) UnmarshalText(text []byte) error {
	v := RuleKind(text)
	if !v.Valid() {
		return fmt.Errorf("invalid rule kind %q", text)
	}
	*k = v
	return nil
}

// Predicate decides a custom rule. value is the rule's field; data is the whole
// accumulated workflow data for rules that depend on sibling fields.
type Predicate func(value any, data map[string]any) bool

// ValidationRule is one declarative check against a field of the workflow data.
type ValidationRule struct {
	Field   string   `json:"field" yaml:"field"`
	Kind    RuleKind `json:"kind" yaml:"kind"`
	Message string   `json:"message" yaml:"message"`
	// Predicate backs custom rules declared in Go.
	Predicate Predicate `json:"-" yaml:"-"`
	// Expression backs custom rules declared in definition files; it is a CEL
	// boolean expression over `value` and `data`.
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// LegalRequirement is statutory metadata attached to a step and shown verbatim.
type LegalRequirement struct {
	Article     string `json:"article" yaml:"article"`
	Description string `json:"description" yaml:"description"`
	Mandatory   bool   `json:"mandatory" yaml:"mandatory"`
	Penalty     string `json:"penalty,omitempty" yaml:"penalty,omitempty"`
}

// LegalContext lists the citations and notes that govern a whole workflow.
type LegalContext struct {
	Citations       []string `json:"citations,omitempty" yaml:"citations,omitempty"`
	ComplianceNotes []string `json:"compliance_notes,omitempty" yaml:"compliance_notes,omitempty"`
}

// WorkflowStep is one immutable stage of a guided procedure.
type WorkflowStep struct {
	ID                string            `json:"id" yaml:"id"`
	Title             string            `json:"title" yaml:"title"`
	Description       string            `json:"description,omitempty" yaml:"description,omitempty"`
	ValidationRules   []ValidationRule  `json:"validation_rules,omitempty" yaml:"validation_rules,omitempty"`
	RequiredRole      string            `json:"required_role,omitempty" yaml:"required_role,omitempty"`
	LegalRequirement  *LegalRequirement `json:"legal_requirement,omitempty" yaml:"legal_requirement,omitempty"`
	CanSkip           bool              `json:"can_skip,omitempty" yaml:"can_skip,omitempty"`
	EstimatedDuration time.Duration     `json:"estimated_duration,omitempty" yaml:"estimated_duration,omitempty"`
}

// WorkflowDefinition is a registered template of ordered steps.
type WorkflowDefinition struct {
	ID                string         `json:"id" yaml:"id"`
	Name              string         `json:"name" yaml:"name"`
	Category          string         `json:"category" yaml:"category"`
	Version           string         `json:"version,omitempty" yaml:"version,omitempty"`
	Steps             []WorkflowStep `json:"steps" yaml:"steps"`
	LegalContext      LegalContext   `json:"legal_context" yaml:"legal_context"`
	EstimatedDuration time.Duration  `json:"estimated_duration,omitempty" yaml:"estimated_duration,omitempty"`
}

// StepIndex returns the position of the step with the given id, or -1.
func (d WorkflowDefinition) StepIndex(stepID string) int {
	for i, step := range d.Steps {
		if step.ID == stepID {
			return i
		}
	}
	return -1
}

// WorkflowState is the mutable progress of one active workflow instance.
type WorkflowState struct {
	// WorkflowID keys the instance; it is the definition id, optionally scoped
	// as "<definition>:<scope>" so one definition can run for several subjects.
	WorkflowID       string            `json:"workflow_id"`
	DefinitionID     string            `json:"definition_id"`
	InstanceID       string            `json:"instance_id"`
	CurrentStepIndex int               `json:"current_step_index"`
	Data             map[string]any    `json:"data"`
	CompletedSteps   []string          `json:"completed_steps"`
	Errors           map[string]string `json:"errors,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	IsComplete       bool              `json:"is_complete"`
	Prefilled        bool              `json:"prefilled,omitempty"`
}

// Clone returns a copy that shares no maps or slices with s. Data values are
// copied shallowly.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	out := *s
	out.Data = make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		out.Data[k] = v
	}
	out.CompletedSteps = append([]string(nil), s.CompletedSteps...)
	if s.Errors != nil {
		out.Errors = make(map[string]string, len(s.Errors))
		for k, v := range s.Errors {
			out.Errors[k] = v
		}
	}
	return &out
}

// HasCompleted reports whether stepID is in the completed set.
func (s *WorkflowState) HasCompleted(stepID string) bool {
	for _, id := range s.CompletedSteps {
		if id == stepID {
			return true
		}
	}
	return false
}
