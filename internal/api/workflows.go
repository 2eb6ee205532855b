package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"condo-manager/backend/pkg/models"
)

// WorkflowView is the state of an instance together with its position.
type WorkflowView struct {
	State       *models.WorkflowState `json:"state"`
	CurrentStep *models.WorkflowStep  `json:"current_step,omitempty"`
	Progress    int                   `json:"progress"`
	CanAdvance  bool                  `json:"can_advance"`
}

func (s *Server) view(key string, state *models.WorkflowState) WorkflowView {
	return WorkflowView{
		State:       state,
		CurrentStep: s.Engine.CurrentStep(key),
		Progress:    s.Engine.Progress(key),
		CanAdvance:  s.Engine.CanGoToNextStep(key),
	}
}

func (s *Server) activeView(c echo.Context, key string) error {
	state := s.Engine.State(key)
	if state == nil {
		return newProblem(http.StatusNotFound, "no active workflow "+key)
	}
	return c.JSON(http.StatusOK, s.view(key, state))
}

// bindBody decodes the request body only; c.Bind would also copy path
// parameters into map destinations.
func bindBody(c echo.Context, dest any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dest); err != nil {
		return newProblem(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return nil
}

func bindData(c echo.Context) (map[string]any, error) {
	data := map[string]any{}
	if err := bindBody(c, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// ListWorkflows returns the registered definitions
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Engine.Registry().List())
}

// StartWorkflow creates a fresh instance seeded with the request body
// (POST /api/v1/workflows/{workflowId}/start)
func (s *Server) StartWorkflow(c echo.Context, workflowId string) error {
	data, err := bindData(c)
	if err != nil {
		return err
	}
	state, err := s.Engine.Start(workflowId, data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s.view(workflowId, state))
}

// GetWorkflow returns the active instance
// (GET /api/v1/workflows/{workflowId})
func (s *Server) GetWorkflow(c echo.Context, workflowId string) error {
	return s.activeView(c, workflowId)
}

// ResetWorkflow discards the instance and its persisted state
// (DELETE /api/v1/workflows/{workflowId})
func (s *Server) ResetWorkflow(c echo.Context, workflowId string) error {
	if err := s.Engine.Reset(c.Request().Context(), workflowId); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateWorkflowData merges the request body into the instance data
// (PATCH /api/v1/workflows/{workflowId}/data)
func (s *Server) UpdateWorkflowData(c echo.Context, workflowId string) error {
	data, err := bindData(c)
	if err != nil {
		return err
	}
	if !s.Engine.UpdateData(workflowId, data) {
		return newProblem(http.StatusNotFound, "no active workflow "+workflowId)
	}
	return s.activeView(c, workflowId)
}

// NextStep validates the current step and advances
// (POST /api/v1/workflows/{workflowId}/next)
func (s *Server) NextStep(c echo.Context, workflowId string) error {
	if state := s.Engine.NextStep(workflowId); state != nil {
		return c.JSON(http.StatusOK, s.view(workflowId, state))
	}
	state := s.Engine.State(workflowId)
	switch {
	case state == nil:
		return newProblem(http.StatusNotFound, "no active workflow "+workflowId)
	case state.IsComplete:
		return newProblem(http.StatusConflict, "workflow is already complete")
	case len(state.Errors) > 0:
		p := newProblem(http.StatusUnprocessableEntity, "the current step has validation errors")
		p.Errors = state.Errors
		return p
	}
	return newProblem(http.StatusConflict, "workflow cannot advance")
}

// SkipStep advances past an optional step
// (POST /api/v1/workflows/{workflowId}/skip)
func (s *Server) SkipStep(c echo.Context, workflowId string) error {
	if state := s.Engine.SkipStep(workflowId); state != nil {
		return c.JSON(http.StatusOK, s.view(workflowId, state))
	}
	if s.Engine.State(workflowId) == nil {
		return newProblem(http.StatusNotFound, "no active workflow "+workflowId)
	}
	return newProblem(http.StatusConflict, "the current step cannot be skipped")
}

// PreviousStep moves back one step
// (POST /api/v1/workflows/{workflowId}/previous)
func (s *Server) PreviousStep(c echo.Context, workflowId string) error {
	if state := s.Engine.PreviousStep(workflowId); state != nil {
		return c.JSON(http.StatusOK, s.view(workflowId, state))
	}
	if s.Engine.State(workflowId) == nil {
		return newProblem(http.StatusNotFound, "no active workflow "+workflowId)
	}
	return newProblem(http.StatusConflict, "already at the first step")
}

// SaveWorkflow persists the active instance
// (POST /api/v1/workflows/{workflowId}/save)
func (s *Server) SaveWorkflow(c echo.Context, workflowId string) error {
	if s.Engine.State(workflowId) == nil {
		return newProblem(http.StatusNotFound, "no active workflow "+workflowId)
	}
	if err := s.Engine.Save(c.Request().Context(), workflowId); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// LoadWorkflow restores a persisted instance
// (POST /api/v1/workflows/{workflowId}/load)
func (s *Server) LoadWorkflow(c echo.Context, workflowId string) error {
	state, err := s.Engine.Load(c.Request().Context(), workflowId)
	if err != nil {
		return err
	}
	if state == nil {
		return newProblem(http.StatusNotFound, "no saved state for "+workflowId)
	}
	return c.JSON(http.StatusOK, s.view(workflowId, state))
}
