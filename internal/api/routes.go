package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers mounted under /api/v1.
type ServerInterface interface {
	// (GET /workflows)
	ListWorkflows(ctx echo.Context) error
	// (POST /workflows/{workflowId}/start)
	StartWorkflow(ctx echo.Context, workflowId string) error
	// (GET /workflows/{workflowId})
	GetWorkflow(ctx echo.Context, workflowId string) error
	// (DELETE /workflows/{workflowId})
	ResetWorkflow(ctx echo.Context, workflowId string) error
	// (PATCH /workflows/{workflowId}/data)
	UpdateWorkflowData(ctx echo.Context, workflowId string) error
	// (POST /workflows/{workflowId}/next)
	NextStep(ctx echo.Context, workflowId string) error
	// (POST /workflows/{workflowId}/skip)
	SkipStep(ctx echo.Context, workflowId string) error
	// (POST /workflows/{workflowId}/previous)
	PreviousStep(ctx echo.Context, workflowId string) error
	// (POST /workflows/{workflowId}/save)
	SaveWorkflow(ctx echo.Context, workflowId string) error
	// (POST /workflows/{workflowId}/load)
	LoadWorkflow(ctx echo.Context, workflowId string) error
	// (POST /assemblies/{buildingId}/minutes/{minuteId}/start)
	StartMinutes(ctx echo.Context, buildingId string, minuteId string) error
	// (PUT /assemblies/{workflowId}/attendance)
	RecordAttendance(ctx echo.Context, workflowId string) error
	// (PUT /assemblies/{workflowId}/votes/{itemNumber})
	RecordVotes(ctx echo.Context, workflowId string, itemNumber int) error
	// (POST /assemblies/{workflowId}/finalize)
	FinalizeMinutes(ctx echo.Context, workflowId string) error
	// (POST /quorum)
	CalculateQuorum(ctx echo.Context) error
	// (POST /tally)
	TallyVotes(ctx echo.Context) error
}

// ServerInterfaceWrapper converts echo contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func bindPath(ctx echo.Context, name string, dest any) error {
	err := runtime.BindStyledParameterWithOptions("simple", name, ctx.Param(name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter %s: %s", name, err))
	}
	return nil
}

// withWorkflowID adapts a handler taking the workflowId path parameter.
func withWorkflowID(h func(echo.Context, string) error) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var workflowId string
		if err := bindPath(ctx, "workflowId", &workflowId); err != nil {
			return err
		}
		return h(ctx, workflowId)
	}
}

// StartMinutes converts echo context to params.
func (w *ServerInterfaceWrapper) StartMinutes(ctx echo.Context) error {
	var buildingId, minuteId string
	if err := bindPath(ctx, "buildingId", &buildingId); err != nil {
		return err
	}
	if err := bindPath(ctx, "minuteId", &minuteId); err != nil {
		return err
	}
	return w.Handler.StartMinutes(ctx, buildingId, minuteId)
}

// RecordVotes converts echo context to params.
func (w *ServerInterfaceWrapper) RecordVotes(ctx echo.Context) error {
	var workflowId string
	var itemNumber int
	if err := bindPath(ctx, "workflowId", &workflowId); err != nil {
		return err
	}
	if err := bindPath(ctx, "itemNumber", &itemNumber); err != nil {
		return err
	}
	return w.Handler.RecordVotes(ctx, workflowId, itemNumber)
}

// EchoRouter is implemented by both echo.Echo and echo.Group.
type EchoRouter interface {
	DELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	PATCH(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	PUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// RegisterHandlers adds each server route to the EchoRouter.
func RegisterHandlers(router EchoRouter, si ServerInterface) {
	RegisterHandlersWithBaseURL(router, si, "")
}

// RegisterHandlersWithBaseURL registers handlers, and prepends BaseURL to the
// paths, so that the paths can be served under a prefix.
func RegisterHandlersWithBaseURL(router EchoRouter, si ServerInterface, baseURL string) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.GET(baseURL+"/workflows", si.ListWorkflows)
	router.POST(baseURL+"/workflows/:workflowId/start", withWorkflowID(si.StartWorkflow))
	router.GET(baseURL+"/workflows/:workflowId", withWorkflowID(si.GetWorkflow))
	router.DELETE(baseURL+"/workflows/:workflowId", withWorkflowID(si.ResetWorkflow))
	router.PATCH(baseURL+"/workflows/:workflowId/data", withWorkflowID(si.UpdateWorkflowData))
	router.POST(baseURL+"/workflows/:workflowId/next", withWorkflowID(si.NextStep))
	router.POST(baseURL+"/workflows/:workflowId/skip", withWorkflowID(si.SkipStep))
	router.POST(baseURL+"/workflows/:workflowId/previous", withWorkflowID(si.PreviousStep))
	router.POST(baseURL+"/workflows/:workflowId/save", withWorkflowID(si.SaveWorkflow))
	router.POST(baseURL+"/workflows/:workflowId/load", withWorkflowID(si.LoadWorkflow))
	router.POST(baseURL+"/assemblies/:buildingId/minutes/:minuteId/start", wrapper.StartMinutes)
	router.PUT(baseURL+"/assemblies/:workflowId/attendance", withWorkflowID(si.RecordAttendance))
	router.PUT(baseURL+"/assemblies/:workflowId/votes/:itemNumber", wrapper.RecordVotes)
	router.POST(baseURL+"/assemblies/:workflowId/finalize", withWorkflowID(si.FinalizeMinutes))
	router.POST(baseURL+"/quorum", si.CalculateQuorum)
	router.POST(baseURL+"/tally", si.TallyVotes)
}
