// Package api contains the HTTP handlers for the condominium assembly service
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"condo-manager/backend/internal/repository"
	"condo-manager/backend/internal/services"
	"condo-manager/backend/internal/tally"
	"condo-manager/backend/internal/workflow"
	"condo-manager/backend/pkg/models"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Pinger checks a backing dependency for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Error(msg string, args ...any)
}

// Server holds the dependencies for the API server.
type Server struct {
	Engine     *workflow.Engine
	Assemblies *services.AssemblyService
	DB         Pinger
	clock      func() time.Time
}

// NewServer creates a new Server. db may be nil when no relational store is
// configured.
func NewServer(engine *workflow.Engine, assemblies *services.AssemblyService, db Pinger) *Server {
	return &Server{Engine: engine, Assemblies: assemblies, DB: db, clock: time.Now}
}

var _ ServerInterface = (*Server)(nil)

// GetHealth returns service health; it degrades to 503 when the database is unreachable.
// (GET /health)
func (s *Server) GetHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Service:   "condo-manager",
		Version:   Version,
		Timestamp: s.clock().UTC(),
		Checks:    map[string]string{},
	}
	code := http.StatusOK
	if s.DB != nil {
		if err := s.DB.Ping(c.Request().Context()); err != nil {
			status.Status = "degraded"
			status.Checks["database"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status.Checks["database"] = "ok"
		}
	}
	return c.JSON(code, status)
}

// Problem is an RFC 7807 Problem Details error returned by handlers.
type Problem struct {
	models.ProblemDetails
}

func (p *Problem) Error() string {
	if p.Detail != "" {
		return p.Title + ": " + p.Detail
	}
	return p.Title
}

func newProblem(status int, detail string) *Problem {
	return &Problem{models.ProblemDetails{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}}
}

// problemFor maps domain errors to problems.
func problemFor(err error) *Problem {
	var p *Problem
	if errors.As(err, &p) {
		return p
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		detail := http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok {
			detail = msg
		}
		return newProblem(he.Code, detail)
	}
	switch {
	case errors.Is(err, workflow.ErrUnknownWorkflow),
		errors.Is(err, services.ErrNoAssembly),
		errors.Is(err, services.ErrUnknownItem),
		errors.Is(err, repository.ErrNotFound):
		return newProblem(http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrUnknownMember),
		errors.Is(err, tally.ErrNotVotable),
		errors.Is(err, tally.ErrInvalidMajority):
		return newProblem(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrVotesIncomplete),
		errors.Is(err, services.ErrVotingOpen),
		errors.Is(err, services.ErrQuorumNotMet):
		return newProblem(http.StatusConflict, err.Error())
	}
	return newProblem(http.StatusInternalServerError, err.Error())
}

// ErrorHandler renders every handler error as application/problem+json.
func ErrorHandler(logger Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		p := problemFor(err)
		if p.Status >= http.StatusInternalServerError && logger != nil {
			logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		}
		if p.Instance == "" {
			p.Instance = c.Request().URL.Path
		}
		c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(p.Status)
		} else {
			err = c.JSON(p.Status, p)
		}
		if err != nil && logger != nil {
			logger.Error("failed to write error response", "error", err)
		}
	}
}
