package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"condo-manager/backend/internal/assembly"
	"condo-manager/backend/internal/repository"
	"condo-manager/backend/internal/services"
	"condo-manager/backend/internal/workflow"
	"condo-manager/backend/pkg/models"
)

type NoOpLogger struct{}

func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	echo  *echo.Echo
	repo  *repository.MemoryRepository
	svc   *services.AssemblyService
	store *workflow.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	repo := repository.NewMemoryRepository()
	require.NoError(t, repo.CreateBuilding(ctx, &models.Building{ID: "b1", Name: "Edifício Aurora"}))
	for i := 1; i <= 10; i++ {
		require.NoError(t, repo.AddMember(ctx, "b1", models.Member{
			ID:       fmt.Sprintf("m%d", i),
			Name:     fmt.Sprintf("Owner %d", i),
			Fraction: fmt.Sprintf("%02d", i),
			Weight:   models.PermilleOf(100),
		}))
	}
	held := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateMinute(ctx, &models.Minute{
		ID: "minute-1", BuildingID: "b1", Number: 1, HeldAt: &held, Location: "Hall", Call: models.FirstCall,
		AgendaItems: []models.AgendaItem{
			{Number: 1, Title: "Accounts", Kind: models.AgendaVotable, Majority: models.MajoritySimple},
			{Number: 2, Title: "Facade works", Kind: models.AgendaVotable, Majority: models.MajorityQualified},
		},
	}))

	reg := workflow.NewRegistry()
	require.NoError(t, assembly.Register(reg))
	store := workflow.NewMemoryStore()
	engine, err := workflow.New(reg, store)
	require.NoError(t, err)
	svc := services.NewAssemblyService(engine, repo, repo, nil, NoOpLogger{})

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(NoOpLogger{})
	srv := NewServer(engine, svc, repo)
	e.GET("/health", srv.GetHealth)
	RegisterHandlers(e.Group("/api/v1"), srv)
	return &testServer{echo: e, repo: repo, svc: svc, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[models.HealthStatus](t, rec)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "ok", status.Checks["database"])

	e := echo.New()
	e.GET("/health", NewServer(nil, nil, failingPinger{}).GetHealth)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestListWorkflows(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/workflows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	defs := decodeBody[[]map[string]any](t, rec)
	require.Len(t, defs, 2)
	assert.Equal(t, assembly.ConvocationWorkflowID, defs[0]["id"])
	assert.Equal(t, assembly.MinutesWorkflowID, defs[1]["id"])
}

func TestStartUnknownWorkflow(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/nope/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))
	p := decodeBody[models.ProblemDetails](t, rec)
	assert.Equal(t, http.StatusNotFound, p.Status)
	assert.Contains(t, p.Detail, "nope")
	assert.Equal(t, "/api/v1/workflows/nope/start", p.Instance)
}

func TestWorkflowNavigation(t *testing.T) {
	ts := newTestServer(t)
	base := "/api/v1/workflows/" + assembly.ConvocationWorkflowID

	rec := ts.do(t, http.MethodPost, base+"/start", map[string]any{"buildingId": "b1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decodeBody[WorkflowView](t, rec)
	assert.Equal(t, 0, view.Progress)
	require.NotNil(t, view.CurrentStep)
	assert.False(t, view.CanAdvance)

	rec = ts.do(t, http.MethodPost, base+"/next", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	p := decodeBody[models.ProblemDetails](t, rec)
	assert.NotEmpty(t, p.Errors)

	rec = ts.do(t, http.MethodPost, base+"/previous", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/skip", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPatch, base+"/data", map[string]any{"meetingDate": "2025-03-01"})
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeBody[WorkflowView](t, rec)
	assert.Equal(t, "2025-03-01", view.State.Data["meetingDate"])
	assert.Equal(t, "b1", view.State.Data["buildingId"])
	assert.NotContains(t, view.State.Data, "workflowId", "path parameters never leak into the data blob")

	rec = ts.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/save", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, ts.store.Keys(), workflow.StateKey(assembly.ConvocationWorkflowID))

	rec = ts.do(t, http.MethodPost, base+"/load", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeBody[WorkflowView](t, rec)
	assert.Equal(t, "2025-03-01", view.State.Data["meetingDate"])

	rec = ts.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodPost, base+"/load", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodPatch, base+"/data", map[string]any{"x": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartWorkflow_InvalidBody(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/"+assembly.ConvocationWorkflowID+"/start", strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssemblyLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/assemblies/b1/minutes/minute-1/start", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ts.svc.Wait()
	view := decodeBody[WorkflowView](t, rec)
	key := view.State.WorkflowID
	require.Equal(t, "assembly-minutes:minute-1", key)
	base := "/api/v1/workflows/" + key

	// preparation is complete once the minute record is prefilled
	rec = ts.do(t, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	attendance := make([]services.AttendanceEntry, 0, 10)
	for i := 1; i <= 10; i++ {
		e := services.AttendanceEntry{MemberID: fmt.Sprintf("m%d", i), Attendance: models.AttendanceAbsent}
		if i <= 6 {
			e.Attendance = models.AttendancePresent
		}
		attendance = append(attendance, e)
	}
	rec = ts.do(t, http.MethodPut, "/api/v1/assemblies/"+key+"/attendance", attendance)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decodeBody[models.QuorumResult](t, rec)
	assert.Equal(t, models.PermilleOf(600), q.CombinedWeight)
	assert.True(t, q.FirstCallQuorumMet)
	assert.InDelta(t, 60.0, q.QuorumPercentage, 1e-9)

	rec = ts.do(t, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/assemblies/"+key+"/finalize", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	favor := map[string]string{}
	for i := 1; i <= 6; i++ {
		favor[fmt.Sprintf("m%d", i)] = "favor"
	}
	rec = ts.do(t, http.MethodPut, "/api/v1/assemblies/"+key+"/votes/1", favor)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[models.VoteRecord](t, rec).Passed)

	rec = ts.do(t, http.MethodPut, "/api/v1/assemblies/"+key+"/votes/2", favor)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	vr := decodeBody[models.VoteRecord](t, rec)
	assert.False(t, vr.Passed, "600‰ is below two thirds of the building")
	assert.Equal(t, models.PermilleOf(1000), vr.TotalBuildingWeight)

	rec = ts.do(t, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/assemblies/"+key+"/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	final := decodeBody[FinalizeResponse](t, rec)
	require.Len(t, final.AgendaItems, 2)
	require.NotNil(t, final.AgendaItems[0].Result)
	assert.True(t, final.AgendaItems[0].Result.Passed)

	minute, err := ts.repo.GetMinute(context.Background(), "minute-1")
	require.NoError(t, err)
	require.NotNil(t, minute.AgendaItems[1].Result)
	assert.False(t, minute.AgendaItems[1].Result.Passed)
}

func TestAssemblyErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/v1/assemblies/assembly-minutes:none/attendance", []services.AttendanceEntry{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/assemblies/b1/minutes/minute-1/start", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	ts.svc.Wait()
	key := "assembly-minutes:minute-1"

	rec = ts.do(t, http.MethodPut, "/api/v1/assemblies/"+key+"/votes/abc", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/assemblies/"+key+"/votes/7", map[string]string{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/assemblies/"+key+"/votes/1", map[string]string{"m1": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/assemblies/"+key+"/attendance", []map[string]string{{"member_id": "ghost", "attendance": "present"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/assemblies/"+key+"/finalize", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	minute, err := ts.repo.GetMinute(context.Background(), "minute-1")
	require.NoError(t, err)
	for _, item := range minute.AgendaItems {
		assert.Nil(t, item.Result, "nothing is written back before voting closes")
	}
}

func TestCalculators(t *testing.T) {
	ts := newTestServer(t)

	members := []map[string]any{
		{"id": "a", "name": "A", "weight": 650, "attendance": "present"},
		{"id": "b", "name": "B", "weight": "350", "attendance": "absent"},
	}
	rec := ts.do(t, http.MethodPost, "/api/v1/quorum", map[string]any{"members": members, "call": "second"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decodeBody[QuorumResponse](t, rec)
	assert.True(t, q.Met)
	assert.Equal(t, models.SecondCall, q.Call)
	assert.Equal(t, models.PermilleOf(650), q.CombinedWeight)

	rec = ts.do(t, http.MethodPost, "/api/v1/tally", map[string]any{
		"item":    map[string]any{"number": 1, "kind": "votable", "majority": "qualified"},
		"members": members,
		"choices": map[string]string{"a": "favor"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	vr := decodeBody[models.VoteRecord](t, rec)
	assert.False(t, vr.Passed, "650*3 < 1000*2")

	rec = ts.do(t, http.MethodPost, "/api/v1/tally", map[string]any{
		"item": map[string]any{"number": 2, "kind": "informative"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/quorum", map[string]any{"members": []any{}})
	require.Equal(t, http.StatusOK, rec.Code)
	q = decodeBody[QuorumResponse](t, rec)
	assert.Zero(t, q.QuorumPercentage)
	assert.False(t, q.Met)
}

func TestRateLimiter(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(nil)
	e.Use(RateLimiter(1, 1))
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	first := httptest.NewRecorder()
	e.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ping", nil))
	second := httptest.NewRecorder()
	e.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	open := echo.New()
	open.Use(RateLimiter(0, 0))
	open.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestSpecAndSwaggerHandlers(t *testing.T) {
	rec := httptest.NewRecorder()
	SpecHandler("https://example.okta.com/oauth2/default")(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://example.okta.com/oauth2/default/v1/authorize")
	assert.NotContains(t, rec.Body.String(), "{oktaIssuer}")

	rec = httptest.NewRecorder()
	SwaggerHandler("https://example.okta.com", "swagger-client")(rec, httptest.NewRequest(http.MethodGet, "http://localhost:8080/docs", nil))
	assert.Contains(t, rec.Body.String(), `clientId: "swagger-client"`)
	assert.Contains(t, rec.Body.String(), "http://localhost:8080/docs/oauth2-redirect.html")

	rec = httptest.NewRecorder()
	OAuth2RedirectHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs/oauth2-redirect.html", nil))
	assert.Contains(t, rec.Body.String(), "swaggerUIRedirectCallback")
}
