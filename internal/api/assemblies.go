package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"condo-manager/backend/internal/quorum"
	"condo-manager/backend/internal/services"
	"condo-manager/backend/internal/tally"
	"condo-manager/backend/pkg/models"
)

// QuorumRequest is the body of the stateless quorum calculator.
type QuorumRequest struct {
	Members []models.Attendee   `json:"members"`
	Call    models.AssemblyCall `json:"call,omitempty"`
}

// QuorumResponse reports quorum together with the verdict for the call.
type QuorumResponse struct {
	models.QuorumResult
	Call models.AssemblyCall `json:"call"`
	Met  bool                `json:"met"`
}

// TallyRequest is the body of the stateless tally calculator.
type TallyRequest struct {
	Item    models.AgendaItem            `json:"item"`
	Members []models.Attendee            `json:"members"`
	Choices map[string]models.VoteChoice `json:"choices"`
}

// FinalizeResponse lists the agenda with results written back to the minute.
type FinalizeResponse struct {
	AgendaItems []models.AgendaItem `json:"agenda_items"`
}

// StartMinutes starts the minutes workflow of a building's minute
// (POST /api/v1/assemblies/{buildingId}/minutes/{minuteId}/start)
func (s *Server) StartMinutes(c echo.Context, buildingId string, minuteId string) error {
	data, err := bindData(c)
	if err != nil {
		return err
	}
	state, err := s.Assemblies.StartMinutes(c.Request().Context(), buildingId, minuteId, data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s.view(state.WorkflowID, state))
}

// RecordAttendance records attendance and returns the resulting quorum
// (PUT /api/v1/assemblies/{workflowId}/attendance)
func (s *Server) RecordAttendance(c echo.Context, workflowId string) error {
	var entries []services.AttendanceEntry
	if err := bindBody(c, &entries); err != nil {
		return err
	}
	res, err := s.Assemblies.RecordAttendance(workflowId, entries)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// RecordVotes records the choices on one agenda item and returns its tally
// (PUT /api/v1/assemblies/{workflowId}/votes/{itemNumber})
func (s *Server) RecordVotes(c echo.Context, workflowId string, itemNumber int) error {
	choices := map[string]models.VoteChoice{}
	if err := bindBody(c, &choices); err != nil {
		return err
	}
	rec, err := s.Assemblies.RecordVotes(workflowId, itemNumber, choices)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// FinalizeMinutes writes results back to the minute and publishes the event
// (POST /api/v1/assemblies/{workflowId}/finalize)
func (s *Server) FinalizeMinutes(c echo.Context, workflowId string) error {
	items, err := s.Assemblies.Finalize(c.Request().Context(), workflowId)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, FinalizeResponse{AgendaItems: items})
}

// CalculateQuorum computes quorum for an ad-hoc roster
// (POST /api/v1/quorum)
func (s *Server) CalculateQuorum(c echo.Context) error {
	var req QuorumRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	call := req.Call
	if call == "" {
		call = models.FirstCall
	}
	res := quorum.Calculate(req.Members)
	return c.JSON(http.StatusOK, QuorumResponse{QuorumResult: res, Call: call, Met: res.Met(call)})
}

// TallyVotes tallies one item for an ad-hoc roster
// (POST /api/v1/tally)
func (s *Server) TallyVotes(c echo.Context) error {
	var req TallyRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	rec, err := tally.Count(req.Item, req.Members, req.Choices)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}
