// Package mcp exposes the assembly calculators and workflow status as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"condo-manager/backend/internal/quorum"
	"condo-manager/backend/internal/tally"
	"condo-manager/backend/internal/workflow"
	"condo-manager/backend/pkg/models"
)

type Server struct {
	mcpServer *server.MCPServer
	engine    *workflow.Engine
}

func NewServer(engine *workflow.Engine) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Condo Manager",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		engine: engine,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"quorum_check",
			mcp.WithDescription("Compute ownership-weighted quorum for an assembly roster"),
			mcp.WithArray("members", mcp.Required(), mcp.Description("Attendees: id, name, weight in per-mille, attendance (present|represented|absent)")),
			mcp.WithString("call", mcp.Description("first or second call; defaults to first"), mcp.Enum("first", "second")),
		),
		s.handleQuorumCheck,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"vote_tally",
			mcp.WithDescription("Tally one votable agenda item under its majority rule"),
			mcp.WithObject("item", mcp.Required(), mcp.Description("Agenda item: number, kind, majority (simple|qualified)")),
			mcp.WithArray("members", mcp.Required(), mcp.Description("The full roster with attendance; absentees count towards qualified majorities")),
			mcp.WithObject("choices", mcp.Required(), mcp.Description("Member id to favor|against|abstain")),
		),
		s.handleVoteTally,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"workflow_status",
			mcp.WithDescription("Report the current step, progress and legal requirement of an active workflow"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow key, e.g. assembly-minutes:<minuteId>")),
		),
		s.handleWorkflowStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List the registered workflow definitions"),
		),
		s.handleListWorkflows,
	)
}

// decodeArg converts a JSON-shaped tool argument into a typed value.
func decodeArg(args map[string]interface{}, key string, out any) error {
	v, ok := args[key]
	if !ok || v == nil {
		return fmt.Errorf("missing required parameter: %s", key)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("invalid parameter %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid parameter %s: %w", key, err)
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

type quorumResult struct {
	models.QuorumResult
	Call models.AssemblyCall `json:"call"`
	Met  bool                `json:"met"`
}

func (s *Server) handleQuorumCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	var members []models.Attendee
	if err := decodeArg(args, "members", &members); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	call := models.FirstCall
	if raw, ok := args["call"].(string); ok && raw != "" {
		if err := call.UnmarshalText([]byte(raw)); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	res := quorum.Calculate(members)
	return jsonResult(quorumResult{QuorumResult: res, Call: call, Met: res.Met(call)})
}

func (s *Server) handleVoteTally(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	var item models.AgendaItem
	if err := decodeArg(args, "item", &item); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var members []models.Attendee
	if err := decodeArg(args, "members", &members); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var choices map[string]models.VoteChoice
	if err := decodeArg(args, "choices", &choices); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rec, err := tally.Count(item, members, choices)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to tally: %v", err)), nil
	}
	return jsonResult(rec)
}

type workflowStatus struct {
	WorkflowID       string                   `json:"workflow_id"`
	Definition       string                   `json:"definition"`
	CurrentStep      *models.WorkflowStep     `json:"current_step,omitempty"`
	LegalRequirement *models.LegalRequirement `json:"legal_requirement,omitempty"`
	CompletedSteps   []string                 `json:"completed_steps"`
	Progress         int                      `json:"progress"`
	IsComplete       bool                     `json:"is_complete"`
	CanAdvance       bool                     `json:"can_advance"`
	Errors           map[string]string        `json:"errors,omitempty"`
}

func (s *Server) handleWorkflowStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["workflow_id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	state := s.engine.State(id)
	if state == nil {
		return mcp.NewToolResultError(fmt.Sprintf("No active workflow %s", id)), nil
	}
	status := workflowStatus{
		WorkflowID:     id,
		Definition:     state.DefinitionID,
		CurrentStep:    s.engine.CurrentStep(id),
		CompletedSteps: state.CompletedSteps,
		Progress:       s.engine.Progress(id),
		IsComplete:     state.IsComplete,
		CanAdvance:     s.engine.CanGoToNextStep(id),
		Errors:         state.Errors,
	}
	if status.CurrentStep != nil {
		status.LegalRequirement = status.CurrentStep.LegalRequirement
	}
	return jsonResult(status)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type summary struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		Category  string   `json:"category"`
		Steps     int      `json:"steps"`
		Citations []string `json:"citations,omitempty"`
	}
	defs := s.engine.Registry().List()
	out := make([]summary, len(defs))
	for i, d := range defs {
		out[i] = summary{ID: d.ID, Name: d.Name, Category: d.Category, Steps: len(d.Steps), Citations: d.LegalContext.Citations}
	}
	return jsonResult(out)
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
