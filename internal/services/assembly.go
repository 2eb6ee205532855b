package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"condo-manager/backend/internal/assembly"
	"condo-manager/backend/internal/quorum"
	"condo-manager/backend/internal/repository"
	"condo-manager/backend/internal/tally"
	"condo-manager/backend/internal/workflow"
	"condo-manager/backend/pkg/models"
)

var (
	// ErrNoAssembly is returned when no minutes workflow is active for a key.
	ErrNoAssembly = errors.New("no active assembly")
	// ErrUnknownMember is returned when attendance names a member outside the roster.
	ErrUnknownMember = errors.New("member not in roster")
	// ErrUnknownItem is returned when votes target an agenda item that does not exist.
	ErrUnknownItem = errors.New("agenda item not found")
	// ErrVotesIncomplete is returned when finalizing before every attendee voted.
	ErrVotesIncomplete = errors.New("votes are incomplete")
	// ErrVotingOpen is returned when finalizing before the voting step was completed.
	ErrVotingOpen = errors.New("voting step not completed")
	// ErrQuorumNotMet is returned when finalizing an assembly that lacks quorum.
	ErrQuorumNotMet = errors.New("quorum not met")
)

// DefaultPrefillTimeout bounds the background fetch of previous minute data.
const DefaultPrefillTimeout = 10 * time.Second

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// AttendanceEntry records how one roster member attends.
type AttendanceEntry struct {
	MemberID       string                `json:"member_id"`
	Attendance     models.AttendanceType `json:"attendance"`
	Representative string                `json:"representative,omitempty"`
}

// FinalizedEvent is published once a minute's results are written back.
type FinalizedEvent struct {
	WorkflowID  string              `json:"workflow_id"`
	BuildingID  string              `json:"building_id"`
	MinuteID    string              `json:"minute_id"`
	Quorum      models.QuorumResult `json:"quorum"`
	Results     []models.VoteRecord `json:"results"`
	FinalizedAt time.Time           `json:"finalized_at"`
}

// AssemblyService drives the minutes workflow against the roster and minutes
// stores.
type AssemblyService struct {
	engine         *workflow.Engine
	roster         repository.RosterProvider
	minutes        repository.MinutesRepository
	publisher      Publisher
	logger         Logger
	subjectPrefix  string
	prefillTimeout time.Duration
	clock          func() time.Time

	wg sync.WaitGroup
}

// NewAssemblyService creates a new AssemblyService. A nil publisher disables
// event publication.
func NewAssemblyService(engine *workflow.Engine, roster repository.RosterProvider, minutes repository.MinutesRepository, publisher Publisher, logger Logger) *AssemblyService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &AssemblyService{
		engine:         engine,
		roster:         roster,
		minutes:        minutes,
		publisher:      publisher,
		logger:         logger,
		subjectPrefix:  "condo",
		prefillTimeout: DefaultPrefillTimeout,
		clock:          time.Now,
	}
}

// SetSubjectPrefix changes the prefix of published subjects.
func (s *AssemblyService) SetSubjectPrefix(prefix string) {
	if prefix != "" {
		s.subjectPrefix = prefix
	}
}

// MinutesKey returns the workflow key of a minute's assembly.
func MinutesKey(minuteID string) string {
	return workflow.ScopedKey(assembly.MinutesWorkflowID, minuteID)
}

// StartMinutes starts the minutes workflow for one minute of a building,
// seeded with the building roster. Fields of the minute record and of the
// building's previous minute are merged in the background once fetched.
func (s *AssemblyService) StartMinutes(ctx context.Context, buildingID, minuteID string, data map[string]any) (*models.WorkflowState, error) {
	roster, err := s.roster.Members(ctx, buildingID)
	if err != nil {
		return nil, fmt.Errorf("load roster for building %s: %w", buildingID, err)
	}

	initial := make(map[string]any, len(data)+3)
	for k, v := range data {
		initial[k] = v
	}
	initial[assembly.KeyBuildingID] = buildingID
	initial[assembly.KeyMinuteID] = minuteID
	initial[assembly.KeyMembers] = quorum.FromRoster(roster)

	key := MinutesKey(minuteID)
	state, err := s.engine.Start(key, initial)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func(instanceID string) {
		defer s.wg.Done()
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.prefillTimeout)
		defer cancel()
		prefill, err := s.prefillData(fetchCtx, buildingID, minuteID)
		if err != nil {
			s.logger.Error("prefill failed", "workflow", key, "error", err)
			return
		}
		if len(prefill) > 0 && s.engine.Prefill(key, instanceID, prefill) {
			s.logger.Info("prefill applied", "workflow", key, "fields", len(prefill))
		}
	}(state.InstanceID)

	return state, nil
}

// Wait blocks until in-flight prefill fetches finish.
func (s *AssemblyService) Wait() {
	s.wg.Wait()
}

// prefillData collects the minute's own fields, falling back to the
// building's previous minute for the location.
func (s *AssemblyService) prefillData(ctx context.Context, buildingID, minuteID string) (map[string]any, error) {
	out := map[string]any{}

	minute, err := s.minutes.GetMinute(ctx, minuteID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if minute.HeldAt != nil {
			out[assembly.KeyMeetingDate] = minute.HeldAt.Format("2006-01-02")
		}
		if minute.Location != "" {
			out[assembly.KeyLocation] = minute.Location
		}
		if minute.Call.Valid() {
			out[assembly.KeyCall] = minute.Call
		}
		if len(minute.AgendaItems) > 0 {
			items := make([]models.AgendaItem, len(minute.AgendaItems))
			for i, item := range minute.AgendaItems {
				item.Result = nil
				items[i] = item
			}
			out[assembly.KeyAgendaItems] = items
		}
	}

	if _, ok := out[assembly.KeyLocation]; !ok {
		prev, err := s.minutes.LatestMinute(ctx, buildingID, minuteID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return nil, err
		case prev.Location != "":
			out[assembly.KeyLocation] = prev.Location
		}
	}
	return out, nil
}

// RecordAttendance applies attendance entries to the roster held by the
// workflow and stores the resulting quorum. Tallies of items that already
// have recorded votes are recounted against the new attendance.
func (s *AssemblyService) RecordAttendance(key string, entries []AttendanceEntry) (models.QuorumResult, error) {
	var result models.QuorumResult
	err := s.mutate(key, func(data map[string]any) (map[string]any, error) {
		members, err := assembly.Members(data)
		if err != nil {
			return nil, err
		}
		members = append([]models.Attendee(nil), members...)

		index := make(map[string]int, len(members))
		for i, m := range members {
			index[m.ID] = i
		}
		for _, e := range entries {
			i, ok := index[e.MemberID]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownMember, e.MemberID)
			}
			if !e.Attendance.Valid() {
				return nil, fmt.Errorf("invalid attendance type %q for %s", e.Attendance, e.MemberID)
			}
			members[i].Attendance = e.Attendance
			members[i].Representative = ""
			if e.Attendance == models.AttendanceRepresented {
				members[i].Representative = e.Representative
			}
		}

		result = quorum.Calculate(members)
		update := map[string]any{
			assembly.KeyMembers: members,
			assembly.KeyQuorum:  result,
		}
		votes, err := assembly.Votes(data)
		if err != nil {
			return nil, err
		}
		if len(votes) > 0 {
			items, err := assembly.AgendaItems(data)
			if err != nil {
				return nil, err
			}
			voted := make([]models.AgendaItem, 0, len(votes))
			for _, item := range items {
				if _, ok := votes[item.Number]; ok {
					voted = append(voted, item)
				}
			}
			results, err := tally.CountAll(voted, members, votes)
			if err != nil {
				return nil, err
			}
			update[assembly.KeyVoteResults] = results
		}
		return update, nil
	})
	if err != nil {
		return models.QuorumResult{}, err
	}
	return result, nil
}

// RecordVotes replaces the choices of one agenda item and returns its tally.
func (s *AssemblyService) RecordVotes(key string, itemNumber int, choices map[string]models.VoteChoice) (models.VoteRecord, error) {
	for id, c := range choices {
		if !c.Valid() {
			return models.VoteRecord{}, fmt.Errorf("invalid vote choice %q for %s", c, id)
		}
	}

	var rec models.VoteRecord
	err := s.mutate(key, func(data map[string]any) (map[string]any, error) {
		members, err := assembly.Members(data)
		if err != nil {
			return nil, err
		}
		items, err := assembly.AgendaItems(data)
		if err != nil {
			return nil, err
		}
		item, ok := findItem(items, itemNumber)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownItem, itemNumber)
		}
		rec, err = tally.Count(item, members, choices)
		if err != nil {
			return nil, err
		}

		votes, err := assembly.Votes(data)
		if err != nil {
			return nil, err
		}
		next := make(models.Votes, len(votes)+1)
		for n, c := range votes {
			next[n] = c
		}
		recorded := make(map[string]models.VoteChoice, len(choices))
		for id, c := range choices {
			recorded[id] = c
		}
		next[itemNumber] = recorded

		results, err := assembly.VoteResults(data)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			assembly.KeyVotes:       next,
			assembly.KeyVoteResults: upsertResult(results, rec),
		}, nil
	})
	if err != nil {
		return models.VoteRecord{}, err
	}
	return rec, nil
}

func (s *AssemblyService) mutate(key string, fn func(map[string]any) (map[string]any, error)) error {
	err := s.engine.Mutate(key, fn)
	if errors.Is(err, workflow.ErrNotActive) {
		return fmt.Errorf("%w: %s", ErrNoAssembly, key)
	}
	return err
}

// Finalize tallies every votable item, writes the results back to the minute
// record and publishes a finalized event. The workflow must have passed its
// voting step, the quorum of the call must still hold and every attending
// member must have voted on every votable item.
func (s *AssemblyService) Finalize(ctx context.Context, key string) ([]models.AgendaItem, error) {
	state := s.engine.State(key)
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAssembly, key)
	}
	members, err := assembly.Members(state.Data)
	if err != nil {
		return nil, err
	}
	items, err := assembly.AgendaItems(state.Data)
	if err != nil {
		return nil, err
	}
	votes, err := assembly.Votes(state.Data)
	if err != nil {
		return nil, err
	}
	if !state.HasCompleted(assembly.StepVoting) {
		return nil, fmt.Errorf("%w: %s", ErrVotingOpen, key)
	}
	call, err := assembly.Call(state.Data)
	if err != nil {
		return nil, err
	}
	if !quorum.Calculate(members).Met(call) {
		return nil, fmt.Errorf("%w for %s call", ErrQuorumNotMet, call)
	}
	if missing := tally.Missing(items, members, votes); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %d choices missing", ErrVotesIncomplete, len(missing))
	}

	results, err := tally.CountAll(items, members, votes)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[int]models.VoteRecord, len(results))
	for _, r := range results {
		byNumber[r.ItemNumber] = r
	}
	withResults := make([]models.AgendaItem, len(items))
	for i, item := range items {
		item.Result = nil
		if r, ok := byNumber[item.Number]; ok {
			item.Result = &r
		}
		withResults[i] = item
	}

	minuteID := assembly.String(state.Data, assembly.KeyMinuteID)
	buildingID := assembly.String(state.Data, assembly.KeyBuildingID)
	if err := s.minutes.UpdateMinuteAgendaItems(ctx, minuteID, withResults); err != nil {
		return nil, fmt.Errorf("update minute %s: %w", minuteID, err)
	}
	s.engine.UpdateData(key, map[string]any{
		assembly.KeyAgendaItems: withResults,
		assembly.KeyVoteResults: results,
	})

	event := FinalizedEvent{
		WorkflowID:  key,
		BuildingID:  buildingID,
		MinuteID:    minuteID,
		Quorum:      quorum.Calculate(members),
		Results:     results,
		FinalizedAt: s.clock().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	subject := fmt.Sprintf("%s.minutes.finalized.%s", s.subjectPrefix, buildingID)
	if err := s.publisher.Publish(ctx, subject, payload); err != nil {
		s.logger.Error("failed to publish finalized minute", "subject", subject, "error", err)
	}
	s.logger.Info("minute finalized", "workflow", key, "minute", minuteID, "items", len(results))
	return withResults, nil
}

func findItem(items []models.AgendaItem, number int) (models.AgendaItem, bool) {
	for _, item := range items {
		if item.Number == number {
			return item, true
		}
	}
	return models.AgendaItem{}, false
}

func upsertResult(results []models.VoteRecord, rec models.VoteRecord) []models.VoteRecord {
	out := make([]models.VoteRecord, 0, len(results)+1)
	for _, r := range results {
		if r.ItemNumber != rec.ItemNumber {
			out = append(out, r)
		}
	}
	out = append(out, rec)
	sort.Slice(out, func(i, j int) bool { return out[i].ItemNumber < out[j].ItemNumber })
	return out
}
