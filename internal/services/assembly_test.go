package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"condo-manager/backend/internal/assembly"
	"condo-manager/backend/internal/repository"
	"condo-manager/backend/internal/tally"
	"condo-manager/backend/internal/workflow"
	"condo-manager/backend/pkg/models"
)

type NoOpLogger struct{}

func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

type MockRoster struct {
	mock.Mock
}

func (m *MockRoster) Members(ctx context.Context, buildingID string) ([]models.Member, error) {
	args := m.Called(ctx, buildingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Member), args.Error(1)
}

type MockMinutes struct {
	mock.Mock
}

func (m *MockMinutes) GetMinute(ctx context.Context, id string) (*models.Minute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Minute), args.Error(1)
}

func (m *MockMinutes) LatestMinute(ctx context.Context, buildingID, exceptID string) (*models.Minute, error) {
	args := m.Called(ctx, buildingID, exceptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Minute), args.Error(1)
}

func (m *MockMinutes) CreateMinute(ctx context.Context, minute *models.Minute) error {
	return m.Called(ctx, minute).Error(0)
}

func (m *MockMinutes) UpdateMinuteAgendaItems(ctx context.Context, minuteID string, items []models.AgendaItem) error {
	return m.Called(ctx, minuteID, items).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	return m.Called(ctx, subject, payload).Error(0)
}

func tenMembers() []models.Member {
	out := make([]models.Member, 10)
	for i := range out {
		out[i] = models.Member{
			ID:       fmt.Sprintf("m%d", i+1),
			Name:     fmt.Sprintf("Owner %d", i+1),
			Fraction: string(rune('A' + i)),
			Weight:   models.PermilleOf(100),
		}
	}
	return out
}

func testAgenda() []models.AgendaItem {
	return []models.AgendaItem{
		{Number: 1, Title: "Accounts", Kind: models.AgendaVotable, Majority: models.MajoritySimple},
		{Number: 2, Title: "Report", Kind: models.AgendaInformative},
		{Number: 3, Title: "Facade works", Kind: models.AgendaVotable, Majority: models.MajorityQualified},
	}
}

type fixture struct {
	engine    *workflow.Engine
	roster    *MockRoster
	minutes   *MockMinutes
	publisher *MockPublisher
	svc       *AssemblyService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := workflow.NewRegistry()
	require.NoError(t, assembly.Register(reg))
	engine, err := workflow.New(reg, workflow.NewMemoryStore())
	require.NoError(t, err)

	f := &fixture{
		engine:    engine,
		roster:    new(MockRoster),
		minutes:   new(MockMinutes),
		publisher: new(MockPublisher),
	}
	f.svc = NewAssemblyService(engine, f.roster, f.minutes, f.publisher, NoOpLogger{})
	f.svc.clock = func() time.Time { return time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC) }
	return f
}

// start begins minute-1 of building b1 whose own record carries the agenda.
func (f *fixture) start(t *testing.T) string {
	t.Helper()
	held := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	f.roster.On("Members", mock.Anything, "b1").Return(tenMembers(), nil)
	f.minutes.On("GetMinute", mock.Anything, "minute-1").Return(&models.Minute{
		ID: "minute-1", BuildingID: "b1", HeldAt: &held, Location: "Hall", Call: models.FirstCall,
		AgendaItems: testAgenda(),
	}, nil)

	state, err := f.svc.StartMinutes(context.Background(), "b1", "minute-1", nil)
	require.NoError(t, err)
	f.svc.Wait()
	return state.WorkflowID
}

// next advances the workflow one step and fails the test if validation rejects it.
func (f *fixture) next(t *testing.T, key string) {
	t.Helper()
	if f.engine.NextStep(key) == nil {
		t.Fatalf("step rejected: %v", f.engine.State(key).Errors)
	}
}

// throughVoting records six attendees, votes favor on every votable item and
// walks the workflow past the voting step.
func (f *fixture) throughVoting(t *testing.T, key string) {
	t.Helper()
	f.next(t, key)
	_, err := f.svc.RecordAttendance(key, attendSix())
	require.NoError(t, err)
	f.next(t, key)
	f.next(t, key)
	_, err = f.svc.RecordVotes(key, 1, voteAll(models.VoteFavor))
	require.NoError(t, err)
	_, err = f.svc.RecordVotes(key, 3, voteAll(models.VoteFavor))
	require.NoError(t, err)
	f.next(t, key)
	require.True(t, f.engine.State(key).HasCompleted(assembly.StepVoting))
}

func TestStartMinutes_SeedsRosterAndPrefills(t *testing.T) {
	f := newFixture(t)
	key := f.start(t)
	assert.Equal(t, "assembly-minutes:minute-1", key)

	state := f.engine.State(key)
	require.NotNil(t, state)
	assert.True(t, state.Prefilled)
	assert.Equal(t, "b1", state.Data[assembly.KeyBuildingID])
	assert.Equal(t, "2025-01-15", state.Data[assembly.KeyMeetingDate])
	assert.Equal(t, "Hall", state.Data[assembly.KeyLocation])

	members, err := assembly.Members(state.Data)
	require.NoError(t, err)
	assert.Len(t, members, 10)
	items, err := assembly.AgendaItems(state.Data)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	f.minutes.AssertNotCalled(t, "LatestMinute", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartMinutes_LocationFromPreviousMinute(t *testing.T) {
	f := newFixture(t)
	f.roster.On("Members", mock.Anything, "b1").Return(tenMembers(), nil)
	f.minutes.On("GetMinute", mock.Anything, "minute-2").Return(nil, repository.ErrNotFound)
	f.minutes.On("LatestMinute", mock.Anything, "b1", "minute-2").Return(&models.Minute{ID: "minute-1", Location: "Garage"}, nil)

	_, err := f.svc.StartMinutes(context.Background(), "b1", "minute-2", map[string]any{assembly.KeyMeetingDate: "2025-06-01"})
	require.NoError(t, err)
	f.svc.Wait()

	state := f.engine.State(MinutesKey("minute-2"))
	require.NotNil(t, state)
	assert.Equal(t, "Garage", state.Data[assembly.KeyLocation])
	assert.Equal(t, "2025-06-01", state.Data[assembly.KeyMeetingDate])
	f.minutes.AssertExpectations(t)
}

func TestStartMinutes_PrefillNeverOverwritesUserInput(t *testing.T) {
	f := newFixture(t)
	f.roster.On("Members", mock.Anything, "b1").Return(tenMembers(), nil)
	f.minutes.On("GetMinute", mock.Anything, "minute-1").Return(&models.Minute{ID: "minute-1", Location: "Hall"}, nil)

	_, err := f.svc.StartMinutes(context.Background(), "b1", "minute-1", map[string]any{assembly.KeyLocation: "Rooftop"})
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, "Rooftop", f.engine.State(MinutesKey("minute-1")).Data[assembly.KeyLocation])
}

func TestStartMinutes_PrefillFailureLeavesInstanceUsable(t *testing.T) {
	f := newFixture(t)
	f.roster.On("Members", mock.Anything, "b1").Return(tenMembers(), nil)
	f.minutes.On("GetMinute", mock.Anything, "minute-1").Return(nil, errors.New("connection reset"))

	_, err := f.svc.StartMinutes(context.Background(), "b1", "minute-1", nil)
	require.NoError(t, err)
	f.svc.Wait()

	state := f.engine.State(MinutesKey("minute-1"))
	require.NotNil(t, state)
	assert.False(t, state.Prefilled)
}

func TestStartMinutes_RosterError(t *testing.T) {
	f := newFixture(t)
	f.roster.On("Members", mock.Anything, "nope").Return(nil, repository.ErrNotFound)

	_, err := f.svc.StartMinutes(context.Background(), "nope", "minute-1", nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, f.engine.State(MinutesKey("minute-1")))
}

func attendSix() []AttendanceEntry {
	entries := make([]AttendanceEntry, 0, 10)
	for i := 1; i <= 10; i++ {
		e := AttendanceEntry{MemberID: fmt.Sprintf("m%d", i), Attendance: models.AttendanceAbsent}
		switch {
		case i <= 4:
			e.Attendance = models.AttendancePresent
		case i <= 6:
			e.Attendance = models.AttendanceRepresented
			e.Representative = "Proxy"
		}
		entries = append(entries, e)
	}
	return entries
}

func TestRecordAttendance(t *testing.T) {
	f := newFixture(t)
	key := f.start(t)

	res, err := f.svc.RecordAttendance(key, attendSix())
	require.NoError(t, err)
	assert.Equal(t, models.PermilleOf(600), res.CombinedWeight)
	assert.Equal(t, models.PermilleOf(400), res.PresentWeight)
	assert.Equal(t, models.PermilleOf(200), res.RepresentedWeight)
	assert.True(t, res.FirstCallQuorumMet)
	assert.Equal(t, 4, res.AbsentCount)

	state := f.engine.State(key)
	assert.Equal(t, res, state.Data[assembly.KeyQuorum])
	members, err := assembly.Members(state.Data)
	require.NoError(t, err)
	assert.Equal(t, "Proxy", members[4].Representative)
	assert.Empty(t, members[0].Representative)
}

func TestRecordAttendance_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordAttendance("assembly-minutes:none", nil)
	assert.ErrorIs(t, err, ErrNoAssembly)

	key := f.start(t)
	_, err = f.svc.RecordAttendance(key, []AttendanceEntry{{MemberID: "ghost", Attendance: models.AttendancePresent}})
	assert.ErrorIs(t, err, ErrUnknownMember)

	_, err = f.svc.RecordAttendance(key, []AttendanceEntry{{MemberID: "m1", Attendance: "late"}})
	assert.Error(t, err)

	members, err := assembly.Members(f.engine.State(key).Data)
	require.NoError(t, err)
	assert.Empty(t, members[0].Attendance, "a rejected batch leaves the roster untouched")
}

func voteAll(choice models.VoteChoice) map[string]models.VoteChoice {
	out := map[string]models.VoteChoice{}
	for i := 1; i <= 6; i++ {
		out[fmt.Sprintf("m%d", i)] = choice
	}
	return out
}

func TestRecordVotes(t *testing.T) {
	f := newFixture(t)
	key := f.start(t)
	_, err := f.svc.RecordAttendance(key, attendSix())
	require.NoError(t, err)

	rec, err := f.svc.RecordVotes(key, 3, voteAll(models.VoteFavor))
	require.NoError(t, err)
	assert.False(t, rec.Passed, "600‰ unanimous favor is below two thirds of the building")
	assert.Equal(t, models.PermilleOf(1000), rec.TotalBuildingWeight)

	rec, err = f.svc.RecordVotes(key, 1, map[string]models.VoteChoice{"m1": models.VoteFavor, "m2": models.VoteAgainst, "m3": models.VoteFavor})
	require.NoError(t, err)
	assert.True(t, rec.Passed)

	state := f.engine.State(key)
	results, err := assembly.VoteResults(state.Data)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].ItemNumber)
	assert.Equal(t, 3, results[1].ItemNumber)

	// re-recording an item replaces its choices and result
	_, err = f.svc.RecordVotes(key, 1, voteAll(models.VoteAgainst))
	require.NoError(t, err)
	results, err = assembly.VoteResults(f.engine.State(key).Data)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Passed)
}

func TestRecordVotes_Errors(t *testing.T) {
	f := newFixture(t)
	key := f.start(t)

	_, err := f.svc.RecordVotes(key, 9, nil)
	assert.ErrorIs(t, err, ErrUnknownItem)

	_, err = f.svc.RecordVotes(key, 2, nil)
	assert.ErrorIs(t, err, tally.ErrNotVotable)

	_, err = f.svc.RecordVotes(key, 1, map[string]models.VoteChoice{"m1": "maybe"})
	assert.Error(t, err)

	_, err = f.svc.RecordVotes("assembly-minutes:none", 1, nil)
	assert.ErrorIs(t, err, ErrNoAssembly)
}

func TestFinalize(t *testing.T) {
	f := newFixture(t)
	key := f.start(t)
	f.throughVoting(t, key)

	f.minutes.On("UpdateMinuteAgendaItems", mock.Anything, "minute-1", mock.MatchedBy(func(items []models.AgendaItem) bool {
		return len(items) == 3 && items[0].Result != nil && items[0].Result.Passed &&
			items[1].Result == nil && items[2].Result != nil && !items[2].Result.Passed
	})).Return(nil)

	var event FinalizedEvent
	f.publisher.On("Publish", mock.Anything, "condo.minutes.finalized.b1", mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &event))
		}).Return(nil)

	items, err := f.svc.Finalize(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "minute-1", event.MinuteID)
	assert.Equal(t, models.PermilleOf(600), event.Quorum.CombinedWeight)
	require.Len(t, event.Results, 2)
	assert.Equal(t, time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC), event.FinalizedAt)

	stored, err := assembly.AgendaItems(f.engine.State(key).Data)
	require.NoError(t, err)
	require.NotNil(t, stored[0].Result)

	f.minutes.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func TestFinalize_PersistErrorSkipsPublish(t *testing.T) {
	f := newFixture(t)
	key := f.start(t)
	f.throughVoting(t, key)
	_, err := f.svc.RecordVotes(key, 1, voteAll(models.VoteAbstain))
	require.NoError(t, err)
	_, err = f.svc.RecordVotes(key, 3, voteAll(models.VoteAgainst))
	require.NoError(t, err)

	boom := errors.New("disk full")
	f.minutes.On("UpdateMinuteAgendaItems", mock.Anything, "minute-1", mock.Anything).Return(boom)

	_, err = f.svc.Finalize(context.Background(), key)
	assert.ErrorIs(t, err, boom)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalize_PublishErrorIsLoggedOnly(t *testing.T) {
	f := newFixture(t)
	f.svc.SetSubjectPrefix("acme")
	key := f.start(t)
	f.throughVoting(t, key)

	f.minutes.On("UpdateMinuteAgendaItems", mock.Anything, "minute-1", mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, "acme.minutes.finalized.b1", mock.Anything).Return(errors.New("no responders"))

	_, err := f.svc.Finalize(context.Background(), key)
	assert.NoError(t, err)
	f.publisher.AssertExpectations(t)
}

func TestFinalize_RequiresCompletedVoting(t *testing.T) {
	f := newFixture(t)
	key := f.start(t)

	_, err := f.svc.Finalize(context.Background(), key)
	assert.ErrorIs(t, err, ErrVotingOpen)

	// every vote recorded, but the voting step was never passed
	f.next(t, key)
	_, err = f.svc.RecordAttendance(key, attendSix())
	require.NoError(t, err)
	_, err = f.svc.RecordVotes(key, 1, voteAll(models.VoteFavor))
	require.NoError(t, err)
	_, err = f.svc.RecordVotes(key, 3, voteAll(models.VoteFavor))
	require.NoError(t, err)
	_, err = f.svc.Finalize(context.Background(), key)
	assert.ErrorIs(t, err, ErrVotingOpen)

	assert.Equal(t, 1, f.engine.State(key).CurrentStepIndex)
	f.minutes.AssertNotCalled(t, "UpdateMinuteAgendaItems", mock.Anything, mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalize_SteppingBackReopensVoting(t *testing.T) {
	f := newFixture(t)
	key := f.start(t)
	f.throughVoting(t, key)
	require.NotNil(t, f.engine.PreviousStep(key))

	_, err := f.svc.Finalize(context.Background(), key)
	assert.ErrorIs(t, err, ErrVotingOpen)
	f.minutes.AssertNotCalled(t, "UpdateMinuteAgendaItems", mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalize_RequiresQuorum(t *testing.T) {
	f := newFixture(t)
	key := f.start(t)
	f.throughVoting(t, key)

	// only the two represented owners remain: 200‰ misses the first call
	absent := make([]AttendanceEntry, 0, 4)
	for i := 1; i <= 4; i++ {
		absent = append(absent, AttendanceEntry{MemberID: fmt.Sprintf("m%d", i), Attendance: models.AttendanceAbsent})
	}
	_, err := f.svc.RecordAttendance(key, absent)
	require.NoError(t, err)

	_, err = f.svc.Finalize(context.Background(), key)
	assert.ErrorIs(t, err, ErrQuorumNotMet)
	f.minutes.AssertNotCalled(t, "UpdateMinuteAgendaItems", mock.Anything, mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalize_LateArrivalMustVote(t *testing.T) {
	f := newFixture(t)
	key := f.start(t)
	f.throughVoting(t, key)

	_, err := f.svc.RecordAttendance(key, []AttendanceEntry{{MemberID: "m7", Attendance: models.AttendancePresent}})
	require.NoError(t, err)

	_, err = f.svc.Finalize(context.Background(), key)
	assert.ErrorIs(t, err, ErrVotesIncomplete)
	f.minutes.AssertNotCalled(t, "UpdateMinuteAgendaItems", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordAttendance_RecountsRecordedVotes(t *testing.T) {
	f := newFixture(t)
	key := f.start(t)

	seven := make([]AttendanceEntry, 0, 10)
	favor := map[string]models.VoteChoice{}
	for i := 1; i <= 10; i++ {
		id := fmt.Sprintf("m%d", i)
		e := AttendanceEntry{MemberID: id, Attendance: models.AttendanceAbsent}
		if i <= 7 {
			e.Attendance = models.AttendancePresent
			favor[id] = models.VoteFavor
		}
		seven = append(seven, e)
	}
	_, err := f.svc.RecordAttendance(key, seven)
	require.NoError(t, err)
	rec, err := f.svc.RecordVotes(key, 3, favor)
	require.NoError(t, err)
	require.True(t, rec.Passed)
	assert.Equal(t, models.PermilleOf(700), rec.FavorWeight)

	_, err = f.svc.RecordAttendance(key, []AttendanceEntry{
		{MemberID: "m1", Attendance: models.AttendanceAbsent},
		{MemberID: "m2", Attendance: models.AttendanceAbsent},
	})
	require.NoError(t, err)

	results, err := assembly.VoteResults(f.engine.State(key).Data)
	require.NoError(t, err)
	require.Len(t, results, 1, "items without recorded votes get no result")
	assert.Equal(t, 3, results[0].ItemNumber)
	assert.Equal(t, models.PermilleOf(500), results[0].FavorWeight)
	assert.False(t, results[0].Passed)
	assert.Len(t, results[0].FavorNames, 5)
	assert.NotContains(t, results[0].FavorNames, "Owner 1")
}

func TestRecordVotes_ConcurrentItemsAreKept(t *testing.T) {
	f := newFixture(t)
	key := f.start(t)
	_, err := f.svc.RecordAttendance(key, attendSix())
	require.NoError(t, err)

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for _, item := range []int{1, 3} {
			wg.Add(1)
			go func(item int) {
				defer wg.Done()
				_, err := f.svc.RecordVotes(key, item, voteAll(models.VoteFavor))
				assert.NoError(t, err)
			}(item)
		}
		wg.Wait()

		votes, err := assembly.Votes(f.engine.State(key).Data)
		require.NoError(t, err)
		assert.Contains(t, votes, 1)
		assert.Contains(t, votes, 3)
		results, err := assembly.VoteResults(f.engine.State(key).Data)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	}
}

func TestNewAssemblyService_NilPublisher(t *testing.T) {
	svc := NewAssemblyService(nil, nil, nil, nil, NoOpLogger{})
	assert.IsType(t, NopPublisher{}, svc.publisher)
	assert.NoError(t, svc.publisher.Publish(context.Background(), "x", nil))
}
