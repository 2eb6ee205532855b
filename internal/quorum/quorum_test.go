package quorum

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"condo-manager/backend/pkg/models"
)

func attendee(id string, weight int64, a models.AttendanceType) models.Attendee {
	return models.Attendee{
		Member:     models.Member{ID: id, Name: "Owner " + id, Fraction: id, Weight: models.PermilleOf(weight)},
		Attendance: a,
	}
}

// tenMemberRoster returns ten members of 100‰ each; the first attending are
// present or represented alternately, the rest absent.
func tenMemberRoster(attending int) []models.Attendee {
	out := make([]models.Attendee, 10)
	for i := range out {
		a := models.AttendanceAbsent
		if i < attending {
			a = models.AttendancePresent
			if i%2 == 1 {
				a = models.AttendanceRepresented
			}
		}
		out[i] = attendee(fmt.Sprintf("m%d", i+1), 100, a)
	}
	return out
}

func TestCalculate_ScenarioA(t *testing.T) {
	res := Calculate(tenMemberRoster(6))

	assert.Equal(t, models.PermilleOf(1000), res.TotalWeight)
	assert.Equal(t, models.PermilleOf(300), res.PresentWeight)
	assert.Equal(t, models.PermilleOf(300), res.RepresentedWeight)
	assert.Equal(t, models.PermilleOf(600), res.CombinedWeight)
	assert.InDelta(t, 60.0, res.QuorumPercentage, 1e-9)
	assert.True(t, res.FirstCallQuorumMet)
	assert.True(t, res.SecondCallQuorumMet)
	assert.Equal(t, 3, res.PresentCount)
	assert.Equal(t, 3, res.RepresentedCount)
	assert.Equal(t, 4, res.AbsentCount)
}

func TestCalculate_ZeroMembers(t *testing.T) {
	res := Calculate(nil)
	assert.Equal(t, 0.0, res.QuorumPercentage)
	assert.False(t, res.FirstCallQuorumMet)
	assert.False(t, res.SecondCallQuorumMet)
}

func TestCalculate_ThresholdsAreStrict(t *testing.T) {
	tests := []struct {
		name       string
		attending  int64
		firstCall  bool
		secondCall bool
	}{
		{"exactly half", 500, false, true},
		{"just over half", 501, true, true},
		{"exactly a quarter", 250, false, false},
		{"just over a quarter", 251, false, true},
		{"nobody", 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members := []models.Attendee{
				attendee("a", tt.attending, models.AttendancePresent),
				attendee("b", 1000-tt.attending, models.AttendanceAbsent),
			}
			res := Calculate(members)
			assert.Equal(t, tt.firstCall, res.FirstCallQuorumMet)
			assert.Equal(t, tt.secondCall, res.SecondCallQuorumMet)
		})
	}
}

func TestCalculate_FractionalWeightsAtBoundary(t *testing.T) {
	// 3 x 333.333 + 0.001 = 1000; two thirds attending is 666.666 > 500.
	members := []models.Attendee{
		{Member: models.Member{ID: "a", Weight: models.Permille(333333)}, Attendance: models.AttendancePresent},
		{Member: models.Member{ID: "b", Weight: models.Permille(333333)}, Attendance: models.AttendanceRepresented},
		{Member: models.Member{ID: "c", Weight: models.Permille(333334)}, Attendance: models.AttendanceAbsent},
	}
	res := Calculate(members)
	assert.Equal(t, models.BuildingBaseline, res.TotalWeight)
	assert.Equal(t, models.Permille(666666), res.CombinedWeight)
	assert.True(t, res.FirstCallQuorumMet)
}

func TestCalculate_UnsetAttendanceCountsAsAbsent(t *testing.T) {
	members := FromRoster([]models.Member{{ID: "a", Weight: models.PermilleOf(600)}, {ID: "b", Weight: models.PermilleOf(400)}})
	res := Calculate(members)
	assert.Equal(t, models.Permille(0), res.CombinedWeight)
	assert.Equal(t, 2, res.AbsentCount)
}
