package quorum

import (
	"fmt"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"condo-manager/backend/pkg/models"
)

// rosterFromCuts splits 1000‰ at the given cut points, so weights always sum
// to the building baseline. kinds picks each member's attendance.
func rosterFromCuts(cuts []int64, kinds []int) []models.Attendee {
	points := append([]int64{0}, cuts...)
	points = append(points, 1000)
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })

	classes := []models.AttendanceType{models.AttendancePresent, models.AttendanceRepresented, models.AttendanceAbsent}
	out := make([]models.Attendee, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		kind := models.AttendanceAbsent
		if len(kinds) > 0 {
			kind = classes[kinds[(i-1)%len(kinds)]]
		}
		out = append(out, models.Attendee{
			Member:     models.Member{ID: fmt.Sprintf("m%d", i), Weight: models.PermilleOf(points[i] - points[i-1])},
			Attendance: kind,
		})
	}
	return out
}

func TestQuorumThresholdProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cuts := gen.SliceOf(gen.Int64Range(0, 1000))
	kinds := gen.SliceOf(gen.IntRange(0, 2))

	properties.Property("first call holds iff combined weight exceeds 500", prop.ForAll(
		func(cuts []int64, kinds []int) bool {
			res := Calculate(rosterFromCuts(cuts, kinds))
			return res.TotalWeight == models.BuildingBaseline &&
				res.FirstCallQuorumMet == (res.CombinedWeight > models.PermilleOf(500))
		},
		cuts, kinds,
	))

	properties.Property("second call holds iff combined weight exceeds 250", prop.ForAll(
		func(cuts []int64, kinds []int) bool {
			res := Calculate(rosterFromCuts(cuts, kinds))
			return res.SecondCallQuorumMet == (res.CombinedWeight > models.PermilleOf(250))
		},
		cuts, kinds,
	))

	properties.Property("absent members never add to attending weight", prop.ForAll(
		func(cuts []int64, kinds []int, extra int64) bool {
			members := rosterFromCuts(cuts, kinds)
			before := Calculate(members)
			members = append(members, models.Attendee{
				Member:     models.Member{ID: "extra", Weight: models.PermilleOf(extra)},
				Attendance: models.AttendanceAbsent,
			})
			after := Calculate(members)
			return after.PresentWeight == before.PresentWeight &&
				after.RepresentedWeight == before.RepresentedWeight &&
				after.CombinedWeight == before.CombinedWeight
		},
		cuts, kinds, gen.Int64Range(0, 1000),
	))

	properties.TestingRun(t)
}
