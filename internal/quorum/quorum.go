// Package quorum computes ownership-weighted assembly quorum.
package quorum

import "condo-manager/backend/pkg/models"

// Calculate sums attendance weight by classification and checks both call
// thresholds against the whole roster's weight. Thresholds are strict and
// compared by integer cross-multiplication: first call needs more than half,
// second call more than a quarter.
func Calculate(members []models.Attendee) models.QuorumResult {
	var res models.QuorumResult
	for _, m := range members {
		res.TotalWeight += m.Weight
		switch m.Attendance {
		case models.AttendancePresent:
			res.PresentWeight += m.Weight
			res.PresentCount++
		case models.AttendanceRepresented:
			res.RepresentedWeight += m.Weight
			res.RepresentedCount++
		default:
			res.AbsentCount++
		}
	}
	res.CombinedWeight = res.PresentWeight + res.RepresentedWeight
	res.QuorumPercentage = models.Percent(res.CombinedWeight, res.TotalWeight)
	res.FirstCallQuorumMet = res.CombinedWeight*2 > res.TotalWeight
	res.SecondCallQuorumMet = res.CombinedWeight*4 > res.TotalWeight
	return res
}

// FromRoster builds attendees from roster members with attendance unset.
func FromRoster(roster []models.Member) []models.Attendee {
	out := make([]models.Attendee, len(roster))
	for i, m := range roster {
		out[i] = models.Attendee{Member: m}
	}
	return out
}
