// Package tally computes ownership-weighted vote outcomes for agenda items.
//
// Two rules coexist and use different denominators:
//
//   - simple majority: favor must exceed half of favor+against, where only the
//     attending members who voted count and abstentions are left out;
//   - qualified majority: favor must reach two thirds of the whole building,
//     absentees included.
//
// All thresholds are integer cross-multiplications on models.Permille.
package tally

import (
	"errors"
	"fmt"
	"sort"

	"condo-manager/backend/pkg/models"
)

var (
	// ErrNotVotable is returned when tallying an informative or discussion item.
	ErrNotVotable = errors.New("agenda item is not votable")
	// ErrInvalidMajority is returned when a votable item carries no known majority rule.
	ErrInvalidMajority = errors.New("invalid majority rule")
)

// Count tallies one votable item. Only present and represented members take
// part; absent members, unknown ids and members without a recorded choice
// contribute nothing. Name lists follow roster order.
func Count(item models.AgendaItem, members []models.Attendee, choices map[string]models.VoteChoice) (models.VoteRecord, error) {
	if !item.Votable() {
		return models.VoteRecord{}, fmt.Errorf("%w: item %d is %q", ErrNotVotable, item.Number, item.Kind)
	}
	if !item.Majority.Valid() {
		return models.VoteRecord{}, fmt.Errorf("%w: item %d has %q", ErrInvalidMajority, item.Number, item.Majority)
	}

	rec := models.VoteRecord{
		ItemNumber:   item.Number,
		Majority:     item.Majority,
		FavorNames:   []string{},
		AgainstNames: []string{},
		AbstainNames: []string{},
	}
	for _, m := range members {
		rec.TotalBuildingWeight += m.Weight
		if !m.Attendance.Attending() {
			continue
		}
		switch choices[m.ID] {
		case models.VoteFavor:
			rec.FavorWeight += m.Weight
			rec.FavorNames = append(rec.FavorNames, m.Name)
		case models.VoteAgainst:
			rec.AgainstWeight += m.Weight
			rec.AgainstNames = append(rec.AgainstNames, m.Name)
		case models.VoteAbstain:
			rec.AbstainWeight += m.Weight
			rec.AbstainNames = append(rec.AbstainNames, m.Name)
		}
	}
	rec.TotalVotingWeight = rec.FavorWeight + rec.AgainstWeight + rec.AbstainWeight
	rec.Passed = Passes(item.Majority, rec.FavorWeight, rec.AgainstWeight, rec.TotalBuildingWeight)
	return rec, nil
}

// Passes applies a majority rule to already-summed weights.
func Passes(rule models.MajorityType, favor, against, building models.Permille) bool {
	switch rule {
	case models.MajoritySimple:
		valid := favor + against
		return valid > 0 && favor*2 > valid
	case models.MajorityQualified:
		return building > 0 && favor*3 >= building*2
	}
	return false
}

// CountAll tallies every votable item in agenda order.
func CountAll(items []models.AgendaItem, members []models.Attendee, votes models.Votes) ([]models.VoteRecord, error) {
	var out []models.VoteRecord
	for _, item := range items {
		if !item.Votable() {
			continue
		}
		rec, err := Count(item, members, votes[item.Number])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// MissingVote names an attending member without a choice on a votable item.
type MissingVote struct {
	ItemNumber int    `json:"item_number"`
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name"`
}

// Missing lists, item by item, every attending member whose choice is not
// recorded. Invalid recorded choices count as missing.
func Missing(items []models.AgendaItem, members []models.Attendee, votes models.Votes) []MissingVote {
	sorted := append([]models.AgendaItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	var out []MissingVote
	for _, item := range sorted {
		if !item.Votable() {
			continue
		}
		choices := votes[item.Number]
		for _, m := range members {
			if !m.Attendance.Attending() {
				continue
			}
			if choices[m.ID].Valid() {
				continue
			}
			out = append(out, MissingVote{ItemNumber: item.Number, MemberID: m.ID, MemberName: m.Name})
		}
	}
	return out
}

// Complete reports whether every attending member voted on every votable item.
func Complete(items []models.AgendaItem, members []models.Attendee, votes models.Votes) bool {
	return len(Missing(items, members, votes)) == 0
}
