package assembly

import (
	"time"

	"condo-manager/backend/internal/quorum"
	"condo-manager/backend/internal/tally"
	"condo-manager/backend/internal/validation"
	"condo-manager/backend/pkg/models"
)

// MinNoticeDays is the minimum notice between convocation and meeting.
const MinNoticeDays = 10

// DeliveryMethods are the accepted ways of delivering a convocation.
var DeliveryMethods = []string{"registered_letter", "signed_receipt", "email"}

func validAgenda(_ any, data map[string]any) bool {
	items, err := AgendaItems(data)
	if err != nil || len(items) == 0 {
		return false
	}
	seen := make(map[int]bool, len(items))
	for _, item := range items {
		if item.Number <= 0 || seen[item.Number] || !item.Kind.Valid() {
			return false
		}
		seen[item.Number] = true
		if item.Votable() && !item.Majority.Valid() {
			return false
		}
	}
	return true
}

func attendanceRecorded(_ any, data map[string]any) bool {
	members, err := Members(data)
	if err != nil || len(members) == 0 {
		return false
	}
	for _, m := range members {
		if !m.Attendance.Valid() {
			return false
		}
		if m.Attendance == models.AttendanceRepresented && m.Representative == "" {
			return false
		}
	}
	return true
}

func quorumMet(_ any, data map[string]any) bool {
	members, err := Members(data)
	if err != nil || len(members) == 0 {
		return false
	}
	call, err := Call(data)
	if err != nil {
		return false
	}
	return quorum.Calculate(members).Met(call)
}

func votesComplete(_ any, data map[string]any) bool {
	members, err := Members(data)
	if err != nil {
		return false
	}
	items, err := AgendaItems(data)
	if err != nil {
		return false
	}
	votes, err := Votes(data)
	if err != nil {
		return false
	}
	return tally.Complete(items, members, votes)
}

func signaturesCollected(_ any, data map[string]any) bool {
	members, err := Members(data)
	if err != nil || len(members) == 0 {
		return false
	}
	sigs, err := Signatures(data)
	if err != nil {
		return false
	}
	for _, m := range members {
		if !m.Attendance.Attending() {
			continue
		}
		if len(sigs[m.ID]) == 0 && len(m.Signature) == 0 {
			return false
		}
	}
	return true
}

func secondCallAfterFirst(value any, data map[string]any) bool {
	if value == nil || value == "" {
		return true
	}
	second, ok := dateValue(value)
	if !ok {
		return false
	}
	first, ok := dateValue(data[KeyMeetingDate])
	return ok && second.After(first)
}

func enoughNotice(value any, data map[string]any) bool {
	notice, ok := dateValue(value)
	if !ok {
		return false
	}
	meeting, ok := dateValue(data[KeyMeetingDate])
	if !ok {
		return false
	}
	return !meeting.Before(notice.AddDate(0, 0, MinNoticeDays))
}

func knownDeliveryMethod(value any, _ map[string]any) bool {
	s, _ := value.(string)
	for _, m := range DeliveryMethods {
		if s == m {
			return true
		}
	}
	return false
}

func dateValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		return validation.ParseDate(t)
	}
	return time.Time{}, false
}
