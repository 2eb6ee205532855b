package assembly

import (
	"encoding/json"
	"fmt"

	"condo-manager/backend/pkg/models"
)

// Keys of the minutes workflow data blob.
const (
	KeyBuildingID     = "buildingId"
	KeyMinuteID       = "minuteId"
	KeyMeetingDate    = "meetingDate"
	KeyLocation       = "location"
	KeyCall           = "call"
	KeyAgendaItems    = "agendaItems"
	KeyMembers        = "members"
	KeyQuorum         = "quorum"
	KeyVotes          = "votes"
	KeyVoteResults    = "voteResults"
	KeyMinutesText    = "minutesText"
	KeySecretaryEmail = "secretaryEmail"
	KeySignatures     = "signatures"

	KeySecondCallDate = "secondCallDate"
	KeyNoticeDate     = "noticeDate"
	KeyDeliveryMethod = "deliveryMethod"
	KeyContactEmail   = "contactEmail"
)

// decode reads key from data as a T. Values are either already typed, as set
// by Go callers, or JSON-shaped after an HTTP request or a store round trip;
// the latter are converted through encoding/json so enum and Permille
// decoding rules apply.
func decode[T any](data map[string]any, key string) (T, bool, error) {
	var out T
	v, ok := data[key]
	if !ok || v == nil {
		return out, false, nil
	}
	if typed, ok := v.(T); ok {
		return typed, true, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return out, true, fmt.Errorf("%s: %w", key, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, true, fmt.Errorf("%s: %w", key, err)
	}
	return out, true, nil
}

// Members decodes the attendee list.
func Members(data map[string]any) ([]models.Attendee, error) {
	out, _, err := decode[[]models.Attendee](data, KeyMembers)
	return out, err
}

// AgendaItems decodes the agenda.
func AgendaItems(data map[string]any) ([]models.AgendaItem, error) {
	out, _, err := decode[[]models.AgendaItem](data, KeyAgendaItems)
	return out, err
}

// Votes decodes the recorded choices. A missing key yields an empty set.
func Votes(data map[string]any) (models.Votes, error) {
	out, _, err := decode[models.Votes](data, KeyVotes)
	if out == nil {
		out = models.Votes{}
	}
	return out, err
}

// Call returns the call the assembly is held under, first call by default.
func Call(data map[string]any) (models.AssemblyCall, error) {
	switch v := data[KeyCall].(type) {
	case nil:
		return models.FirstCall, nil
	case models.AssemblyCall:
		if !v.Valid() {
			return "", fmt.Errorf("invalid assembly call %q", v)
		}
		return v, nil
	case string:
		if v == "" {
			return models.FirstCall, nil
		}
		var call models.AssemblyCall
		if err := call.UnmarshalText([]byte(v)); err != nil {
			return "", err
		}
		return call, nil
	default:
		return "", fmt.Errorf("invalid assembly call %v", v)
	}
}

// Signatures decodes the signature artifacts keyed by member id. Artifacts
// are opaque; text artifacts such as data URLs are kept as their bytes.
func Signatures(data map[string]any) (map[string][]byte, error) {
	switch v := data[KeySignatures].(type) {
	case nil:
		return map[string][]byte{}, nil
	case map[string][]byte:
		return v, nil
	case map[string]string:
		out := make(map[string][]byte, len(v))
		for id, s := range v {
			out[id] = []byte(s)
		}
		return out, nil
	case map[string]any:
		out := make(map[string][]byte, len(v))
		for id, raw := range v {
			switch s := raw.(type) {
			case string:
				out[id] = []byte(s)
			case []byte:
				out[id] = s
			case nil:
			default:
				return nil, fmt.Errorf("signature for %s has type %T", id, raw)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("signatures have type %T", v)
	}
}

// VoteResults decodes the tallied outcomes recorded so far.
func VoteResults(data map[string]any) ([]models.VoteRecord, error) {
	out, _, err := decode[[]models.VoteRecord](data, KeyVoteResults)
	return out, err
}

// String reads a string field, returning "" when it is missing or not a string.
func String(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
