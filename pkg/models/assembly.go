package models

import "fmt"

// AttendanceType classifies how a member takes part in an assembly
type AttendanceType string

const (
	AttendancePresent     AttendanceType = "present"
	AttendanceRepresented AttendanceType = "represented"
	AttendanceAbsent      AttendanceType = "absent"
)

// Valid reports whether a is one of the known classifications.
func (a AttendanceType) Valid() bool {
	switch a {
	case AttendancePresent, AttendanceRepresented, AttendanceAbsent:
		return true
	}
	return false
}

// Attending reports whether the member counts towards quorum and voting.
func (a AttendanceType) Attending() bool {
	return a == AttendancePresent || a == AttendanceRepresented
}

// UnmarshalText rejects unknown classifications.
func (a *AttendanceType) UnmarshalText(text []byte) error {
	v := AttendanceType(text)
	if !v.Valid() {
		return fmt.Errorf("invalid attendance type %q", text)
	}
	*a = v
	return nil
}

// VoteChoice is a member's vote on an agenda item
type VoteChoice string

const (
	VoteFavor   VoteChoice = "favor"
	VoteAgainst VoteChoice = "against"
	VoteAbstain VoteChoice = "abstain"
)

// Valid reports whether c is one of the known choices.
func (c VoteChoice) Valid() bool {
	switch c {
	case VoteFavor, VoteAgainst, VoteAbstain:
		return true
	}
	return false
}

// UnmarshalText rejects unknown choices.
func (c *VoteChoice) UnmarshalText(text []byte) error {
	v := VoteChoice(text)
	if !v.Valid() {
		return fmt.Errorf("invalid vote choice %q", text)
	}
	*c = v
	return nil
}

// MajorityType selects the rule used to decide a votable item
type MajorityType string

const (
	// MajoritySimple passes with more than half of the favor+against weight.
	MajoritySimple MajorityType = "simple"
	// MajorityQualified passes with at least two thirds of the whole building weight.
	MajorityQualified MajorityType = "qualified"
)

// Valid reports whether m is one of the known rules.
func (m MajorityType) Valid() bool {
	return m == MajoritySimple || m == MajorityQualified
}

// UnmarshalText rejects unknown majority rules.
func (m *MajorityType) UnmarshalText(text []byte) error {
	v := MajorityType(text)
	if !v.Valid() {
		return fmt.Errorf("invalid majority type %q", text)
	}
	*m = v
	return nil
}

// AgendaItemKind tells whether an agenda item is put to a vote
type AgendaItemKind string

const (
	AgendaVotable     AgendaItemKind = "votable"
	AgendaInformative AgendaItemKind = "informative"
	AgendaDiscussion  AgendaItemKind = "discussion"
)

// Valid reports whether k is one of the known kinds.
func (k AgendaItemKind) Valid() bool {
	switch k {
	case AgendaVotable, AgendaInformative, AgendaDiscussion:
		return true
	}
	return false
}

// UnmarshalText rejects unknown kinds.
func (k *AgendaItemKind) UnmarshalText(text []byte) error {
	v := AgendaItemKind(text)
	if !v.Valid() {
		return fmt.Errorf("invalid agenda item kind %q", text)
	}
	*k = v
	return nil
}

// AssemblyCall is the convocation under which an assembly is held.
type AssemblyCall string

const (
	FirstCall  AssemblyCall = "first"
	SecondCall AssemblyCall = "second"
)

// Valid reports whether c is a known call.
func (c AssemblyCall) Valid() bool {
	return c == FirstCall || c == SecondCall
}

// UnmarshalText rejects unknown calls.
func (c *AssemblyCall) UnmarshalText(text []byte) error {
	v := AssemblyCall(text)
	if !v.Valid() {
		return fmt.Errorf("invalid assembly call %q", text)
	}
	*c = v
	return nil
}

// Member is one owner in a building roster.
type Member struct {
	ID       string   `json:"id" yaml:"id" db:"id"`
	Name     string   `json:"name" yaml:"name" db:"name"`
	Fraction string   `json:"fraction" yaml:"fraction" db:"fraction"`
	Weight   Permille `json:"weight" yaml:"weight" db:"weight"`
}

// Attendee is a roster member together with their attendance at one assembly.
type Attendee struct {
	Member         `yaml:",inline"`
	Attendance     AttendanceType `json:"attendance,omitempty" yaml:"attendance,omitempty"`
	Representative string         `json:"representative,omitempty" yaml:"representative,omitempty"`
	// Signature is an opaque captured artifact; it is stored and never interpreted.
	Signature []byte `json:"signature,omitempty" yaml:"-"`
}

// AgendaItem is one entry of an assembly agenda.
type AgendaItem struct {
	Number      int            `json:"number" yaml:"number"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        AgendaItemKind `json:"kind" yaml:"kind"`
	Majority    MajorityType   `json:"majority,omitempty" yaml:"majority,omitempty"`
	Result      *VoteRecord    `json:"result,omitempty" yaml:"-"`
}

// Votable reports whether the item requires recorded choices.
func (i AgendaItem) Votable() bool {
	return i.Kind == AgendaVotable
}

// Votes holds recorded choices keyed by agenda item number, then member id.
type Votes map[int]map[string]VoteChoice

// VoteRecord is the derived outcome of one votable agenda item.
type VoteRecord struct {
	ItemNumber          int          `json:"item_number"`
	Majority            MajorityType `json:"majority"`
	FavorNames          []string     `json:"favor_names"`
	AgainstNames        []string     `json:"against_names"`
	AbstainNames        []string     `json:"abstain_names"`
	FavorWeight         Permille     `json:"favor_weight"`
	AgainstWeight       Permille     `json:"against_weight"`
	AbstainWeight       Permille     `json:"abstain_weight"`
	TotalVotingWeight   Permille     `json:"total_voting_weight"`
	TotalBuildingWeight Permille     `json:"total_building_weight"`
	Passed              bool         `json:"passed"`
}

// QuorumResult summarises attendance weight against the building total.
type QuorumResult struct {
	TotalWeight         Permille `json:"total_weight"`
	PresentWeight       Permille `json:"present_weight"`
	RepresentedWeight   Permille `json:"represented_weight"`
	CombinedWeight      Permille `json:"combined_weight"`
	QuorumPercentage    float64  `json:"quorum_percentage"`
	FirstCallQuorumMet  bool     `json:"first_call_quorum_met"`
	SecondCallQuorumMet bool     `json:"second_call_quorum_met"`
	PresentCount        int      `json:"present_count"`
	RepresentedCount    int      `json:"represented_count"`
	AbsentCount         int      `json:"absent_count"`
}

// Met reports whether quorum holds for the given call. Unknown calls are
// treated as first call.
func (q QuorumResult) Met(call AssemblyCall) bool {
	if call == SecondCall {
		return q.SecondCallQuorumMet
	}
	return q.FirstCallQuorumMet
}
