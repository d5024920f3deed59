package model

import (
	"encoding/json"
	"time"
)

// Assignee identifies a user being assigned as reviewer or approver.
type Assignee struct {
	UserID   string `json:"user_id" validate:"required"`
	Username string `json:"username"`
}

// Participant is a reviewer or approver on the current document version.
// Username is a snapshot taken at assignment time and is never re-synced
// with the user directory. Completed and CompletedAt are written as
// has_reviewed/reviewed_at for reviewers and has_approved/approved_at for
// approvers.
type Participant struct {
	UserID      string
	Username    string
	Completed   bool
	CompletedAt *time.Time
}

type reviewerJSON struct {
	UserID      string     `json:"user_id"`
	Username    string     `json:"username"`
	HasReviewed bool       `json:"has_reviewed"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
}

type approverJSON struct {
	UserID      string     `json:"user_id"`
	Username    string     `json:"username"`
	HasApproved bool       `json:"has_approved"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
}

// participantKind selects the JSON shape of a participant.
type participantKind interface {
	encode(p Participant) any
	decode(raw json.RawMessage) (Participant, error)
}

type reviewerKind struct{}

func (reviewerKind) encode(p Participant) any {
	return reviewerJSON{UserID: p.UserID, Username: p.Username, HasReviewed: p.Completed, ReviewedAt: p.CompletedAt}
}

func (reviewerKind) decode(raw json.RawMessage) (Participant, error) {
	var w reviewerJSON
	err := json.Unmarshal(raw, &w)
	return Participant{UserID: w.UserID, Username: w.Username, Completed: w.HasReviewed, CompletedAt: w.ReviewedAt}, err
}

type approverKind struct{}

func (approverKind) encode(p Participant) any {
	return approverJSON{UserID: p.UserID, Username: p.Username, HasApproved: p.Completed, ApprovedAt: p.CompletedAt}
}

func (approverKind) decode(raw json.RawMessage) (Participant, error) {
	var w approverJSON
	err := json.Unmarshal(raw, &w)
	return Participant{UserID: w.UserID, Username: w.Username, Completed: w.HasApproved, CompletedAt: w.ApprovedAt}, err
}

// ParticipantSet is the ordered list of reviewers or approvers of a version.
// K only decides the JSON field names; quorum rules are the same for both.
type ParticipantSet[K participantKind] []Participant

type (
	ReviewerSet = ParticipantSet[reviewerKind]
	ApproverSet = ParticipantSet[approverKind]
)

// NewParticipantSet builds a set from assignees with every completion flag cleared.
func NewParticipantSet[K participantKind](assignees []Assignee) ParticipantSet[K] {
	set := make(ParticipantSet[K], 0, len(assignees))
	for _, a := range assignees {
		set = append(set, Participant{UserID: a.UserID, Username: a.Username})
	}
	return set
}

// NewReviewerSet builds the reviewer list of a new review round.
func NewReviewerSet(assignees []Assignee) ReviewerSet {
	return NewParticipantSet[reviewerKind](assignees)
}

// NewApproverSet builds the approver list of a new review round.
func NewApproverSet(assignees []Assignee) ApproverSet {
	return NewParticipantSet[approverKind](assignees)
}

// Index returns the position of userID in the set, or -1.
func (s ParticipantSet[K]) Index(userID string) int {
	for i := range s {
		if s[i].UserID == userID {
			return i
		}
	}
	return -1
}

// Contains reports whether userID is a participant.
func (s ParticipantSet[K]) Contains(userID string) bool {
	return s.Index(userID) >= 0
}

// Complete marks userID as done at the given time. A participant that is
// already done keeps its original timestamp. It returns false when userID
// is not in the set.
func (s ParticipantSet[K]) Complete(userID string, at time.Time) bool {
	i := s.Index(userID)
	if i < 0 {
		return false
	}
	if s[i].Completed {
		return true
	}
	t := at
	s[i].Completed = true
	s[i].CompletedAt = &t
	return true
}

// QuorumReached reports whether every participant is done.
// An empty set never reaches quorum.
func (s ParticipantSet[K]) QuorumReached() bool {
	if len(s) == 0 {
		return false
	}
	for i := range s {
		if !s[i].Completed {
			return false
		}
	}
	return true
}

// Pending returns the participants that have not completed yet.
func (s ParticipantSet[K]) Pending() ParticipantSet[K] {
	out := ParticipantSet[K]{}
	for _, p := range s {
		if !p.Completed {
			out = append(out, p)
		}
	}
	return out
}

// MarshalJSON writes the set as an array, never null.
func (s ParticipantSet[K]) MarshalJSON() ([]byte, error) {
	var k K
	out := make([]any, 0, len(s))
	for _, p := range s {
		out = append(out, k.encode(p))
	}
	return json.Marshal(out)
}

func (s *ParticipantSet[K]) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var k K
	set := make(ParticipantSet[K], 0, len(raw))
	for _, r := range raw {
		p, err := k.decode(r)
		if err != nil {
			return err
		}
		set = append(set, p)
	}
	*s = set
	return nil
}
