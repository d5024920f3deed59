// Package workflow implements the review and approval state machine shared by
// every versioned document kind.
//
//	Created ──AssignWorkflow──► Under Review
//	Under Review ──all reviewers done──► Pending for approval
//	Under Review | Pending for approval ──Reject──► Created
//	Pending for approval ──all approvers done──► Approved
//	Approved ──AssignChangeWorkflow (Admin)──► Created (version+1, archived)
//
// The engine mutates a model.WorkflowState in memory; persisting it is the
// caller's job.
package workflow

import (
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"instructapi/internal/model"
)

// Policy holds the configurable workflow rules.
type Policy struct {
	// AllowRevisionDuringReview lets revisions be uploaded while a document
	// is Under Review or Pending for approval.
	AllowRevisionDuringReview bool
	// CreatorVisibility makes a document visible to its creator regardless of status.
	CreatorVisibility bool
}

// Engine applies workflow transitions.
type Engine struct {
	policy Policy
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the workflow policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithClock overrides the time source used for completion and archive timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an Engine with the default policy.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AssignWorkflow replaces both participant lists and starts review.
// Any in-progress review or approval state is discarded.
func (e *Engine) AssignWorkflow(s *model.WorkflowState, reviewers, approvers []model.Assignee) error {
	if len(reviewers) == 0 {
		return ValidationError("reviewer required")
	}
	if len(approvers) == 0 {
		return ValidationError("approver required")
	}
	if err := validateAssignees("reviewer", reviewers); err != nil {
		return err
	}
	if err := validateAssignees("approver", approvers); err != nil {
		return err
	}
	if s.Status == model.StatusApproved {
		return ConflictError("approved document must be reopened through the change workflow")
	}

	s.Reviewers = model.NewReviewerSet(reviewers)
	s.Approvers = model.NewApproverSet(approvers)
	s.RejectionInfo = nil
	s.ReviewNote = ""
	s.Status = model.StatusUnderReview
	return nil
}

func validateAssignees(role string, assignees []model.Assignee) error {
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, a := range assignees {
		id := strings.TrimSpace(a.UserID)
		if id == "" {
			return ValidationError("%s user_id is required", role)
		}
		if !seen.Add(id) {
			return ValidationError("%s %s listed more than once", role, id)
		}
	}
	return nil
}

// SubmitReview records userID's review. The document advances to
// Pending for approval only once every reviewer is done.
func (e *Engine) SubmitReview(s *model.WorkflowState, userID string) error {
	if !s.Reviewers.Contains(userID) {
		return PermissionError("you are not a reviewer")
	}
	if s.Status != model.StatusUnderReview {
		// Quorum already reached; repeating a review is a no-op.
		return nil
	}
	s.Reviewers.Complete(userID, e.now())
	if s.Reviewers.QuorumReached() {
		s.Status = model.StatusPendingApproval
	}
	return nil
}

// Approve records the caller's approval. An Admin who is not a listed
// approver force-approves without waiting for quorum.
func (e *Engine) Approve(s *model.WorkflowState, c model.Caller) error {
	if c.IsAdmin() && !s.Approvers.Contains(c.UserID) {
		switch s.Status {
		case model.StatusApproved:
			return nil
		case model.StatusUnderReview, model.StatusPendingApproval:
			s.Status = model.StatusApproved
			s.Reviewers = model.ReviewerSet{}
			return nil
		default:
			return ConflictError("no workflow has been assigned")
		}
	}

	if !s.Approvers.Contains(c.UserID) {
		return PermissionError("you are not an approver")
	}
	switch s.Status {
	case model.StatusApproved:
		return nil
	case model.StatusUnderReview:
		return ConflictError("review is not complete")
	}

	s.Approvers.Complete(c.UserID, e.now())
	if s.Approvers.QuorumReached() {
		s.Status = model.StatusApproved
		s.Reviewers = model.ReviewerSet{}
	}
	return nil
}

// Reject sends the document back to Created and drops every participant.
// Approved documents cannot be rejected.
func (e *Engine) Reject(s *model.WorkflowState, c model.Caller, reason string) error {
	if s.Status == model.StatusApproved {
		return ConflictError("approved document cannot be rejected")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ValidationError("reason required")
	}
	if !c.IsAdmin() && !s.Reviewers.Contains(c.UserID) && !s.Approvers.Contains(c.UserID) {
		return PermissionError("permission denied")
	}

	s.Status = model.StatusCreated
	s.RejectionInfo = &model.RejectionInfo{
		Reason:     reason,
		RejectedBy: c.DisplayName,
		RejectedAt: e.now(),
	}
	s.Reviewers = model.ReviewerSet{}
	s.Approvers = model.ApproverSet{}
	return nil
}

// AssignChangeWorkflow opens a new revision cycle on an Approved document.
func (e *Engine) AssignChangeWorkflow(s *model.WorkflowState, c model.Caller) error {
	if !c.IsAdmin() {
		return PermissionError("only an admin can start a change workflow")
	}
	if s.Status != model.StatusApproved {
		return ConflictError("change workflow requires an approved document")
	}

	e.Archive(s)
	s.Version++
	reset(s)
	return nil
}

// SaveNote stores the reviewer scratch note. It never changes state.
func (e *Engine) SaveNote(s *model.WorkflowState, note string) {
	s.ReviewNote = note
}

// AddComment appends a review comment to the current version.
func (e *Engine) AddComment(s *model.WorkflowState, c model.Caller, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ValidationError("comment text required")
	}
	user := c.DisplayName
	if user == "" {
		user = c.UserID
	}
	s.Comments = append(s.Comments, model.Comment{User: user, Text: text, CreatedAt: e.now()})
	return nil
}

// reset clears every per-version workflow field and returns to Created.
func reset(s *model.WorkflowState) {
	s.Status = model.StatusCreated
	s.Reviewers = model.ReviewerSet{}
	s.Approvers = model.ApproverSet{}
	s.RejectionInfo = nil
	s.ReviewNote = ""
	s.Comments = []model.Comment{}
}
