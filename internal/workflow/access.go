package workflow

import "instructapi/internal/model"

// CanView reports whether the caller may see a document.
// Admins and supervisors see everything. Everyone else sees approved
// documents and the ones they review or approve, plus their own documents
// when the policy enables creator visibility.
func CanView(s *model.WorkflowState, c model.Caller, p Policy) bool {
	if c.SeesEverything() {
		return true
	}
	if s.Status == model.StatusApproved {
		return true
	}
	if s.Reviewers.Contains(c.UserID) || s.Approvers.Contains(c.UserID) {
		return true
	}
	return p.CreatorVisibility && s.CreatedBy != "" && s.CreatedBy == c.UserID
}

// CanView applies the package CanView with the engine's policy.
func (e *Engine) CanView(s *model.WorkflowState, c model.Caller) bool {
	return CanView(s, c, e.policy)
}
