package workflow

import (
	"instructapi/internal/model"
)

// Archive snapshots the current version into history. It does nothing when
// there is no source document yet, and never touches status or version.
// It reports whether an entry was appended.
func (e *Engine) Archive(s *model.WorkflowState) bool {
	if s.OriginalDocPath == "" {
		return false
	}

	var rejection *model.RejectionInfo
	if s.RejectionInfo != nil {
		r := *s.RejectionInfo
		rejection = &r
	}
	comments := make([]model.Comment, len(s.Comments))
	copy(comments, s.Comments)

	s.History = append(s.History, model.HistoryEntry{
		Version:       s.Version,
		DocPath:       s.OriginalDocPath,
		RejectionInfo: rejection,
		Comments:      comments,
		ArchivedAt:    e.now(),
	})
	return true
}

// Revise starts the workflow over for new content: the current version is
// archived, newDocPath (when non-empty) becomes the source document, the
// version is bumped and every workflow field is reset.
//
// Revisions are accepted from Created and Approved. While a review is in
// flight they are rejected unless the policy allows it.
func (e *Engine) Revise(s *model.WorkflowState, newDocPath string) error {
	switch s.Status {
	case model.StatusCreated, model.StatusApproved:
	default:
		if !e.policy.AllowRevisionDuringReview {
			return ConflictError("cannot upload a revision while the document is %s", s.Status)
		}
	}

	e.Archive(s)
	if newDocPath != "" {
		s.OriginalDocPath = newDocPath
	}
	s.Version++
	reset(s)
	return nil
}
