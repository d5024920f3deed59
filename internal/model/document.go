package model

import "time"

// Status is the approval workflow state of a versioned document.
type Status string

const (
	StatusCreated         Status = "Created"
	StatusUnderReview     Status = "Under Review"
	StatusPendingApproval Status = "Pending for approval"
	StatusApproved        Status = "Approved"
)

// Valid reports whether s is one of the known workflow states.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusUnderReview, StatusPendingApproval, StatusApproved:
		return true
	}
	return false
}

// Content is implemented by the step payloads a Record can carry.
type Content interface {
	Validate() error
}

// Record is a versioned manufacturing document: a product-scoped procedure
// together with its approval workflow state.
// C is the document-kind specific content (instructions or equipment activities).
type Record[C Content] struct {
	ID          int64  `json:"id"`
	ProductName string `json:"product_name"`
	Content     C      `json:"content"`
	WorkflowState
	// Revision is bumped on every persisted write and guards concurrent
	// read-modify-write cycles. It is unrelated to Version.
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Instruction is a master manufacturing instruction.
type Instruction = Record[InstructionContent]

// EquipmentActivity is a master equipment activity procedure.
type EquipmentActivity = Record[ActivityContent]

// WorkflowState holds every field the approval workflow reads or mutates.
// It is shared by all document kinds.
type WorkflowState struct {
	Status          Status         `json:"status"`
	Version         int            `json:"version"`
	Reviewers       ReviewerSet    `json:"reviewers"`
	Approvers       ApproverSet    `json:"approvers"`
	RejectionInfo   *RejectionInfo `json:"rejection_info"`
	ReviewNote      string         `json:"review_note"`
	Comments        []Comment      `json:"comments"`
	OriginalDocPath string         `json:"original_doc_path"`
	History         []HistoryEntry `json:"history"`
	CreatedBy       string         `json:"created_by"`
}

// NewWorkflowState returns the state of a freshly created document.
func NewWorkflowState(createdBy, docPath string) WorkflowState {
	return WorkflowState{
		Status:          StatusCreated,
		Version:         1,
		Reviewers:       ReviewerSet{},
		Approvers:       ApproverSet{},
		Comments:        []Comment{},
		History:         []HistoryEntry{},
		OriginalDocPath: docPath,
		CreatedBy:       createdBy,
	}
}

// RejectionInfo is set by a rejection and cleared by the next assignment.
type RejectionInfo struct {
	Reason     string    `json:"reason"`
	RejectedBy string    `json:"rejected_by"`
	RejectedAt time.Time `json:"rejected_at"`
}

// Comment is a review remark on the current version.
type Comment struct {
	User      string    `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry is an archived snapshot of a prior version. Entries are append-only.
type HistoryEntry struct {
	Version       int            `json:"version"`
	DocPath       string         `json:"doc_path"`
	RejectionInfo *RejectionInfo `json:"rejection_info"`
	Comments      []Comment      `json:"comments"`
	ArchivedAt    time.Time      `json:"archived_at"`
}

// ProductSummary is the projection used by approved-product pickers.
type ProductSummary struct {
	ID          int64  `json:"id"`
	ProductName string `json:"product_name"`
}
