package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instructapi/internal/model"
	"instructapi/internal/repository"
)

var rowColumns = []string{
	"id", "product_name", "content", "status", "version", "reviewers", "approvers", "rejection_info",
	"review_note", "comments", "original_doc_path", "history", "created_by", "revision", "created_at", "updated_at",
}

const instructionJSON = `{"instruction_name":{"en":"Mixing"},"instructions":[{"step":1,"text":{"en":"Add water"},"has_placeholder":false}]}`

func newRepo(t *testing.T) (*DocumentPostgres[model.InstructionContent], sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewDocumentPostgres[model.InstructionContent](db, InstructionsTable), mock
}

func sampleRecord() *model.Instruction {
	return &model.Instruction{
		ProductName: "Widget",
		Content: model.InstructionContent{
			InstructionName: model.LocalizedText{"en": "Mixing"},
			Instructions:    []model.Step{{Step: 1, Text: model.LocalizedText{"en": "Add water"}}},
		},
		WorkflowState: model.NewWorkflowState("alice", "master_instructions/a.pdf"),
	}
}

func TestDocumentPostgres_Create(t *testing.T) {
	repo, mock := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rows := sqlmock.NewRows(rowColumns).
		AddRow(int64(7), "Widget", instructionJSON, "Created", 1, "[]", "[]", nil,
			"", "[]", "master_instructions/a.pdf", "[]", "alice", int64(1), now, now)

	mock.ExpectQuery("INSERT INTO master_instructions").
		WithArgs("Widget", sqlmock.AnyArg(), "Created", 1, "[]", "[]", nil,
			"", "[]", "master_instructions/a.pdf", "[]", "alice", sqlmock.AnyArg()).
		WillReturnRows(rows)

	result, err := repo.Create(ctx, sampleRecord())

	require.NoError(t, err)
	assert.Equal(t, int64(7), result.ID)
	assert.Equal(t, model.StatusCreated, result.Status)
	assert.Equal(t, int64(1), result.Revision)
	assert.Equal(t, "Mixing", result.Content.InstructionName["en"])
	assert.Len(t, result.Content.Instructions, 1)
	assert.Nil(t, result.RejectionInfo)
	assert.NotNil(t, result.Reviewers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_FindByID(t *testing.T) {
	repo, mock := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(rowColumns).
			AddRow(int64(3), "Widget", instructionJSON, "Under Review", 2,
				`[{"user_id":"bob","username":"Bob","has_reviewed":true,"reviewed_at":"2024-01-02T00:00:00Z"}]`, `[{"user_id":"carol","username":"Carol","has_approved":false}]`,
				`{"reason":"typo","rejected_by":"dave","rejected_at":"2024-01-01T00:00:00Z"}`,
				"note", `[{"user":"Bob","text":"ok","created_at":"2024-01-01T00:00:00Z"}]`, "p.pdf",
				`[{"version":1,"doc_path":"old.pdf","rejection_info":null,"comments":[],"archived_at":"2024-01-01T00:00:00Z"}]`,
				"alice", int64(5), now, now)

		mock.ExpectQuery("SELECT (.+) FROM master_instructions WHERE id = ?").
			WithArgs(int64(3)).
			WillReturnRows(rows)

		doc, err := repo.FindByID(ctx, 3)

		require.NoError(t, err)
		assert.Equal(t, model.StatusUnderReview, doc.Status)
		assert.Equal(t, 2, doc.Version)
		require.Len(t, doc.Reviewers, 1)
		assert.Equal(t, "bob", doc.Reviewers[0].UserID)
		assert.True(t, doc.Reviewers[0].Completed)
		require.NotNil(t, doc.Reviewers[0].CompletedAt)
		require.Len(t, doc.Approvers, 1)
		assert.False(t, doc.Approvers[0].Completed)
		require.NotNil(t, doc.RejectionInfo)
		assert.Equal(t, "typo", doc.RejectionInfo.Reason)
		require.Len(t, doc.History, 1)
		assert.Equal(t, "old.pdf", doc.History[0].DocPath)
		assert.Equal(t, int64(5), doc.Revision)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM master_instructions WHERE id = ?").
			WithArgs(int64(404)).
			WillReturnError(sql.ErrNoRows)

		doc, err := repo.FindByID(ctx, 404)

		assert.Error(t, err)
		assert.Nil(t, doc)
		assert.True(t, errors.Is(err, sql.ErrNoRows))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_List(t *testing.T) {
	repo, mock := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("all", func(t *testing.T) {
		rows := sqlmock.NewRows(rowColumns).
			AddRow(int64(1), "A", instructionJSON, "Created", 1, "[]", "[]", nil, "", "[]", "", "[]", "alice", int64(1), now, now).
			AddRow(int64(2), "B", instructionJSON, "Approved", 1, "[]", "[]", nil, "", "[]", "", "[]", "alice", int64(4), now, now)

		mock.ExpectQuery("SELECT (.+) FROM master_instructions ORDER BY id").
			WillReturnRows(rows)

		items, err := repo.List(ctx, repository.ListFilter{})

		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "B", items[1].ProductName)
	})

	t.Run("by status", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM master_instructions WHERE status = \\$1 ORDER BY id").
			WithArgs("Approved").
			WillReturnRows(sqlmock.NewRows(rowColumns))

		items, err := repo.List(ctx, repository.ListFilter{Status: model.StatusApproved})

		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM master_instructions").
			WillReturnError(errors.New("db down"))

		items, err := repo.List(ctx, repository.ListFilter{})

		assert.Error(t, err)
		assert.Nil(t, items)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_ListProducts(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery("SELECT id, product_name FROM master_instructions WHERE status = \\$1").
		WithArgs("Approved").
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_name"}).
			AddRow(int64(2), "Bolt").
			AddRow(int64(1), "Widget"))

	items, err := repo.ListProducts(context.Background(), model.StatusApproved)

	require.NoError(t, err)
	assert.Equal(t, []model.ProductSummary{{ID: 2, ProductName: "Bolt"}, {ID: 1, ProductName: "Widget"}}, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_Update(t *testing.T) {
	repo, mock := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := sampleRecord()
	rec.ID = 9
	rec.Revision = 3
	rec.Status = model.StatusUnderReview

	t.Run("success bumps revision", func(t *testing.T) {
		rows := sqlmock.NewRows(rowColumns).
			AddRow(int64(9), "Widget", instructionJSON, "Under Review", 1, "[]", "[]", nil,
				"", "[]", "master_instructions/a.pdf", "[]", "alice", int64(4), now, now)

		mock.ExpectQuery("UPDATE master_instructions SET (.+) WHERE id = \\$1 AND revision = \\$14").
			WithArgs(int64(9), "Widget", sqlmock.AnyArg(), "Under Review", 1, "[]", "[]", nil,
				"", "[]", "master_instructions/a.pdf", "[]", sqlmock.AnyArg(), int64(3)).
			WillReturnRows(rows)

		out, err := repo.Update(ctx, rec)

		require.NoError(t, err)
		assert.Equal(t, int64(4), out.Revision)
	})

	t.Run("participants are stored with role field names", func(t *testing.T) {
		reviewed := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		withTeam := *rec
		withTeam.Reviewers = model.NewReviewerSet([]model.Assignee{{UserID: "bob", Username: "Bob"}})
		withTeam.Reviewers.Complete("bob", reviewed)
		withTeam.Approvers = model.NewApproverSet([]model.Assignee{{UserID: "carol", Username: "Carol"}})

		rows := sqlmock.NewRows(rowColumns).
			AddRow(int64(9), "Widget", instructionJSON, "Under Review", 1,
				`[{"user_id":"bob","username":"Bob","has_reviewed":true,"reviewed_at":"2024-01-02T00:00:00Z"}]`,
				`[{"user_id":"carol","username":"Carol","has_approved":false}]`, nil,
				"", "[]", "master_instructions/a.pdf", "[]", "alice", int64(4), now, now)

		mock.ExpectQuery("UPDATE master_instructions SET").
			WithArgs(int64(9), "Widget", sqlmock.AnyArg(), "Under Review", 1,
				`[{"user_id":"bob","username":"Bob","has_reviewed":true,"reviewed_at":"2024-01-02T00:00:00Z"}]`,
				`[{"user_id":"carol","username":"Carol","has_approved":false}]`, nil,
				"", "[]", "master_instructions/a.pdf", "[]", sqlmock.AnyArg(), int64(3)).
			WillReturnRows(rows)

		out, err := repo.Update(ctx, &withTeam)

		require.NoError(t, err)
		assert.Equal(t, withTeam.Reviewers, out.Reviewers)
		assert.Equal(t, withTeam.Approvers, out.Approvers)
	})

	t.Run("stale revision", func(t *testing.T) {
		mock.ExpectQuery("UPDATE master_instructions SET").
			WillReturnRows(sqlmock.NewRows(rowColumns))

		out, err := repo.Update(ctx, rec)

		assert.Nil(t, out)
		assert.ErrorIs(t, err, repository.ErrStaleRevision)
	})

	t.Run("rejection info is encoded", func(t *testing.T) {
		withRejection := *rec
		withRejection.RejectionInfo = &model.RejectionInfo{Reason: "typo", RejectedBy: "dave", RejectedAt: now}

		mock.ExpectQuery("UPDATE master_instructions SET").
			WithArgs(int64(9), "Widget", sqlmock.AnyArg(), "Under Review", 1, "[]", "[]", sqlmock.AnyArg(),
				"", "[]", "master_instructions/a.pdf", "[]", sqlmock.AnyArg(), int64(3)).
			WillReturnError(errors.New("boom"))

		out, err := repo.Update(ctx, &withRejection)

		assert.Nil(t, out)
		assert.EqualError(t, err, "boom")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
