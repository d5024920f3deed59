package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"instructapi/internal/model"
	"instructapi/internal/repository"
)

// Table names a document table created by the migrations.
type Table string

const (
	InstructionsTable        Table = "master_instructions"
	EquipmentActivitiesTable Table = "master_equipment_activities"
)

const columns = `id, product_name, content, status, version, reviewers, approvers, rejection_info,
		review_note, comments, original_doc_path, history, created_by, revision, created_at, updated_at`

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
// Workflow collections are stored as JSONB columns.
type DocumentPostgres[C model.Content] struct {
	db    *sql.DB
	table Table
	now   func() time.Time
}

// NewDocumentPostgres creates a repository over one of the document tables.
func NewDocumentPostgres[C model.Content](db *sql.DB, table Table) *DocumentPostgres[C] {
	return &DocumentPostgres[C]{db: db, table: table, now: func() time.Time { return time.Now().UTC() }}
}

var (
	_ repository.DocumentRepository[model.InstructionContent] = (*DocumentPostgres[model.InstructionContent])(nil)
	_ repository.DocumentRepository[model.ActivityContent]    = (*DocumentPostgres[model.ActivityContent])(nil)
)

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres[C]) Create(ctx context.Context, rec *model.Record[C]) (*model.Record[C], error) {
	enc, err := encode(rec)
	if err != nil {
		return nil, err
	}
	now := r.now()
	q := fmt.Sprintf(`
		INSERT INTO %s (product_name, content, status, version, reviewers, approvers, rejection_info,
			review_note, comments, original_doc_path, history, created_by, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $13)
		RETURNING %s
	`, r.table, columns)
	row := r.db.QueryRowContext(ctx, q,
		rec.ProductName,
		enc.content,
		string(rec.Status),
		rec.Version,
		enc.reviewers,
		enc.approvers,
		enc.rejection,
		rec.ReviewNote,
		enc.comments,
		rec.OriginalDocPath,
		enc.history,
		rec.CreatedBy,
		now,
	)
	return scanRecord[C](row)
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres[C]) FindByID(ctx context.Context, id int64) (*model.Record[C], error) {
	q := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1
	`, columns, r.table)
	return scanRecord[C](r.db.QueryRowContext(ctx, q, id))
}

// List returns documents ordered by id, optionally filtered by status.
func (r *DocumentPostgres[C]) List(ctx context.Context, f repository.ListFilter) ([]model.Record[C], error) {
	q := fmt.Sprintf(`SELECT %s FROM %s`, columns, r.table)
	args := []any{}
	if f.Status != "" {
		q += ` WHERE status = $1`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Record[C], 0)
	for rows.Next() {
		rec, err := scanRecord[C](rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ListProducts returns id and product name of documents in the given status.
func (r *DocumentPostgres[C]) ListProducts(ctx context.Context, status model.Status) ([]model.ProductSummary, error) {
	q := fmt.Sprintf(`
		SELECT id, product_name
		FROM %s
		WHERE status = $1
		ORDER BY product_name, id
	`, r.table)
	rows, err := r.db.QueryContext(ctx, q, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.ProductSummary, 0)
	for rows.Next() {
		var p model.ProductSummary
		if err := rows.Scan(&p.ID, &p.ProductName); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Update replaces the document if nobody else wrote it since rec was read.
func (r *DocumentPostgres[C]) Update(ctx context.Context, rec *model.Record[C]) (*model.Record[C], error) {
	enc, err := encode(rec)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
		UPDATE %s SET
			product_name = $2, content = $3, status = $4, version = $5, reviewers = $6,
			approvers = $7, rejection_info = $8, review_note = $9, comments = $10,
			original_doc_path = $11, history = $12, revision = revision + 1, updated_at = $13
		WHERE id = $1 AND revision = $14
		RETURNING %s
	`, r.table, columns)
	row := r.db.QueryRowContext(ctx, q,
		rec.ID,
		rec.ProductName,
		enc.content,
		string(rec.Status),
		rec.Version,
		enc.reviewers,
		enc.approvers,
		enc.rejection,
		rec.ReviewNote,
		enc.comments,
		rec.OriginalDocPath,
		enc.history,
		r.now(),
		rec.Revision,
	)
	out, err := scanRecord[C](row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrStaleRevision
		}
		return nil, err
	}
	return out, nil
}

type encoded struct {
	content   string
	reviewers string
	approvers string
	rejection any
	comments  string
	history   string
}

func encode[C model.Content](rec *model.Record[C]) (encoded, error) {
	var (
		enc encoded
		err error
	)
	if enc.content, err = jsonString(rec.Content); err != nil {
		return enc, fmt.Errorf("encode content: %w", err)
	}
	if enc.reviewers, err = jsonString(nonNil(rec.Reviewers)); err != nil {
		return enc, fmt.Errorf("encode reviewers: %w", err)
	}
	if enc.approvers, err = jsonString(nonNil(rec.Approvers)); err != nil {
		return enc, fmt.Errorf("encode approvers: %w", err)
	}
	if enc.comments, err = jsonString(nonNil(rec.Comments)); err != nil {
		return enc, fmt.Errorf("encode comments: %w", err)
	}
	if enc.history, err = jsonString(nonNil(rec.History)); err != nil {
		return enc, fmt.Errorf("encode history: %w", err)
	}
	if rec.RejectionInfo != nil {
		s, err := jsonString(rec.RejectionInfo)
		if err != nil {
			return enc, fmt.Errorf("encode rejection_info: %w", err)
		}
		enc.rejection = s
	}
	return enc, nil
}

func nonNil[S ~[]E, E any](s S) S {
	if s == nil {
		return S{}
	}
	return s
}

func jsonString(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord[C model.Content](s scanner) (*model.Record[C], error) {
	var (
		rec                                                   model.Record[C]
		status                                                string
		content, reviewers, approvers, rejection, comments, h []byte
	)
	if err := s.Scan(
		&rec.ID,
		&rec.ProductName,
		&content,
		&status,
		&rec.Version,
		&reviewers,
		&approvers,
		&rejection,
		&rec.ReviewNote,
		&comments,
		&rec.OriginalDocPath,
		&h,
		&rec.CreatedBy,
		&rec.Revision,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = model.Status(status)

	if err := json.Unmarshal(content, &rec.Content); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	rec.Reviewers = model.ReviewerSet{}
	if err := decodeOptional(reviewers, &rec.Reviewers); err != nil {
		return nil, fmt.Errorf("decode reviewers: %w", err)
	}
	rec.Approvers = model.ApproverSet{}
	if err := decodeOptional(approvers, &rec.Approvers); err != nil {
		return nil, fmt.Errorf("decode approvers: %w", err)
	}
	rec.Comments = []model.Comment{}
	if err := decodeOptional(comments, &rec.Comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	rec.History = []model.HistoryEntry{}
	if err := decodeOptional(h, &rec.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if len(rejection) > 0 && string(rejection) != "null" {
		var ri model.RejectionInfo
		if err := json.Unmarshal(rejection, &ri); err != nil {
			return nil, fmt.Errorf("decode rejection_info: %w", err)
		}
		rec.RejectionInfo = &ri
	}
	return &rec, nil
}

// decodeOptional leaves dst untouched for NULL or empty columns.
func decodeOptional(b []byte, dst any) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, dst)
}
