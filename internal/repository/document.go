package repository

import (
	"context"

	"instructapi/internal/model"
)

// DocumentRepository defines data access for versioned documents of one kind.
// No business logic here, only persistence.
type DocumentRepository[C model.Content] interface {
	// Create inserts a new document and returns it with the id, revision and
	// timestamps assigned by the database.
	Create(ctx context.Context, rec *model.Record[C]) (*model.Record[C], error)

	// FindByID returns a document by its ID, or sql.ErrNoRows.
	FindByID(ctx context.Context, id int64) (*model.Record[C], error)

	// List returns every document matching the filter ordered by id.
	List(ctx context.Context, f ListFilter) ([]model.Record[C], error)

	// ListProducts returns the id and product name of documents in the given status.
	ListProducts(ctx context.Context, status model.Status) ([]model.ProductSummary, error)

	// Update writes the whole document if its stored revision still equals
	// rec.Revision and returns the stored row with the bumped revision.
	// It returns ErrStaleRevision otherwise.
	Update(ctx context.Context, rec *model.Record[C]) (*model.Record[C], error)
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status model.Status
}
