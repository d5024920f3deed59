// Package cache holds a read-through cache of fully loaded documents.
// The database stays authoritative; cache failures are never fatal to callers.
package cache

import (
	"context"
	"strconv"

	"instructapi/internal/model"
)

// DocumentCache caches documents of one kind by id.
type DocumentCache[C model.Content] interface {
	// Get returns the cached document, or nil without error on a miss.
	Get(ctx context.Context, id int64) (*model.Record[C], error)
	// Set stores the document. It never replaces a cached copy with a
	// higher revision.
	Set(ctx context.Context, rec *model.Record[C]) error
	// Delete evicts the document.
	Delete(ctx context.Context, id int64) error
}

func documentKey(prefix string, id int64) string {
	return prefix + ":" + strconv.FormatInt(id, 10)
}

var _ DocumentCache[model.InstructionContent] = Noop[model.InstructionContent]{}

// Noop is used when no cache is configured. Every Get misses.
type Noop[C model.Content] struct{}

func (Noop[C]) Get(context.Context, int64) (*model.Record[C], error) { return nil, nil }
func (Noop[C]) Set(context.Context, *model.Record[C]) error          { return nil }
func (Noop[C]) Delete(context.Context, int64) error                  { return nil }
