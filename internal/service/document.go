package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"instructapi/internal/cache"
	"instructapi/internal/metrics"
	"instructapi/internal/model"
	"instructapi/internal/repository"
	"instructapi/internal/storage"
	"instructapi/internal/workflow"
)

var tracer = otel.Tracer("instructapi/internal/service")

const (
	defaultLimit = 10
	maxLimit     = 100
)

// DocumentListResult is the service-level DTO for a page of documents.
type DocumentListResult[C model.Content] struct {
	Items []model.Record[C] `json:"data"`
	Total int               `json:"total"`
}

// Upload is a source document streamed to object storage.
type Upload struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
}

// DocumentInput carries the editable part of a document. Source is optional.
type DocumentInput[C model.Content] struct {
	ProductName string
	Content     C
	Source      *Upload
}

// DocumentService defines the use cases of one document kind. Every method
// acts on behalf of caller. Business failures are *workflow.Error values.
type DocumentService[C model.Content] interface {
	// Create stores a new document in Created at version 1. A supplied source
	// document is uploaded first and removed again if the insert fails.
	Create(ctx context.Context, caller model.Caller, in DocumentInput[C]) (*model.Record[C], error)

	// List returns the page of documents visible to caller and the visible total.
	List(ctx context.Context, caller model.Caller, limit, offset int) (*DocumentListResult[C], error)

	// ListApproved returns id and product name of every approved document.
	ListApproved(ctx context.Context) ([]model.ProductSummary, error)

	// Get returns a document visible to caller.
	Get(ctx context.Context, caller model.Caller, id int64) (*model.Record[C], error)

	// History returns the archived versions of a document visible to caller.
	History(ctx context.Context, caller model.Caller, id int64) ([]model.HistoryEntry, error)

	// SourceURL returns a time-limited download URL for the current source document.
	SourceURL(ctx context.Context, caller model.Caller, id int64) (string, error)

	// OpenSource streams the source document through the API. The caller
	// must close the reader.
	OpenSource(ctx context.Context, caller model.Caller, id int64) (io.ReadCloser, storage.ObjectInfo, error)

	AssignWorkflow(ctx context.Context, caller model.Caller, id int64, reviewers, approvers []model.Assignee) (*model.Record[C], error)
	SubmitReview(ctx context.Context, caller model.Caller, id int64) (*model.Record[C], error)
	Approve(ctx context.Context, caller model.Caller, id int64) (*model.Record[C], error)
	Reject(ctx context.Context, caller model.Caller, id int64, reason string) (*model.Record[C], error)
	AssignChangeWorkflow(ctx context.Context, caller model.Caller, id int64) (*model.Record[C], error)

	// UploadRevision replaces the content, archives the current version and
	// restarts the workflow at the next version.
	UploadRevision(ctx context.Context, caller model.Caller, id int64, in DocumentInput[C]) (*model.Record[C], error)

	SaveNote(ctx context.Context, caller model.Caller, id int64, note string) (*model.Record[C], error)
	AddComment(ctx context.Context, caller model.Caller, id int64, text string) (*model.Record[C], error)
}

// Options configures a DocumentService.
type Options[C model.Content] struct {
	// Kind names the document kind in storage keys, logs and metrics.
	Kind string
	// MaxRetries bounds how often a write that lost a concurrent update race
	// is re-applied on fresh state.
	MaxRetries    int
	PresignExpiry time.Duration
	Logger        logrus.FieldLogger
	Metrics       *metrics.Workflow
	Cache         cache.DocumentCache[C]
	// BackOff builds the retry schedule of one write.
	BackOff func() backoff.BackOff
}

// documentService is the concrete implementation of DocumentService.
type documentService[C model.Content] struct {
	repo    repository.DocumentRepository[C]
	store   storage.Storage
	engine  *workflow.Engine
	opts    Options[C]
	log     logrus.FieldLogger
	cache   cache.DocumentCache[C]
	metrics *metrics.Workflow
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService[C model.Content](repo repository.DocumentRepository[C], store storage.Storage, engine *workflow.Engine, opts Options[C]) DocumentService[C] {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Cache == nil {
		opts.Cache = cache.Noop[C]{}
	}
	if opts.BackOff == nil {
		opts.BackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			return b
		}
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = 15 * time.Minute
	}
	return &documentService[C]{
		repo:    repo,
		store:   store,
		engine:  engine,
		opts:    opts,
		log:     opts.Logger.WithField("kind", opts.Kind),
		cache:   opts.Cache,
		metrics: opts.Metrics,
	}
}

func (s *documentService[C]) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("document.kind", s.opts.Kind))
	return tracer.Start(ctx, "DocumentService."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func validateInput[C model.Content](in DocumentInput[C]) (string, error) {
	name := strings.TrimSpace(in.ProductName)
	if name == "" {
		return "", workflow.ValidationError("product_name is required")
	}
	if err := in.Content.Validate(); err != nil {
		return "", workflow.ValidationError("invalid content: %v", err)
	}
	return name, nil
}

// putSource uploads an optional source document and returns its key.
func (s *documentService[C]) putSource(ctx context.Context, up *Upload) (string, error) {
	if up == nil {
		return "", nil
	}
	if up.Reader == nil {
		return "", workflow.ValidationError("source document is empty")
	}
	key := storage.ObjectKey(s.opts.Kind, up.Filename)
	info, err := s.store.Put(ctx, key, up.Reader, storage.PutObjectOptions{
		Size:        up.Size,
		ContentType: up.ContentType,
		Metadata: map[string]string{
			"original-filename": up.Filename,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload to storage: %w", err)
	}
	return info.Key, nil
}

// dropSource removes an uploaded object after the record write failed.
func (s *documentService[C]) dropSource(ctx context.Context, key string, cause error) error {
	if key == "" {
		return cause
	}
	if delErr := s.store.Delete(ctx, key); delErr != nil {
		s.log.WithError(delErr).WithField("key", key).Error("source_rollback_failed")
		return fmt.Errorf("%w; rollback delete failed: %v", cause, delErr)
	}
	return cause
}

func (s *documentService[C]) Create(ctx context.Context, caller model.Caller, in DocumentInput[C]) (_ *model.Record[C], err error) {
	ctx, span := s.startSpan(ctx, "Create")
	defer func() { endSpan(span, err) }()

	name, err := validateInput(in)
	if err != nil {
		return nil, err
	}
	key, err := s.putSource(ctx, in.Source)
	if err != nil {
		return nil, err
	}

	rec := &model.Record[C]{
		ProductName:   name,
		Content:       in.Content,
		WorkflowState: model.NewWorkflowState(caller.UserID, key),
	}
	stored, err := s.repo.Create(ctx, rec)
	if err != nil {
		return nil, s.dropSource(ctx, key, fmt.Errorf("db save failed: %w", err))
	}

	s.log.WithFields(logrus.Fields{"id": stored.ID, "user_id": caller.UserID}).Info("document_created")
	return stored, nil
}

func (s *documentService[C]) List(ctx context.Context, caller model.Caller, limit, offset int) (_ *DocumentListResult[C], err error) {
	ctx, span := s.startSpan(ctx, "List")
	defer func() { endSpan(span, err) }()

	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	all, err := s.repo.List(ctx, repository.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	visible := make([]model.Record[C], 0, len(all))
	for i := range all {
		if s.engine.CanView(&all[i].WorkflowState, caller) {
			visible = append(visible, all[i])
		}
	}

	res := &DocumentListResult[C]{Items: []model.Record[C]{}, Total: len(visible)}
	if offset < len(visible) {
		end := min(offset+limit, len(visible))
		res.Items = visible[offset:end]
	}
	return res, nil
}

func (s *documentService[C]) ListApproved(ctx context.Context) (_ []model.ProductSummary, err error) {
	ctx, span := s.startSpan(ctx, "ListApproved")
	defer func() { endSpan(span, err) }()

	items, err := s.repo.ListProducts(ctx, model.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("list approved products: %w", err)
	}
	return items, nil
}

// find reads a document through the cache.
func (s *documentService[C]) find(ctx context.Context, id int64) (*model.Record[C], error) {
	if rec, err := s.cache.Get(ctx, id); err != nil {
		s.log.WithError(err).WithField("id", id).Warn("cache_get_failed")
	} else if rec != nil {
		return rec, nil
	}

	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, rec); err != nil {
		s.log.WithError(err).WithField("id", id).Warn("cache_set_failed")
	}
	return rec, nil
}

// load reads a document from the repository, bypassing the cache.
func (s *documentService[C]) load(ctx context.Context, id int64) (*model.Record[C], error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, workflow.NotFoundError("document %d not found", id)
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return rec, nil
}

func (s *documentService[C]) Get(ctx context.Context, caller model.Caller, id int64) (_ *model.Record[C], err error) {
	ctx, span := s.startSpan(ctx, "Get", attribute.Int64("document.id", id))
	defer func() { endSpan(span, err) }()

	return s.visible(ctx, caller, id)
}

// visible returns the document or NotFound when the caller may not see it,
// so hidden documents are indistinguishable from missing ones.
func (s *documentService[C]) visible(ctx context.Context, caller model.Caller, id int64) (*model.Record[C], error) {
	rec, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.engine.CanView(&rec.WorkflowState, caller) {
		return nil, workflow.NotFoundError("document %d not found", id)
	}
	return rec, nil
}

func (s *documentService[C]) History(ctx context.Context, caller model.Caller, id int64) (_ []model.HistoryEntry, err error) {
	ctx, span := s.startSpan(ctx, "History", attribute.Int64("document.id", id))
	defer func() { endSpan(span, err) }()

	rec, err := s.visible(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if rec.History == nil {
		return []model.HistoryEntry{}, nil
	}
	return rec.History, nil
}

func (s *documentService[C]) SourceURL(ctx context.Context, caller model.Caller, id int64) (_ string, err error) {
	ctx, span := s.startSpan(ctx, "SourceURL", attribute.Int64("document.id", id))
	defer func() { endSpan(span, err) }()

	rec, err := s.visible(ctx, caller, id)
	if err != nil {
		return "", err
	}
	if rec.OriginalDocPath == "" {
		return "", workflow.NotFoundError("document %d has no source document", id)
	}
	u, err := s.store.PresignGet(ctx, rec.OriginalDocPath, s.opts.PresignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign source document: %w", err)
	}
	return u, nil
}

func (s *documentService[C]) OpenSource(ctx context.Context, caller model.Caller, id int64) (_ io.ReadCloser, _ storage.ObjectInfo, err error) {
	ctx, span := s.startSpan(ctx, "OpenSource", attribute.Int64("document.id", id))
	defer func() { endSpan(span, err) }()

	rec, err := s.visible(ctx, caller, id)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	if rec.OriginalDocPath == "" {
		return nil, storage.ObjectInfo{}, workflow.NotFoundError("document %d has no source document", id)
	}
	rc, info, err := s.store.Get(ctx, rec.OriginalDocPath)
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("open source document: %w", err)
	}
	return rc, info, nil
}

// mutate runs one read-modify-write cycle. When the write loses a race
// against a concurrent update the document is reloaded and apply runs again
// on the fresh state. Business errors end the cycle immediately.
func (s *documentService[C]) mutate(ctx context.Context, op string, caller model.Caller, id int64, apply func(rec *model.Record[C]) error) (_ *model.Record[C], err error) {
	ctx, span := s.startSpan(ctx, op, attribute.Int64("document.id", id))
	defer func() { endSpan(span, err) }()

	var from model.Status
	stored, err := backoff.Retry(ctx, func() (*model.Record[C], error) {
		rec, err := s.load(ctx, id)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		from = rec.Status
		if err := apply(rec); err != nil {
			return nil, backoff.Permanent(err)
		}
		out, err := s.repo.Update(ctx, rec)
		if errors.Is(err, repository.ErrStaleRevision) {
			s.metrics.Retry(s.opts.Kind, op)
			s.log.WithFields(logrus.Fields{"id": id, "op": op}).Debug("stale_revision_retry")
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("update document: %w", err))
		}
		return out, nil
	}, backoff.WithBackOff(s.opts.BackOff()), backoff.WithMaxTries(uint(s.opts.MaxRetries+1)))
	if err != nil {
		if errors.Is(err, repository.ErrStaleRevision) {
			return nil, workflow.ConflictError("document %d was modified concurrently, retry the request", id)
		}
		return nil, err
	}

	s.writeThrough(ctx, stored)
	s.metrics.Transition(s.opts.Kind, from, stored.Status)
	s.log.WithFields(logrus.Fields{
		"id":      id,
		"op":      op,
		"user_id": caller.UserID,
		"from":    from,
		"to":      stored.Status,
		"version": stored.Version,
	}).Info("document_updated")
	return stored, nil
}

// writeThrough replaces the cached copy with the stored document. A fill
// that read the previous revision cannot overwrite it afterwards. When the
// cache refuses the write the entry is evicted instead.
func (s *documentService[C]) writeThrough(ctx context.Context, stored *model.Record[C]) {
	err := s.cache.Set(ctx, stored)
	if err == nil {
		return
	}
	s.log.WithError(err).WithField("id", stored.ID).Warn("cache_set_failed")
	if err := s.cache.Delete(ctx, stored.ID); err != nil {
		s.log.WithError(err).WithField("id", stored.ID).Warn("cache_invalidate_failed")
	}
}

func (s *documentService[C]) AssignWorkflow(ctx context.Context, caller model.Caller, id int64, reviewers, approvers []model.Assignee) (*model.Record[C], error) {
	return s.mutate(ctx, "AssignWorkflow", caller, id, func(rec *model.Record[C]) error {
		return s.engine.AssignWorkflow(&rec.WorkflowState, reviewers, approvers)
	})
}

func (s *documentService[C]) SubmitReview(ctx context.Context, caller model.Caller, id int64) (*model.Record[C], error) {
	return s.mutate(ctx, "SubmitReview", caller, id, func(rec *model.Record[C]) error {
		return s.engine.SubmitReview(&rec.WorkflowState, caller.UserID)
	})
}

func (s *documentService[C]) Approve(ctx context.Context, caller model.Caller, id int64) (*model.Record[C], error) {
	return s.mutate(ctx, "Approve", caller, id, func(rec *model.Record[C]) error {
		return s.engine.Approve(&rec.WorkflowState, caller)
	})
}

func (s *documentService[C]) Reject(ctx context.Context, caller model.Caller, id int64, reason string) (*model.Record[C], error) {
	return s.mutate(ctx, "Reject", caller, id, func(rec *model.Record[C]) error {
		return s.engine.Reject(&rec.WorkflowState, caller, reason)
	})
}

func (s *documentService[C]) AssignChangeWorkflow(ctx context.Context, caller model.Caller, id int64) (*model.Record[C], error) {
	return s.mutate(ctx, "AssignChangeWorkflow", caller, id, func(rec *model.Record[C]) error {
		return s.engine.AssignChangeWorkflow(&rec.WorkflowState, caller)
	})
}

func (s *documentService[C]) UploadRevision(ctx context.Context, caller model.Caller, id int64, in DocumentInput[C]) (*model.Record[C], error) {
	name, err := validateInput(in)
	if err != nil {
		return nil, err
	}
	key, err := s.putSource(ctx, in.Source)
	if err != nil {
		return nil, err
	}

	stored, err := s.mutate(ctx, "UploadRevision", caller, id, func(rec *model.Record[C]) error {
		if err := s.engine.Revise(&rec.WorkflowState, key); err != nil {
			return err
		}
		rec.ProductName = name
		rec.Content = in.Content
		return nil
	})
	if err != nil {
		return nil, s.dropSource(ctx, key, err)
	}
	return stored, nil
}

func (s *documentService[C]) SaveNote(ctx context.Context, caller model.Caller, id int64, note string) (*model.Record[C], error) {
	return s.mutate(ctx, "SaveNote", caller, id, func(rec *model.Record[C]) error {
		s.engine.SaveNote(&rec.WorkflowState, note)
		return nil
	})
}

func (s *documentService[C]) AddComment(ctx context.Context, caller model.Caller, id int64, text string) (*model.Record[C], error) {
	return s.mutate(ctx, "AddComment", caller, id, func(rec *model.Record[C]) error {
		return s.engine.AddComment(&rec.WorkflowState, caller, text)
	})
}
