package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"instructapi/internal/model"
	"instructapi/internal/service"
	"instructapi/internal/storage"
)

type MockDocumentService[C model.Content] struct {
	mock.Mock
}

var _ service.DocumentService[model.InstructionContent] = (*MockDocumentService[model.InstructionContent])(nil)

func (m *MockDocumentService[C]) record(args mock.Arguments) (*model.Record[C], error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Record[C]), args.Error(1)
}

func (m *MockDocumentService[C]) Create(ctx context.Context, caller model.Caller, in service.DocumentInput[C]) (*model.Record[C], error) {
	return m.record(m.Called(ctx, caller, in))
}

func (m *MockDocumentService[C]) List(ctx context.Context, caller model.Caller, limit, offset int) (*service.DocumentListResult[C], error) {
	args := m.Called(ctx, caller, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult[C]), args.Error(1)
}

func (m *MockDocumentService[C]) ListApproved(ctx context.Context) ([]model.ProductSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProductSummary), args.Error(1)
}

func (m *MockDocumentService[C]) Get(ctx context.Context, caller model.Caller, id int64) (*model.Record[C], error) {
	return m.record(m.Called(ctx, caller, id))
}

func (m *MockDocumentService[C]) History(ctx context.Context, caller model.Caller, id int64) ([]model.HistoryEntry, error) {
	args := m.Called(ctx, caller, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.HistoryEntry), args.Error(1)
}

func (m *MockDocumentService[C]) SourceURL(ctx context.Context, caller model.Caller, id int64) (string, error) {
	args := m.Called(ctx, caller, id)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentService[C]) OpenSource(ctx context.Context, caller model.Caller, id int64) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, caller, id)
	if args.Get(0) == nil {
		return nil, storage.ObjectInfo{}, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(storage.ObjectInfo), args.Error(2)
}

func (m *MockDocumentService[C]) AssignWorkflow(ctx context.Context, caller model.Caller, id int64, reviewers, approvers []model.Assignee) (*model.Record[C], error) {
	return m.record(m.Called(ctx, caller, id, reviewers, approvers))
}

func (m *MockDocumentService[C]) SubmitReview(ctx context.Context, caller model.Caller, id int64) (*model.Record[C], error) {
	return m.record(m.Called(ctx, caller, id))
}

func (m *MockDocumentService[C]) Approve(ctx context.Context, caller model.Caller, id int64) (*model.Record[C], error) {
	return m.record(m.Called(ctx, caller, id))
}

func (m *MockDocumentService[C]) Reject(ctx context.Context, caller model.Caller, id int64, reason string) (*model.Record[C], error) {
	return m.record(m.Called(ctx, caller, id, reason))
}

func (m *MockDocumentService[C]) AssignChangeWorkflow(ctx context.Context, caller model.Caller, id int64) (*model.Record[C], error) {
	return m.record(m.Called(ctx, caller, id))
}

func (m *MockDocumentService[C]) UploadRevision(ctx context.Context, caller model.Caller, id int64, in service.DocumentInput[C]) (*model.Record[C], error) {
	return m.record(m.Called(ctx, caller, id, in))
}

func (m *MockDocumentService[C]) SaveNote(ctx context.Context, caller model.Caller, id int64, note string) (*model.Record[C], error) {
	return m.record(m.Called(ctx, caller, id, note))
}

func (m *MockDocumentService[C]) AddComment(ctx context.Context, caller model.Caller, id int64, text string) (*model.Record[C], error) {
	return m.record(m.Called(ctx, caller, id, text))
}
