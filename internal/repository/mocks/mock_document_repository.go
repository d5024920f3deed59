package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"instructapi/internal/model"
	"instructapi/internal/repository"
)

type MockDocumentRepository[C model.Content] struct {
	mock.Mock
}

var _ repository.DocumentRepository[model.InstructionContent] = (*MockDocumentRepository[model.InstructionContent])(nil)

func (m *MockDocumentRepository[C]) Create(ctx context.Context, rec *model.Record[C]) (*model.Record[C], error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Record[C]), args.Error(1)
}

func (m *MockDocumentRepository[C]) FindByID(ctx context.Context, id int64) (*model.Record[C], error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Record[C]), args.Error(1)
}

func (m *MockDocumentRepository[C]) List(ctx context.Context, f repository.ListFilter) ([]model.Record[C], error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Record[C]), args.Error(1)
}

func (m *MockDocumentRepository[C]) ListProducts(ctx context.Context, status model.Status) ([]model.ProductSummary, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProductSummary), args.Error(1)
}

func (m *MockDocumentRepository[C]) Update(ctx context.Context, rec *model.Record[C]) (*model.Record[C], error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Record[C]), args.Error(1)
}
