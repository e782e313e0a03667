package model

import (
	"context"

	"github.com/harunnryd/kangae/internal/model/contract"

	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
	name string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (m *MockProvider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*contract.CompletionResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if vec := args.Get(0); vec != nil {
		return vec.([]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) Name() string {
	return m.name
}
