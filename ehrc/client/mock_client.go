package client

import (
	"context"
	"net/url"

	"github.com/stretchr/testify/mock"
)

// MockEHRClient stands in for the wire client in facade and CLI tests.
type MockEHRClient struct {
	mock.Mock
}

var _ Client = &MockEHRClient{}

func (m *MockEHRClient) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	args := m.Called(ctx, path, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockEHRClient) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	args := m.Called(ctx, path, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockEHRClient) Stats() StatsSnapshot {
	args := m.Called()
	return args.Get(0).(StatsSnapshot)
}
