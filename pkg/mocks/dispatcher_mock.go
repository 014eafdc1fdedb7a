package mocks

import (
	"context"

	"github.com/dukex/geoimporter/pkg/taskqueue"
	"github.com/stretchr/testify/mock"
)

// MockDispatcher is a mock implementation of taskqueue.Dispatcher.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, sig taskqueue.Signature) (string, error) {
	args := m.Called(ctx, sig)

	return args.String(0), args.Error(1)
}

func (m *MockDispatcher) DispatchChord(ctx context.Context, chord taskqueue.Chord) error {
	return m.Called(ctx, chord).Error(0)
}
