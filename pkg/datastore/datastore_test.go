package datastore

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/geoimporter/pkg/mocks"
	"github.com/dukex/geoimporter/pkg/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestManager_DelegatesToTheHandler(t *testing.T) {
	ctx := context.Background()
	execution := testutil.CreateTestExecution()
	files := execution.Files()

	h := &mocks.MockHandler{}
	h.On("IsValid", mock.Anything, files, execution.User, execution.ExecID).Return(nil)
	h.On("ImportResource", mock.Anything, files, execution.ExecID).Return(errors.New("no layers"))

	m := New(h, execution)

	require.NoError(t, m.InputIsValid(ctx))
	require.EqualError(t, m.StartImport(ctx), "no layers")
	h.AssertExpectations(t)
}
