package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockBeginner struct {
	mock.Mock
}

func (m *mockBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Tx), args.Error(1)
}

func TestRunTx_CommitsOnSuccess(t *testing.T) {
	tx := new(MockTx)
	tx.On("Commit", mock.Anything).Return(nil)
	tx.On("Rollback", mock.Anything).Return(pgx.ErrTxClosed)

	db := new(mockBeginner)
	db.On("Begin", mock.Anything).Return(tx, nil)

	q := New(new(MockDBTX))
	called := false

	err := q.RunTx(context.Background(), db, func(scoped Querier) error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
	tx.AssertCalled(t, "Commit", mock.Anything)
}

func TestRunTx_RollsBackOnFnError(t *testing.T) {
	tx := new(MockTx)
	tx.On("Rollback", mock.Anything).Return(nil)

	db := new(mockBeginner)
	db.On("Begin", mock.Anything).Return(tx, nil)

	q := New(new(MockDBTX))
	wantErr := errors.New("boom")

	err := q.RunTx(context.Background(), db, func(scoped Querier) error {
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	tx.AssertNotCalled(t, "Commit", mock.Anything)
	tx.AssertCalled(t, "Rollback", mock.Anything)
}

func TestRunTx_BeginFailurePropagates(t *testing.T) {
	db := new(mockBeginner)
	db.On("Begin", mock.Anything).Return(nil, errors.New("connection refused"))

	q := New(new(MockDBTX))

	err := q.RunTx(context.Background(), db, func(scoped Querier) error {
		t.Fatal("fn should not run when Begin fails")
		return nil
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}
