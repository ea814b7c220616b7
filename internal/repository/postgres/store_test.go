package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/internal/repository"
	"github.com/utafrali/posledger/pkg/database"
)

func setupStore(t *testing.T, iso pgx.TxIsoLevel) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewStore(mock, iso), mock
}

func TestStore_InTx_Commits(t *testing.T) {
	store, mock := setupStore(t, pgx.ReadCommitted)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery("SELECT product_id, COALESCE").
		WithArgs([]string{"A"}).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "sum"}).AddRow("A", 3))
	mock.ExpectCommit()

	var got map[string]int
	err := store.InTx(context.Background(), func(ctx context.Context, tx repository.Repositories) error {
		var err error
		got, err = tx.Ledger().SumLive(ctx, []string{"A"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, got["A"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InTx_RollsBackOnError(t *testing.T) {
	store, mock := setupStore(t, pgx.Serializable)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.InTx(context.Background(), func(context.Context, repository.Repositories) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrStockRaceDetected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InTx_ContentionBecomesRace(t *testing.T) {
	store, mock := setupStore(t, pgx.Serializable)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: database.SQLStateSerializationFailure})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(context.Context, repository.Repositories) error { return nil })
	assert.ErrorIs(t, err, domain.ErrStockRaceDetected)
}

func TestStore_InTx_DeadlockInsideFn(t *testing.T) {
	store, mock := setupStore(t, pgx.ReadCommitted)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(context.Context, repository.Repositories) error {
		return &pgconn.PgError{Code: database.SQLStateDeadlockDetected}
	})
	assert.ErrorIs(t, err, domain.ErrStockRaceDetected)
}

func TestStore_InTx_BeginFails(t *testing.T) {
	store, mock := setupStore(t, pgx.ReadCommitted)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted}).WillReturnError(errors.New("pool exhausted"))

	called := false
	err := store.InTx(context.Background(), func(context.Context, repository.Repositories) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "begin transaction")
	assert.False(t, called)
}

func TestIsolationLevel(t *testing.T) {
	cases := map[string]pgx.TxIsoLevel{
		"":                pgx.ReadCommitted,
		"read_committed":  pgx.ReadCommitted,
		"REPEATABLE_READ": pgx.RepeatableRead,
		"serializable":    pgx.Serializable,
	}
	for in, want := range cases {
		got, err := IsolationLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := IsolationLevel("snapshot")
	assert.Error(t, err)
}
