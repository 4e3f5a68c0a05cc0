package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/rafimaliki/cryptalk/internal/errs"
)

func TestNonceRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNonceRepo(db)

	mock.ExpectQuery(`INSERT INTO nonce_store \(username, nonce\) VALUES \(\$1, \$2\) RETURNING id, username, nonce, created_at`).
		WithArgs("alice", "abc123").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "nonce", "created_at"}).
			AddRow(int64(42), "alice", "abc123", time.Now()))
	n, err := r.Create(context.Background(), "alice", "abc123")
	require.NoError(t, err)
	require.Equal(t, int64(42), n.ID)
	require.Equal(t, "abc123", n.Value)
}

func TestNonceRepo_Get_FoundAndExpired(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNonceRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT nonce FROM nonce_store WHERE id=\$1 AND username=\$2 AND created_at >= \$3`).
		WithArgs(int64(42), "alice", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"nonce"}).AddRow("abc123"))
	v, err := r.Get(ctx, "alice", 42, 3*time.Minute)
	require.NoError(t, err)
	require.Equal(t, "abc123", v)

	// Expired or missing rows are the same ErrNotFound.
	mock.ExpectQuery(`SELECT nonce FROM nonce_store WHERE id=\$1 AND username=\$2 AND created_at >= \$3`).
		WithArgs(int64(42), "alice", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, "alice", 42, 3*time.Minute)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestNonceRepo_Consume_DeletesTargetThenSweeps(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNonceRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM nonce_store WHERE id=\$1 AND username=\$2`).
		WithArgs(int64(42), "alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM nonce_store WHERE username=\$1`).
		WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	require.NoError(t, r.Consume(context.Background(), "alice", 42))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNonceRepo_Consume_LostRace(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNonceRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM nonce_store WHERE id=\$1 AND username=\$2`).
		WithArgs(int64(42), "alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := r.Consume(context.Background(), "alice", 42)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNonceRepo_PurgeExpired(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNonceRepo(db)

	mock.ExpectExec(`DELETE FROM nonce_store WHERE created_at < \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	n, err := r.PurgeExpired(context.Background(), 3*time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}
