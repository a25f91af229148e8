package txlog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_Record(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO payment_transactions").
		WithArgs("id-1", "genetic-risk", "0x01", "0.05", "0xfrom", "0xto", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Record(context.Background(), &Entry{
		ID:        "id-1",
		Service:   "genetic-risk",
		TxHash:    "0x01",
		Amount:    "0.05",
		FromAddr:  "0xfrom",
		ToAddr:    "0xto",
		CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Record_Error(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO payment_transactions").
		WillReturnError(sql.ErrConnDone)

	err := store.Record(context.Background(), &Entry{ID: "id-1"})
	assert.Error(t, err)
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "service", "tx_hash", "amount", "from_addr", "to_addr", "created_at"}).
		AddRow("id-2", "genetic-risk", "0x02", "0.05", "0xfrom", "0xto", now).
		AddRow("id-1", "genetic-risk", "0x01", "0.05", "0xfrom", "0xto", now.Add(-time.Minute))

	mock.ExpectQuery("SELECT id, service, tx_hash, trim_scale").
		WithArgs(50).
		WillReturnRows(rows)

	entries, err := store.List(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0x02", entries[0].TxHash)
	assert.Equal(t, "0.05", entries[0].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ByHash(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, service, tx_hash, trim_scale").
		WithArgs("0x01").
		WillReturnRows(sqlmock.NewRows([]string{"id", "service", "tx_hash", "amount", "from_addr", "to_addr", "created_at"}).
			AddRow("id-1", "genetic-risk", "0x01", "0.05", "0xfrom", "0xto", now))

	e, err := store.ByHash(context.Background(), "0x01")
	require.NoError(t, err)
	assert.Equal(t, "id-1", e.ID)
	assert.Equal(t, "genetic-risk", e.Service)
}

func TestPostgresStore_ByHash_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, service, tx_hash, trim_scale").
		WithArgs("0xmissing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.ByHash(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, ErrNotFound)
}
