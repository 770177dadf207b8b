package inventory

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

func newMockConn(t *testing.T) (sqlx.SqlConn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return sqlx.NewSqlConnFromDB(db), mock
}

func TestCompareAndSwapStock(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewInventoryModel(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := regexp.QuoteMeta("update `inventory` set `stock` = ?, `version` = `version` + 1")

	mock.ExpectExec(q).WithArgs(int64(7), now, "A", int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := m.CompareAndSwapStock(ctx, "A", 3, 7, now)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(q).WithArgs(int64(6), now, "A", int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = m.CompareAndSwapStock(ctx, "A", 3, 6, now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.CompareAndSwapStock(ctx, "A", 4, -1, now)
	assert.ErrorIs(t, err, ErrInvalidParam)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryInsertIfAbsent(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewInventoryModel(conn)
	ctx := context.Background()
	row := &Inventory{SubSku: "A", Stock: 10, UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := regexp.QuoteMeta("insert into `inventory`")

	mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, m.InsertIfAbsent(ctx, row))

	mock.ExpectExec(q).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'A'"})
	assert.ErrorIs(t, m.InsertIfAbsent(ctx, row), ErrDuplicateKey)

	assert.ErrorIs(t, m.InsertIfAbsent(ctx, &Inventory{SubSku: "B", Stock: -1}), ErrInvalidParam)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryFindMany(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewInventoryModel(conn)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"sub_sku", "stock", "version", "created_at", "updated_at"}).
		AddRow("A", int64(3), int64(2), now, now).
		AddRow("B", int64(0), int64(9), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("where `sub_sku` in (?,?,?)")).
		WithArgs("A", "B", "C").
		WillReturnRows(rows)

	got, err := m.FindMany(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].SubSku)
	assert.Equal(t, int64(3), got[0].Stock)
	assert.Equal(t, int64(9), got[1].Version)

	got, err = m.FindMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
