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
)

var reservationColumns = []string{"id", "checkout_id", "sub_sku", "quantity", "state", "created_at", "expires_at", "updated_at"}

func TestInsertActive(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewReservationModel(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := &Reservation{
		Id:         11,
		CheckoutId: "c1",
		SubSku:     "A",
		Quantity:   2,
		State:      ReservationActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Minute),
		UpdatedAt:  now,
	}
	q := regexp.QuoteMeta("insert into `reservation`")

	mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(11, 1))
	require.NoError(t, m.InsertActive(ctx, row))

	mock.ExpectExec(q).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'c1-A-1'"})
	assert.ErrorIs(t, m.InsertActive(ctx, row), ErrDuplicateKey)

	committed := *row
	committed.State = ReservationCommitted
	assert.ErrorIs(t, m.InsertActive(ctx, &committed), ErrInvalidParam)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStateIf(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewReservationModel(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := regexp.QuoteMeta("update `reservation` set `state` = ?, `updated_at` = ? where `id` = ? and `state` = ?")

	mock.ExpectExec(q).WithArgs(ReservationExpired, now, int64(11), ReservationActive).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := m.UpdateStateIf(ctx, 11, ReservationActive, ReservationExpired, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// lost the race: the row is no longer ACTIVE
	mock.ExpectExec(q).WithArgs(ReservationReleased, now, int64(11), ReservationActive).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = m.UpdateStateIf(ctx, 11, ReservationActive, ReservationReleased, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLive(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewReservationModel(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := regexp.QuoteMeta("where `checkout_id` = ? and `sub_sku` = ? and `live` = 1")

	mock.ExpectQuery(q).WithArgs("c1", "A").WillReturnRows(
		sqlmock.NewRows(reservationColumns).AddRow(int64(11), "c1", "A", int64(2), ReservationActive, now, now.Add(time.Minute), now),
	)
	got, err := m.FindLive(ctx, "c1", "A")
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.Id)
	assert.Equal(t, ReservationActive, got.State)

	mock.ExpectQuery(q).WithArgs("c1", "B").WillReturnRows(sqlmock.NewRows(reservationColumns))
	_, err = m.FindLive(ctx, "c1", "B")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationFindExpired(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewReservationModel(conn)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("where `state` = ? and `expires_at` < ? order by `expires_at` limit ?")).
		WithArgs(ReservationActive, now, int64(100)).
		WillReturnRows(sqlmock.NewRows(reservationColumns).
			AddRow(int64(3), "c1", "A", int64(1), ReservationActive, now, now.Add(-time.Minute), now))

	got, err := m.FindExpired(context.Background(), now, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Id)
	assert.NoError(t, mock.ExpectationsWereMet())
}
