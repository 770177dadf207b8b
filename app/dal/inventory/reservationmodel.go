package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

const (
	ReservationActive    = "ACTIVE"
	ReservationCommitted = "COMMITTED"
	ReservationReleased  = "RELEASED"
	ReservationExpired   = "EXPIRED"
)

var _ ReservationModel = (*customReservationModel)(nil)

type (
	// ReservationModel is an interface to be customized, add more methods here,
	// and implement the added methods in customReservationModel.
	ReservationModel interface {
		reservationModel
		// InsertActive fails with ErrDuplicateKey while a live row holds the
		// (checkout_id, sub_sku) slot.
		InsertActive(ctx context.Context, data *Reservation) error
		FindLive(ctx context.Context, checkoutId, subSku string) (*Reservation, error)
		UpdateStateIf(ctx context.Context, id int64, from, to string, now time.Time) (bool, error)
		DeleteIfActive(ctx context.Context, id int64) (bool, error)
		FindActiveByCheckout(ctx context.Context, checkoutId string) ([]*Reservation, error)
		FindExpired(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
	}

	customReservationModel struct {
		*defaultReservationModel
	}
)

// NewReservationModel returns a model for the database table.
func NewReservationModel(conn sqlx.SqlConn) ReservationModel {
	return &customReservationModel{
		defaultReservationModel: newReservationModel(conn),
	}
}

func (m *customReservationModel) InsertActive(ctx context.Context, data *Reservation) error {
	if data == nil || data.Id <= 0 || data.Quantity <= 0 || data.State != ReservationActive {
		return ErrInvalidParam
	}
	res, err := m.Insert(ctx, data)
	if err != nil {
		return translateInsertErr(err)
	}
	return ensureRows(res)
}

func (m *customReservationModel) FindLive(ctx context.Context, checkoutId, subSku string) (*Reservation, error) {
	query := fmt.Sprintf("select %s from %s where `checkout_id` = ? and `sub_sku` = ? and `live` = 1 limit 1", reservationRows, m.table)
	var resp Reservation
	err := m.conn.QueryRowCtx(ctx, &resp, query, checkoutId, subSku)
	switch err {
	case nil:
		return &resp, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

func (m *customReservationModel) UpdateStateIf(ctx context.Context, id int64, from, to string, now time.Time) (bool, error) {
	query := fmt.Sprintf("update %s set `state` = ?, `updated_at` = ? where `id` = ? and `state` = ?", m.table)
	res, err := m.conn.ExecCtx(ctx, query, to, now, id, from)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (m *customReservationModel) DeleteIfActive(ctx context.Context, id int64) (bool, error) {
	query := fmt.Sprintf("delete from %s where `id` = ? and `state` = ?", m.table)
	res, err := m.conn.ExecCtx(ctx, query, id, ReservationActive)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (m *customReservationModel) FindActiveByCheckout(ctx context.Context, checkoutId string) ([]*Reservation, error) {
	query := fmt.Sprintf("select %s from %s where `checkout_id` = ? and `state` = ? order by `id`", reservationRows, m.table)
	var resp []*Reservation
	if err := m.conn.QueryRowsCtx(ctx, &resp, query, checkoutId, ReservationActive); err != nil {
		return nil, err
	}
	return resp, nil
}

// FindExpired walks idx_state_expires_at, oldest deadline first.
func (m *customReservationModel) FindExpired(ctx context.Context, now time.Time, limit int) ([]*Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("select %s from %s where `state` = ? and `expires_at` < ? order by `expires_at` limit ?", reservationRows, m.table)
	var resp []*Reservation
	if err := m.conn.QueryRowsCtx(ctx, &resp, query, ReservationActive, now, limit); err != nil {
		return nil, err
	}
	return resp, nil
}

func affected(res sql.Result) (bool, error) {
	if err := ensureRows(res); err != nil {
		if err == ErrRowsAffectedIsZero {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
