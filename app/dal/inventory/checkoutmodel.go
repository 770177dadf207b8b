package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlc"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

const (
	CheckoutPending     = "PENDING"
	CheckoutReserved    = "RESERVED"
	CheckoutFinalized   = "FINALIZED"
	CheckoutInvalidated = "INVALIDATED"
	CheckoutExpired     = "EXPIRED"
)

var _ CheckoutModel = (*customCheckoutModel)(nil)

type (
	// CheckoutModel is an interface to be customized, add more methods here,
	// and implement the added methods in customCheckoutModel.
	CheckoutModel interface {
		checkoutModel
		InsertIfAbsent(ctx context.Context, data *Checkout) error
		FindOneWithNoCache(ctx context.Context, checkoutId string) (*Checkout, error)
		// UpdateIfStatus overwrites the row only while it is still in status from.
		UpdateIfStatus(ctx context.Context, data *Checkout, from string) (bool, error)
		FindExpired(ctx context.Context, now time.Time, limit int) ([]*Checkout, error)
	}

	customCheckoutModel struct {
		*defaultCheckoutModel
	}
)

// NewCheckoutModel returns a model for the database table.
func NewCheckoutModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) CheckoutModel {
	return &customCheckoutModel{
		defaultCheckoutModel: newCheckoutModel(conn, c, opts...),
	}
}

func (m *customCheckoutModel) InsertIfAbsent(ctx context.Context, data *Checkout) error {
	if data == nil || data.CheckoutId == "" {
		return ErrInvalidParam
	}
	if _, err := m.Insert(ctx, data); err != nil {
		return translateInsertErr(err)
	}
	return nil
}

func (m *customCheckoutModel) FindOneWithNoCache(ctx context.Context, checkoutId string) (*Checkout, error) {
	query := fmt.Sprintf("select %s from %s where `checkout_id` = ? limit 1", checkoutRows, m.table)
	var resp Checkout
	err := m.QueryRowNoCacheCtx(ctx, &resp, query, checkoutId)
	switch err {
	case nil:
		return &resp, nil
	case sqlc.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

func (m *customCheckoutModel) UpdateIfStatus(ctx context.Context, data *Checkout, from string) (bool, error) {
	if data == nil || data.CheckoutId == "" {
		return false, ErrInvalidParam
	}
	res, err := m.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		query := fmt.Sprintf("update %s set %s where `checkout_id` = ? and `status` = ?", m.table, checkoutRowsWithPlaceHolder)
		return conn.ExecCtx(ctx, query, data.UserId, data.Items, data.Status, data.LastResult, data.LastError,
			data.CreatedAt, data.ExpiresAt, data.UpdatedAt, data.CheckoutId, from)
	}, m.formatPrimary(data.CheckoutId))
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (m *customCheckoutModel) FindExpired(ctx context.Context, now time.Time, limit int) ([]*Checkout, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("select %s from %s where `status` = ? and `expires_at` < ? order by `expires_at` limit ?", checkoutRows, m.table)
	var resp []*Checkout
	if err := m.QueryRowsNoCacheCtx(ctx, &resp, query, CheckoutReserved, now, limit); err != nil {
		return nil, err
	}
	return resp, nil
}
