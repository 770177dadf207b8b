package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ InventoryModel = (*customInventoryModel)(nil)

type (
	// InventoryModel is an interface to be customized, add more methods here,
	// and implement the added methods in customInventoryModel.
	InventoryModel interface {
		inventoryModel
		FindMany(ctx context.Context, subSkus []string) ([]*Inventory, error)
		// CompareAndSwapStock writes stock and bumps version only when the row
		// still carries the expected version. It reports whether the row changed.
		CompareAndSwapStock(ctx context.Context, subSku string, version, stock int64, now time.Time) (bool, error)
		InsertIfAbsent(ctx context.Context, data *Inventory) error
	}

	customInventoryModel struct {
		*defaultInventoryModel
	}
)

// NewInventoryModel returns a model for the database table.
func NewInventoryModel(conn sqlx.SqlConn) InventoryModel {
	return &customInventoryModel{
		defaultInventoryModel: newInventoryModel(conn),
	}
}

func (m *customInventoryModel) FindMany(ctx context.Context, subSkus []string) ([]*Inventory, error) {
	if len(subSkus) == 0 {
		return nil, nil
	}
	holders := strings.TrimSuffix(strings.Repeat("?,", len(subSkus)), ",")
	args := make([]any, 0, len(subSkus))
	for _, sku := range subSkus {
		args = append(args, sku)
	}
	query := fmt.Sprintf("select %s from %s where `sub_sku` in (%s)", inventoryRows, m.table, holders)
	var resp []*Inventory
	if err := m.conn.QueryRowsCtx(ctx, &resp, query, args...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *customInventoryModel) CompareAndSwapStock(ctx context.Context, subSku string, version, stock int64, now time.Time) (bool, error) {
	if stock < 0 {
		return false, ErrInvalidParam
	}
	q := fmt.Sprintf(
		"update %s set `stock` = ?, `version` = `version` + 1, `updated_at` = ? where `sub_sku` = ? and `version` = ?",
		m.table,
	)
	res, err := m.conn.ExecCtx(ctx, q, stock, now, subSku, version)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (m *customInventoryModel) InsertIfAbsent(ctx context.Context, data *Inventory) error {
	if data == nil || data.SubSku == "" || data.Stock < 0 {
		return ErrInvalidParam
	}
	if _, err := m.Insert(ctx, data); err != nil {
		return translateInsertErr(err)
	}
	return nil
}

func ensureRows(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRowsAffectedIsZero
	}
	return nil
}
