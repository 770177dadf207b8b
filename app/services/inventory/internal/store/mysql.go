package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	invdal "Holdfast/app/dal/inventory"
	"Holdfast/app/services/inventory/internal/domain"
)

var (
	_ domain.StockStore       = (*MysqlStockStore)(nil)
	_ domain.ReservationStore = (*MysqlReservationStore)(nil)
	_ domain.CheckoutStore    = (*MysqlCheckoutStore)(nil)
)

// MysqlStockStore adapts InventoryModel to the ledger.
type MysqlStockStore struct {
	model invdal.InventoryModel
}

func NewMysqlStockStore(model invdal.InventoryModel) *MysqlStockStore {
	return &MysqlStockStore{model: model}
}

func (s *MysqlStockStore) Get(ctx context.Context, subSku string) (*domain.InventoryRecord, error) {
	row, err := s.model.FindOne(ctx, subSku)
	if err != nil {
		if errors.Is(err, invdal.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, subSku)
		}
		return nil, err
	}
	return toInventoryRecord(row), nil
}

func (s *MysqlStockStore) GetMany(ctx context.Context, subSkus []string) (map[string]*domain.InventoryRecord, error) {
	rows, err := s.model.FindMany(ctx, subSkus)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*domain.InventoryRecord, len(rows))
	for _, row := range rows {
		out[row.SubSku] = toInventoryRecord(row)
	}
	return out, nil
}

func (s *MysqlStockStore) Create(ctx context.Context, rec *domain.InventoryRecord) error {
	err := s.model.InsertIfAbsent(ctx, &invdal.Inventory{
		SubSku:    rec.SubSku,
		Stock:     rec.AvailableStock,
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
	})
	if errors.Is(err, invdal.ErrDuplicateKey) {
		return fmt.Errorf("%w: %s", domain.ErrProductExists, rec.SubSku)
	}
	return err
}

func (s *MysqlStockStore) CompareAndSwap(ctx context.Context, subSku string, version, stock int64, now time.Time) (bool, error) {
	return s.model.CompareAndSwapStock(ctx, subSku, version, stock, now)
}

func toInventoryRecord(row *invdal.Inventory) *domain.InventoryRecord {
	return &domain.InventoryRecord{
		SubSku:         row.SubSku,
		AvailableStock: row.Stock,
		Version:        row.Version,
		UpdatedAt:      row.UpdatedAt,
	}
}

// MysqlReservationStore adapts ReservationModel to the registry.
type MysqlReservationStore struct {
	model invdal.ReservationModel
}

func NewMysqlReservationStore(model invdal.ReservationModel) *MysqlReservationStore {
	return &MysqlReservationStore{model: model}
}

func (s *MysqlReservationStore) Insert(ctx context.Context, r *domain.Reservation) error {
	err := s.model.InsertActive(ctx, &invdal.Reservation{
		Id:         r.Id,
		CheckoutId: r.CheckoutId,
		SubSku:     r.SubSku,
		Quantity:   r.Quantity,
		State:      string(r.State),
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
		UpdatedAt:  r.UpdatedAt,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, invdal.ErrDuplicateKey):
		return domain.ErrDuplicateReservation
	case errors.Is(err, invdal.ErrInvalidParam):
		return domain.ErrInvalidQuantity
	default:
		return err
	}
}

func (s *MysqlReservationStore) FindById(ctx context.Context, id int64) (*domain.Reservation, error) {
	row, err := s.model.FindOne(ctx, id)
	if err != nil {
		if errors.Is(err, invdal.ErrNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, err
	}
	return toReservation(row), nil
}

func (s *MysqlReservationStore) FindLive(ctx context.Context, key domain.ReservationKey) (*domain.Reservation, error) {
	row, err := s.model.FindLive(ctx, key.CheckoutId, key.SubSku)
	if err != nil {
		if errors.Is(err, invdal.ErrNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, err
	}
	return toReservation(row), nil
}

func (s *MysqlReservationStore) UpdateState(ctx context.Context, id int64, from, to domain.ReservationState, now time.Time) (bool, error) {
	return s.model.UpdateStateIf(ctx, id, string(from), string(to), now)
}

func (s *MysqlReservationStore) DeleteActive(ctx context.Context, id int64) (bool, error) {
	return s.model.DeleteIfActive(ctx, id)
}

func (s *MysqlReservationStore) FindActiveByCheckout(ctx context.Context, checkoutId string) ([]*domain.Reservation, error) {
	rows, err := s.model.FindActiveByCheckout(ctx, checkoutId)
	if err != nil {
		return nil, err
	}
	return toReservations(rows), nil
}

func (s *MysqlReservationStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	rows, err := s.model.FindExpired(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	return toReservations(rows), nil
}

func toReservation(row *invdal.Reservation) *domain.Reservation {
	return &domain.Reservation{
		Id:         row.Id,
		CheckoutId: row.CheckoutId,
		SubSku:     row.SubSku,
		Quantity:   row.Quantity,
		State:      domain.ReservationState(row.State),
		CreatedAt:  row.CreatedAt,
		ExpiresAt:  row.ExpiresAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

func toReservations(rows []*invdal.Reservation) []*domain.Reservation {
	out := make([]*domain.Reservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, toReservation(row))
	}
	return out
}

// MysqlCheckoutStore adapts CheckoutModel to the orchestrator. Items and the
// last bulk response are stored as JSON columns.
type MysqlCheckoutStore struct {
	model invdal.CheckoutModel
}

func NewMysqlCheckoutStore(model invdal.CheckoutModel) *MysqlCheckoutStore {
	return &MysqlCheckoutStore{model: model}
}

func (s *MysqlCheckoutStore) Insert(ctx context.Context, c *domain.Checkout) error {
	row, err := fromCheckout(c)
	if err != nil {
		return err
	}
	err = s.model.InsertIfAbsent(ctx, row)
	if errors.Is(err, invdal.ErrDuplicateKey) {
		return domain.ErrCheckoutExists
	}
	return err
}

func (s *MysqlCheckoutStore) Find(ctx context.Context, checkoutId string) (*domain.Checkout, error) {
	row, err := s.model.FindOneWithNoCache(ctx, checkoutId)
	if err != nil {
		if errors.Is(err, invdal.ErrNotFound) {
			return nil, domain.ErrCheckoutNotFound
		}
		return nil, err
	}
	return toCheckout(row)
}

// FindCached reads through the row cache; for read-only callers.
func (s *MysqlCheckoutStore) FindCached(ctx context.Context, checkoutId string) (*domain.Checkout, error) {
	row, err := s.model.FindOne(ctx, checkoutId)
	if err != nil {
		if errors.Is(err, invdal.ErrNotFound) {
			return nil, domain.ErrCheckoutNotFound
		}
		return nil, err
	}
	return toCheckout(row)
}

func (s *MysqlCheckoutStore) Update(ctx context.Context, c *domain.Checkout, from domain.CheckoutStatus) (bool, error) {
	row, err := fromCheckout(c)
	if err != nil {
		return false, err
	}
	return s.model.UpdateIfStatus(ctx, row, string(from))
}

func (s *MysqlCheckoutStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Checkout, error) {
	rows, err := s.model.FindExpired(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Checkout, 0, len(rows))
	for _, row := range rows {
		c, err := toCheckout(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func fromCheckout(c *domain.Checkout) (*invdal.Checkout, error) {
	items, err := json.Marshal(c.Items)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout items: %w", err)
	}
	row := &invdal.Checkout{
		CheckoutId: c.CheckoutId,
		UserId:     c.UserId,
		Items:      string(items),
		Status:     string(c.Status),
		LastError:  c.LastError,
		CreatedAt:  c.CreatedAt,
		ExpiresAt:  c.ExpiresAt,
		UpdatedAt:  c.UpdatedAt,
	}
	if c.LastResult != nil {
		b, err := json.Marshal(c.LastResult)
		if err != nil {
			return nil, fmt.Errorf("marshal checkout result: %w", err)
		}
		row.LastResult = sql.NullString{String: string(b), Valid: true}
	}
	return row, nil
}

func toCheckout(row *invdal.Checkout) (*domain.Checkout, error) {
	c := &domain.Checkout{
		CheckoutId: row.CheckoutId,
		UserId:     row.UserId,
		Status:     domain.CheckoutStatus(row.Status),
		LastError:  row.LastError,
		CreatedAt:  row.CreatedAt,
		ExpiresAt:  row.ExpiresAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.Items), &c.Items); err != nil {
		return nil, fmt.Errorf("unmarshal checkout items: %w", err)
	}
	if row.LastResult.Valid && row.LastResult.String != "" {
		var res domain.BulkOperationResponse
		if err := json.Unmarshal([]byte(row.LastResult.String), &res); err != nil {
			return nil, fmt.Errorf("unmarshal checkout result: %w", err)
		}
		c.LastResult = &res
	}
	return c, nil
}
