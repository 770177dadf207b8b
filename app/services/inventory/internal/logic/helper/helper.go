package helper

import (
	"time"

	"Holdfast/app/common/consts/errno"
	"Holdfast/app/services/inventory/internal/domain"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/zeromicro/x/errors"
)

// CodeError turns engine errors into coded errors for the REST layer. Other
// errors pass through and render as internal errors.
func CodeError(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := domain.AsError(err); ok {
		return errors.New(e.Code(), err.Error())
	}
	return err
}

func InvalidParam(msg string) error {
	return errors.New(errno.InvalidParam, msg)
}

func ToItems(in []types.Item) []domain.Item {
	out := make([]domain.Item, 0, len(in))
	for _, it := range in {
		out = append(out, domain.Item{SubSku: it.SubSku, Quantity: it.Quantity})
	}
	return out
}

func FromItems(in []domain.Item) []types.Item {
	out := make([]types.Item, 0, len(in))
	for _, it := range in {
		out = append(out, types.Item{SubSku: it.SubSku, Quantity: it.Quantity})
	}
	return out
}

func ToBulkResponse(resp *domain.BulkOperationResponse) *types.BulkOperationResponse {
	if resp == nil {
		return nil
	}
	out := &types.BulkOperationResponse{
		CheckoutId:   resp.CheckoutId,
		Results:      make([]types.StockOperationResult, 0, len(resp.Results)),
		AllSuccess:   resp.AllSuccess,
		SuccessCount: resp.SuccessCount,
		FailureCount: resp.FailureCount,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, types.StockOperationResult{
			SubSku:            r.SubSku,
			Success:           r.Success,
			Message:           r.Message,
			CurrentStock:      r.CurrentStock,
			RequestedQuantity: r.RequestedQuantity,
		})
	}
	return out
}

func ToCheckoutResponse(c *domain.Checkout) *types.CheckoutResponse {
	if c == nil {
		return nil
	}
	return &types.CheckoutResponse{
		CheckoutId: c.CheckoutId,
		UserId:     c.UserId,
		Items:      FromItems(c.Items),
		Status:     c.Status.String(),
		LastResult: ToBulkResponse(c.LastResult),
		LastError:  c.LastError,
		CreatedAt:  millis(c.CreatedAt),
		ExpiresAt:  millis(c.ExpiresAt),
		UpdatedAt:  millis(c.UpdatedAt),
	}
}

// TTL converts a request ttl; non-positive selects the configured default.
func TTL(secs int64) time.Duration {
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// ValidItems reports a problem with a request item list, or "". Bad lines
// are left to the engine, which reports them per item.
func ValidItems(items []types.Item) string {
	if len(items) == 0 {
		return "items required"
	}
	return ""
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
