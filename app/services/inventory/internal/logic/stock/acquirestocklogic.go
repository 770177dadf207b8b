package stock

import (
	"context"

	"Holdfast/app/services/inventory/internal/logic/helper"
	"Holdfast/app/services/inventory/internal/svc"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type AcquireStockLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewAcquireStockLogic(ctx context.Context, svcCtx *svc.ServiceContext) *AcquireStockLogic {
	return &AcquireStockLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// AcquireStock commits held reservations into permanent decrements.
func (l *AcquireStockLogic) AcquireStock(req *types.StockItemsRequest) (*types.BulkOperationResponse, error) {
	if req.CheckoutId == "" {
		return nil, helper.InvalidParam("checkoutId required")
	}
	if msg := helper.ValidItems(req.Items); msg != "" {
		return nil, helper.InvalidParam(msg)
	}

	res, err := l.svcCtx.Coordinator.Acquire(l.ctx, req.CheckoutId, helper.ToItems(req.Items))
	if err != nil {
		l.Logger.Errorw("acquire stock failed",
			logx.Field("checkout_id", req.CheckoutId),
			logx.Field("err", err.Error()),
		)
		return nil, helper.CodeError(err)
	}
	return helper.ToBulkResponse(res), nil
}
