package stock

import (
	"context"

	"Holdfast/app/services/inventory/internal/coordinator"
	"Holdfast/app/services/inventory/internal/logic/helper"
	"Holdfast/app/services/inventory/internal/svc"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type LockStockLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewLockStockLogic(ctx context.Context, svcCtx *svc.ServiceContext) *LockStockLogic {
	return &LockStockLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// LockStock reserves stock for a checkout. The policy defaults to all-or-nothing.
func (l *LockStockLogic) LockStock(req *types.LockStockRequest) (*types.BulkOperationResponse, error) {
	if req.CheckoutId == "" {
		return nil, helper.InvalidParam("checkoutId required")
	}
	if msg := helper.ValidItems(req.Items); msg != "" {
		return nil, helper.InvalidParam(msg)
	}
	policy, err := coordinator.ParsePolicy(req.Policy, coordinator.AllOrNothing)
	if err != nil {
		return nil, helper.InvalidParam(err.Error())
	}

	res, err := l.svcCtx.Coordinator.Lock(l.ctx, req.CheckoutId, helper.ToItems(req.Items), helper.TTL(req.TtlSeconds), policy)
	if err != nil {
		l.Logger.Errorw("lock stock failed",
			logx.Field("checkout_id", req.CheckoutId),
			logx.Field("err", err.Error()),
		)
		return nil, helper.CodeError(err)
	}
	return helper.ToBulkResponse(res), nil
}
