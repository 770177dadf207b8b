package checkout

import (
	"context"

	"Holdfast/app/services/inventory/internal/logic/helper"
	"Holdfast/app/services/inventory/internal/svc"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type ReserveCheckoutLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewReserveCheckoutLogic(ctx context.Context, svcCtx *svc.ServiceContext) *ReserveCheckoutLogic {
	return &ReserveCheckoutLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// ReserveCheckout returns the checkout after the reserve attempt; a checkout
// still PENDING carries the failed lock result.
func (l *ReserveCheckoutLogic) ReserveCheckout(req *types.ReserveCheckoutRequest) (*types.CheckoutResponse, error) {
	if req.CheckoutId == "" {
		return nil, helper.InvalidParam("checkoutId required")
	}
	if msg := helper.ValidItems(req.Items); msg != "" {
		return nil, helper.InvalidParam(msg)
	}

	c, err := l.svcCtx.Orchestrator.ValidateAndReserve(l.ctx, req.CheckoutId, req.UserId, helper.ToItems(req.Items), helper.TTL(req.TtlSeconds))
	if err != nil {
		l.Logger.Errorw("reserve checkout failed",
			logx.Field("checkout_id", req.CheckoutId),
			logx.Field("err", err.Error()),
		)
		return nil, helper.CodeError(err)
	}
	return helper.ToCheckoutResponse(c), nil
}
