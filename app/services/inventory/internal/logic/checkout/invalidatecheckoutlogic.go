package checkout

import (
	"context"

	"Holdfast/app/services/inventory/internal/logic/helper"
	"Holdfast/app/services/inventory/internal/svc"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type InvalidateCheckoutLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewInvalidateCheckoutLogic(ctx context.Context, svcCtx *svc.ServiceContext) *InvalidateCheckoutLogic {
	return &InvalidateCheckoutLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *InvalidateCheckoutLogic) InvalidateCheckout(req *types.CheckoutRequest) (*types.CheckoutResponse, error) {
	if req.CheckoutId == "" {
		return nil, helper.InvalidParam("checkoutId required")
	}

	c, err := l.svcCtx.Orchestrator.InvalidateCheckout(l.ctx, req.CheckoutId)
	if err != nil {
		l.Logger.Errorw("invalidate checkout failed",
			logx.Field("checkout_id", req.CheckoutId),
			logx.Field("err", err.Error()),
		)
		return nil, helper.CodeError(err)
	}
	return helper.ToCheckoutResponse(c), nil
}
