package checkout

import (
	"context"

	"Holdfast/app/services/inventory/internal/logic/helper"
	"Holdfast/app/services/inventory/internal/svc"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type FinalizeCheckoutLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewFinalizeCheckoutLogic(ctx context.Context, svcCtx *svc.ServiceContext) *FinalizeCheckoutLogic {
	return &FinalizeCheckoutLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *FinalizeCheckoutLogic) FinalizeCheckout(req *types.CheckoutRequest) (*types.CheckoutResponse, error) {
	if req.CheckoutId == "" {
		return nil, helper.InvalidParam("checkoutId required")
	}

	c, err := l.svcCtx.Orchestrator.FinalizeCheckout(l.ctx, req.CheckoutId)
	if err != nil {
		l.Logger.Errorw("finalize checkout failed",
			logx.Field("checkout_id", req.CheckoutId),
			logx.Field("err", err.Error()),
		)
		return nil, helper.CodeError(err)
	}
	return helper.ToCheckoutResponse(c), nil
}
