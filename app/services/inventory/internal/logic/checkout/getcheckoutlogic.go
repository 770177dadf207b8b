package checkout

import (
	"context"

	"Holdfast/app/services/inventory/internal/logic/helper"
	"Holdfast/app/services/inventory/internal/svc"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type GetCheckoutLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetCheckoutLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetCheckoutLogic {
	return &GetCheckoutLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetCheckoutLogic) GetCheckout(req *types.GetCheckoutRequest) (*types.CheckoutResponse, error) {
	if req.CheckoutId == "" {
		return nil, helper.InvalidParam("checkoutId required")
	}
	c, err := l.svcCtx.Orchestrator.GetCheckout(l.ctx, req.CheckoutId)
	if err != nil {
		return nil, helper.CodeError(err)
	}
	return helper.ToCheckoutResponse(c), nil
}
