package stock

import (
	"context"

	"Holdfast/app/services/inventory/internal/coordinator"
	"Holdfast/app/services/inventory/internal/domain"
	"Holdfast/app/services/inventory/internal/logic/helper"
	"Holdfast/app/services/inventory/internal/svc"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type AdjustStockLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewAdjustStockLogic(ctx context.Context, svcCtx *svc.ServiceContext) *AdjustStockLogic {
	return &AdjustStockLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *AdjustStockLogic) AdjustStock(req *types.AdjustStockRequest) (*types.BulkOperationResponse, error) {
	if len(req.Items) == 0 {
		return nil, helper.InvalidParam("items required")
	}
	policy, err := coordinator.ParsePolicy(req.Policy, coordinator.BestEffort)
	if err != nil {
		return nil, helper.InvalidParam(err.Error())
	}

	adjs := make([]domain.Adjustment, 0, len(req.Items))
	for _, it := range req.Items {
		adjs = append(adjs, domain.Adjustment{SubSku: it.SubSku, DeltaQuantity: it.DeltaQuantity})
	}
	res, err := l.svcCtx.Coordinator.Adjust(l.ctx, adjs, policy)
	if err != nil {
		l.Logger.Errorw("adjust stock failed", logx.Field("err", err.Error()))
		return nil, helper.CodeError(err)
	}
	return helper.ToBulkResponse(res), nil
}
