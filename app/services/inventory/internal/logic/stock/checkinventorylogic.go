package stock

import (
	"context"

	"Holdfast/app/services/inventory/internal/logic/helper"
	"Holdfast/app/services/inventory/internal/svc"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

const maxCheckSkus = 200

type CheckInventoryLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewCheckInventoryLogic(ctx context.Context, svcCtx *svc.ServiceContext) *CheckInventoryLogic {
	return &CheckInventoryLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// CheckInventory reports current stock per sku in request order. Unknown skus
// come back with Found false rather than failing the call.
func (l *CheckInventoryLogic) CheckInventory(req *types.CheckInventoryRequest) (*types.CheckInventoryResponse, error) {
	if len(req.SubSkus) == 0 {
		return nil, helper.InvalidParam("subSkus required")
	}
	if len(req.SubSkus) > maxCheckSkus {
		return nil, helper.InvalidParam("too many subSkus")
	}

	recs, err := l.svcCtx.Ledger.GetMany(l.ctx, req.SubSkus)
	if err != nil {
		l.Logger.Errorw("check inventory failed", logx.Field("err", err.Error()))
		return nil, helper.CodeError(err)
	}

	resp := &types.CheckInventoryResponse{Items: make([]types.InventoryStatus, 0, len(req.SubSkus))}
	for _, sku := range req.SubSkus {
		st := types.InventoryStatus{SubSku: sku}
		if rec, ok := recs[sku]; ok {
			st.Found = true
			st.Stock = rec.AvailableStock
			st.HasStock = rec.AvailableStock > 0
			st.Version = rec.Version
			st.UpdatedAt = rec.UpdatedAt.UnixMilli()
		}
		resp.Items = append(resp.Items, st)
	}
	return resp, nil
}
