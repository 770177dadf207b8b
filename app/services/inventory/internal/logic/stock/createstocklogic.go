package stock

import (
	"context"

	"Holdfast/app/services/inventory/internal/logic/helper"
	"Holdfast/app/services/inventory/internal/svc"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type CreateStockLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewCreateStockLogic(ctx context.Context, svcCtx *svc.ServiceContext) *CreateStockLogic {
	return &CreateStockLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// CreateStock registers a new sub-SKU with its starting stock.
func (l *CreateStockLogic) CreateStock(req *types.CreateStockRequest) (*types.InventoryStatus, error) {
	if req.SubSku == "" {
		return nil, helper.InvalidParam("subSku required")
	}
	if req.InitialStock < 0 {
		return nil, helper.InvalidParam("initialStock must not be negative")
	}

	rec, err := l.svcCtx.Ledger.Register(l.ctx, req.SubSku, req.InitialStock)
	if err != nil {
		l.Logger.Errorw("create stock failed",
			logx.Field("sub_sku", req.SubSku),
			logx.Field("err", err.Error()),
		)
		return nil, helper.CodeError(err)
	}
	return &types.InventoryStatus{
		SubSku:    rec.SubSku,
		Stock:     rec.AvailableStock,
		HasStock:  rec.AvailableStock > 0,
		Found:     true,
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt.UnixMilli(),
	}, nil
}
