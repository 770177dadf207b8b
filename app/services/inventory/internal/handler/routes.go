package handler

import (
	"net/http"

	checkout "Holdfast/app/services/inventory/internal/handler/checkout"
	stock "Holdfast/app/services/inventory/internal/handler/stock"
	"Holdfast/app/services/inventory/internal/svc"

	"github.com/zeromicro/go-zero/rest"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodPost,
				Path:    "/stock/lock",
				Handler: stock.LockStockHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/stock/acquire",
				Handler: stock.AcquireStockHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/stock/release",
				Handler: stock.ReleaseStockHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/stock/check",
				Handler: stock.CheckInventoryHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/stock/adjust",
				Handler: stock.AdjustStockHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/stock/create",
				Handler: stock.CreateStockHandler(serverCtx),
			},
		},
		rest.WithPrefix("/api/v1/inventory"),
	)

	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodPost,
				Path:    "/checkout/reserve",
				Handler: checkout.ReserveCheckoutHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/checkout/finalize",
				Handler: checkout.FinalizeCheckoutHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/checkout/invalidate",
				Handler: checkout.InvalidateCheckoutHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/checkout/:checkoutId",
				Handler: checkout.GetCheckoutHandler(serverCtx),
			},
		},
		rest.WithPrefix("/api/v1/inventory"),
	)
}
