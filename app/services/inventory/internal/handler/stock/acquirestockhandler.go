package stock

import (
	"net/http"

	"Holdfast/app/common/response"
	"Holdfast/app/services/inventory/internal/logic/stock"
	"Holdfast/app/services/inventory/internal/svc"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/zeromicro/go-zero/rest/httpx"
)

func AcquireStockHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.StockItemsRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		l := stock.NewAcquireStockLogic(r.Context(), svcCtx)
		resp, err := l.AcquireStock(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, response.Ok(resp))
		}
	}
}
