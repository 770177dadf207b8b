package checkout

import (
	"net/http"

	"Holdfast/app/common/response"
	"Holdfast/app/services/inventory/internal/logic/checkout"
	"Holdfast/app/services/inventory/internal/svc"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/zeromicro/go-zero/rest/httpx"
)

func GetCheckoutHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GetCheckoutRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		l := checkout.NewGetCheckoutLogic(r.Context(), svcCtx)
		resp, err := l.GetCheckout(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, response.Ok(resp))
		}
	}
}
