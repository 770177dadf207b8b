package response

import (
	"context"
	"errors"
	"net/http"

	"Holdfast/app/common/consts/errno"

	xerrors "github.com/zeromicro/x/errors"
)

type Response struct {
	StatusCode int    `json:"code"`
	StatusMsg  string `json:"msg"`
}

type ResponseWithData struct {
	StatusCode int         `json:"code"`
	StatusMsg  string      `json:"msg"`
	Data       interface{} `json:"data"`
}

func NewResponse(statusCode int, statusMsg string) Response {
	return Response{
		StatusCode: statusCode,
		StatusMsg:  statusMsg,
	}
}

func NewResponseWithData(statusCode int, statusMsg string, data interface{}) ResponseWithData {
	return ResponseWithData{
		StatusCode: statusCode,
		StatusMsg:  statusMsg,
		Data:       data,
	}
}

// Ok wraps data into the success envelope.
func Ok(data interface{}) ResponseWithData {
	return NewResponseWithData(errno.StatusOK, "ok", data)
}

// ErrorHandler renders coded errors as a Response. It is meant for httpx.SetErrorHandlerCtx.
func ErrorHandler(_ context.Context, err error) (int, any) {
	var cm *xerrors.CodeMsg
	if errors.As(err, &cm) {
		return http.StatusOK, NewResponse(cm.Code, cm.Msg)
	}
	return http.StatusInternalServerError, NewResponse(errno.InternalError, err.Error())
}
