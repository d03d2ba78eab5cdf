// Package handler 处理 HTTP 请求，完成参数绑定、调用 Service 和响应封装
package handler

import (
	"net/http"

	"nova_chat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`    // 业务状态码
	Message string `json:"message"` // 提示信息
	Data    any    `json:"data"`    // 业务数据
}

// HandleSuccess 成功响应
func HandleSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    errorx.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// HandleError 错误响应
// 业务错误码透传给前端，内部错误细节只进日志不出响应
func HandleError(c *gin.Context, err error) {
	code := errorx.GetCode(err)
	message := "服务繁忙，请稍后再试"

	var codeErr *errorx.CodeError
	if ok := asCodeError(err, &codeErr); ok {
		message = codeErr.Msg
	}
	if code == errorx.CodeDBError || code == errorx.CodeServerBusy {
		zap.L().Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		message = "服务繁忙，请稍后再试"
	}

	status := http.StatusOK
	if code == errorx.CodeUnauthorized {
		status = http.StatusUnauthorized
	}
	c.JSON(status, Response{Code: code, Message: message, Data: nil})
}

// HandleParamError 参数校验失败响应
// validator 的校验错误翻译成中文字段消息，其余归为通用参数错误
func HandleParamError(c *gin.Context, err error) {
	if errs, ok := err.(validator.ValidationErrors); ok {
		c.JSON(http.StatusOK, Response{
			Code:    errorx.CodeInvalidParam,
			Message: "请求参数错误",
			Data:    removeTopStruct(errs.Translate(trans)),
		})
		return
	}
	c.JSON(http.StatusOK, Response{
		Code:    errorx.CodeInvalidParam,
		Message: "请求参数错误",
		Data:    nil,
	})
}
