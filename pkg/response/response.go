package response

import (
	"net/http"

	"review_board/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`    // 业务码
	Message string      `json:"message"` // 提示信息
	Data    interface{} `json:"data"`    // 数据
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, errCode int, msg string) {
	c.JSON(httpCode, Response{
		Code:    errCode,
		Message: msg,
		Data:    nil,
	})
}

// Fail 业务失败响应 (HTTP 200, 业务码非 0)
func Fail(c *gin.Context, errCode int, msg string) {
	c.JSON(http.StatusOK, Response{
		Code:    errCode,
		Message: msg,
		Data:    nil,
	})
}

// FromError 按错误类别映射 HTTP 状态码和业务码
func FromError(c *gin.Context, err error) {
	httpCode, errCode := Status(err)
	msg := apperr.MessageOf(err)
	if msg == "" {
		msg = apperr.KindOf(err).String()
	}
	Error(c, httpCode, errCode, msg)
}

// Status returns the HTTP status and business code for err.
func Status(err error) (int, int) {
	switch apperr.KindOf(err) {
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized, ErrTokenInvalid
	case apperr.KindForbidden:
		return http.StatusForbidden, ErrNoPermission
	case apperr.KindValidation:
		return http.StatusBadRequest, ErrInvalidParam
	case apperr.KindNotFound:
		return http.StatusNotFound, ErrReviewNotFound
	case apperr.KindConflict:
		return http.StatusConflict, ErrConflict
	case apperr.KindBusy:
		return http.StatusConflict, ErrBusy
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout, ErrRemoteTimeout
	case apperr.KindPersistence:
		return http.StatusBadGateway, ErrPersistence
	case apperr.KindRepository:
		return http.StatusBadGateway, ErrFeedUnavailable
	}
	return http.StatusInternalServerError, ErrServerInternal
}
