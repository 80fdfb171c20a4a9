package response

import (
	"net/http"

	"payprocessor/internal/apperror"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeInvalidAmount       = 1001
	CodeConfigurationError  = 1002
	CodeUpstreamUnavailable = 1003
	CodeInvariantViolation  = 1004
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Rule    string      `json:"rule,omitempty"` // 违反的校验规则
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

// FromError 把 apperror 映射为响应码
// 上游和不变量错误只返回规则名，不暴露内部细节
func FromError(c *gin.Context, err error) {
	c.JSON(http.StatusOK, Build(err))
}

func Build(err error) Response {
	kind := apperror.KindOf(err)
	rule := apperror.RuleOf(err)

	switch kind {
	case apperror.KindValidation:
		return Response{Code: CodeParamError, Message: err.Error(), Rule: rule}
	case apperror.KindInvalidAmount:
		return Response{Code: CodeInvalidAmount, Message: err.Error(), Rule: rule}
	case apperror.KindNotFound:
		return Response{Code: CodeNotFound, Message: err.Error(), Rule: rule}
	case apperror.KindConfiguration:
		return Response{Code: CodeConfigurationError, Message: err.Error(), Rule: rule}
	case apperror.KindUpstreamUnavailable:
		if rule == apperror.RulePayoutLock {
			return Response{Code: CodeUpstreamUnavailable, Message: "对账任务繁忙，请稍后重试", Rule: rule}
		}
		return Response{Code: CodeUpstreamUnavailable, Message: "支付网关暂不可用，请稍后重试", Rule: rule}
	case apperror.KindInvariantViolation:
		return Response{Code: CodeInvariantViolation, Message: "对账不变量校验失败", Rule: rule}
	default:
		return Response{Code: CodeServerError, Message: "服务器内部错误"}
	}
}
