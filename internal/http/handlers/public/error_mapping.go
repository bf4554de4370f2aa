package public

import (
	"errors"

	"github.com/chainpay-next/internal/http/response"
	"github.com/chainpay-next/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
// reason 为机器可读原因码，随响应 data 返回。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
	reason string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			data := gin.H{}
			if rule.reason != "" {
				data["reason"] = rule.reason
			}
			response.ErrorWithData(c, rule.code, rule.msg, data)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

// respondError 返回错误响应，并在有原始错误时记录日志
func respondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		requestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// requestLog 提供携带 request_id 的日志实例
func requestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}
