package public

import (
	"strings"

	"github.com/chainpay-next/internal/constants"
	"github.com/chainpay-next/internal/http/response"
	"github.com/chainpay-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreatePaymentRequest 创建支付意向请求
type CreatePaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"` // 主单位金额，支持字符串或数字
	Description string          `json:"description"`
}

// VerifyPaymentRequest 提交交易校验请求
type VerifyPaymentRequest struct {
	TxHash string `json:"tx_hash" binding:"required"`
	Async  bool   `json:"async"` // 交易未上链时转入后台确认
}

var verifyErrorRules = []mappedHandlerError{
	{target: service.ErrPaymentNotFound, code: response.CodeNotFound, msg: "payment not found", reason: constants.ReasonPaymentNotFound},
	{target: service.ErrTransactionNotFound, code: response.CodeBadRequest, msg: "transaction not found", reason: constants.ReasonTransactionNotFound},
	{target: service.ErrIncorrectReceiver, code: response.CodeBadRequest, msg: "incorrect receiver address", reason: constants.ReasonIncorrectReceiver},
	{target: service.ErrInsufficientAmount, code: response.CodeBadRequest, msg: "insufficient amount", reason: constants.ReasonInsufficientAmount},
	{target: service.ErrTransactionFailed, code: response.CodeBadRequest, msg: "transaction failed", reason: constants.ReasonTransactionFailed},
	{target: service.ErrLedgerUnavailable, code: response.CodeUpstream, msg: "ledger unavailable", reason: constants.ReasonLedgerUnavailable},
}

// CreatePayment 创建支付意向
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	payment, err := h.PaymentService.CreatePayment(service.CreatePaymentInput{
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		respondWithMappedError(c, err, []mappedHandlerError{
			{target: service.ErrInvalidAmount, code: response.CodeBadRequest, msg: "invalid amount"},
		}, response.CodeInternal, "payment create failed")
		return
	}

	response.Success(c, payment)
}

// GetPayment 查询支付意向状态
func (h *Handler) GetPayment(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, response.CodeBadRequest, "payment id required", nil)
		return
	}

	payment, err := h.PaymentService.GetPayment(id)
	if err != nil {
		respondWithMappedError(c, err, []mappedHandlerError{
			{target: service.ErrPaymentNotFound, code: response.CodeNotFound, msg: "payment not found", reason: constants.ReasonPaymentNotFound},
		}, response.CodeInternal, "payment fetch failed")
		return
	}

	response.Success(c, payment)
}

// VerifyPayment 提交交易引用并校验
func (h *Handler) VerifyPayment(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, response.CodeBadRequest, "payment id required", nil)
		return
	}

	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	if req.Async {
		h.enqueueVerify(c, id, req.TxHash)
		return
	}

	result, err := h.PaymentService.VerifyPayment(c.Request.Context(), id, req.TxHash)
	if err != nil {
		respondWithMappedError(c, err, verifyErrorRules, response.CodeInternal, "payment verify failed")
		return
	}

	response.SuccessWithMsg(c, "payment confirmed", gin.H{
		"payment":           result.Payment,
		"already_completed": result.AlreadyCompleted,
	})
}

// enqueueVerify 将校验转入后台队列，等待交易上链
func (h *Handler) enqueueVerify(c *gin.Context, id, txHash string) {
	// 入队前确认记录存在，未知标识直接拒绝
	if _, err := h.PaymentService.GetPayment(id); err != nil {
		respondWithMappedError(c, err, []mappedHandlerError{
			{target: service.ErrPaymentNotFound, code: response.CodeNotFound, msg: "payment not found", reason: constants.ReasonPaymentNotFound},
		}, response.CodeInternal, "payment fetch failed")
		return
	}

	if err := h.PaymentService.EnqueueVerify(id, txHash); err != nil {
		respondWithMappedError(c, err, []mappedHandlerError{
			{target: service.ErrAsyncVerifyDisabled, code: response.CodeBadRequest, msg: "async verify disabled"},
		}, response.CodeInternal, "verify enqueue failed")
		return
	}

	response.SuccessWithMsg(c, "verify queued", gin.H{
		"payment_id": id,
		"queued":     true,
	})
}
