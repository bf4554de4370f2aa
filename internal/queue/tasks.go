package queue

import (
	"encoding/json"

	"github.com/chainpay-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPaymentVerify 支付异步确认任务
	TaskPaymentVerify = constants.TaskPaymentVerify
)

// PaymentVerifyPayload 支付异步确认任务载荷
type PaymentVerifyPayload struct {
	PaymentID string `json:"payment_id"`
	TxHash    string `json:"tx_hash"`
}

// NewPaymentVerifyTask 创建支付异步确认任务
func NewPaymentVerifyTask(payload PaymentVerifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentVerify, body), nil
}
