package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/chainpay-next/internal/logger"
	"github.com/chainpay-next/internal/provider"
	"github.com/chainpay-next/internal/queue"
	"github.com/chainpay-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPaymentVerify, c.handlePaymentVerify)
}

// handlePaymentVerify 处理支付异步确认任务。
// 返回 error 触发 asynq 重试；终态拒绝返回 nil 终止重试链。
func (c *Consumer) handlePaymentVerify(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_verify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentVerifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_verify_unmarshal_failed", "error", err)
		return err
	}
	if strings.TrimSpace(payload.PaymentID) == "" || strings.TrimSpace(payload.TxHash) == "" {
		logger.Debugw("worker_payment_verify_skip_invalid_payload",
			"payment_id", payload.PaymentID,
			"tx_hash", payload.TxHash,
		)
		return nil
	}
	if c.PaymentService == nil {
		logger.Warnw("worker_payment_verify_skip_service_nil", "payment_id", payload.PaymentID)
		return nil
	}

	result, err := c.PaymentService.VerifyPayment(ctx, payload.PaymentID, payload.TxHash)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			// 交易可能尚未上链，交给 asynq 退避重试
			logger.Debugw("worker_payment_verify_tx_pending",
				"payment_id", payload.PaymentID,
				"tx_hash", payload.TxHash,
			)
			return err
		case errors.Is(err, service.ErrLedgerUnavailable):
			logger.Warnw("worker_payment_verify_ledger_unavailable",
				"payment_id", payload.PaymentID,
				"tx_hash", payload.TxHash,
				"error", err,
			)
			return err
		case errors.Is(err, service.ErrPaymentNotFound),
			errors.Is(err, service.ErrIncorrectReceiver),
			errors.Is(err, service.ErrInsufficientAmount),
			errors.Is(err, service.ErrTransactionFailed):
			// 终态拒绝：重试不会改变结果
			logger.Warnw("worker_payment_verify_rejected",
				"payment_id", payload.PaymentID,
				"tx_hash", payload.TxHash,
				"reason", err.Error(),
			)
			return nil
		default:
			logger.Warnw("worker_payment_verify_failed",
				"payment_id", payload.PaymentID,
				"tx_hash", payload.TxHash,
				"error", err,
			)
			return err
		}
	}

	if result.AlreadyCompleted {
		logger.Debugw("worker_payment_verify_already_completed", "payment_id", payload.PaymentID)
		return nil
	}
	logger.Infow("worker_payment_verify_confirmed",
		"payment_id", result.Payment.ID,
		"tx_hash", result.Payment.TxHash,
	)
	return nil
}
