package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chainpay-next/internal/config"
	"github.com/chainpay-next/internal/constants"
	"github.com/chainpay-next/internal/ledger"
	"github.com/chainpay-next/internal/logger"
	"github.com/chainpay-next/internal/models"
	"github.com/chainpay-next/internal/queue"
	"github.com/chainpay-next/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("invalid payment amount")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrIncorrectReceiver   = errors.New("incorrect receiver address")
	ErrInsufficientAmount  = errors.New("insufficient transaction amount")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrLedgerUnavailable   = errors.New("ledger unavailable")
	ErrPaymentStoreFailed  = errors.New("payment store failed")
	ErrAsyncVerifyDisabled = errors.New("async verify disabled")
)

const defaultVerifyTimeout = 10 * time.Second

// PaymentService 支付意向服务
type PaymentService struct {
	paymentRepo      repository.PaymentRepository
	ledgerClient     ledger.Client
	queueClient      *queue.Client
	receiverAddress  string
	verifyTimeout    time.Duration
	verifyMaxRetry   int
	verifyRetryDelay time.Duration
}

// NewPaymentService 创建支付服务
func NewPaymentService(paymentRepo repository.PaymentRepository, ledgerClient ledger.Client, queueClient *queue.Client, ledgerCfg config.LedgerConfig, paymentCfg config.PaymentConfig) *PaymentService {
	verifyTimeout := defaultVerifyTimeout
	if ledgerCfg.RequestTimeoutMS > 0 {
		verifyTimeout = time.Duration(ledgerCfg.RequestTimeoutMS) * time.Millisecond
	}
	verifyRetryDelay := 30 * time.Second
	if paymentCfg.VerifyRetryDelaySeconds > 0 {
		verifyRetryDelay = time.Duration(paymentCfg.VerifyRetryDelaySeconds) * time.Second
	}
	return &PaymentService{
		paymentRepo:      paymentRepo,
		ledgerClient:     ledgerClient,
		queueClient:      queueClient,
		receiverAddress:  strings.TrimSpace(ledgerCfg.ReceiverAddress),
		verifyTimeout:    verifyTimeout,
		verifyMaxRetry:   paymentCfg.VerifyMaxRetry,
		verifyRetryDelay: verifyRetryDelay,
	}
}

// CreatePaymentInput 创建支付请求
type CreatePaymentInput struct {
	Amount      decimal.Decimal
	Description string
}

// CreatePayment 创建支付意向：校验金额、精确换算 wei、快照收款地址
func (s *PaymentService) CreatePayment(input CreatePaymentInput) (*models.Payment, error) {
	if !input.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	amount := models.NewAmountFromDecimal(input.Amount)
	amountWei, err := amount.Wei()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	payment := &models.Payment{
		AmountEth:       amount,
		AmountWei:       amountWei,
		Description:     strings.TrimSpace(input.Description),
		Status:          constants.PaymentStatusPending,
		ReceiverAddress: s.receiverAddress,
		CreatedAt:       time.Now(),
	}
	if err := s.paymentRepo.Create(payment); err != nil {
		logger.Errorw("payment_create_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentStoreFailed, err)
	}

	logger.Infow("payment_created",
		"payment_id", payment.ID,
		"amount_eth", payment.AmountEth.String(),
		"amount_wei", payment.AmountWei.String(),
	)
	return payment, nil
}

// GetPayment 查询支付意向当前快照
func (s *PaymentService) GetPayment(id string) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentStoreFailed, err)
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// VerifyResult 校验结果
type VerifyResult struct {
	Payment          *models.Payment
	AlreadyCompleted bool // 记录早已完成，本次调用按幂等成功处理
}

// VerifyPayment 校验链上交易是否满足支付意向，满足则完成记录。
// 检查顺序：记录存在 → 交易存在 → 收款地址（忽略大小写）→
// 金额下界 → 回执执行成功 → 原子完成。所有账本查询都在
// 状态变更之前完成，不在任何锁内发起。
func (s *PaymentService) VerifyPayment(ctx context.Context, paymentID, txHash string) (*VerifyResult, error) {
	payment, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentStoreFailed, err)
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if payment.Completed() {
		// 幂等：已完成记录不再查询账本，也绝不改写 tx_hash / completed_at
		return &VerifyResult{Payment: payment, AlreadyCompleted: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	tx, err := s.ledgerClient.GetTransaction(ctx, txHash)
	if err != nil {
		logger.Warnw("payment_verify_ledger_failed",
			"payment_id", paymentID,
			"tx_hash", txHash,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}

	if !strings.EqualFold(strings.TrimSpace(tx.To), payment.ReceiverAddress) {
		return nil, ErrIncorrectReceiver
	}

	if payment.AmountWei.Cmp(tx.ValueWei) > 0 {
		// 仅校验下界，超付视为满足
		return nil, ErrInsufficientAmount
	}

	receipt, err := s.ledgerClient.GetTransactionReceipt(ctx, txHash)
	if err != nil {
		logger.Warnw("payment_verify_receipt_failed",
			"payment_id", paymentID,
			"tx_hash", txHash,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if receipt == nil || !receipt.Success {
		return nil, ErrTransactionFailed
	}

	updated, transitioned, err := s.paymentRepo.CompleteIfPending(payment.ID, strings.TrimSpace(txHash), time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentStoreFailed, err)
	}
	if updated == nil {
		return nil, ErrPaymentNotFound
	}
	if !transitioned {
		// 并发校验竞争落败：对方已完成转移，本次按幂等成功返回
		return &VerifyResult{Payment: updated, AlreadyCompleted: true}, nil
	}

	logger.Infow("payment_completed",
		"payment_id", updated.ID,
		"tx_hash", updated.TxHash,
	)
	return &VerifyResult{Payment: updated}, nil
}

// AsyncVerifyEnabled 判断异步确认是否可用
func (s *PaymentService) AsyncVerifyEnabled() bool {
	return s.queueClient.Enabled()
}

// EnqueueVerify 投递异步确认任务，由 worker 带退避重试未上链交易
func (s *PaymentService) EnqueueVerify(paymentID, txHash string) error {
	if !s.AsyncVerifyEnabled() {
		return ErrAsyncVerifyDisabled
	}
	return s.queueClient.EnqueuePaymentVerify(queue.PaymentVerifyPayload{
		PaymentID: paymentID,
		TxHash:    txHash,
	}, s.verifyMaxRetry, s.verifyRetryDelay)
}
