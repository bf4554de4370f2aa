package repository

import (
	"strings"
	"sync"
	"time"

	"github.com/chainpay-next/internal/constants"
	"github.com/chainpay-next/internal/models"
)

// MemoryPaymentRepository 进程内存实现。
// 记录与进程同生命周期，互斥锁保护映射与记录的可变字段。
type MemoryPaymentRepository struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

// NewMemoryPaymentRepository 创建内存支付仓库
func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments: make(map[string]*models.Payment),
	}
}

// Create 生成唯一标识并插入支付记录
func (r *MemoryPaymentRepository) Create(payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < paymentIDMaxRetries; attempt++ {
		id := NewPaymentID()
		if _, exists := r.payments[id]; exists {
			continue
		}
		payment.ID = id
		stored := *payment
		r.payments[id] = &stored
		return nil
	}
	return ErrPaymentIDExhausted
}

// GetByID 按标识查询支付记录，返回当前快照
func (r *MemoryPaymentRepository) GetByID(id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, exists := r.payments[strings.TrimSpace(id)]
	if !exists {
		return nil, nil
	}
	return snapshot(payment), nil
}

// CompleteIfPending 在锁内执行 pending→completed 转移，保证至多一次成功
func (r *MemoryPaymentRepository) CompleteIfPending(id, txHash string, completedAt time.Time) (*models.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, exists := r.payments[strings.TrimSpace(id)]
	if !exists {
		return nil, false, nil
	}
	if payment.Status != constants.PaymentStatusPending {
		return snapshot(payment), false, nil
	}

	payment.Status = constants.PaymentStatusCompleted
	payment.TxHash = txHash
	at := completedAt
	payment.CompletedAt = &at
	return snapshot(payment), true, nil
}

// CountByStatus 统计指定状态的支付记录数
func (r *MemoryPaymentRepository) CountByStatus(status string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, payment := range r.payments {
		if payment.Status == status {
			total++
		}
	}
	return total, nil
}

// snapshot 返回记录拷贝，调用方后续读取不受并发修改影响
func snapshot(payment *models.Payment) *models.Payment {
	copied := *payment
	if payment.CompletedAt != nil {
		at := *payment.CompletedAt
		copied.CompletedAt = &at
	}
	return &copied
}
