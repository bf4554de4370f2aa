package repository

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chainpay-next/internal/constants"
	"github.com/chainpay-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPaymentIDExhausted 多次重试后仍未生成未占用的支付标识
var ErrPaymentIDExhausted = errors.New("payment id generation exhausted")

// 标识长度与碰撞重试上限
const (
	paymentIDLength     = 16
	paymentIDMaxRetries = 5
)

// PaymentRepository 支付数据访问接口
type PaymentRepository interface {
	// Create 生成唯一标识并插入记录；标识碰撞时自动重试
	Create(payment *models.Payment) error
	// GetByID 按标识查询；未找到返回 (nil, nil)
	GetByID(id string) (*models.Payment, error)
	// CompleteIfPending 原子执行 pending→completed 转移。
	// 返回最新记录与本次调用是否完成了转移；记录不存在返回 (nil, false, nil)。
	CompleteIfPending(id, txHash string, completedAt time.Time) (*models.Payment, bool, error)
	// CountByStatus 统计指定状态的记录数
	CountByStatus(status string) (int64, error)
}

var paymentIDCounter uint64

// NewPaymentID 生成候选支付标识：
// sha256(单调时间戳 + 进程内计数器 + 随机盐) 截取前 16 位十六进制。
// 唯一性由仓库的 insert-if-absent 保证，这里只负责高熵来源。
func NewPaymentID() string {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint64(buf[8:16], atomic.AddUint64(&paymentIDCounter, 1))
	_, _ = rand.Read(buf[16:24])
	sum := sha256.Sum256(buf[:])
	return hex.EncodeToString(sum[:])[:paymentIDLength]
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// Create 生成唯一标识并插入支付记录
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	for attempt := 0; attempt < paymentIDMaxRetries; attempt++ {
		payment.ID = NewPaymentID()
		result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(payment)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
	}
	return ErrPaymentIDExhausted
}

// GetByID 按标识查询支付记录
func (r *GormPaymentRepository) GetByID(id string) (*models.Payment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var payment models.Payment
	if err := r.db.First(&payment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// CompleteIfPending 条件更新实现至多一次的完成转移
func (r *GormPaymentRepository) CompleteIfPending(id, txHash string, completedAt time.Time) (*models.Payment, bool, error) {
	result := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, constants.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":       constants.PaymentStatusCompleted,
			"tx_hash":      txHash,
			"completed_at": completedAt,
		})
	if result.Error != nil {
		return nil, false, result.Error
	}

	payment, err := r.GetByID(id)
	if err != nil {
		return nil, false, err
	}
	if payment == nil {
		return nil, false, nil
	}
	return payment, result.RowsAffected > 0, nil
}

// CountByStatus 统计指定状态的支付记录数
func (r *GormPaymentRepository) CountByStatus(status string) (int64, error) {
	var total int64
	if err := r.db.Model(&models.Payment{}).Where("status = ?", status).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
