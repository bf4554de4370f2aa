package models

import (
	"time"

	"github.com/chainpay-next/internal/constants"
)

// Payment 支付意向记录
type Payment struct {
	ID              string     `gorm:"primarykey;size:32" json:"id"`                   // 支付标识（16 位十六进制）
	AmountEth       Amount     `gorm:"type:decimal(38,18);not null" json:"amount_eth"` // 主单位金额
	AmountWei       Wei        `gorm:"type:decimal(38,0);not null" json:"amount_wei"`  // 最小单位金额（创建时精确换算，不可变）
	Description     string     `gorm:"type:text" json:"description"`                   // 备注
	Status          string     `gorm:"index;not null" json:"status"`                   // 支付状态（pending/completed）
	ReceiverAddress string     `gorm:"size:64;not null" json:"receiver_address"`       // 创建时快照的收款地址
	TxHash          string     `gorm:"size:80" json:"tx_hash,omitempty"`               // 确认成功的交易哈希，仅完成后填充
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`                        // 创建时间
	CompletedAt     *time.Time `gorm:"index" json:"completed_at,omitempty"`            // 完成时间，仅完成后填充
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}

// Completed 判断是否已完成
func (p *Payment) Completed() bool {
	return p != nil && p.Status == constants.PaymentStatusCompleted
}
