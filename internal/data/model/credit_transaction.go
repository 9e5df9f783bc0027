package model

import (
	"time"

	"panel-service/internal/constants"
)

// 信用点流水类型常量（引用 constants 包中的常量，保持一致性）
const (
	CreditTypePurchase   = constants.CreditTypePurchase
	CreditTypeDeduction  = constants.CreditTypeDeduction
	CreditTypeRefund     = constants.CreditTypeRefund
	CreditTypeRenewal    = constants.CreditTypeRenewal
	CreditTypeAdjustment = constants.CreditTypeAdjustment
)

// CreditTransaction 信用点流水表（只增不改的审计记录）
type CreditTransaction struct {
	CreditTransactionID string  `gorm:"primaryKey;type:varchar(36)"`
	UserID              string  `gorm:"type:varchar(36);not null;index:idx_user_created,priority:1"`
	Type                string  `gorm:"type:enum('purchase','deduction','refund','renewal','adjustment');not null"`
	Amount              float64 `gorm:"type:decimal(10,2);not null"`
	BalanceBefore       float64 `gorm:"type:decimal(10,2);not null"`
	BalanceAfter        float64 `gorm:"type:decimal(10,2);not null"`
	Description         string  `gorm:"type:varchar(191)"`
	SubscriptionID      *string `gorm:"type:varchar(36);index"`
	// 外部引用 ID（如 checkout session id），用于购买入账的幂等
	ReferenceID *string   `gorm:"uniqueIndex;type:varchar(64)"`
	Metadata    string    `gorm:"type:json"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index:idx_user_created,priority:2"`
}

// TableName 指定表名
func (CreditTransaction) TableName() string {
	return "credit_transaction"
}
