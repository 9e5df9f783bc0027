package model

import (
	"time"

	"panel-service/internal/constants"
)

// 订阅状态常量（引用 constants 包中的常量，保持一致性）
const (
	SubscriptionStatusActive   = constants.SubscriptionStatusActive
	SubscriptionStatusCanceled = constants.SubscriptionStatusCanceled
	SubscriptionStatusPastDue  = constants.SubscriptionStatusPastDue
)

// Subscription 订阅表（资源背后的计费契约）
type Subscription struct {
	SubscriptionID string `gorm:"primaryKey;type:varchar(36)"`
	UserID         string `gorm:"type:varchar(36);not null;index"`
	// 外部订阅引用 ID：网关签发，或信用点订阅的 credits_<token>
	// 唯一索引是幂等开通的保证，重复 webhook 投递靠它收敛
	ExternalID     string  `gorm:"uniqueIndex;type:varchar(64);not null"`
	ExternalStatus string  `gorm:"type:varchar(24);not null;default:'active'"`
	PlanID         *string `gorm:"type:varchar(36)"`
	Interval       string  `gorm:"type:varchar(16);not null;default:'month'"`
	// 计费金额快照：折扣后的周期价，与套餐现价解耦
	BillingAmount  float64    `gorm:"type:decimal(10,2);not null;default:0.00"`
	IsCreditsBased bool       `gorm:"default:false"`
	EndsAt         *time.Time // 取消生效时间
	NextBillingAt  *time.Time `gorm:"index"` // 信用点订阅的下次续费时间
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Subscription) TableName() string {
	return "subscription"
}
