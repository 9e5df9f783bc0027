package model

import (
	"time"
)

// Plan 套餐模板表
type Plan struct {
	PlanID       string    `gorm:"primaryKey;type:varchar(36)"`
	Name         string    `gorm:"type:varchar(64);not null"`
	ResourceType string    `gorm:"type:varchar(16);not null;default:'server'"` // server / vps
	MemoryMB     int64     `gorm:"not null"`
	DiskMB       int64     `gorm:"not null"`
	CPUPercent   int64     `gorm:"not null;default:100"`
	IO           int64     `gorm:"default:500"`
	SwapMB       int64     `gorm:"default:0"`
	Price        float64   `gorm:"type:decimal(10,2);not null"`
	Currency     string    `gorm:"type:varchar(8);not null;default:'eur'"`
	Interval     string    `gorm:"type:varchar(16);not null;default:'month'"` // 基准计费周期
	IsCustom     bool      `gorm:"default:false"`
	// 首期促销折扣百分比（0 表示无促销）
	FirstPeriodDiscount float64 `gorm:"type:decimal(5,2);default:0.00"`
	SalesDiscount       float64 `gorm:"type:decimal(5,2);default:0.00"`
	// 支付网关侧的价格引用 ID
	ExternalPriceID string    `gorm:"type:varchar(64)"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Plan) TableName() string {
	return "plan"
}
