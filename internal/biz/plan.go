package biz

import (
	"context"
	"time"
)

// Plan 套餐领域对象
type Plan struct {
	ID                  string
	Name                string
	ResourceType        string
	MemoryMB            int64
	DiskMB              int64
	CPUPercent          int64
	IO                  int64
	SwapMB              int64
	Price               float64
	Currency            string
	Interval            string
	IsCustom            bool
	FirstPeriodDiscount float64
	SalesDiscount       float64
	ExternalPriceID     string
	CreatedAt           time.Time
}

// PlanRepo 套餐数据层接口（定义在 biz 层）
type PlanRepo interface {
	// GetPlan 获取套餐，不存在时返回 (nil, nil)
	GetPlan(ctx context.Context, planID string) (*Plan, error)
}
