package biz

import (
	"panel-service/internal/conf"
)

// BillingConfig 计费配置
type BillingConfig struct {
	Currency string
	// 自定义规格每 GB 内存的月单价
	CustomRatePerGB float64
	// 自定义规格磁盘 = 内存 MB * 该倍数
	CustomDiskMultiplier float64
	// 按资源类别、按周期的折扣百分比
	IntervalDiscounts map[string]map[string]float64
	// 余额低阈值（告警用）
	BalanceLowThreshold float64
	// 单次续费处理批大小
	RenewalBatchSize int
}

// NewBillingConfig 从配置创建 BillingConfig
func NewBillingConfig(c *conf.Bootstrap) *BillingConfig {
	config := &BillingConfig{
		Currency:             "eur",
		CustomRatePerGB:      2.0,
		CustomDiskMultiplier: 2.5,
		IntervalDiscounts:    make(map[string]map[string]float64),
		BalanceLowThreshold:  10.0,
		RenewalBatchSize:     100,
	}
	if c.Billing != nil {
		if c.Billing.Currency != "" {
			config.Currency = c.Billing.Currency
		}
		if c.Billing.CustomRatePerGB > 0 {
			config.CustomRatePerGB = c.Billing.CustomRatePerGB
		}
		if c.Billing.CustomDiskMultiplier > 0 {
			config.CustomDiskMultiplier = c.Billing.CustomDiskMultiplier
		}
		for category, discounts := range c.Billing.IntervalDiscounts {
			config.IntervalDiscounts[category] = make(map[string]float64)
			for interval, pct := range discounts {
				config.IntervalDiscounts[category][interval] = pct
			}
		}
		if c.Billing.BalanceLowThreshold > 0 {
			config.BalanceLowThreshold = c.Billing.BalanceLowThreshold
		}
		if c.Billing.RenewalBatchSize > 0 {
			config.RenewalBatchSize = c.Billing.RenewalBatchSize
		}
	}
	return config
}

// DiscountFor 返回资源类别在指定周期下的折扣百分比
func (c *BillingConfig) DiscountFor(resourceType, interval string) float64 {
	if discounts, ok := c.IntervalDiscounts[resourceType]; ok {
		return discounts[interval]
	}
	return 0
}
