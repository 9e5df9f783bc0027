package biz

import (
	"context"
	"math"

	"panel-service/internal/constants"
	panelErrors "panel-service/internal/errors"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
)

// intervalMonths 各计费周期包含的月数
var intervalMonths = map[string]int{
	constants.IntervalMonth:    1,
	constants.IntervalQuarter:  3,
	constants.IntervalHalfYear: 6,
	constants.IntervalYear:     12,
}

// MonthsIn 返回计费周期的月数，未知周期返回 0
func MonthsIn(interval string) int {
	return intervalMonths[interval]
}

// PriceQuote 一次定价的结果
// FirstCharge 是实际收取的首期金额（含首期促销）
// Recurring 是后续周期的金额快照（不含首期促销），写入订阅的 billing_amount
type PriceQuote struct {
	FirstCharge float64
	Recurring   float64
	Interval    string
	Currency    string
}

// PricingResolver 定价解析器
// 纯函数：相同的（套餐/规格、周期、折扣配置、促销标记）必须得到相同的结果，
// 价格预览与实际扣款共用同一路径，避免价格漂移
type PricingResolver struct {
	conf *BillingConfig
}

// NewPricingResolver 创建定价解析器
func NewPricingResolver(conf *BillingConfig) *PricingResolver {
	return &PricingResolver{conf: conf}
}

// PriceForPlan 计算套餐在指定周期下的价格
func (p *PricingResolver) PriceForPlan(ctx context.Context, plan *Plan, interval string, firstCharge bool) (*PriceQuote, error) {
	months := MonthsIn(interval)
	if months == 0 {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeInvalidInterval)
	}
	baseMonths := MonthsIn(plan.Interval)
	if baseMonths == 0 {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeInvalidInterval)
	}

	// 基准月单价 -> 周期总价 -> 周期折扣
	monthly := plan.Price / float64(baseMonths)
	total := monthly * float64(months)
	total *= 1 - p.conf.DiscountFor(plan.ResourceType, interval)/100

	recurring := RoundHalfUp(total)
	charge := recurring
	// 首期促销只影响实际收取的金额，不影响后续周期的快照
	if firstCharge && plan.FirstPeriodDiscount > 0 {
		charge = RoundHalfUp(total * (1 - plan.FirstPeriodDiscount/100))
	}

	currency := plan.Currency
	if currency == "" {
		currency = p.conf.Currency
	}
	return &PriceQuote{
		FirstCharge: charge,
		Recurring:   recurring,
		Interval:    interval,
		Currency:    currency,
	}, nil
}

// PriceForCustom 计算自定义规格（按内存计价）在指定周期下的价格
func (p *PricingResolver) PriceForCustom(ctx context.Context, resourceType string, memoryMB int64, interval string) (*PriceQuote, error) {
	months := MonthsIn(interval)
	if months == 0 {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeInvalidInterval)
	}
	if memoryMB <= 0 {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeInvalidSizing)
	}

	monthly := float64(memoryMB) / 1024 * p.conf.CustomRatePerGB
	total := monthly * float64(months)
	total *= 1 - p.conf.DiscountFor(resourceType, interval)/100

	recurring := RoundHalfUp(total)
	return &PriceQuote{
		FirstCharge: recurring,
		Recurring:   recurring,
		Interval:    interval,
		Currency:    p.conf.Currency,
	}, nil
}

// RoundHalfUp 四舍五入保留 2 位小数
func RoundHalfUp(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
