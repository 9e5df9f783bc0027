package biz

import (
	"context"
	"testing"

	"panel-service/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPricing(discounts map[string]map[string]float64) *PricingResolver {
	return NewPricingResolver(&BillingConfig{
		Currency:             "eur",
		CustomRatePerGB:      2.0,
		CustomDiskMultiplier: 3.0,
		IntervalDiscounts:    discounts,
	})
}

func TestMonthsIn(t *testing.T) {
	assert.Equal(t, 1, MonthsIn(constants.IntervalMonth))
	assert.Equal(t, 3, MonthsIn(constants.IntervalQuarter))
	assert.Equal(t, 6, MonthsIn(constants.IntervalHalfYear))
	assert.Equal(t, 12, MonthsIn(constants.IntervalYear))
	assert.Equal(t, 0, MonthsIn("weekly"))
	assert.Equal(t, 0, MonthsIn(""))
}

func TestPriceForPlan(t *testing.T) {
	ctx := context.Background()
	plan := &Plan{
		ID:           "plan-1",
		ResourceType: constants.ResourceTypeServer,
		Price:        4.0,
		Currency:     "eur",
		Interval:     constants.IntervalMonth,
	}

	t.Run("monthly base price", func(t *testing.T) {
		p := testPricing(nil)
		quote, err := p.PriceForPlan(ctx, plan, constants.IntervalMonth, false)
		require.NoError(t, err)
		assert.InDelta(t, 4.0, quote.Recurring, 0.001)
		assert.InDelta(t, 4.0, quote.FirstCharge, 0.001)
		assert.Equal(t, "eur", quote.Currency)
	})

	t.Run("yearly with interval discount", func(t *testing.T) {
		p := testPricing(map[string]map[string]float64{
			constants.ResourceTypeServer: {constants.IntervalYear: 20},
		})
		quote, err := p.PriceForPlan(ctx, plan, constants.IntervalYear, false)
		require.NoError(t, err)
		// 4.0 * 12 * 0.8
		assert.InDelta(t, 38.4, quote.Recurring, 0.001)
		assert.InDelta(t, 38.4, quote.FirstCharge, 0.001)
	})

	t.Run("first period promo only affects first charge", func(t *testing.T) {
		p := testPricing(nil)
		promo := *plan
		promo.FirstPeriodDiscount = 50
		quote, err := p.PriceForPlan(ctx, &promo, constants.IntervalMonth, true)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, quote.FirstCharge, 0.001)
		assert.InDelta(t, 4.0, quote.Recurring, 0.001)

		// 非首期报价不应用促销
		quote, err = p.PriceForPlan(ctx, &promo, constants.IntervalMonth, false)
		require.NoError(t, err)
		assert.InDelta(t, 4.0, quote.FirstCharge, 0.001)
	})

	t.Run("quarterly base plan normalized to monthly", func(t *testing.T) {
		p := testPricing(nil)
		quarterly := *plan
		quarterly.Price = 12.0
		quarterly.Interval = constants.IntervalQuarter
		quote, err := p.PriceForPlan(ctx, &quarterly, constants.IntervalYear, false)
		require.NoError(t, err)
		// 12.0 / 3 * 12
		assert.InDelta(t, 48.0, quote.Recurring, 0.001)
	})

	t.Run("currency falls back to config", func(t *testing.T) {
		p := testPricing(nil)
		bare := *plan
		bare.Currency = ""
		quote, err := p.PriceForPlan(ctx, &bare, constants.IntervalMonth, false)
		require.NoError(t, err)
		assert.Equal(t, "eur", quote.Currency)
	})

	t.Run("unknown interval rejected", func(t *testing.T) {
		p := testPricing(nil)
		_, err := p.PriceForPlan(ctx, plan, "weekly", false)
		assert.Error(t, err)
	})
}

func TestPriceForCustom(t *testing.T) {
	ctx := context.Background()

	t.Run("priced per gigabyte", func(t *testing.T) {
		p := testPricing(nil)
		quote, err := p.PriceForCustom(ctx, constants.ResourceTypeVps, 2048, constants.IntervalMonth)
		require.NoError(t, err)
		// 2 GB * 2.0
		assert.InDelta(t, 4.0, quote.Recurring, 0.001)
		assert.InDelta(t, quote.Recurring, quote.FirstCharge, 0.001)
	})

	t.Run("interval discount applied per resource type", func(t *testing.T) {
		p := testPricing(map[string]map[string]float64{
			constants.ResourceTypeVps: {constants.IntervalYear: 15},
		})
		quote, err := p.PriceForCustom(ctx, constants.ResourceTypeVps, 2048, constants.IntervalYear)
		require.NoError(t, err)
		// 4.0 * 12 * 0.85
		assert.InDelta(t, 40.8, quote.Recurring, 0.001)

		// 其他资源类别不受该折扣影响
		quote, err = p.PriceForCustom(ctx, constants.ResourceTypeServer, 2048, constants.IntervalYear)
		require.NoError(t, err)
		assert.InDelta(t, 48.0, quote.Recurring, 0.001)
	})

	t.Run("invalid sizing rejected", func(t *testing.T) {
		p := testPricing(nil)
		_, err := p.PriceForCustom(ctx, constants.ResourceTypeVps, 0, constants.IntervalMonth)
		assert.Error(t, err)

		_, err = p.PriceForCustom(ctx, constants.ResourceTypeVps, 1024, "weekly")
		assert.Error(t, err)
	})
}

func TestRoundHalfUp(t *testing.T) {
	assert.InDelta(t, 1.0, RoundHalfUp(1.004), 0.0001)
	assert.InDelta(t, 1.01, RoundHalfUp(1.006), 0.0001)
	assert.InDelta(t, 2.5, RoundHalfUp(2.5), 0.0001)
	assert.InDelta(t, 38.4, RoundHalfUp(38.4), 0.0001)
}
