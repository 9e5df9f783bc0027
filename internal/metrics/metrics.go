package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PanelMetrics 控制面板核心链路指标
type PanelMetrics struct {
	// webhook 相关指标
	WebhookEventTotal    *prometheus.CounterVec   // webhook 事件总数（按类型、结果）
	WebhookDuplicate     prometheus.Counter       // 去重命中的重复事件数
	WebhookEventDuration *prometheus.HistogramVec // 事件处理耗时

	// 开通相关指标
	ProvisionTotal    *prometheus.CounterVec   // 开通总数（按资源类型、结果）
	ProvisionDuration *prometheus.HistogramVec // 开通耗时
	CompensationTotal *prometheus.CounterVec   // 补偿动作总数（按动作、结果）

	// 信用点相关指标
	CreditMutationTotal  *prometheus.CounterVec // 账本变更总数（按类型、结果）
	CreditMutationAmount *prometheus.CounterVec // 账本变更金额（按类型）
	BalanceLowAlert      prometheus.Gauge       // 余额不足告警

	// checkout 相关指标
	CheckoutTotal    *prometheus.CounterVec   // checkout 会话创建总数（按模式、结果）
	CheckoutDuration prometheus.Histogram     // checkout 会话创建耗时

	// 订阅相关指标
	SubscriptionCancelTotal *prometheus.CounterVec // 取消总数（按立即/周期末）
	SubscriptionResumeTotal prometheus.Counter     // 恢复总数
	RenewalTotal            *prometheus.CounterVec // 信用点续费总数（按结果）

	// 分布式锁相关指标
	LockAcquireTotal    *prometheus.CounterVec // 锁获取总数（按结果）
	LockAcquireDuration prometheus.Histogram   // 锁获取耗时
}

// NewPanelMetrics 创建指标
func NewPanelMetrics() *PanelMetrics {
	return &PanelMetrics{
		WebhookEventTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panel_webhook_event_total",
				Help: "Total number of webhook events processed",
			},
			[]string{"type", "result"}, // result: success/failed/permanent
		),
		WebhookDuplicate: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "panel_webhook_duplicate_total",
				Help: "Total number of duplicate webhook deliveries skipped",
			},
		),
		WebhookEventDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "panel_webhook_event_duration_seconds",
				Help:    "Duration of webhook event handling",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),

		ProvisionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panel_provision_total",
				Help: "Total number of provisioning attempts",
			},
			[]string{"resource_type", "result"},
		),
		ProvisionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "panel_provision_duration_seconds",
				Help:    "Duration of provisioning operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource_type"},
		),
		CompensationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panel_compensation_total",
				Help: "Total number of compensating actions after partial failures",
			},
			[]string{"action", "result"}, // action: refund/subscription_delete/resource_delete
		),

		CreditMutationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panel_credit_mutation_total",
				Help: "Total number of credit ledger mutations",
			},
			[]string{"type", "result"},
		),
		CreditMutationAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panel_credit_mutation_amount_total",
				Help: "Total credit amount mutated",
			},
			[]string{"type"},
		),
		BalanceLowAlert: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "panel_credit_balance_low_alert",
				Help: "Set when a user balance drops below the configured threshold",
			},
		),

		CheckoutTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panel_checkout_total",
				Help: "Total number of checkout sessions created",
			},
			[]string{"mode", "result"},
		),
		CheckoutDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "panel_checkout_duration_seconds",
				Help:    "Duration of checkout session creation",
				Buckets: prometheus.DefBuckets,
			},
		),

		SubscriptionCancelTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panel_subscription_cancel_total",
				Help: "Total number of subscription cancellations",
			},
			[]string{"mode"}, // mode: immediate/period_end
		),
		SubscriptionResumeTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "panel_subscription_resume_total",
				Help: "Total number of subscription resumes",
			},
		),
		RenewalTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panel_credit_renewal_total",
				Help: "Total number of credit-funded renewals",
			},
			[]string{"result"},
		),

		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panel_lock_acquire_total",
				Help: "Total number of lock acquisition attempts",
			},
			[]string{"result"},
		),
		LockAcquireDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "panel_lock_acquire_duration_seconds",
				Help:    "Duration of lock acquisition",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),
	}
}

// 全局指标实例
var defaultMetrics *PanelMetrics

// InitMetrics 初始化全局指标
func InitMetrics() {
	defaultMetrics = NewPanelMetrics()
}

// GetMetrics 获取全局指标实例
func GetMetrics() *PanelMetrics {
	if defaultMetrics == nil {
		InitMetrics()
	}
	return defaultMetrics
}
