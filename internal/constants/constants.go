package constants

// Redis Key 前缀常量
const (
	// RedisKeyBalance 信用点余额缓存 key 前缀
	RedisKeyBalance = "credits:balance:"
	// RedisKeyLedgerLock 信用点账本锁 key 前缀
	RedisKeyLedgerLock = "credits:lock:"
	// RedisKeyWebhookEvent webhook 事件去重 key 前缀
	RedisKeyWebhookEvent = "webhook:event:"
)

// 资源类别常量（计费/折扣按类别配置）
const (
	// ResourceTypeServer 游戏服务器
	ResourceTypeServer = "server"
	// ResourceTypeVps VPS 实例
	ResourceTypeVps = "vps"
)

// 计费周期常量
const (
	// IntervalMonth 月付
	IntervalMonth = "month"
	// IntervalQuarter 季付
	IntervalQuarter = "quarter"
	// IntervalHalfYear 半年付
	IntervalHalfYear = "half-year"
	// IntervalYear 年付
	IntervalYear = "year"
)

// 订阅状态常量（外部状态镜像自支付网关）
const (
	SubscriptionStatusActive            = "active"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusPaused            = "paused"
)

// 游戏服务器状态常量
const (
	ServerStatusInstalling    = "installing"
	ServerStatusInstallFailed = "install_failed"
	ServerStatusRunning       = "running"
	ServerStatusSuspended     = "suspended"
)

// VPS 状态常量
const (
	VpsStatusCreating     = "creating"
	VpsStatusCreateFailed = "create_failed"
	VpsStatusRunning      = "running"
	VpsStatusStopped      = "stopped"
	VpsStatusStarting     = "starting"
	VpsStatusStopping     = "stopping"
	VpsStatusRebooting    = "rebooting"
	VpsStatusError        = "error"
	VpsStatusSuspended    = "suspended"
)

// 信用点流水类型常量
const (
	// CreditTypePurchase 购买信用点
	CreditTypePurchase = "purchase"
	// CreditTypeDeduction 消费扣减
	CreditTypeDeduction = "deduction"
	// CreditTypeRefund 失败补偿退款
	CreditTypeRefund = "refund"
	// CreditTypeRenewal 周期续费扣减
	CreditTypeRenewal = "renewal"
	// CreditTypeAdjustment 管理员调整
	CreditTypeAdjustment = "adjustment"
)

// 订阅引用常量
const (
	// CreditsSubscriptionPrefix 信用点订阅的外部引用 ID 前缀
	CreditsSubscriptionPrefix = "credits_"
)

// webhook 事件分类常量
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoiceSucceeded    = "invoice.payment_succeeded"
	EventInvoiceFailed       = "invoice.payment_failed"
)

// checkout 会话模式常量
const (
	// CheckoutModePayment 一次性支付（信用点充值）
	CheckoutModePayment = "payment"
	// CheckoutModeSubscription 订阅支付（资源购买）
	CheckoutModeSubscription = "subscription"
)

// 结果常量（用于指标）
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// checkout metadata 字段名常量
const (
	MetaUserID       = "user_id"
	MetaResourceType = "resource_type"
	MetaName         = "name"
	MetaDescription  = "description"
	MetaPlanID       = "plan_id"
	MetaMemoryMB     = "memory_mb"
	MetaNestID       = "nest_id"
	MetaEggID        = "egg_id"
	MetaDistribution = "distribution"
	MetaInterval     = "interval"
	MetaCredits      = "credits"
)
