package errors

import (
	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	i18nPkg "github.com/gaoyong06/go-pkg/middleware/i18n"
)

func init() {
	// 初始化全局错误管理器（使用项目特定的配置）
	pkgErrors.InitGlobalErrorManager("i18n", i18nPkg.Language)
}

// Panel Service 错误码定义
// 错误码格式：SSMMEE (6位数字)
//   SS: 服务标识，Panel 固定为 21
//   MM: 模块标识，按业务划分
//   EE: 模块内错误序号
//
// 模块划分：
//   00: 通用模块（复用 go-pkg 通用错误码）
//   01: 定价模块
//   02: 信用点账本模块
//   03: 支付/webhook 模块
//   04: 开通编排模块
//   05: 订阅模块
//   06: 资源创建模块
//   07-99: 预留扩展

// 定价模块错误码 (210100-210199)
const (
	// ErrCodeInvalidInterval 不支持的计费周期
	ErrCodeInvalidInterval = 210101
	// ErrCodePlanNotFound 套餐不存在
	ErrCodePlanNotFound = 210102
	// ErrCodeInvalidSizing 无效的自定义规格
	ErrCodeInvalidSizing = 210103
)

// 信用点账本模块错误码 (210200-210299)
const (
	// ErrCodeInsufficientBalance 信用点余额不足
	ErrCodeInsufficientBalance = 210201
	// ErrCodeInvalidAmount 无效的金额
	ErrCodeInvalidAmount = 210202
	// ErrCodeLedgerLockFailed 获取账本锁失败
	ErrCodeLedgerLockFailed = 210203
	// ErrCodeTransactionCreateFailed 创建信用点流水失败
	ErrCodeTransactionCreateFailed = 210204
	// ErrCodeBalanceGetFailed 获取信用点余额失败
	ErrCodeBalanceGetFailed = 210205
	// ErrCodeBalanceUpdateFailed 更新信用点余额失败
	ErrCodeBalanceUpdateFailed = 210206
)

// 支付/webhook 模块错误码 (210300-210399)
const (
	// ErrCodeSignatureInvalid webhook 签名校验失败
	ErrCodeSignatureInvalid = 210301
	// ErrCodeEventMetadataMissing 事件 metadata 缺少必填字段
	ErrCodeEventMetadataMissing = 210302
	// ErrCodeCheckoutCreateFailed 创建 checkout 会话失败
	ErrCodeCheckoutCreateFailed = 210303
	// ErrCodeGatewayUnavailable 支付网关不可用
	ErrCodeGatewayUnavailable = 210304
	// ErrCodePortalCreateFailed 创建账单门户会话失败
	ErrCodePortalCreateFailed = 210305
	// ErrCodeInvoiceListFailed 获取账单列表失败
	ErrCodeInvoiceListFailed = 210306
)

// 开通编排模块错误码 (210400-210499)
const (
	// ErrCodeProvisionFailed 资源开通失败
	ErrCodeProvisionFailed = 210401
	// ErrCodeEggNotFound 模板不存在
	ErrCodeEggNotFound = 210402
	// ErrCodeEggNoDockerImage 模板未声明容器镜像
	ErrCodeEggNoDockerImage = 210403
	// ErrCodeResourceVerifyFailed 资源创建后校验失败
	ErrCodeResourceVerifyFailed = 210404
	// ErrCodeUnknownResourceType 未知的资源类型
	ErrCodeUnknownResourceType = 210405
)

// 订阅模块错误码 (210500-210599)
const (
	// ErrCodeSubscriptionNotFound 订阅不存在
	ErrCodeSubscriptionNotFound = 210501
	// ErrCodeInvalidStatus 当前状态不允许该操作
	ErrCodeInvalidStatus = 210502
	// ErrCodeResumeWindowExpired 订阅已过期，无法恢复
	ErrCodeResumeWindowExpired = 210503
	// ErrCodeSubscriptionCreateFailed 创建订阅记录失败
	ErrCodeSubscriptionCreateFailed = 210504
)

// 资源创建模块错误码 (210600-210699)
const (
	// ErrCodeServerCreateFailed 创建游戏服务器失败
	ErrCodeServerCreateFailed = 210601
	// ErrCodeVpsCreateFailed 创建 VPS 失败
	ErrCodeVpsCreateFailed = 210602
	// ErrCodeDaemonUnavailable 守护进程不可用
	ErrCodeDaemonUnavailable = 210603
	// ErrCodeHypervisorUnavailable 虚拟化平台不可用
	ErrCodeHypervisorUnavailable = 210604
	// ErrCodeNoVmidAvailable 无可用 VMID
	ErrCodeNoVmidAvailable = 210605
	// ErrCodeResourceDeleteFailed 删除资源失败
	ErrCodeResourceDeleteFailed = 210606
)
