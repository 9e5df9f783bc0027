package biz

import (
	"context"
	"time"

	"panel-service/internal/constants"
	panelErrors "panel-service/internal/errors"
	"panel-service/internal/metrics"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// CreditTransaction 信用点流水领域对象
type CreditTransaction struct {
	ID             string
	UserID         string
	Type           string
	Amount         float64
	BalanceBefore  float64
	BalanceAfter   float64
	Description    string
	SubscriptionID *string
	ReferenceID    *string
	Metadata       map[string]string
	CreatedAt      time.Time
}

// CreditMutation 一次余额变更请求
// Amount 恒为正数，方向由 Type 决定（purchase/refund 入账，deduction/renewal 出账）；
// adjustment 例外，金额自带符号
type CreditMutation struct {
	UserID         string
	Type           string
	Amount         float64
	Description    string
	SubscriptionID *string
	ReferenceID    *string
	Metadata       map[string]string
}

// CreditLedgerRepo 信用点账本数据层接口（定义在 biz 层）
// ApplyMutation 必须按用户串行化执行：余额读取、校验、更新和流水写入在同一把
// 用户级锁与同一个数据库事务内完成，出账在余额不足时失败且不留任何部分写入
type CreditLedgerRepo interface {
	GetBalance(ctx context.Context, userID string) (float64, error)
	ApplyMutation(ctx context.Context, m *CreditMutation) (*CreditTransaction, error)
	ListTransactions(ctx context.Context, userID string, limit int, typeFilter string) ([]*CreditTransaction, error)
}

// CreditLedgerUseCase 信用点账本业务逻辑
type CreditLedgerUseCase struct {
	repo    CreditLedgerRepo
	conf    *BillingConfig
	log     *log.Helper
	metrics *metrics.PanelMetrics
}

// NewCreditLedgerUseCase 创建信用点账本 UseCase
func NewCreditLedgerUseCase(repo CreditLedgerRepo, conf *BillingConfig, logger log.Logger) *CreditLedgerUseCase {
	return &CreditLedgerUseCase{
		repo:    repo,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// GetBalance 获取当前余额（未命中缓存时回源数据库）
func (uc *CreditLedgerUseCase) GetBalance(ctx context.Context, userID string) (float64, error) {
	return uc.repo.GetBalance(ctx, userID)
}

// RecordPurchase 购买信用点入账
// referenceID 携带支付侧引用（如 checkout session id），重复投递时幂等返回已有流水
func (uc *CreditLedgerUseCase) RecordPurchase(ctx context.Context, userID string, amount float64, referenceID string, metadata map[string]string) (*CreditTransaction, error) {
	var ref *string
	if referenceID != "" {
		ref = &referenceID
	}
	return uc.apply(ctx, &CreditMutation{
		UserID:      userID,
		Type:        constants.CreditTypePurchase,
		Amount:      amount,
		Description: "credits purchase",
		ReferenceID: ref,
		Metadata:    metadata,
	})
}

// RecordDeduction 消费扣减
// 余额不足时返回 ErrCodeInsufficientBalance，且不产生任何写入
func (uc *CreditLedgerUseCase) RecordDeduction(ctx context.Context, userID string, amount float64, description string, subscriptionID *string, metadata map[string]string) (*CreditTransaction, error) {
	return uc.apply(ctx, &CreditMutation{
		UserID:         userID,
		Type:           constants.CreditTypeDeduction,
		Amount:         amount,
		Description:    description,
		SubscriptionID: subscriptionID,
		Metadata:       metadata,
	})
}

// RecordRefund 补偿退款（仅用于扣减成功后开通失败的回滚）
func (uc *CreditLedgerUseCase) RecordRefund(ctx context.Context, userID string, amount float64, description string, subscriptionID *string, metadata map[string]string) (*CreditTransaction, error) {
	return uc.apply(ctx, &CreditMutation{
		UserID:         userID,
		Type:           constants.CreditTypeRefund,
		Amount:         amount,
		Description:    description,
		SubscriptionID: subscriptionID,
		Metadata:       metadata,
	})
}

// RecordRenewal 周期续费扣减
func (uc *CreditLedgerUseCase) RecordRenewal(ctx context.Context, userID string, amount float64, subscriptionID *string) (*CreditTransaction, error) {
	return uc.apply(ctx, &CreditMutation{
		UserID:         userID,
		Type:           constants.CreditTypeRenewal,
		Amount:         amount,
		Description:    "subscription renewal",
		SubscriptionID: subscriptionID,
	})
}

// RecordAdjustment 管理员调整（amount 为正时入账）
func (uc *CreditLedgerUseCase) RecordAdjustment(ctx context.Context, userID string, amount float64, description string) (*CreditTransaction, error) {
	return uc.apply(ctx, &CreditMutation{
		UserID:      userID,
		Type:        constants.CreditTypeAdjustment,
		Amount:      amount,
		Description: description,
	})
}

// ListTransactions 获取流水（按创建时间倒序）
func (uc *CreditLedgerUseCase) ListTransactions(ctx context.Context, userID string, limit int, typeFilter string) ([]*CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return uc.repo.ListTransactions(ctx, userID, limit, typeFilter)
}

func (uc *CreditLedgerUseCase) apply(ctx context.Context, m *CreditMutation) (*CreditTransaction, error) {
	if m.Amount <= 0 && m.Type != constants.CreditTypeAdjustment {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeInvalidAmount)
	}

	tx, err := uc.repo.ApplyMutation(ctx, m)
	if uc.metrics != nil {
		if err != nil {
			uc.metrics.CreditMutationTotal.WithLabelValues(m.Type, constants.ResultFailed).Inc()
		} else {
			uc.metrics.CreditMutationTotal.WithLabelValues(m.Type, constants.ResultSuccess).Inc()
			uc.metrics.CreditMutationAmount.WithLabelValues(m.Type).Add(m.Amount)
			if tx.BalanceAfter < uc.conf.BalanceLowThreshold {
				uc.metrics.BalanceLowAlert.Set(1)
			}
		}
	}
	if err != nil {
		return nil, err
	}

	uc.log.Infof("Credit mutation applied: user_id=%s, type=%s, amount=%.2f, balance=%.2f->%.2f",
		m.UserID, m.Type, m.Amount, tx.BalanceBefore, tx.BalanceAfter)
	return tx, nil
}
