package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"panel-service/internal/biz"
	"panel-service/internal/constants"
	"panel-service/internal/data/model"
	panelErrors "panel-service/internal/errors"
	"panel-service/internal/metrics"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// creditLedgerRepo 实现 biz.CreditLedgerRepo 接口
// 串行化方案：按用户的 redsync 分布式锁 + 事务内 FOR UPDATE 行锁。
// 锁内读到的余额写入 balance_before/balance_after，保证流水可审计
type creditLedgerRepo struct {
	data    *Data
	sync    *redsync.Redsync
	log     *log.Helper
	metrics *metrics.PanelMetrics
}

// NewCreditLedgerRepo 创建信用点账本 repo
func NewCreditLedgerRepo(data *Data, sync *redsync.Redsync, logger log.Logger) biz.CreditLedgerRepo {
	return &creditLedgerRepo{
		data:    data,
		sync:    sync,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// GetBalance 获取余额：优先读缓存，未命中回源数据库并回填
func (r *creditLedgerRepo) GetBalance(ctx context.Context, userID string) (float64, error) {
	balanceKey := fmt.Sprintf("%s%s", constants.RedisKeyBalance, userID)
	if cached, err := r.data.rdb.Get(ctx, balanceKey).Result(); err == nil {
		if balance, parseErr := strconv.ParseFloat(cached, 64); parseErr == nil {
			return balance, nil
		}
	}

	var m model.UserBalance
	if err := r.data.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeBalanceGetFailed)
	}

	r.setBalanceCache(userID, m.Balance)
	return m.Balance, nil
}

// ApplyMutation 应用一次余额变更
// 入账（purchase/refund/正向 adjustment）自动创建余额记录；
// 出账（deduction/renewal/负向 adjustment）在余额不足时整体失败
func (r *creditLedgerRepo) ApplyMutation(ctx context.Context, mutation *biz.CreditMutation) (*biz.CreditTransaction, error) {
	// 购买入账的幂等：同一 reference_id 直接返回已有流水
	if mutation.ReferenceID != nil {
		existing, err := r.findByReferenceID(ctx, *mutation.ReferenceID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			r.log.Infof("Duplicate credit mutation skipped: user_id=%s, reference_id=%s", mutation.UserID, *mutation.ReferenceID)
			return existing, nil
		}
	}

	// 按用户加分布式锁，跨实例串行化同一用户的余额变更
	lockKey := fmt.Sprintf("%s%s", constants.RedisKeyLedgerLock, mutation.UserID)
	if r.sync != nil {
		lockStartTime := time.Now()
		mutex := r.sync.NewMutex(lockKey, redsync.WithExpiry(5*time.Second))
		if err := mutex.Lock(); err != nil {
			r.log.Errorf("Failed to acquire ledger lock: user_id=%s, error=%v", mutation.UserID, err)
			if r.metrics != nil {
				r.metrics.LockAcquireTotal.WithLabelValues(constants.ResultFailed).Inc()
				r.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
			}
			return nil, pkgErrors.NewBizErrorWithLang(context.Background(), panelErrors.ErrCodeLedgerLockFailed)
		}
		if r.metrics != nil {
			r.metrics.LockAcquireTotal.WithLabelValues(constants.ResultSuccess).Inc()
			r.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
		}
		defer func() {
			if ok, err := mutex.Unlock(); !ok || err != nil {
				r.log.Warnf("Failed to unlock ledger: user_id=%s, error=%v", mutation.UserID, err)
			}
		}()
	}

	var tx *biz.CreditTransaction
	var newBalance float64

	err := r.data.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		// 1. 锁定余额行（不存在则创建零余额记录）
		var balance model.UserBalance
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", mutation.UserID).First(&balance).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeBalanceGetFailed)
			}
			balance = model.UserBalance{
				UserBalanceID: uuid.New().String(),
				UserID:        mutation.UserID,
				Balance:       0,
			}
			if err := db.Create(&balance).Error; err != nil {
				return pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeBalanceUpdateFailed)
			}
		}

		// 2. 计算带符号的变更量并校验
		delta := signedAmount(mutation)
		if delta < 0 && balance.Balance+delta < 0 {
			return pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeInsufficientBalance)
		}
		newBalance = balance.Balance + delta

		// 3. 更新余额
		if err := db.Model(&balance).Update("balance", gorm.Expr("balance + ?", delta)).Error; err != nil {
			return pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeBalanceUpdateFailed)
		}

		// 4. 写流水（balance_before/after 来自锁内读到的值）
		metadata := ""
		if len(mutation.Metadata) > 0 {
			raw, err := json.Marshal(mutation.Metadata)
			if err == nil {
				metadata = string(raw)
			}
		}
		record := model.CreditTransaction{
			CreditTransactionID: uuid.New().String(),
			UserID:              mutation.UserID,
			Type:                mutation.Type,
			Amount:              mutation.Amount,
			BalanceBefore:       balance.Balance,
			BalanceAfter:        newBalance,
			Description:         mutation.Description,
			SubscriptionID:      mutation.SubscriptionID,
			ReferenceID:         mutation.ReferenceID,
			Metadata:            metadata,
		}
		if err := db.Create(&record).Error; err != nil {
			return pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeTransactionCreateFailed)
		}

		tx = transactionToBiz(&record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 事务提交后刷新余额缓存，失败不影响主流程
	r.setBalanceCache(mutation.UserID, newBalance)
	return tx, nil
}

// ListTransactions 获取流水列表（按创建时间倒序）
func (r *creditLedgerRepo) ListTransactions(ctx context.Context, userID string, limit int, typeFilter string) ([]*biz.CreditTransaction, error) {
	query := r.data.db.WithContext(ctx).Where("user_id = ?", userID)
	if typeFilter != "" {
		query = query.Where("type = ?", typeFilter)
	}

	var ms []*model.CreditTransaction
	if err := query.Order("created_at DESC").Limit(limit).Find(&ms).Error; err != nil {
		return nil, err
	}
	records := make([]*biz.CreditTransaction, 0, len(ms))
	for _, m := range ms {
		records = append(records, transactionToBiz(m))
	}
	return records, nil
}

// findByReferenceID 按外部引用查已有流水，不存在时返回 (nil, nil)
func (r *creditLedgerRepo) findByReferenceID(ctx context.Context, referenceID string) (*biz.CreditTransaction, error) {
	var m model.CreditTransaction
	if err := r.data.db.WithContext(ctx).Where("reference_id = ?", referenceID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return transactionToBiz(&m), nil
}

// setBalanceCache 刷新余额缓存（独立短超时 context，不阻塞主流程）
func (r *creditLedgerRepo) setBalanceCache(userID string, balance float64) {
	cacheCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	balanceKey := fmt.Sprintf("%s%s", constants.RedisKeyBalance, userID)
	if err := r.data.rdb.Set(cacheCtx, balanceKey, fmt.Sprintf("%.2f", balance), cacheTTL).Err(); err != nil {
		r.log.Warnf("failed to update balance cache: %v", err)
	}
}

// signedAmount 按流水类型计算带符号的余额变更量
func signedAmount(m *biz.CreditMutation) float64 {
	switch m.Type {
	case model.CreditTypePurchase, model.CreditTypeRefund:
		return m.Amount
	case model.CreditTypeDeduction, model.CreditTypeRenewal:
		return -m.Amount
	default:
		// adjustment 携带符号
		return m.Amount
	}
}

func transactionToBiz(m *model.CreditTransaction) *biz.CreditTransaction {
	var metadata map[string]string
	if m.Metadata != "" {
		_ = json.Unmarshal([]byte(m.Metadata), &metadata)
	}
	return &biz.CreditTransaction{
		ID:             m.CreditTransactionID,
		UserID:         m.UserID,
		Type:           m.Type,
		Amount:         m.Amount,
		BalanceBefore:  m.BalanceBefore,
		BalanceAfter:   m.BalanceAfter,
		Description:    m.Description,
		SubscriptionID: m.SubscriptionID,
		ReferenceID:    m.ReferenceID,
		Metadata:       metadata,
		CreatedAt:      m.CreatedAt,
	}
}
