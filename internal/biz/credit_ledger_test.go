package biz

import (
	"context"
	"testing"

	"panel-service/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(repo *fakeLedgerRepo) *CreditLedgerUseCase {
	return NewCreditLedgerUseCase(repo, &BillingConfig{BalanceLowThreshold: 5.0}, testLogger())
}

func TestCreditLedger_PurchaseAndDeduction(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLedgerRepo()
	uc := newTestLedger(repo)

	tx, err := uc.RecordPurchase(ctx, "user-1", 20.0, "cs_123", map[string]string{"checkout_session": "cs_123"})
	require.NoError(t, err)
	assert.Equal(t, constants.CreditTypePurchase, tx.Type)
	assert.InDelta(t, 0.0, tx.BalanceBefore, 0.001)
	assert.InDelta(t, 20.0, tx.BalanceAfter, 0.001)
	require.NotNil(t, tx.ReferenceID)
	assert.Equal(t, "cs_123", *tx.ReferenceID)

	tx, err = uc.RecordDeduction(ctx, "user-1", 7.5, "resource purchase", nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, tx.BalanceAfter, 0.001)

	balance, err := uc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, balance, 0.001)
}

func TestCreditLedger_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLedgerRepo()
	repo.balances["user-1"] = 3.0
	uc := newTestLedger(repo)

	_, err := uc.RecordDeduction(ctx, "user-1", 10.0, "resource purchase", nil, nil)
	assert.Error(t, err)

	// 失败不产生任何写入
	balance, _ := uc.GetBalance(ctx, "user-1")
	assert.InDelta(t, 3.0, balance, 0.001)
	assert.Empty(t, repo.txs)
}

func TestCreditLedger_RejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLedgerRepo()
	uc := newTestLedger(repo)

	_, err := uc.RecordPurchase(ctx, "user-1", 0, "", nil)
	assert.Error(t, err)
	_, err = uc.RecordDeduction(ctx, "user-1", -5, "x", nil, nil)
	assert.Error(t, err)
	_, err = uc.RecordRenewal(ctx, "user-1", 0, nil)
	assert.Error(t, err)
	assert.Empty(t, repo.txs)
}

func TestCreditLedger_AdjustmentCarriesSign(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLedgerRepo()
	repo.balances["user-1"] = 10.0
	uc := newTestLedger(repo)

	tx, err := uc.RecordAdjustment(ctx, "user-1", -4.0, "manual correction")
	require.NoError(t, err)
	assert.InDelta(t, 6.0, tx.BalanceAfter, 0.001)

	tx, err = uc.RecordAdjustment(ctx, "user-1", 2.0, "manual grant")
	require.NoError(t, err)
	assert.InDelta(t, 8.0, tx.BalanceAfter, 0.001)
}

func TestCreditLedger_RefundRestoresBalance(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLedgerRepo()
	repo.balances["user-1"] = 10.0
	uc := newTestLedger(repo)

	subID := "sub-1"
	_, err := uc.RecordDeduction(ctx, "user-1", 6.0, "resource purchase", &subID, nil)
	require.NoError(t, err)
	_, err = uc.RecordRefund(ctx, "user-1", 6.0, "provision failed refund", &subID, nil)
	require.NoError(t, err)

	balance, _ := uc.GetBalance(ctx, "user-1")
	assert.InDelta(t, 10.0, balance, 0.001)
}

func TestCreditLedger_ListTransactionsDefaultLimit(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLedgerRepo()
	uc := newTestLedger(repo)

	_, err := uc.ListTransactions(ctx, "user-1", 0, "")
	require.NoError(t, err)
	assert.Equal(t, 50, repo.lastLimit)

	_, err = uc.ListTransactions(ctx, "user-1", 10, constants.CreditTypePurchase)
	require.NoError(t, err)
	assert.Equal(t, 10, repo.lastLimit)
	assert.Equal(t, constants.CreditTypePurchase, repo.lastFilter)
}
