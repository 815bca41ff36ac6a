package credits

import (
	"context"
	"sync"
	"testing"

	"github.com/chainlens/chainlens/app/models"
	"github.com/chainlens/chainlens/internal/pkg/entitlements"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// costs exactly 30: base 10 * complexity 2.0 * multi-file 1.5
var thirtyCreditAudit = CostFactors{
	CodeLength:       1000,
	Complexity:       6,
	HasMultipleFiles: true,
	AnalysisType:     "security",
	Language:         "solidity",
}

// costs exactly 8: base 10 * optimization 0.8 * vyper 0.9, ceiled
var eightCreditAudit = CostFactors{
	CodeLength:   200,
	Complexity:   1,
	AnalysisType: "optimization",
	Language:     "vyper",
}

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	return NewService(repo), repo
}

func TestDeduct(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, 1, 100, models.CreditTxPurchase, "starter pack", nil)
	require.NoError(t, err)

	res, err := svc.Deduct(ctx, 1, "sess-1", thirtyCreditAudit)
	require.NoError(t, err)
	assert.Equal(t, 30, res.Deducted)
	assert.Equal(t, 70, res.NewBalance)

	bal, err := repo.GetBalance(1)
	require.NoError(t, err)
	assert.Equal(t, 70, bal.Credits)
	assert.Equal(t, 100, bal.TotalCreditsEarned)
	assert.Equal(t, 30, bal.TotalCreditsUsed)
	assert.Equal(t, bal.Credits, bal.TotalCreditsEarned-bal.TotalCreditsUsed)

	rows, err := svc.ListTransactions(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.CreditTxDeduction, rows[0].Type)
	assert.Equal(t, -30, rows[0].Amount)
	assert.Equal(t, 70, rows[0].BalanceAfter)
	assert.Equal(t, "sess-1", rows[0].SessionID)
	assert.Equal(t, "audit:security", rows[0].Reason)
}

func TestDeductInsufficientCredits(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, 1, 10, models.CreditTxBonus, "signup bonus", nil)
	require.NoError(t, err)

	res, err := svc.Deduct(ctx, 1, "sess-1", thirtyCreditAudit)
	require.Error(t, err)
	assert.Nil(t, res)

	var insufficient *InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 30, insufficient.Needed)
	assert.Equal(t, 10, insufficient.Current)
	assert.True(t, IsInsufficientCredits(err))

	// Nothing changed: balance intact, no deduction row written.
	bal, err := repo.GetBalance(1)
	require.NoError(t, err)
	assert.Equal(t, 10, bal.Credits)
	assert.Equal(t, 0, bal.TotalCreditsUsed)

	rows, err := svc.ListTransactions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDeductUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Deduct(context.Background(), 404, "sess-1", eightCreditAudit)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeductInvalidFactors(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Deduct(context.Background(), 1, "sess-1", CostFactors{CodeLength: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestConcurrentDeductsSpendEachCreditOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, 1, 10, models.CreditTxPurchase, "small pack", nil)
	require.NoError(t, err)

	// Two racing deductions of 8 against a balance of 10: exactly one may
	// win, the other must fail without touching the balance.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Deduct(ctx, 1, "", eightCreditAudit)
		}(i)
	}
	wg.Wait()

	var successes, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case IsInsufficientCredits(err):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, insufficient)

	aff, err := svc.CheckAffordability(ctx, 1, eightCreditAudit)
	require.NoError(t, err)
	assert.False(t, aff.Sufficient)
	assert.Equal(t, 2, aff.Current)
}

func TestGrantValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		amount int
		txType models.CreditTransactionType
	}{
		{"Zero amount", 0, models.CreditTxPurchase},
		{"Negative amount", -50, models.CreditTxPurchase},
		{"Deduction type", 30, models.CreditTxDeduction},
		{"Unknown type", 30, models.CreditTransactionType("jackpot")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Grant(ctx, 1, tt.amount, tt.txType, "reason", nil)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestGrantProvisionsBalance(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	newBalance, err := svc.Grant(ctx, 7, 25, models.CreditTxInitial, "welcome", map[string]interface{}{"campaign": "launch"})
	require.NoError(t, err)
	assert.Equal(t, 25, newBalance)

	bal, err := repo.GetBalance(7)
	require.NoError(t, err)
	assert.Equal(t, 25, bal.Credits)
	assert.Equal(t, 25, bal.TotalCreditsEarned)
	require.NotNil(t, bal.LastGrantAt)

	rows, err := svc.ListTransactions(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "launch", rows[0].Metadata()["campaign"])
}

func TestRefund(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, 1, 100, models.CreditTxPurchase, "starter pack", nil)
	require.NoError(t, err)
	_, err = svc.Deduct(ctx, 1, "sess-1", thirtyCreditAudit)
	require.NoError(t, err)

	amount, err := svc.Refund(ctx, 1, "sess-1", "audit failed")
	require.NoError(t, err)
	assert.Equal(t, 30, amount)

	aff, err := svc.CheckAffordability(ctx, 1, thirtyCreditAudit)
	require.NoError(t, err)
	assert.Equal(t, 100, aff.Current)

	// A second refund of the same session is a no-op, not a double credit.
	amount, err = svc.Refund(ctx, 1, "sess-1", "audit failed")
	require.NoError(t, err)
	assert.Equal(t, 0, amount)

	aff, err = svc.CheckAffordability(ctx, 1, thirtyCreditAudit)
	require.NoError(t, err)
	assert.Equal(t, 100, aff.Current)
}

func TestRefundUnchargedSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	amount, err := svc.Refund(ctx, 1, "never-charged", "speculative")
	require.NoError(t, err)
	assert.Equal(t, 0, amount)

	_, err = svc.Refund(ctx, 1, "   ", "blank session")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLedgerSumMatchesBalance(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, 1, 200, models.CreditTxPurchase, "pack", nil)
	require.NoError(t, err)
	_, err = svc.Deduct(ctx, 1, "s1", thirtyCreditAudit)
	require.NoError(t, err)
	_, err = svc.Deduct(ctx, 1, "s2", eightCreditAudit)
	require.NoError(t, err)
	_, err = svc.Refund(ctx, 1, "s1", "failed")
	require.NoError(t, err)
	_, err = svc.Grant(ctx, 1, 15, models.CreditTxReferral, "referral", nil)
	require.NoError(t, err)

	rows, err := svc.ListTransactions(ctx, 1, 0)
	require.NoError(t, err)

	sum := 0
	for _, row := range rows {
		sum += row.Amount
	}

	bal, err := repo.GetBalance(1)
	require.NoError(t, err)
	assert.Equal(t, bal.Credits, sum)
	assert.Equal(t, bal.Credits, bal.TotalCreditsEarned-bal.TotalCreditsUsed)
}

func TestGetPlanTier(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	// No ledger activity at all is free tier, not an error.
	tier, err := svc.GetPlanTier(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlements.TierFree, tier)

	_, err = svc.Grant(ctx, 1, 5000, models.CreditTxPurchase, "pack", nil)
	require.NoError(t, err)
	tier, err = svc.GetPlanTier(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlements.TierPro, tier)

	_, err = svc.Grant(ctx, 1, 10000, models.CreditTxPurchase, "pack", nil)
	require.NoError(t, err)
	tier, err = svc.GetPlanTier(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlements.TierProPlus, tier)

	// Spending does not demote: classification follows lifetime earnings.
	_, err = svc.Deduct(ctx, 1, "s1", thirtyCreditAudit)
	require.NoError(t, err)
	tier, err = svc.GetPlanTier(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlements.TierProPlus, tier)

	repo.SetEnterprise(1, true)
	tier, err = svc.GetPlanTier(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlements.TierEnterprise, tier)
}

func TestCanCreatePrivateAudit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ok, err := svc.CanCreatePrivateAudit(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Grant(ctx, 1, 5000, models.CreditTxPurchase, "pack", nil)
	require.NoError(t, err)
	ok, err = svc.CanCreatePrivateAudit(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}
