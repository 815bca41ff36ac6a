package credits

import (
	"context"
	"errors"
	"strings"

	"github.com/chainlens/chainlens/app/models"
	"github.com/chainlens/chainlens/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// Service is the credit ledger: it owns balance accounting, cost
// calculation, and the atomic deduction/grant/refund operations.
type Service struct {
	repo Repository
}

// NewService creates a ledger service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a ledger service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// Affordability is the advisory result of a read-only balance check. It can
// be stale by the time a deduction runs; Deduct performs the authoritative
// check under lock.
type Affordability struct {
	Sufficient bool `json:"sufficient"`
	Needed     int  `json:"needed"`
	Current    int  `json:"current"`
}

// DeductResult reports a successful deduction.
type DeductResult struct {
	Deducted   int `json:"deducted"`
	NewBalance int `json:"new_balance"`
}

// CalculateCost prices an audit request. Pure and deterministic.
func (s *Service) CalculateCost(f CostFactors) int {
	return CalculateCost(f)
}

// CheckAffordability compares the current balance against the computed cost
// without mutating anything.
func (s *Service) CheckAffordability(ctx context.Context, userID uint, f CostFactors) (*Affordability, error) {
	_ = ctx
	if err := validateFactors(f); err != nil {
		return nil, err
	}

	bal, err := s.repo.GetBalance(userID)
	if err != nil {
		return nil, err
	}

	cost := CalculateCost(f)
	return &Affordability{
		Sufficient: bal.Credits >= cost,
		Needed:     cost,
		Current:    bal.Credits,
	}, nil
}

// Deduct atomically charges the computed cost against the user's balance and
// stamps it onto the session for later refunds. Returns
// *InsufficientCreditsError when the balance cannot cover the cost; in that
// case nothing was changed.
func (s *Service) Deduct(ctx context.Context, userID uint, sessionID string, f CostFactors) (*DeductResult, error) {
	_ = ctx
	if err := validateFactors(f); err != nil {
		return nil, err
	}

	cost := CalculateCost(f)
	row, err := s.repo.Deduct(userID, sessionID, cost, deductReason(f))
	if err != nil {
		return nil, err
	}
	return &DeductResult{Deducted: cost, NewBalance: row.BalanceAfter}, nil
}

// Grant atomically adds credits and returns the new balance. Used for
// purchases, referral rewards and signup bonuses.
func (s *Service) Grant(ctx context.Context, userID uint, amount int, txType models.CreditTransactionType, reason string, metadata map[string]interface{}) (int, error) {
	_ = ctx
	if amount <= 0 {
		return 0, ErrInvalidArgument
	}
	if txType == models.CreditTxDeduction || !models.IsValidCreditTransactionType(txType) {
		return 0, ErrInvalidArgument
	}

	row, err := s.repo.Grant(userID, amount, txType, reason, metadata)
	if err != nil {
		return 0, err
	}
	return row.BalanceAfter, nil
}

// Refund returns the credits previously charged against a session. A session
// with no stamped charge yields a zero refund, not an error, so callers in
// failure paths may invoke it speculatively; a repeated call is a no-op.
func (s *Service) Refund(ctx context.Context, userID uint, sessionID string, reason string) (int, error) {
	_ = ctx
	if strings.TrimSpace(sessionID) == "" {
		return 0, ErrInvalidArgument
	}

	_, amount, err := s.repo.RefundSession(userID, sessionID, reason)
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// GetPlanTier classifies the user by lifetime earned credits. Users without
// any ledger activity are free-tier.
func (s *Service) GetPlanTier(ctx context.Context, userID uint) (entitlements.Tier, error) {
	_ = ctx
	bal, err := s.repo.GetBalance(userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return entitlements.TierFree, nil
		}
		return entitlements.TierFree, err
	}
	return entitlements.TierFor(bal.TotalCreditsEarned, bal.Enterprise), nil
}

// CanCreatePrivateAudit gates private audit creation on the user's tier.
func (s *Service) CanCreatePrivateAudit(ctx context.Context, userID uint) (bool, error) {
	tier, err := s.GetPlanTier(ctx, userID)
	if err != nil {
		return false, err
	}
	return entitlements.CanCreatePrivateAudit(tier), nil
}

// ListTransactions returns the newest ledger rows for a user.
func (s *Service) ListTransactions(ctx context.Context, userID uint, limit int) ([]models.CreditTransaction, error) {
	_ = ctx
	return s.repo.ListTransactions(userID, limit)
}

func deductReason(f CostFactors) string {
	analysis := strings.ToLower(strings.TrimSpace(f.AnalysisType))
	if analysis == "" {
		analysis = "security"
	}
	return "audit:" + analysis
}
