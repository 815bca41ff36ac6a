package credits

import (
	"sort"
	"sync"
	"time"

	"github.com/chainlens/chainlens/app/models"
)

// MemoryRepository is an in-memory ledger store with the same atomicity
// contract as the GORM repository. It backs tests and local development.
type MemoryRepository struct {
	mu             sync.Mutex
	balances       map[uint]*models.CreditBalance
	transactions   []models.CreditTransaction
	sessionCharges map[string]int
	nextTxID       uint
}

// NewMemoryRepository creates an empty in-memory ledger store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		balances:       make(map[uint]*models.CreditBalance),
		sessionCharges: make(map[string]int),
	}
}

func (r *MemoryRepository) GetBalance(userID uint) (*models.CreditBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bal, ok := r.balances[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *bal
	return &out, nil
}

func (r *MemoryRepository) Deduct(userID uint, sessionID string, cost int, reason string) (*models.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bal, ok := r.balances[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if bal.Credits < cost {
		return nil, &InsufficientCreditsError{Needed: cost, Current: bal.Credits}
	}

	bal.Credits -= cost
	bal.TotalCreditsUsed += cost
	if sessionID != "" {
		r.sessionCharges[sessionID] = cost
	}

	row := r.appendLocked(userID, sessionID, models.CreditTxDeduction, -cost, reason, nil, bal.Credits)
	return row, nil
}

func (r *MemoryRepository) Grant(userID uint, amount int, txType models.CreditTransactionType, reason string, metadata map[string]interface{}) (*models.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.grantLocked(userID, amount, txType, reason, metadata, "")
}

func (r *MemoryRepository) RefundSession(userID uint, sessionID string, reason string) (*models.CreditTransaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	amount := r.sessionCharges[sessionID]
	if amount <= 0 {
		return nil, 0, nil
	}
	row, err := r.grantLocked(userID, amount, models.CreditTxRefund, reason, nil, sessionID)
	if err != nil {
		return nil, 0, err
	}
	r.sessionCharges[sessionID] = 0
	return row, amount, nil
}

func (r *MemoryRepository) ListTransactions(userID uint, limit int) ([]models.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []models.CreditTransaction
	for _, tx := range r.transactions {
		if tx.UserID == userID {
			rows = append(rows, tx)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// SetEnterprise flips the out-of-band enterprise flag on a user's balance,
// provisioning the balance row if needed.
func (r *MemoryRepository) SetEnterprise(userID uint, enterprise bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bal, ok := r.balances[userID]
	if !ok {
		bal = &models.CreditBalance{UserID: userID}
		r.balances[userID] = bal
	}
	bal.Enterprise = enterprise
}

func (r *MemoryRepository) grantLocked(userID uint, amount int, txType models.CreditTransactionType, reason string, metadata map[string]interface{}, sessionID string) (*models.CreditTransaction, error) {
	bal, ok := r.balances[userID]
	if !ok {
		bal = &models.CreditBalance{UserID: userID}
		r.balances[userID] = bal
	}

	now := time.Now()
	bal.Credits += amount
	bal.TotalCreditsEarned += amount
	bal.LastGrantAt = &now

	return r.appendLocked(userID, sessionID, txType, amount, reason, metadata, bal.Credits), nil
}

func (r *MemoryRepository) appendLocked(userID uint, sessionID string, txType models.CreditTransactionType, amount int, reason string, metadata map[string]interface{}, balanceAfter int) *models.CreditTransaction {
	r.nextTxID++
	row := models.CreditTransaction{
		ID:           r.nextTxID,
		UserID:       userID,
		SessionID:    sessionID,
		Type:         txType,
		Amount:       amount,
		Reason:       reason,
		BalanceAfter: balanceAfter,
		CreatedAt:    time.Now(),
	}
	_ = row.SetMetadata(metadata)
	r.transactions = append(r.transactions, row)
	out := row
	return &out
}
