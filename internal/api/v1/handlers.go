package apiv1

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/chainlens/chainlens/app/models"
	"github.com/chainlens/chainlens/internal/pkg/credits"
	"github.com/chainlens/chainlens/internal/pkg/usercontext"
	"github.com/chainlens/chainlens/internal/pkg/webhooks"
	"gorm.io/gorm"
)

// Balances below this trigger a credits.low notification after a deduction.
const lowBalanceThreshold = 20

// APIServer bundles the core services behind the public v1 surface.
type APIServer struct {
	db         *gorm.DB
	ledger     *credits.Service
	registry   *webhooks.Registry
	dispatcher *webhooks.Dispatcher
}

// NewAPIServer creates a new API server instance from the shared services.
func NewAPIServer(db *gorm.DB, ledger *credits.Service, registry *webhooks.Registry, dispatcher *webhooks.Dispatcher) *APIServer {
	return &APIServer{db: db, ledger: ledger, registry: registry, dispatcher: dispatcher}
}

// RegisterHandlers attaches all v1 routes to the given router group.
func RegisterHandlers(r fiber.Router, s *APIServer) {
	r.Get("/ping", s.GetPing)

	r.Get("/credits/balance", s.GetCreditBalance)
	r.Get("/credits/transactions", s.GetCreditTransactions)
	r.Post("/credits/estimate", s.PostCreditEstimate)
	r.Get("/credits/packages", s.GetCreditPackages)
	r.Post("/credits/purchase", s.PostCreditPurchase)

	r.Post("/audits", s.PostAudit)
	r.Post("/audits/:id/complete", s.PostAuditComplete)
	r.Post("/audits/:id/fail", s.PostAuditFail)

	r.Post("/webhooks", s.PostWebhook)
	r.Get("/webhooks", s.GetWebhooks)
	r.Get("/webhooks/:id", s.GetWebhook)
	r.Patch("/webhooks/:id", s.PatchWebhook)
	r.Delete("/webhooks/:id", s.DeleteWebhook)
	r.Get("/webhooks/:id/deliveries", s.GetWebhookDeliveries)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}

// GetCreditBalance returns the caller's balance and derived plan tier.
func (s *APIServer) GetCreditBalance(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	bal, err := models.GetOrCreateCreditBalance(s.db, userID)
	if err != nil {
		return internalError(c, err)
	}
	tier, err := s.ledger.GetPlanTier(c.Context(), userID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"credits":              bal.Credits,
		"total_credits_earned": bal.TotalCreditsEarned,
		"total_credits_used":   bal.TotalCreditsUsed,
		"plan_tier":            tier,
	})
}

// GetCreditTransactions returns the caller's newest ledger rows.
func (s *APIServer) GetCreditTransactions(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	limit := c.QueryInt("limit", 50)
	if limit > 200 {
		limit = 200
	}

	rows, err := s.ledger.ListTransactions(c.Context(), userID, limit)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"transactions": rows})
}

// PostCreditEstimate prices an audit request and reports affordability
// without charging anything.
func (s *APIServer) PostCreditEstimate(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	var factors credits.CostFactors
	if err := c.BodyParser(&factors); err != nil {
		return badRequest(c, "invalid request body")
	}

	afford, err := s.ledger.CheckAffordability(c.Context(), userID, factors)
	if err != nil {
		if errors.Is(err, credits.ErrNotFound) {
			// No ledger activity yet; affordability against an empty balance.
			cost := s.ledger.CalculateCost(factors)
			afford = &credits.Affordability{Sufficient: false, Needed: cost, Current: 0}
		} else if errors.Is(err, credits.ErrInvalidArgument) {
			return badRequest(c, "invalid cost factors")
		} else {
			return internalError(c, err)
		}
	}
	return c.JSON(afford)
}

// GetCreditPackages lists the purchasable credit bundles.
func (s *APIServer) GetCreditPackages(c *fiber.Ctx) error {
	pkgs, err := models.ListActiveCreditPackages(s.db)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"packages": pkgs})
}

type purchaseRequest struct {
	Package string `json:"package"`
}

// PostCreditPurchase redeems a credit package purchase. Payment itself is
// settled out of band; this endpoint books the resulting grant.
func (s *APIServer) PostCreditPurchase(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	pkg, err := models.GetCreditPackageByName(s.db, req.Package)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "unknown credit package")
		}
		return internalError(c, err)
	}

	newBalance, err := s.ledger.Grant(c.Context(), userID, pkg.TotalCredits(), models.CreditTxPurchase,
		"package:"+pkg.Name, map[string]interface{}{"package_id": pkg.ID, "price_cents": pkg.PriceCents})
	if err != nil {
		if errors.Is(err, credits.ErrInvalidArgument) {
			return badRequest(c, "invalid grant")
		}
		return internalError(c, err)
	}

	s.dispatcher.Publish(webhooks.EventCreditsGranted, fiber.Map{
		"package":     pkg.Name,
		"granted":     pkg.TotalCredits(),
		"new_balance": newBalance,
	}, userID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"granted":     pkg.TotalCredits(),
		"new_balance": newBalance,
	})
}

type createAuditRequest struct {
	ContractAddress string `json:"contract_address"`
	Chain           string `json:"chain"`
	IsPrivate       bool   `json:"is_private"`
	credits.CostFactors
}

// PostAudit creates an audit session and atomically charges its cost. The
// deduction is synchronous; the webhook fan-out is fire-and-forget.
func (s *APIServer) PostAudit(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	var req createAuditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if req.IsPrivate {
		allowed, err := s.ledger.CanCreatePrivateAudit(c.Context(), userID)
		if err != nil {
			return internalError(c, err)
		}
		if !allowed {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"message": "Private audits require a Pro plan or higher",
			})
		}
	}

	session := &models.AuditSession{
		ID:              uuid.New().String(),
		UserID:          userID,
		ContractAddress: req.ContractAddress,
		Chain:           req.Chain,
		AnalysisType:    req.AnalysisType,
		Language:        req.Language,
		Status:          models.AuditStatusPending,
		IsPrivate:       req.IsPrivate,
	}
	if err := s.db.Create(session).Error; err != nil {
		return internalError(c, err)
	}

	result, err := s.ledger.Deduct(c.Context(), userID, session.ID, req.CostFactors)
	if err != nil {
		// The session never started; do not keep the shell row around.
		s.db.Delete(session)

		var ice *credits.InsufficientCreditsError
		if errors.As(err, &ice) {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":   "insufficient_credits",
				"needed":  ice.Needed,
				"current": ice.Current,
			})
		}
		if errors.Is(err, credits.ErrNotFound) {
			return notFound(c, "no credit balance")
		}
		if errors.Is(err, credits.ErrInvalidArgument) {
			return badRequest(c, "invalid cost factors")
		}
		return internalError(c, err)
	}

	s.dispatcher.Publish(webhooks.EventAuditStarted, fiber.Map{
		"session_id":       session.ID,
		"contract_address": session.ContractAddress,
		"chain":            session.Chain,
	}, userID)
	s.dispatcher.Publish(webhooks.EventCreditsDeducted, fiber.Map{
		"session_id":  session.ID,
		"deducted":    result.Deducted,
		"new_balance": result.NewBalance,
	}, userID)
	if result.NewBalance < lowBalanceThreshold {
		s.dispatcher.Publish(webhooks.EventCreditsLow, fiber.Map{
			"balance":   result.NewBalance,
			"threshold": lowBalanceThreshold,
		}, userID)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id":  session.ID,
		"deducted":    result.Deducted,
		"new_balance": result.NewBalance,
	})
}

// PostAuditComplete marks a session completed and notifies subscribers.
func (s *APIServer) PostAuditComplete(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	sessionID := c.Params("id")

	now := time.Now()
	res := s.db.Model(&models.AuditSession{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Updates(map[string]interface{}{"status": models.AuditStatusCompleted, "completed_at": &now})
	if res.Error != nil {
		return internalError(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(c, "audit session not found")
	}

	s.dispatcher.Publish(webhooks.EventAuditCompleted, fiber.Map{"session_id": sessionID}, userID)
	return c.JSON(fiber.Map{"status": models.AuditStatusCompleted})
}

// PostAuditFail marks a session failed, refunds the stamped charge, and
// notifies subscribers. Refunding twice is a no-op by design.
func (s *APIServer) PostAuditFail(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	sessionID := c.Params("id")

	res := s.db.Model(&models.AuditSession{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Update("status", models.AuditStatusFailed)
	if res.Error != nil {
		return internalError(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(c, "audit session not found")
	}

	refunded, err := s.ledger.Refund(c.Context(), userID, sessionID, "audit failed")
	if err != nil {
		return internalError(c, err)
	}

	s.dispatcher.Publish(webhooks.EventAuditFailed, fiber.Map{"session_id": sessionID}, userID)
	if refunded > 0 {
		s.dispatcher.Publish(webhooks.EventCreditsRefunded, fiber.Map{
			"session_id": sessionID,
			"refunded":   refunded,
		}, userID)
	}

	return c.JSON(fiber.Map{"status": models.AuditStatusFailed, "refunded": refunded})
}

// PostWebhook registers a subscription. The signing secret appears in this
// response only.
func (s *APIServer) PostWebhook(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	var in webhooks.CreateSubscriptionInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	sub, secret, err := s.registry.Create(c.Context(), userID, in)
	if err != nil {
		if errors.Is(err, webhooks.ErrInvalidInput) {
			return badRequest(c, "invalid subscription")
		}
		return internalError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"webhook": sub, "secret": secret})
}

// GetWebhooks lists the caller's subscriptions.
func (s *APIServer) GetWebhooks(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	subs, err := s.registry.List(c.Context(), userID)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"webhooks": subs})
}

// GetWebhook returns one subscription.
func (s *APIServer) GetWebhook(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	sub, err := s.registry.Get(c.Context(), userID, c.Params("id"))
	if err != nil {
		if errors.Is(err, webhooks.ErrNotFound) {
			return notFound(c, "webhook not found")
		}
		return internalError(c, err)
	}
	return c.JSON(sub)
}

// PatchWebhook updates url, events, active, retry limit or timeout.
func (s *APIServer) PatchWebhook(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	var in webhooks.UpdateSubscriptionInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	sub, err := s.registry.Update(c.Context(), userID, c.Params("id"), in)
	if err != nil {
		if errors.Is(err, webhooks.ErrNotFound) {
			return notFound(c, "webhook not found")
		}
		if errors.Is(err, webhooks.ErrInvalidInput) {
			return badRequest(c, "invalid subscription")
		}
		return internalError(c, err)
	}
	return c.JSON(sub)
}

// DeleteWebhook removes a subscription permanently.
func (s *APIServer) DeleteWebhook(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	if err := s.registry.Delete(c.Context(), userID, c.Params("id")); err != nil {
		if errors.Is(err, webhooks.ErrNotFound) {
			return notFound(c, "webhook not found")
		}
		return internalError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetWebhookDeliveries returns the delivery audit trail of a subscription.
func (s *APIServer) GetWebhookDeliveries(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	limit := c.QueryInt("limit", 50)
	if limit > 200 {
		limit = 200
	}

	rows, err := s.registry.Deliveries(c.Context(), userID, c.Params("id"), limit)
	if err != nil {
		if errors.Is(err, webhooks.ErrNotFound) {
			return notFound(c, "webhook not found")
		}
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"deliveries": rows})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": msg})
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": msg})
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
}
