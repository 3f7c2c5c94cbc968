package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"rewards-service/middleware"
	"rewards-service/models"
	"rewards-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LoyaltyController struct {
	Service *services.LedgerService
	Logger  *zap.Logger
}

type awardRequest struct {
	AmountMinorUnits int64   `json:"amount_minor_units" binding:"required,min=1"`
	OrderReference   *string `json:"order_reference"`
	IdempotencyKey   string  `json:"idempotency_key"`
}

type redeemRequest struct {
	Points         int64   `json:"points" binding:"required,min=1"`
	Reference      *string `json:"reference"`
	IdempotencyKey string  `json:"idempotency_key" binding:"required"`
}

type createAccountRequest struct {
	OwnerID uuid.UUID `json:"owner_id" binding:"required"`
}

type ledgerMeta struct {
	Page         int   `json:"page"`
	Limit        int   `json:"limit"`
	TotalEntries int64 `json:"total_entries"`
	HasMore      bool  `json:"has_more"`
}

// Award earns points for a purchase. When no idempotency key is supplied the
// order reference derives one, making the award at-most-once per order.
func (lc *LoyaltyController) Award(c *gin.Context) {
	accountID, ok := lc.accountID(c)
	if !ok {
		return
	}

	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		if req.OrderReference == nil || *req.OrderReference == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "idempotency_key or order_reference required"})
			return
		}
		key = "award:order:" + *req.OrderReference
	}

	callerID, _ := middleware.GetCallerID(c)
	result, err := lc.Service.Award(c.Request.Context(), accountID, req.AmountMinorUnits, key, req.OrderReference)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNothingEarned):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "NOTHING_EARNED"})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		default:
			lc.Logger.Error("Award failed",
				zap.String("account_id", accountID.String()),
				zap.String("caller_id", callerID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "award failed"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// Redeem spends points. The caller always receives a definitive outcome with
// the authoritative balance; ambiguity is resolved server-side before
// responding.
func (lc *LoyaltyController) Redeem(c *gin.Context) {
	accountID, ok := lc.accountID(c)
	if !ok {
		return
	}

	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	callerID, _ := middleware.GetCallerID(c)
	result, err := lc.Service.Redeem(c.Request.Context(), accountID, req.Points, req.IdempotencyKey, req.Reference)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInsufficientBalance):
			c.JSON(http.StatusConflict, gin.H{"error": "INSUFFICIENT_BALANCE"})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		default:
			lc.Logger.Error("Redeem failed",
				zap.String("account_id", accountID.String()),
				zap.String("caller_id", callerID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem failed"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// Ledger is the read-only audit view: paginated entries, oldest first, with
// prev_hash/row_hash exposed for external chain verification.
func (lc *LoyaltyController) Ledger(c *gin.Context) {
	accountID, ok := lc.accountID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}

	entries, total, err := lc.Service.Ledger(c.Request.Context(), accountID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"meta": ledgerMeta{
			Page:         page,
			Limit:        limit,
			TotalEntries: total,
			HasMore:      total > int64(page*limit),
		},
	})
}

// VerifyLedger recomputes the account's whole hash chain.
func (lc *LoyaltyController) VerifyLedger(c *gin.Context) {
	accountID, ok := lc.accountID(c)
	if !ok {
		return
	}

	if err := lc.Service.VerifyLedger(c.Request.Context(), accountID); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// GetAccount returns the cached projection of the account.
func (lc *LoyaltyController) GetAccount(c *gin.Context) {
	accountID, ok := lc.accountID(c)
	if !ok {
		return
	}

	account, err := lc.Service.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch account"})
		return
	}
	c.JSON(http.StatusOK, account)
}

// AccountByOwner resolves the account from its owner's user id, for callers
// that have not stored the account id.
func (lc *LoyaltyController) AccountByOwner(c *gin.Context) {
	ownerID, err := uuid.Parse(c.Query("owner_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id query parameter required"})
		return
	}

	account, err := lc.Service.AccountByOwner(c.Request.Context(), ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch account"})
		return
	}
	c.JSON(http.StatusOK, account)
}

// CreateAccount opens a fresh loyalty account for an owner.
func (lc *LoyaltyController) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	account := &models.LoyaltyAccount{
		ID:      uuid.New(),
		OwnerID: req.OwnerID,
		Tier:    models.TierBronze,
	}
	if err := lc.Service.CreateAccount(c.Request.Context(), account); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "account already exists for owner"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create account"})
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (lc *LoyaltyController) accountID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return uuid.Nil, false
	}
	return id, true
}
