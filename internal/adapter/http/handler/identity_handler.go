package handler

import (
	"subscription-ledger/internal/adapter/http/dto"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// IdentityHandler handles the caller's own profile, keys and external account.
type IdentityHandler struct {
	identitySvc ports.IdentityService
}

func NewIdentityHandler(identitySvc ports.IdentityService) *IdentityHandler {
	return &IdentityHandler{identitySvc: identitySvc}
}

// GetProfile handles GET /api/v1/identities/me.
func (h *IdentityHandler) GetProfile(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}

	profile, err := h.identitySvc.GetProfile(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewProfileResponse(profile))
}

// GetBalance handles GET /api/v1/identities/me/balance.
func (h *IdentityHandler) GetBalance(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}

	balance, err := h.identitySvc.Balance(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.BalanceResponse{IdentityID: id.String(), Balance: balance})
}

// Topup handles POST /api/v1/identities/me/topup.
func (h *IdentityHandler) Topup(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req dto.AmountRequest
	if !bindJSON(c, &req) {
		return
	}

	identity, err := h.identitySvc.Topup(c.Request.Context(), id, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.BalanceResponse{IdentityID: id.String(), Balance: identity.Balance})
}

// UpdateWebhookURL handles PUT /api/v1/identities/me/webhook. A null URL
// disables delivery.
func (h *IdentityHandler) UpdateWebhookURL(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req dto.UpdateWebhookRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.identitySvc.UpdateWebhookURL(c.Request.Context(), id, req.WebhookURL); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "webhook URL updated"})
}

// RotateKeys handles POST /api/v1/identities/me/rotate-keys.
func (h *IdentityHandler) RotateKeys(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}

	result, err := h.identitySvc.RotateKeys(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.RotateKeysResponse{
		AccessKey: result.AccessKey,
		SecretKey: result.SecretKey,
	})
}
