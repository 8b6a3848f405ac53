package handler

import (
	"context"

	"subscription-ledger/internal/adapter/http/dto"
	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/pkg/apperror"
	"subscription-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles the subscriber side: funding, subscriptions and
// withdrawal.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// Get handles GET /api/v1/wallets/:id.
func (h *WalletHandler) Get(c *gin.Context) {
	walletID, ok := pathID(c, "id")
	if !ok {
		return
	}

	w, err := h.walletSvc.Get(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWalletResponse(w))
}

// Deposit handles POST /api/v1/wallets/:id/deposit. Anyone may fund a wallet.
func (h *WalletHandler) Deposit(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	walletID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.AmountRequest
	if !bindJSON(c, &req) {
		return
	}

	w, err := h.walletSvc.Deposit(c.Request.Context(), id, walletID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWalletResponse(w))
}

// Subscribe handles POST /api/v1/wallets/:id/subscribe.
func (h *WalletHandler) Subscribe(c *gin.Context) {
	h.toggle(c, h.walletSvc.Subscribe)
}

// Unsubscribe handles POST /api/v1/wallets/:id/unsubscribe.
func (h *WalletHandler) Unsubscribe(c *gin.Context) {
	h.toggle(c, h.walletSvc.Unsubscribe)
}

type toggleFunc func(ctx context.Context, caller, walletID, managerID uuid.UUID) (*domain.Subscription, error)

func (h *WalletHandler) toggle(c *gin.Context, fn toggleFunc) {
	id, ok := caller(c)
	if !ok {
		return
	}
	walletID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.SubscribeRequest
	if !bindJSON(c, &req) {
		return
	}
	managerID, err := uuid.Parse(req.ManagerID)
	if err != nil {
		response.Error(c, apperror.ErrInvalidArgument("manager_id must be a uuid"))
		return
	}

	sub, err := fn(c.Request.Context(), id, walletID, managerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewSubscriptionResponse(sub))
}

// Withdraw handles POST /api/v1/wallets/:id/withdraw. The whole balance is
// paid to the owner's external account.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	walletID, ok := pathID(c, "id")
	if !ok {
		return
	}

	amount, err := h.walletSvc.Withdraw(c.Request.Context(), id, walletID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.WithdrawResponse{InstanceID: walletID.String(), Amount: amount})
}

// ListSubscriptions handles GET /api/v1/wallets/:id/subscriptions.
func (h *WalletHandler) ListSubscriptions(c *gin.Context) {
	walletID, ok := pathID(c, "id")
	if !ok {
		return
	}

	subs, err := h.walletSvc.ListSubscriptions(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.SubscriptionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, dto.NewSubscriptionResponse(&subs[i]))
	}
	response.OK(c, out)
}

// GetSubscription handles GET /api/v1/wallets/:id/subscriptions/:manager.
// Unknown pairs report inactive with no last payment.
func (h *WalletHandler) GetSubscription(c *gin.Context) {
	walletID, ok := pathID(c, "id")
	if !ok {
		return
	}
	managerID, ok := pathID(c, "manager")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	active, err := h.walletSvc.CheckSubscriptionStatus(ctx, walletID, managerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	last, err := h.walletSvc.CheckLastPaymentDate(ctx, walletID, managerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewStatusResponse(walletID, managerID, active, last))
}
