package handler

import (
	"subscription-ledger/internal/adapter/http/dto"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/pkg/apperror"
	"subscription-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ManagerHandler handles the merchant side: billing policy, payment pulls
// and the accrued balance.
type ManagerHandler struct {
	managerSvc ports.ManagerService
}

// NewManagerHandler creates a new ManagerHandler.
func NewManagerHandler(managerSvc ports.ManagerService) *ManagerHandler {
	return &ManagerHandler{managerSvc: managerSvc}
}

// Get handles GET /api/v1/managers/:id. Name and price are public.
func (h *ManagerHandler) Get(c *gin.Context) {
	managerID, ok := pathID(c, "id")
	if !ok {
		return
	}

	m, err := h.managerSvc.Get(c.Request.Context(), managerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewManagerResponse(m))
}

// UpdateName handles PUT /api/v1/managers/:id/name.
func (h *ManagerHandler) UpdateName(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	managerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateNameRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.managerSvc.UpdateName(c.Request.Context(), id, managerID, req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewManagerResponse(m))
}

// UpdatePrice handles PUT /api/v1/managers/:id/price. The new price applies
// from the next pull.
func (h *ManagerHandler) UpdatePrice(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	managerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdatePriceRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.managerSvc.UpdatePrice(c.Request.Context(), id, managerID, req.Price)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewManagerResponse(m))
}

// RequestPayment handles POST /api/v1/managers/:id/payments.
func (h *ManagerHandler) RequestPayment(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	managerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.PaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		response.Error(c, apperror.ErrInvalidArgument("wallet_id must be a uuid"))
		return
	}

	p, err := h.managerSvc.RequestPayment(c.Request.Context(), ports.PaymentRequest{
		Caller:      id,
		ManagerID:   managerID,
		WalletID:    walletID,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewPaymentResponse(p))
}

// Fund handles POST /api/v1/managers/:id/fund.
func (h *ManagerHandler) Fund(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	managerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.AmountRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.managerSvc.Fund(c.Request.Context(), id, managerID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewManagerResponse(m))
}

// Withdraw handles POST /api/v1/managers/:id/withdraw. Without an amount the
// whole accrued balance is paid out.
func (h *ManagerHandler) Withdraw(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	managerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.ManagerWithdrawRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	var (
		amount int64
		err    error
	)
	if req.Amount != nil {
		amount, err = h.managerSvc.WithdrawAmount(c.Request.Context(), id, managerID, *req.Amount)
	} else {
		amount, err = h.managerSvc.Withdraw(c.Request.Context(), id, managerID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.WithdrawResponse{InstanceID: managerID.String(), Amount: amount})
}

// Subscribers handles GET /api/v1/managers/:id/subscribers (owner only).
func (h *ManagerHandler) Subscribers(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	managerID, ok := pathID(c, "id")
	if !ok {
		return
	}

	wallets, err := h.managerSvc.Subscribers(c.Request.Context(), id, managerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]string, len(wallets))
	for i, w := range wallets {
		out[i] = w.String()
	}
	response.OK(c, out)
}

// GetSubscriber handles GET /api/v1/managers/:id/subscribers/:wallet (owner only).
func (h *ManagerHandler) GetSubscriber(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	managerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	walletID, ok := pathID(c, "wallet")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	active, err := h.managerSvc.OwnerCheckSubscriptionStatus(ctx, id, managerID, walletID)
	if err != nil {
		response.Error(c, err)
		return
	}
	last, err := h.managerSvc.OwnerCheckLastPaymentDate(ctx, id, managerID, walletID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewStatusResponse(walletID, managerID, active, last))
}
