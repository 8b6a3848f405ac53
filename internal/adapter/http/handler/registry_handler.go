package handler

import (
	"subscription-ledger/internal/adapter/http/dto"
	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/pkg/apperror"
	"subscription-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegistryHandler exposes the wallet and manager factories.
type RegistryHandler struct {
	registrySvc ports.RegistryService
}

func NewRegistryHandler(registrySvc ports.RegistryService) *RegistryHandler {
	return &RegistryHandler{registrySvc: registrySvc}
}

// DeployFactory handles POST /api/v1/factories.
func (h *RegistryHandler) DeployFactory(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req dto.DeployFactoryRequest
	if !bindJSON(c, &req) {
		return
	}
	kind, err := domain.ParseFactoryKind(req.Kind)
	if err != nil {
		response.Error(c, err)
		return
	}

	f, err := h.registrySvc.DeployFactory(c.Request.Context(), id, kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewFactoryResponse(f))
}

// ListFactories handles GET /api/v1/factories. ?owner= defaults to the caller.
func (h *RegistryHandler) ListFactories(c *gin.Context) {
	owner, ok := queryIdentity(c, "owner")
	if !ok {
		return
	}

	factories, err := h.registrySvc.ListFactories(c.Request.Context(), owner)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.FactoryResponse, 0, len(factories))
	for i := range factories {
		out = append(out, dto.NewFactoryResponse(&factories[i]))
	}
	response.OK(c, out)
}

// GetFactory handles GET /api/v1/factories/:id.
func (h *RegistryHandler) GetFactory(c *gin.Context) {
	factoryID, ok := pathID(c, "id")
	if !ok {
		return
	}

	f, err := h.registrySvc.GetFactory(c.Request.Context(), factoryID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewFactoryResponse(f))
}

// ListInstances handles GET /api/v1/factories/:id/instances. Only the
// caller's own instances are listed.
func (h *RegistryHandler) ListInstances(c *gin.Context) {
	factoryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	creator, ok := caller(c)
	if !ok {
		return
	}

	ids, err := h.registrySvc.List(c.Request.Context(), factoryID, creator)
	if err != nil {
		response.Error(c, err)
		return
	}
	instances := make([]string, len(ids))
	for i, id := range ids {
		instances[i] = id.String()
	}
	response.OK(c, dto.InstancesResponse{
		FactoryID: factoryID.String(),
		Creator:   creator.String(),
		Instances: instances,
	})
}

// Verify handles GET /api/v1/factories/:id/verify/:instance.
func (h *RegistryHandler) Verify(c *gin.Context) {
	factoryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	instanceID, ok := pathID(c, "instance")
	if !ok {
		return
	}

	verified, err := h.registrySvc.Verify(c.Request.Context(), factoryID, instanceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.VerifyResponse{
		FactoryID:  factoryID.String(),
		InstanceID: instanceID.String(),
		Verified:   verified,
	})
}

// CreateWallet handles POST /api/v1/factories/:id/wallets.
func (h *RegistryHandler) CreateWallet(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	factoryID, ok := pathID(c, "id")
	if !ok {
		return
	}

	w, err := h.registrySvc.CreateWallet(c.Request.Context(), id, factoryID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewWalletResponse(w))
}

// CreateManager handles POST /api/v1/factories/:id/managers.
func (h *RegistryHandler) CreateManager(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	factoryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.CreateManagerRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.registrySvc.CreateManager(c.Request.Context(), id, factoryID, req.Name, req.Price)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewManagerResponse(m))
}

// DeployWallet handles POST /api/v1/wallets/deploy. The wallet has no
// registry provenance.
func (h *RegistryHandler) DeployWallet(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}

	w, err := h.registrySvc.DeployWallet(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewWalletResponse(w))
}

// DeployManager handles POST /api/v1/managers/deploy.
func (h *RegistryHandler) DeployManager(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req dto.CreateManagerRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.registrySvc.DeployManager(c.Request.Context(), id, req.Name, req.Price)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewManagerResponse(m))
}

// queryIdentity reads an optional uuid query parameter, defaulting to the caller.
func queryIdentity(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return caller(c)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		abortWith(c, apperror.ErrInvalidArgument(name+" must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}
