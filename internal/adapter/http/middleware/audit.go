package middleware

import (
	"net/http"
	"time"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"

	json "github.com/goccy/go-json"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type auditRoute struct {
	action       domain.AuditAction
	resourceType string
}

// auditRoutes maps "METHOD route-template" to the audited action.
var auditRoutes = map[string]auditRoute{
	"POST /api/v1/auth/register":              {domain.AuditActionRegister, "identity"},
	"POST /api/v1/auth/login":                 {domain.AuditActionLogin, "session"},
	"POST /api/v1/identities/me/topup":        {domain.AuditActionTopup, "identity"},
	"PUT /api/v1/identities/me/webhook":       {domain.AuditActionUpdateWebhook, "identity"},
	"POST /api/v1/identities/me/rotate-keys":  {domain.AuditActionRotateKeys, "identity"},
	"POST /api/v1/factories":                  {domain.AuditActionDeployFactory, "factory"},
	"POST /api/v1/factories/:id/wallets":      {domain.AuditActionCreateWallet, "factory"},
	"POST /api/v1/factories/:id/managers":     {domain.AuditActionCreateManager, "factory"},
	"POST /api/v1/wallets/deploy":             {domain.AuditActionCreateWallet, "wallet"},
	"POST /api/v1/managers/deploy":            {domain.AuditActionCreateManager, "manager"},
	"POST /api/v1/wallets/:id/deposit":        {domain.AuditActionDeposit, "wallet"},
	"POST /api/v1/wallets/:id/subscribe":      {domain.AuditActionSubscribe, "wallet"},
	"POST /api/v1/wallets/:id/unsubscribe":    {domain.AuditActionUnsubscribe, "wallet"},
	"POST /api/v1/wallets/:id/withdraw":       {domain.AuditActionWithdraw, "wallet"},
	"POST /api/v1/managers/:id/fund":          {domain.AuditActionDeposit, "manager"},
	"POST /api/v1/managers/:id/payments":      {domain.AuditActionRequestPayment, "manager"},
	"POST /api/v1/managers/:id/withdraw":      {domain.AuditActionWithdraw, "manager"},
	"PUT /api/v1/managers/:id/name":           {domain.AuditActionUpdateName, "manager"},
	"PUT /api/v1/managers/:id/price":          {domain.AuditActionUpdatePrice, "manager"},
}

// AuditLog creates an audit middleware that logs successful write operations.
// Routes are matched by their template, so ids in the path do not matter.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		route, ok := auditRoutes[c.Request.Method+" "+c.FullPath()]
		if !ok {
			return
		}

		var identityID *uuid.UUID
		if id, ok := CallerID(c); ok {
			identityID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			IdentityID:   identityID,
			Action:       route.action,
			ResourceType: route.resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}
