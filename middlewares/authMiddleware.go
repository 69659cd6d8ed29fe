package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bitbucket.org/flowshare/allocation_backend/models"
	"bitbucket.org/flowshare/allocation_backend/utils"
)

// AuthMiddleware authenticates either a JWT bearer token (dashboard users) or
// an X-API-Key header (field automation posting on a tenant's behalf), and
// stashes tenant and user identity in the request context. Requests carrying
// neither credential pass through unauthenticated; RequireTenant guards the
// routes that need identity.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			token, err := utils.JwtValidate(strings.TrimPrefix(auth, "Bearer "))
			if err != nil || !token.Valid {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			claim, ok := token.Claims.(*utils.JwtCustomClaim)
			if !ok {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}

			ctx := utils.SetTokenInContext(c.Request.Context(), auth)
			ctx = utils.SetTenantIdInContext(ctx, claim.TenantId)
			ctx = utils.SetUserIdInContext(ctx, claim.ID)
			ctx = utils.SetUserRoleInContext(ctx, claim.Role)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		apiKey := c.Request.Header.Get("X-API-Key")
		if apiKey != "" {
			tenantId := c.Request.Header.Get("X-Tenant-Id")
			if tenantId == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "X-Tenant-Id header required with X-API-Key"})
				c.Abort()
				return
			}
			tenant, err := models.GetTenantById(c.Request.Context(), tenantId)
			if err != nil || utils.CompareApiKey(tenant.ApiKeyHash, apiKey) != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}

			ctx := utils.SetTenantIdInContext(c.Request.Context(), tenant.ID)
			ctx = utils.SetUserNameInContext(ctx, "api-key")
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// RequireTenant rejects requests whose context has no authenticated tenant.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetTenantIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CorrelationIdMiddleware propagates X-Correlation-Id, minting one when the
// caller did not send it, so a trigger and its worker share a trail.
func CorrelationIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := c.Request.Header.Get("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Correlation-Id", correlationId)
		c.Next()
	}
}
