package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthMiddleware validates the bearer token and threads user/company identity
// into the request context. Requests without a token pass through; repository
// operations reject them later with a not-authenticated error.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		auth = strings.TrimPrefix(auth, "Bearer ")

		validated, err := utils.JwtValidate(auth)
		if err != nil || !validated.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, _ := validated.Claims.(*utils.JwtCustomClaim)

		ctx := c.Request.Context()
		ctx = utils.SetTokenInContext(ctx, auth)
		ctx = utils.SetUserIdInContext(ctx, claim.ID)
		ctx = utils.SetUserNameInContext(ctx, claim.Name)

		companyId := claim.CompanyId
		if companyId == "" {
			// Single-tenant deployments configure the company id instead of
			// carrying it on every token.
			companyId = config.DefaultCompanyId()
		}
		ctx = utils.SetCompanyIdInContext(ctx, companyId)
		ctx = utils.SetIsAdminInContext(ctx, claim.Role == "admin")

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CorrelationMiddleware assigns a correlation id per request for event
// tracing; incoming X-Correlation-Id wins.
func CorrelationMiddleware() gin.HandlerFunc {
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
