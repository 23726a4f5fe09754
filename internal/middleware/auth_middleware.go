package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"authz-service/internal/apperrors"
	"authz-service/internal/models"
	"authz-service/internal/services"
	"github.com/gin-gonic/gin"
)

const requestContextKey = "request_context"

type AuthMiddleware struct {
	resolver *services.Resolver
}

func NewAuthMiddleware(resolver *services.Resolver) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
	}
}

// AuthRequired resolves the bearer token into a verified request context.
// Every protected route goes through here before its handler runs.
func (m *AuthMiddleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc, err := m.resolver.ResolveBearer(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		rc.CorrelationID = c.GetString(RequestIDKey)

		c.Set(requestContextKey, rc)
		c.Set("tenant_id", rc.Tenant.ID.String())
		c.Set("tenant_slug", rc.Tenant.Slug)
		c.Set("client_id", rc.Account.ClientID)
		c.Set("roles", rc.Roles)
		c.Set("scopes", rc.Scopes)

		c.Next()
	}
}

// RequireRole requires a specific role on the authenticated principal
func (m *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := GetRequestContext(c)
		if rc == nil {
			AbortWithError(c, apperrors.NewMissingToken())
			return
		}
		if !rc.HasRole(role) {
			AbortWithError(c, apperrors.NewInsufficientRole(role))
			return
		}
		c.Next()
	}
}

// RequireScope requires a specific scope on the authenticated principal
func (m *AuthMiddleware) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := GetRequestContext(c)
		if rc == nil {
			AbortWithError(c, apperrors.NewMissingToken())
			return
		}
		if !rc.HasScope(scope) {
			AbortWithError(c, apperrors.NewInsufficientScope(scope))
			return
		}
		c.Next()
	}
}

// GetRequestContext returns the verified request context, or nil when the
// request has not passed AuthRequired.
func GetRequestContext(c *gin.Context) *models.RequestContext {
	value, exists := c.Get(requestContextKey)
	if !exists {
		return nil
	}
	rc, ok := value.(*models.RequestContext)
	if !ok {
		return nil
	}
	return rc
}

// AbortWithError writes the taxonomy error as a JSON body with its stable
// code and aborts the request.
func AbortWithError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	code := apperrors.CodeOf(err)
	if code == "" {
		code = "internal_error"
	}

	var rl *apperrors.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		seconds := int(math.Ceil(rl.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}

	c.JSON(status, gin.H{
		"error": message,
		"code":  code,
	})
	c.Abort()
}
