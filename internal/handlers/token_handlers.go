package handlers

import (
	"net/http"

	"authz-service/internal/events"
	"authz-service/internal/metrics"
	"authz-service/internal/middleware"
	"authz-service/internal/services"
	"github.com/gin-gonic/gin"
)

type TokenHandlers struct {
	credentials *services.CredentialService
	tokens      *services.TokenService
	publisher   *events.Publisher
	metrics     *metrics.Metrics
}

func NewTokenHandlers(credentials *services.CredentialService, tokens *services.TokenService, publisher *events.Publisher, m *metrics.Metrics) *TokenHandlers {
	return &TokenHandlers{
		credentials: credentials,
		tokens:      tokens,
		publisher:   publisher,
		metrics:     m,
	}
}

// IssueTokenRequest carries client credentials
type IssueTokenRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// IssueToken exchanges client credentials for a token pair
func (h *TokenHandlers) IssueToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "client_id and client_secret are required",
			"code":  "invalid_request",
		})
		return
	}

	account, err := h.credentials.Verify(
		c.Request.Context(),
		req.ClientID,
		req.ClientSecret,
		c.ClientIP(),
		c.Request.UserAgent(),
		c.GetString(middleware.RequestIDKey),
	)
	if err != nil {
		h.metrics.AuthAttempts.WithLabelValues("failure", failureReason(err)).Inc()
		middleware.AbortWithError(c, err)
		return
	}

	pair, err := h.tokens.Issue(account, account.Tenant)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	h.metrics.AuthAttempts.WithLabelValues("success", "").Inc()
	h.metrics.TokensIssued.WithLabelValues("access").Inc()
	h.metrics.TokensIssued.WithLabelValues("refresh").Inc()

	// Best effort, failures are logged inside the publisher.
	_ = h.publisher.PublishTokenIssued(c.Request.Context(), &events.TokenEvent{
		ClientID:  account.ClientID,
		TenantID:  account.TenantID.String(),
		GrantType: "client_credentials",
	})

	c.JSON(http.StatusOK, pair)
}

// RefreshToken exchanges a refresh token for a new access token
func (h *TokenHandlers) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "refresh_token is required",
			"code":  "invalid_request",
		})
		return
	}

	pair, err := h.tokens.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.metrics.AuthAttempts.WithLabelValues("failure", failureReason(err)).Inc()
		middleware.AbortWithError(c, err)
		return
	}

	h.metrics.TokensIssued.WithLabelValues("access").Inc()
	c.JSON(http.StatusOK, pair)
}
