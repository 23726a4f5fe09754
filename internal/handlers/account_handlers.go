package handlers

import (
	"context"
	"net/http"

	"authz-service/internal/apperrors"
	"authz-service/internal/middleware"
	"authz-service/internal/models"
	"authz-service/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// failureReason extracts the stable code for metrics labels.
func failureReason(err error) string {
	return string(apperrors.CodeOf(err))
}

type AccountHandlers struct {
	credentials *services.CredentialService
}

func NewAccountHandlers(credentials *services.CredentialService) *AccountHandlers {
	return &AccountHandlers{credentials: credentials}
}

type CreateAccountRequest struct {
	TenantID    string   `json:"tenant_id" binding:"required,uuid"`
	Name        string   `json:"name" binding:"required,min=2,max=255"`
	Description string   `json:"description"`
	Roles       []string `json:"roles"`
	Scopes      []string `json:"scopes"`
	AllowedIPs  []string `json:"allowed_ips"`
	RateLimit   *int     `json:"rate_limit"`
}

// CreateAccountResponse includes the raw secret, returned exactly once.
type CreateAccountResponse struct {
	Account      *models.ServiceAccount `json:"account"`
	ClientSecret string                 `json:"client_secret"`
}

// Create provisions a new service account
func (h *AccountHandlers) Create(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body",
			"code":  "invalid_request",
		})
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "tenant_id must be a valid uuid",
			"code":  "invalid_request",
		})
		return
	}

	account, secret, err := h.credentials.Create(c.Request.Context(), tenantID, services.CreateAccountInput{
		Name:        req.Name,
		Description: req.Description,
		Roles:       req.Roles,
		Scopes:      req.Scopes,
		AllowedIPs:  req.AllowedIPs,
		RateLimit:   req.RateLimit,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateAccountResponse{
		Account:      account,
		ClientSecret: secret,
	})
}

// Get returns a service account by id
func (h *AccountHandlers) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, apperrors.NewNotFound("service account"))
		return
	}

	account, err := h.credentials.GetByID(c.Request.Context(), id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// List returns the service accounts of a tenant
func (h *AccountHandlers) List(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Query("tenant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "tenant_id query parameter is required",
			"code":  "invalid_request",
		})
		return
	}

	accounts, err := h.credentials.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// Disable deactivates the account and revokes all outstanding tokens
func (h *AccountHandlers) Disable(c *gin.Context) {
	h.changeState(c, h.credentials.Disable, "disabled")
}

// Enable reactivates the account; previously revoked tokens stay revoked
func (h *AccountHandlers) Enable(c *gin.Context) {
	h.changeState(c, h.credentials.Enable, "enabled")
}

// RevokeTokens invalidates outstanding tokens without disabling the account
func (h *AccountHandlers) RevokeTokens(c *gin.Context) {
	h.changeState(c, h.credentials.RevokeTokens, "tokens_revoked")
}

func (h *AccountHandlers) changeState(c *gin.Context, op func(ctx context.Context, id uuid.UUID) error, state string) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, apperrors.NewNotFound("service account"))
		return
	}
	if err := op(c.Request.Context(), id); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "state": state})
}
