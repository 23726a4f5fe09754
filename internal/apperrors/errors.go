package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code is a stable machine-readable error code returned to callers.
// Messages stay safe and non-leaking; codes are the contract.
type Code string

const (
	CodeMissingToken       Code = "missing_token"
	CodeInvalidSignature   Code = "invalid_signature"
	CodeTokenExpired       Code = "token_expired"
	CodeMissingTenantClaim Code = "missing_tenant_claim"
	CodeUnknownTenant      Code = "unknown_tenant"
	CodeInactiveTenant     Code = "inactive_tenant"
	CodeUnknownPrincipal   Code = "unknown_principal"
	CodeDisabledPrincipal  Code = "disabled_principal"
	CodeRevokedToken       Code = "revoked_token"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeIPNotAllowed       Code = "ip_not_allowed"

	CodeInsufficientRole  Code = "insufficient_role"
	CodeInsufficientScope Code = "insufficient_scope"

	CodeCrossTenantReference Code = "cross_tenant_reference"
	CodeTenantFieldImmutable Code = "tenant_field_immutable"
	CodeMissingTenantContext Code = "missing_tenant_context"

	CodeNotFound Code = "not_found"

	CodeThrottled Code = "throttled"

	CodeStoreUnavailable Code = "store_unavailable"
	CodeTimeout          Code = "timeout"
)

// AuthenticationError covers every failure to establish who the caller is.
type AuthenticationError struct {
	Code    Code
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// AuthorizationError covers an established identity lacking a role or scope.
type AuthorizationError struct {
	Code    Code
	Message string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed: %s", e.Message)
}

// IsolationError covers attempts to cross or bypass a tenant boundary.
type IsolationError struct {
	Code    Code
	Field   string
	Message string
}

func (e *IsolationError) Error() string {
	return fmt.Sprintf("tenant isolation violation: %s", e.Message)
}

// NotFoundError is returned for rows filtered out by tenant scoping as well
// as genuinely missing rows; the two are indistinguishable to callers.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// RateLimitError carries the wait hint for throttled callers.
type RateLimitError struct {
	Code       Code
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded"
}

// InfrastructureError marks a transient backend failure. It is the only
// category the calling layer retries; it must never be conflated with a
// denial.
type InfrastructureError struct {
	Code    Code
	Message string
	Err     error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure failure: %s", e.Message)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

func NewMissingToken() *AuthenticationError {
	return &AuthenticationError{Code: CodeMissingToken, Message: "authorization token is required"}
}

func NewInvalidSignature() *AuthenticationError {
	return &AuthenticationError{Code: CodeInvalidSignature, Message: "token is invalid"}
}

func NewTokenExpired() *AuthenticationError {
	return &AuthenticationError{Code: CodeTokenExpired, Message: "token has expired"}
}

func NewMissingTenantClaim() *AuthenticationError {
	return &AuthenticationError{Code: CodeMissingTenantClaim, Message: "token is missing required claims"}
}

func NewUnknownTenant() *AuthenticationError {
	return &AuthenticationError{Code: CodeUnknownTenant, Message: "tenant not recognized"}
}

func NewInactiveTenant() *AuthenticationError {
	return &AuthenticationError{Code: CodeInactiveTenant, Message: "tenant is not active"}
}

func NewUnknownPrincipal() *AuthenticationError {
	return &AuthenticationError{Code: CodeUnknownPrincipal, Message: "principal not recognized"}
}

func NewDisabledPrincipal() *AuthenticationError {
	return &AuthenticationError{Code: CodeDisabledPrincipal, Message: "principal is disabled"}
}

func NewRevokedToken() *AuthenticationError {
	return &AuthenticationError{Code: CodeRevokedToken, Message: "token has been revoked"}
}

func NewInvalidCredentials() *AuthenticationError {
	return &AuthenticationError{Code: CodeInvalidCredentials, Message: "invalid client credentials"}
}

func NewIPNotAllowed() *AuthenticationError {
	return &AuthenticationError{Code: CodeIPNotAllowed, Message: "request origin is not permitted"}
}

func NewInsufficientRole(role string) *AuthorizationError {
	return &AuthorizationError{Code: CodeInsufficientRole, Message: fmt.Sprintf("role %q is required", role)}
}

func NewInsufficientScope(scope string) *AuthorizationError {
	return &AuthorizationError{Code: CodeInsufficientScope, Message: fmt.Sprintf("scope %q is required", scope)}
}

func NewCrossTenantReference(field string) *IsolationError {
	return &IsolationError{
		Code:    CodeCrossTenantReference,
		Field:   field,
		Message: fmt.Sprintf("referenced entity in field %q does not exist", field),
	}
}

func NewTenantFieldImmutable() *IsolationError {
	return &IsolationError{Code: CodeTenantFieldImmutable, Message: "tenant assignment cannot be changed"}
}

func NewMissingTenantContext() *IsolationError {
	return &IsolationError{Code: CodeMissingTenantContext, Message: "request has no tenant context"}
}

func NewNotFound(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

func NewThrottled(retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Code: CodeThrottled, RetryAfter: retryAfter}
}

func NewStoreUnavailable(err error) *InfrastructureError {
	return &InfrastructureError{Code: CodeStoreUnavailable, Message: "backing store is unavailable", Err: err}
}

func NewTimeout(err error) *InfrastructureError {
	return &InfrastructureError{Code: CodeTimeout, Message: "operation timed out", Err: err}
}

func IsAuthenticationError(err error) bool {
	var e *AuthenticationError
	return errors.As(err, &e)
}

func IsAuthorizationError(err error) bool {
	var e *AuthorizationError
	return errors.As(err, &e)
}

func IsIsolationError(err error) bool {
	var e *IsolationError
	return errors.As(err, &e)
}

func IsNotFoundError(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsRateLimitError(err error) bool {
	var e *RateLimitError
	return errors.As(err, &e)
}

func IsInfrastructureError(err error) bool {
	var e *InfrastructureError
	return errors.As(err, &e)
}

// CodeOf extracts the stable code from any taxonomy error.
func CodeOf(err error) Code {
	var authn *AuthenticationError
	if errors.As(err, &authn) {
		return authn.Code
	}
	var authz *AuthorizationError
	if errors.As(err, &authz) {
		return authz.Code
	}
	var iso *IsolationError
	if errors.As(err, &iso) {
		return iso.Code
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return CodeNotFound
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.Code
	}
	var infra *InfrastructureError
	if errors.As(err, &infra) {
		return infra.Code
	}
	return ""
}

// HTTPStatus maps a taxonomy error to the response status contract.
// Inactive tenants and disabled principals are valid credentials denied
// access, so they map to 403 rather than 401.
func HTTPStatus(err error) int {
	var authn *AuthenticationError
	if errors.As(err, &authn) {
		switch authn.Code {
		case CodeInactiveTenant, CodeDisabledPrincipal:
			return http.StatusForbidden
		default:
			return http.StatusUnauthorized
		}
	}
	if IsAuthorizationError(err) {
		return http.StatusForbidden
	}
	if IsIsolationError(err) {
		return http.StatusBadRequest
	}
	if IsNotFoundError(err) {
		return http.StatusNotFound
	}
	if IsRateLimitError(err) {
		return http.StatusTooManyRequests
	}
	if IsInfrastructureError(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
