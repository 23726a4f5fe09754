package models

import "github.com/google/uuid"

// RequestContext is the verified identity attached to an authenticated request.
// Tenant identity comes only from verified token claims, never from headers
// or request bodies.
type RequestContext struct {
	Tenant        *Tenant
	Account       *ServiceAccount
	Roles         []string
	Scopes        []string
	CorrelationID string
}

func (rc *RequestContext) HasRole(role string) bool {
	for _, r := range rc.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (rc *RequestContext) HasScope(scope string) bool {
	for _, s := range rc.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Valid reports whether the context carries a usable tenant identity.
func (rc *RequestContext) Valid() bool {
	return rc != nil && rc.Tenant != nil && rc.Tenant.ID != uuid.Nil
}
