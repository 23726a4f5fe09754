package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StringArray is a []string stored as a JSONB column
type StringArray []string

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal(a)
}

func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, a)
}

func (a StringArray) Contains(v string) bool {
	for _, s := range a {
		if s == v {
			return true
		}
	}
	return false
}

// Tenant represents an isolated customer organization
type Tenant struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Slug      string         `json:"slug" gorm:"uniqueIndex;not null" validate:"required,min=2,max=63"`
	Name      string         `json:"name" gorm:"not null" validate:"required,min=2,max=255"`
	IsActive  bool           `json:"is_active" gorm:"default:true;index"`
	Metadata  datatypes.JSON `json:"metadata" gorm:"type:jsonb;default:'{}'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ServiceAccount represents a machine principal bound to exactly one tenant.
// SecretHash is write-only; the raw secret is shown once at creation.
// TokenVersion is monotonic: bumping it invalidates every outstanding token.
type ServiceAccount struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	ClientID     string         `json:"client_id" gorm:"uniqueIndex;not null"`
	SecretHash   string         `json:"-" gorm:"not null"`
	Name         string         `json:"name" gorm:"not null" validate:"required,min=2,max=255"`
	Description  string         `json:"description"`
	TenantID     uuid.UUID      `json:"tenant_id" gorm:"type:uuid;not null;index"`
	IsActive     bool           `json:"is_active" gorm:"default:true"`
	TokenVersion int            `json:"token_version" gorm:"default:1;not null"`
	Roles        StringArray    `json:"roles" gorm:"type:jsonb;default:'[]'"`
	Scopes       StringArray    `json:"scopes" gorm:"type:jsonb;default:'[]'"`
	AllowedIPs   StringArray    `json:"allowed_ips" gorm:"type:jsonb;default:'[]'"`
	RateLimit    *int           `json:"rate_limit"`
	LastUsedAt   *time.Time     `json:"last_used_at"`
	Metadata     datatypes.JSON `json:"metadata" gorm:"type:jsonb;default:'{}'"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

func (a *ServiceAccount) HasRole(role string) bool {
	return a.Roles.Contains(role)
}

func (a *ServiceAccount) HasScope(scope string) bool {
	return a.Scopes.Contains(scope)
}

// IsIPAllowed reports whether ip passes the allow-list.
// An empty list allows every address.
func (a *ServiceAccount) IsIPAllowed(ip string) bool {
	if len(a.AllowedIPs) == 0 {
		return true
	}
	return a.AllowedIPs.Contains(ip)
}

// UsageLog is an append-only record of an authentication attempt.
// It is never consulted when deciding whether to grant access.
type UsageLog struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	ServiceAccountID *uuid.UUID `json:"service_account_id" gorm:"type:uuid;index"`
	ClientID         string     `json:"client_id" gorm:"index"`
	TenantID         *uuid.UUID `json:"tenant_id" gorm:"type:uuid;index"`
	Success          bool       `json:"success" gorm:"index"`
	FailureReason    string     `json:"failure_reason"`
	IPAddress        string     `json:"ip_address"`
	UserAgent        string     `json:"user_agent"`
	CorrelationID    string     `json:"correlation_id"`
	CreatedAt        time.Time  `json:"created_at" gorm:"index"`
}
