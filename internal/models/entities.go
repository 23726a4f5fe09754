package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TenantScoped is implemented by every model that belongs to exactly one
// tenant. The scoped store uses it to force and verify ownership.
type TenantScoped interface {
	GetTenantID() uuid.UUID
	SetTenantID(uuid.UUID)
}

// Reference declares a foreign key on a tenant-scoped entity that must
// resolve within the same tenant before the entity is persisted.
type Reference struct {
	Field string
	Table string
	ID    uuid.UUID
}

// Referencing is implemented by entities whose foreign keys are subject to
// cross-tenant validation.
type Referencing interface {
	References() []Reference
}

// Project is a tenant-scoped container for tasks and documents
type Project struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	TenantID    uuid.UUID      `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Name        string         `json:"name" gorm:"not null" validate:"required,min=2,max=255"`
	Description string         `json:"description"`
	Status      string         `json:"status" gorm:"default:'active'" validate:"omitempty,oneof=active archived"`
	Metadata    datatypes.JSON `json:"metadata" gorm:"type:jsonb;default:'{}'"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (p *Project) GetTenantID() uuid.UUID   { return p.TenantID }
func (p *Project) SetTenantID(id uuid.UUID) { p.TenantID = id }

// Task belongs to a project within the same tenant
type Task struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	TenantID    uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index"`
	ProjectID   uuid.UUID  `json:"project_id" gorm:"type:uuid;not null;index"`
	Title       string     `json:"title" gorm:"not null" validate:"required,min=2,max=255"`
	Description string     `json:"description"`
	Status      string     `json:"status" gorm:"default:'todo';index" validate:"omitempty,oneof=todo in_progress done cancelled"`
	Priority    string     `json:"priority" gorm:"default:'medium'" validate:"omitempty,oneof=low medium high urgent"`
	DueAt       *time.Time `json:"due_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t *Task) GetTenantID() uuid.UUID   { return t.TenantID }
func (t *Task) SetTenantID(id uuid.UUID) { t.TenantID = id }

func (t *Task) References() []Reference {
	return []Reference{
		{Field: "project_id", Table: "projects", ID: t.ProjectID},
	}
}

// Document is a tenant-scoped file record attached to a project
type Document struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	TenantID    uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`
	ProjectID   uuid.UUID `json:"project_id" gorm:"type:uuid;not null;index"`
	Name        string    `json:"name" gorm:"not null" validate:"required,min=1,max=255"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StoragePath string    `json:"storage_path"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (d *Document) GetTenantID() uuid.UUID   { return d.TenantID }
func (d *Document) SetTenantID(id uuid.UUID) { d.TenantID = id }

func (d *Document) References() []Reference {
	return []Reference{
		{Field: "project_id", Table: "projects", ID: d.ProjectID},
	}
}
