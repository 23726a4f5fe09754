package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"runtime"
	"time"

	"authz-service/internal/apperrors"
	"authz-service/internal/audit"
	"authz-service/internal/cache"
	"authz-service/internal/events"
	"authz-service/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// TenantStore is the slice of the tenant repository the services need.
type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// AccountStore is the slice of the account repository the services need.
type AccountStore interface {
	Create(ctx context.Context, account *models.ServiceAccount) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceAccount, error)
	GetByClientID(ctx context.Context, clientID string) (*models.ServiceAccount, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.ServiceAccount, error)
	Disable(ctx context.Context, id uuid.UUID) error
	Enable(ctx context.Context, id uuid.UUID) error
	RevokeTokens(ctx context.Context, id uuid.UUID) error
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
}

// CreateAccountInput carries the caller-supplied fields for a new account.
type CreateAccountInput struct {
	Name        string
	Description string
	Roles       []string
	Scopes      []string
	AllowedIPs  []string
	RateLimit   *int
}

// CredentialService issues and verifies service-account credentials.
type CredentialService struct {
	accounts  AccountStore
	tenants   TenantStore
	snapshots *cache.SnapshotCache
	auditor   *audit.Sink
	publisher *events.Publisher
	logger    *logrus.Logger

	bcryptCost   int
	storeTimeout time.Duration

	// dummyHash is compared against for unknown client ids so lookup
	// misses cost the same as a wrong secret.
	dummyHash []byte

	// sem bounds concurrent bcrypt work.
	sem chan struct{}
}

func NewCredentialService(accounts AccountStore, tenants TenantStore, snapshots *cache.SnapshotCache, auditor *audit.Sink, publisher *events.Publisher, logger *logrus.Logger, bcryptCost, hashWorkers int, storeTimeout time.Duration) (*CredentialService, error) {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = 12
	}
	if hashWorkers <= 0 {
		hashWorkers = 2 * runtime.NumCPU()
	}

	filler := make([]byte, 32)
	if _, err := rand.Read(filler); err != nil {
		return nil, fmt.Errorf("failed to seed dummy hash: %w", err)
	}
	dummyHash, err := bcrypt.GenerateFromPassword(filler, bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dummy hash: %w", err)
	}

	return &CredentialService{
		accounts:     accounts,
		tenants:      tenants,
		snapshots:    snapshots,
		auditor:      auditor,
		publisher:    publisher,
		logger:       logger,
		bcryptCost:   bcryptCost,
		storeTimeout: storeTimeout,
		dummyHash:    dummyHash,
		sem:          make(chan struct{}, hashWorkers),
	}, nil
}

// Create provisions a new service account under the given tenant. The raw
// secret is returned exactly once and only its bcrypt hash is stored.
func (s *CredentialService) Create(ctx context.Context, tenantID uuid.UUID, input CreateAccountInput) (*models.ServiceAccount, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	if tenant == nil {
		return nil, "", apperrors.NewUnknownTenant()
	}

	clientID, err := generateClientID()
	if err != nil {
		return nil, "", err
	}
	secret, err := generateSecret()
	if err != nil {
		return nil, "", err
	}

	hash, err := s.hashSecret(ctx, secret)
	if err != nil {
		return nil, "", err
	}

	account := &models.ServiceAccount{
		ClientID:     clientID,
		SecretHash:   string(hash),
		Name:         input.Name,
		Description:  input.Description,
		TenantID:     tenantID,
		IsActive:     true,
		TokenVersion: 1,
		Roles:        models.StringArray(input.Roles),
		Scopes:       models.StringArray(input.Scopes),
		AllowedIPs:   models.StringArray(input.AllowedIPs),
		RateLimit:    input.RateLimit,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, "", err
	}

	s.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"tenant_id": tenantID,
	}).Info("Service account created")

	return account, secret, nil
}

// Verify checks client credentials and returns the account on success.
// The bcrypt comparison cost is always paid, including for unknown client
// ids, so response timing does not reveal whether a client id exists.
func (s *CredentialService) Verify(ctx context.Context, clientID, secret, ip, userAgent, correlationID string) (*models.ServiceAccount, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	account, err := s.accounts.GetByClientID(lookupCtx, clientID)
	if err != nil {
		return nil, err
	}

	if account == nil {
		// Pay the comparison cost anyway. The result is discarded.
		s.compareSecret(ctx, s.dummyHash, secret)
		s.recordAttempt(ctx, nil, clientID, false, apperrors.CodeInvalidCredentials, ip, userAgent, correlationID)
		return nil, apperrors.NewInvalidCredentials()
	}

	match, err := s.compareSecret(ctx, []byte(account.SecretHash), secret)
	if err != nil {
		return nil, err
	}

	// Disabled wins over a wrong secret, but only after the comparison
	// cost has been paid.
	if !account.IsActive {
		s.recordAttempt(ctx, account, clientID, false, apperrors.CodeDisabledPrincipal, ip, userAgent, correlationID)
		return nil, apperrors.NewDisabledPrincipal()
	}
	if !match {
		s.recordAttempt(ctx, account, clientID, false, apperrors.CodeInvalidCredentials, ip, userAgent, correlationID)
		return nil, apperrors.NewInvalidCredentials()
	}

	tenant, err := s.tenants.GetByID(lookupCtx, account.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		s.recordAttempt(ctx, account, clientID, false, apperrors.CodeUnknownTenant, ip, userAgent, correlationID)
		return nil, apperrors.NewUnknownTenant()
	}
	if !tenant.IsActive {
		s.recordAttempt(ctx, account, clientID, false, apperrors.CodeInactiveTenant, ip, userAgent, correlationID)
		return nil, apperrors.NewInactiveTenant()
	}

	if !account.IsIPAllowed(ip) {
		s.recordAttempt(ctx, account, clientID, false, apperrors.CodeIPNotAllowed, ip, userAgent, correlationID)
		return nil, apperrors.NewIPNotAllowed()
	}

	s.recordAttempt(ctx, account, clientID, true, "", ip, userAgent, correlationID)
	if err := s.accounts.TouchLastUsed(lookupCtx, account.ID); err != nil {
		s.logger.WithError(err).WithField("client_id", clientID).Debug("Failed to update last_used_at")
	}

	account.Tenant = tenant
	return account, nil
}

// Disable deactivates the account and invalidates all outstanding tokens.
func (s *CredentialService) Disable(ctx context.Context, id uuid.UUID) error {
	return s.changeState(ctx, id, "disabled", s.accounts.Disable)
}

// Enable reactivates the account without restoring revoked tokens.
func (s *CredentialService) Enable(ctx context.Context, id uuid.UUID) error {
	return s.changeState(ctx, id, "enabled", s.accounts.Enable)
}

// RevokeTokens invalidates all outstanding tokens while leaving the
// credential usable for new issuance.
func (s *CredentialService) RevokeTokens(ctx context.Context, id uuid.UUID) error {
	return s.changeState(ctx, id, "tokens_revoked", s.accounts.RevokeTokens)
}

func (s *CredentialService) changeState(ctx context.Context, id uuid.UUID, state string, op func(context.Context, uuid.UUID) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if account == nil {
		return apperrors.NewNotFound("service account")
	}
	if err := op(ctx, id); err != nil {
		return err
	}

	if s.snapshots != nil {
		s.snapshots.Invalidate(ctx, uuid.Nil, account.ClientID)
	}
	if err := s.publisher.PublishAccountState(ctx, &events.AccountStateEvent{
		ClientID: account.ClientID,
		TenantID: account.TenantID.String(),
		State:    state,
	}); err != nil {
		s.logger.WithError(err).Debug("Account state event not published")
	}

	// Disabling an account also invalidates its outstanding tokens.
	if state != "enabled" {
		if err := s.publisher.PublishTokenRevoked(ctx, &events.TokenEvent{
			ClientID: account.ClientID,
			TenantID: account.TenantID.String(),
		}); err != nil {
			s.logger.WithError(err).Debug("Token revoked event not published")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"client_id": account.ClientID,
		"state":     state,
	}).Info("Service account state changed")
	return nil
}

func (s *CredentialService) GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperrors.NewNotFound("service account")
	}
	return account, nil
}

func (s *CredentialService) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.ServiceAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.accounts.ListByTenant(ctx, tenantID)
}

// hashSecret and compareSecret run bcrypt on a bounded worker pool so a
// burst of verifications cannot monopolize CPU. Slot acquisition respects
// the caller's deadline.
func (s *CredentialService) hashSecret(ctx context.Context, secret string) ([]byte, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, apperrors.NewTimeout(ctx.Err())
	}
	defer func() { <-s.sem }()
	return bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
}

func (s *CredentialService) compareSecret(ctx context.Context, hash []byte, secret string) (bool, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return false, apperrors.NewTimeout(ctx.Err())
	}
	defer func() { <-s.sem }()
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil, nil
}

func (s *CredentialService) recordAttempt(ctx context.Context, account *models.ServiceAccount, clientID string, success bool, reason apperrors.Code, ip, userAgent, correlationID string) {
	entry := audit.Entry{
		ClientID:      clientID,
		Success:       success,
		FailureReason: string(reason),
		IPAddress:     ip,
		UserAgent:     userAgent,
		CorrelationID: correlationID,
	}
	if account != nil {
		entry.ServiceAccountID = &account.ID
		entry.TenantID = &account.TenantID
	}
	s.auditor.Record(ctx, entry)
}

func generateClientID() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate client id: %w", err)
	}
	return "client_" + hex.EncodeToString(b), nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate client secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
