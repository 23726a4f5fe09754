package services

import (
	"context"
	"strings"
	"time"

	"authz-service/internal/apperrors"
	"authz-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Resolver turns an Authorization header into a verified RequestContext.
// It is the single entry point handlers use to establish identity; tenant
// identity comes only from verified claims, never from headers or bodies.
type Resolver struct {
	tokens       *TokenService
	logger       *logrus.Logger
	storeTimeout time.Duration
}

func NewResolver(tokens *TokenService, logger *logrus.Logger, storeTimeout time.Duration) *Resolver {
	return &Resolver{
		tokens:       tokens,
		logger:       logger,
		storeTimeout: storeTimeout,
	}
}

// ResolveBearer verifies the bearer token in the header. Infrastructure
// failures are retried once with a short backoff; every other failure is
// terminal and returned as-is.
func (r *Resolver) ResolveBearer(ctx context.Context, authorizationHeader string) (*models.RequestContext, error) {
	rawToken, ok := extractBearerToken(authorizationHeader)
	if !ok {
		return nil, apperrors.NewMissingToken()
	}

	rc, err := r.verify(ctx, rawToken)
	if err != nil && apperrors.IsInfrastructureError(err) {
		r.logger.WithError(err).Warn("Token verification hit infrastructure failure, retrying")
		select {
		case <-ctx.Done():
			return nil, apperrors.NewTimeout(ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
		rc, err = r.verify(ctx, rawToken)
	}
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (r *Resolver) verify(ctx context.Context, rawToken string) (*models.RequestContext, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	return r.tokens.Verify(ctx, rawToken)
}

func extractBearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
