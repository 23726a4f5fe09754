package audit

import (
	"context"
	"fmt"
	"time"

	"authz-service/internal/events"
	"authz-service/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// UsageLogStore persists append-only attempt records.
type UsageLogStore interface {
	Create(ctx context.Context, entry *models.UsageLog) error
}

// Entry describes one authentication or authorization attempt.
type Entry struct {
	ServiceAccountID *uuid.UUID
	ClientID         string
	TenantID         *uuid.UUID
	Success          bool
	FailureReason    string
	IPAddress        string
	UserAgent        string
	CorrelationID    string
}

// Sink records every attempt to the database, publishes it to NATS, and
// writes a structured log line. It sits off the grant/deny path: recording
// failures are logged, never returned to the request.
type Sink struct {
	store     UsageLogStore
	publisher *events.Publisher
	redis     *redis.Client
	logger    *logrus.Logger

	flagThreshold int
	flagWindow    time.Duration
}

func NewSink(store UsageLogStore, publisher *events.Publisher, redisClient *redis.Client, logger *logrus.Logger, flagThreshold int, flagWindow time.Duration) *Sink {
	return &Sink{
		store:         store,
		publisher:     publisher,
		redis:         redisClient,
		logger:        logger,
		flagThreshold: flagThreshold,
		flagWindow:    flagWindow,
	}
}

func (s *Sink) Record(ctx context.Context, entry Entry) {
	log := &models.UsageLog{
		ServiceAccountID: entry.ServiceAccountID,
		ClientID:         entry.ClientID,
		TenantID:         entry.TenantID,
		Success:          entry.Success,
		FailureReason:    entry.FailureReason,
		IPAddress:        entry.IPAddress,
		UserAgent:        entry.UserAgent,
		CorrelationID:    entry.CorrelationID,
	}
	if err := s.store.Create(ctx, log); err != nil {
		s.logger.WithError(err).WithField("client_id", entry.ClientID).Error("Failed to persist usage log")
	}

	event := &events.AuthAttemptEvent{
		ClientID:      entry.ClientID,
		Success:       entry.Success,
		FailureReason: entry.FailureReason,
		IPAddress:     entry.IPAddress,
		UserAgent:     entry.UserAgent,
		CorrelationID: entry.CorrelationID,
	}
	if entry.TenantID != nil {
		event.TenantID = entry.TenantID.String()
	}
	if err := s.publisher.PublishAuthAttempt(ctx, event); err != nil {
		s.logger.WithError(err).Debug("Auth attempt event not published")
	}

	fields := logrus.Fields{
		"client_id":      entry.ClientID,
		"success":        entry.Success,
		"ip":             entry.IPAddress,
		"correlation_id": entry.CorrelationID,
	}
	if entry.FailureReason != "" {
		fields["reason"] = entry.FailureReason
	}
	if entry.Success {
		s.logger.WithFields(fields).Info("Authentication attempt")
	} else {
		s.logger.WithFields(fields).Warn("Authentication attempt failed")
		s.flagRepeatedFailures(ctx, entry)
	}
}

// flagRepeatedFailures counts failures per source in a fixed redis window
// and emits a security-monitoring warning once the threshold is crossed.
func (s *Sink) flagRepeatedFailures(ctx context.Context, entry Entry) {
	if s.redis == nil {
		return
	}
	source := entry.ClientID
	if source == "" {
		source = entry.IPAddress
	}
	key := fmt.Sprintf("authz:abuse:%s", source)

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	if count == 1 {
		s.redis.Expire(ctx, key, s.flagWindow)
	}
	if count >= int64(s.flagThreshold) {
		s.logger.WithFields(logrus.Fields{
			"source":         source,
			"failures":       count,
			"window":         s.flagWindow.String(),
			"correlation_id": entry.CorrelationID,
		}).Warn("Repeated authentication failures flagged for security monitoring")
	}
}
