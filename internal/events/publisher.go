package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	SubjectAuthAttempt  = "auth.attempt"
	SubjectTokenIssued  = "auth.token.issued"
	SubjectTokenRevoked = "auth.token.revoked"
	SubjectAccountState = "auth.account.state_changed"
)

// AuthAttemptEvent is published for every credential or token verification.
type AuthAttemptEvent struct {
	EventType     string    `json:"event_type"`
	ClientID      string    `json:"client_id"`
	TenantID      string    `json:"tenant_id,omitempty"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failure_reason,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// TokenEvent is published when a token pair is issued and when an account's
// outstanding tokens are invalidated.
type TokenEvent struct {
	EventType string    `json:"event_type"`
	ClientID  string    `json:"client_id"`
	TenantID  string    `json:"tenant_id"`
	GrantType string    `json:"grant_type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AccountStateEvent is published when an account is disabled, enabled, or
// has its tokens revoked.
type AccountStateEvent struct {
	EventType string    `json:"event_type"`
	ClientID  string    `json:"client_id"`
	TenantID  string    `json:"tenant_id"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher wraps the NATS connection. All publishes are best effort; a nil
// publisher or dropped connection never fails the caller.
type Publisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

func NewPublisher(url string, logger *logrus.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("authz-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{
		conn:   conn,
		logger: logger.WithField("component", "events.publisher"),
	}, nil
}

func (p *Publisher) PublishAuthAttempt(ctx context.Context, event *AuthAttemptEvent) error {
	if p == nil || p.conn == nil {
		return nil
	}

	event.EventType = SubjectAuthAttempt
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.conn.Publish(SubjectAuthAttempt, data); err != nil {
		p.logger.WithError(err).WithField("client_id", event.ClientID).Error("Failed to publish auth attempt event")
		return err
	}
	return nil
}

func (p *Publisher) PublishTokenIssued(ctx context.Context, event *TokenEvent) error {
	return p.publishToken(SubjectTokenIssued, event)
}

func (p *Publisher) PublishTokenRevoked(ctx context.Context, event *TokenEvent) error {
	return p.publishToken(SubjectTokenRevoked, event)
}

func (p *Publisher) publishToken(subject string, event *TokenEvent) error {
	if p == nil || p.conn == nil {
		return nil
	}

	event.EventType = subject
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"client_id": event.ClientID,
			"subject":   subject,
		}).Error("Failed to publish token event")
		return err
	}
	return nil
}

func (p *Publisher) PublishAccountState(ctx context.Context, event *AccountStateEvent) error {
	if p == nil || p.conn == nil {
		return nil
	}

	event.EventType = SubjectAccountState
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.conn.Publish(SubjectAccountState, data); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"client_id": event.ClientID,
			"state":     event.State,
		}).Error("Failed to publish account state event")
		return err
	}
	return nil
}

// IsConnected returns true if connected to NATS
func (p *Publisher) IsConnected() bool {
	return p != nil && p.conn != nil && p.conn.IsConnected()
}

// Close closes the publisher connection
func (p *Publisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}
