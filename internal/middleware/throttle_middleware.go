package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"authz-service/internal/apperrors"
	"authz-service/internal/metrics"
	"authz-service/internal/throttle"
	"github.com/gin-gonic/gin"
)

// ThrottleMiddleware applies per-principal fixed-window limits. Requests are
// keyed by client_id once authenticated, by client IP before that, so one
// caller exhausting its window never affects another.
type ThrottleMiddleware struct {
	controller *throttle.Controller
	metrics    *metrics.Metrics
}

func NewThrottleMiddleware(controller *throttle.Controller, m *metrics.Metrics) *ThrottleMiddleware {
	return &ThrottleMiddleware{controller: controller, metrics: m}
}

// Limit throttles a named scope at the given per-minute rate.
func (t *ThrottleMiddleware) Limit(scope string, perMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := t.controller.Allow(c.Request.Context(), scope, throttleKey(c), perMinute, time.Minute)
		if !allowed {
			t.metrics.ThrottledTotal.WithLabelValues(scope).Inc()
			AbortWithError(c, apperrors.NewThrottled(retryAfter))
			return
		}
		c.Next()
	}
}

// LimitGeneral throttles authenticated traffic, honoring a per-account
// rate_limit override when one is set.
func (t *ThrottleMiddleware) LimitGeneral(defaultPerMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultPerMinute
		if rc := GetRequestContext(c); rc != nil && rc.Account != nil && rc.Account.RateLimit != nil {
			limit = *rc.Account.RateLimit
		}
		allowed, retryAfter := t.controller.Allow(c.Request.Context(), "general", throttleKey(c), limit, time.Minute)
		if !allowed {
			t.metrics.ThrottledTotal.WithLabelValues("general").Inc()
			AbortWithError(c, apperrors.NewThrottled(retryAfter))
			return
		}
		c.Next()
	}
}

// LimitByBodyClientID throttles unauthenticated credential routes by the
// client_id in the JSON body, falling back to client IP. The body is peeked
// and restored so the handler can still bind it.
func (t *ThrottleMiddleware) LimitByBodyClientID(scope string, perMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := extractClientIDFromBody(c)
		if key == "" {
			key = c.ClientIP()
		}
		allowed, retryAfter := t.controller.Allow(c.Request.Context(), scope, key, perMinute, time.Minute)
		if !allowed {
			t.metrics.ThrottledTotal.WithLabelValues(scope).Inc()
			AbortWithError(c, apperrors.NewThrottled(retryAfter))
			return
		}
		c.Next()
	}
}

func throttleKey(c *gin.Context) string {
	if clientID := c.GetString("client_id"); clientID != "" {
		return clientID
	}
	return c.ClientIP()
}

// extractClientIDFromBody peeks at the request body without consuming it
func extractClientIDFromBody(c *gin.Context) string {
	bodyBytes, err := c.GetRawData()
	if err != nil || len(bodyBytes) == 0 {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		return ""
	}
	return req.ClientID
}
