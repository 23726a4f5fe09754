package handlers

import (
	"net/http"
	"time"

	"authz-service/internal/events"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var startTime = time.Now()

type HealthHandler struct {
	db        *gorm.DB
	redis     *redis.Client
	publisher *events.Publisher
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client, publisher *events.Publisher) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, publisher: publisher}
}

// Health reports the service status and its dependency checks
func (h *HealthHandler) Health(c *gin.Context) {
	checks := gin.H{}
	status := "healthy"
	httpStatus := http.StatusOK

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			checks["database"] = gin.H{"status": "unhealthy", "message": err.Error()}
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = gin.H{"status": "healthy"}
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			// Degraded, not down: throttling and caching fall back in-process.
			checks["redis"] = gin.H{"status": "degraded", "message": err.Error()}
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["redis"] = gin.H{"status": "healthy"}
		}
	}

	if h.publisher != nil {
		if h.publisher.IsConnected() {
			checks["nats"] = gin.H{"status": "healthy"}
		} else {
			checks["nats"] = gin.H{"status": "degraded", "message": "not connected"}
			if status == "healthy" {
				status = "degraded"
			}
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"service":   "authz-service",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
