package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"bitbucket.org/flowshare/allocation_backend/config"
	"bitbucket.org/flowshare/allocation_backend/middlewares"
	"bitbucket.org/flowshare/allocation_backend/models"
	"bitbucket.org/flowshare/allocation_backend/utils"
	"bitbucket.org/flowshare/allocation_backend/workflow"
)

const defaultPort = "8080"

var tracer = otel.Tracer("flowshare-allocation")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// triggerReconciliation routes a freshly created run either to Pub/Sub (when a
// topic is configured) or to inline processing (local development). Either
// way the caller gets the run back with whatever status it reached.
func triggerReconciliation(c *gin.Context, recon *models.Reconciliation) {
	logger := config.GetLogger()
	correlationId, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	msg := config.ReconciliationTriggerMessage{
		ReconciliationId: recon.ID,
		TenantId:         recon.TenantId,
		CorrelationId:    correlationId,
	}

	if config.ReconciliationTriggerEnabled() {
		messageID, err := config.PublishReconciliationTriggered(c.Request.Context(), msg)
		if err != nil {
			config.LogError(logger, "server.go", "triggerReconciliation", "Publish trigger", msg, err)
			c.JSON(http.StatusAccepted, gin.H{
				"reconciliation": recon,
				"warning":        "run created but trigger publish failed; retrigger via pubsub",
			})
			return
		}
		logger.WithFields(logrus.Fields{
			"module":            "server.go",
			"tenant_id":         recon.TenantId,
			"reconciliation_id": recon.ID,
			"message_id":        messageID,
			"correlation_id":    correlationId,
		}).Info("reconciliation trigger published")
		c.JSON(http.StatusAccepted, gin.H{"reconciliation": recon})
		return
	}

	// Inline processing. Redis lock is a best-effort optimization; the MySQL
	// advisory lock inside the workflow is the real serialization.
	release, err := utils.TenantLock(c.Request.Context(), recon.TenantId, "reconciliation", "server.go", "triggerReconciliation")
	if err == nil {
		defer release()
	}

	db := config.GetDB()
	err = db.Transaction(func(tx *gorm.DB) error {
		return workflow.ProcessReconciliationWorkflow(tx, logger, msg)
	})
	if err != nil {
		config.LogError(logger, "server.go", "triggerReconciliation", "Inline processing", msg, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation processing failed"})
		return
	}

	refreshed, err := models.GetReconciliation(c.Request.Context(), recon.TenantId, recon.ID)
	if err != nil {
		writeModelError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reconciliation": refreshed})
}

func reconciliationPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg PubSubMessage
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "reconciliationPubSubHandler", "io.ReadAll", nil, err)
			// Malformed request body: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(logger, "server.go", "reconciliationPubSubHandler", "Unmarshal body", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var m config.ReconciliationTriggerMessage
		if err := json.Unmarshal(msg.Message.Data, &m); err != nil {
			config.LogError(logger, "server.go", "reconciliationPubSubHandler", "Unmarshal trigger message", msg.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}

		// Basic validation to avoid retry loops on poisoned messages.
		if m.TenantId == "" || m.ReconciliationId <= 0 {
			config.LogError(logger, "server.go", "reconciliationPubSubHandler", "Invalid trigger message (missing required fields)", m, fmt.Errorf("tenant_id/reconciliation_id required"))
			c.Status(http.StatusNoContent)
			return
		}

		correlationId := m.CorrelationId
		if correlationId == "" {
			correlationId = msg.Message.ID
		}

		// Best-effort redis lock per tenant to avoid long in-request blocking.
		// Reliability must not depend on Redis: the workflow serializes via a
		// MySQL advisory lock per (tenant, receipt).
		release, lockErr := utils.TenantLock(c.Request.Context(), m.TenantId, "reconciliation", "server.go", "reconciliationPubSubHandler")
		if lockErr != nil {
			logger.WithFields(logrus.Fields{
				"field":             "reconciliationPubSubHandler",
				"tenant_id":         m.TenantId,
				"reconciliation_id": m.ReconciliationId,
				"message_id":        msg.Message.ID,
			}).Warn("could not obtain redis lock; proceeding without redis lock: " + lockErr.Error())
		} else {
			defer release()
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), m.TenantId)
		ctx = utils.SetUserNameInContext(ctx, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)

		ctx, span := tracer.Start(ctx, "pubsub.reconciliation.process")
		defer span.End()

		db := config.GetDB()
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return workflow.ProcessReconciliationWorkflow(tx, logger, m)
		})
		if err != nil {
			logger.WithFields(logrus.Fields{
				"field":             "reconciliationPubSubHandler",
				"tenant_id":         m.TenantId,
				"reconciliation_id": m.ReconciliationId,
				"message_id":        msg.Message.ID,
				"correlation_id":    correlationId,
			}).Error("pubsub processing failed: " + err.Error())
			// Non-2xx tells Pub/Sub to retry (and potentially route to DLQ).
			c.Status(http.StatusInternalServerError)
			return
		}

		// Success: ack.
		c.Status(http.StatusNoContent)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	r.Use(middlewares.CorrelationIdMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-API-Key", "X-Tenant-Id", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "X-Correlation-Id")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api/v1", middlewares.RequireTenant())
	{
		api.POST("/production-entries", createProductionEntryHandler())
		api.GET("/production-entries", listProductionEntriesHandler())
		api.GET("/production-entries/:id", getProductionEntryHandler())
		api.PUT("/production-entries/:id", updateProductionEntryHandler())
		api.DELETE("/production-entries/:id", deleteProductionEntryHandler())
		api.POST("/production-entries/:id/submit", transitionProductionEntryHandler(models.ProductionEntryStatusPending))
		api.POST("/production-entries/:id/approve", transitionProductionEntryHandler(models.ProductionEntryStatusApproved))
		api.POST("/production-entries/:id/flag", transitionProductionEntryHandler(models.ProductionEntryStatusFlagged))
		api.POST("/production-entries/:id/reject", transitionProductionEntryHandler(models.ProductionEntryStatusRejected))

		api.POST("/terminal-receipts", createTerminalReceiptHandler())
		api.GET("/terminal-receipts", listTerminalReceiptsHandler())
		api.GET("/terminal-receipts/:id", getTerminalReceiptHandler())
		api.DELETE("/terminal-receipts/:id", deleteTerminalReceiptHandler())

		api.POST("/reconciliations", createReconciliationHandler())
		api.GET("/reconciliations", listReconciliationsHandler())
		api.GET("/reconciliations/:id", getReconciliationHandler())
		api.GET("/reconciliations/:id/export", exportReconciliationHandler())
	}

	r.POST("/pubsub/reconciliation", reconciliationPubSubHandler())
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Ensure the trigger topic exists when Pub/Sub dispatch is configured.
	if config.ReconciliationTriggerEnabled() {
		if client, err := config.GetPubSubClient(sigCtx); err != nil {
			config.LogError(logger, "server.go", "main", "Init pubsub client", nil, err)
		} else if _, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_RECONCILIATION_TOPIC")); err != nil {
			config.LogError(logger, "server.go", "main", "Ensure reconciliation topic", nil, err)
		}
	}

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP()

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
