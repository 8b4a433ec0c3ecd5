package services

import (
	"context"
	"fmt"
	"time"

	"github.com/localnerve/reportdesk/internal/config"
	"github.com/localnerve/reportdesk/internal/identity"
	"github.com/localnerve/reportdesk/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 3 * time.Second

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Backend      string            `json:"backend"`
	Identity     string            `json:"identity"`
	Redis        string            `json:"redis,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

// Checks are the dependencies a health check pings. Redis is optional.
type Checks struct {
	Store    store.Store
	Identity identity.Provider
	Redis    *redis.Client
}

func (r *HealthCheckResult) failed(component string, err error) {
	r.Status = "unhealthy"
	r.Details[component+"_error"] = err.Error()
	msg := fmt.Sprintf("%s ping failed: %v", component, err)
	if r.ErrorMessage == "" {
		r.ErrorMessage = msg
	} else {
		r.ErrorMessage += "; " + msg
	}
}

// HealthCheck performs a comprehensive health check of the service
func HealthCheck(ctx context.Context, cfg *config.Config, checks Checks, log *zap.Logger) HealthCheckResult {
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	// Check the backend
	if err := checks.Store.Ping(ctx); err != nil {
		result.Backend = "unreachable"
		result.failed("backend", err)
		log.Warn("Health check failed - backend ping", zap.Error(err))
	} else {
		result.Backend = "ok"
		result.Details["backend_mode"] = cfg.BackendMode
		if cfg.BackendMode == config.BackendDatabase {
			result.Details["database_type"] = cfg.DBType
		}
	}

	// Check the identity service
	if err := checks.Identity.Ping(ctx); err != nil {
		result.Identity = "unreachable"
		result.failed("identity", err)
		log.Warn("Health check failed - identity ping", zap.Error(err))
	} else {
		result.Identity = "ok"
		result.Details["identity_provider"] = checks.Identity.Name()
	}

	if checks.Redis != nil {
		if err := checks.Redis.Ping(ctx).Err(); err != nil {
			result.Redis = "unreachable"
			result.failed("redis", err)
			log.Warn("Health check failed - redis ping", zap.Error(err))
		} else {
			result.Redis = "ok"
		}
	}

	if result.Status == "healthy" {
		log.Debug("Health check passed - all systems operational")
	}

	return result
}
