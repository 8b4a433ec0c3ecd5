// config.go
//
// A compliance report review and analysis-agent gateway service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of reportdesk.
// reportdesk is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// reportdesk is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with reportdesk.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend modes
const (
	BackendDatabase  = "database"
	BackendPostgREST = "postgrest"
)

// Identity providers
const (
	IdentityLocal      = "local"
	IdentityGoTrue     = "gotrue"
	IdentityAuthorizer = "authorizer"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port      string
	PublicURL string

	// Logging
	LogLevel  string
	LogFormat string

	// Backend contract
	BackendMode     string // database, postgrest
	PostgRESTURL    string
	PostgRESTAPIKey string

	// Database configuration (database backend)
	DBType            string // mysql, postgres, sqlite, sqlite-purego, sqlserver
	DBHost            string
	DBPort            string
	DBDatabase        string
	DBUser            string
	DBPassword        string
	DBConnectionLimit int

	// Identity configuration
	IdentityProvider string // local, gotrue, authorizer
	GoTrueURL        string
	GoTrueAPIKey     string
	AuthzURL         string
	AuthzClientID    string
	JWTSecret        string
	SessionTTL       time.Duration
	RecoveryTTL      time.Duration

	// Redis (optional; enables the change stream bridge and shared confirmations)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventsStream  string

	// Pending action confirmations
	ConfirmTTL time.Duration

	// Analysis agents and webhooks
	AgentsConfig         string
	Agents               *AgentCatalog
	WebhookTimeout       time.Duration
	UploadMaxBytes       int
	BugReportURL         string
	ConfirmationEmailURL string

	// Listings
	ReportsPerPage int
	UsersPerPage   int
}

// Load loads configuration from the environment, reading a .env file first when present
func Load() (*Config, error) {
	if envFile := getEnv("ENV_FILE", ".env"); envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "3000"),
		PublicURL:            strings.TrimSuffix(getEnv("PUBLIC_URL", "http://localhost:3000"), "/"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		BackendMode:          getEnv("BACKEND_MODE", BackendDatabase),
		PostgRESTURL:         strings.TrimSuffix(getEnv("POSTGREST_URL", ""), "/"),
		PostgRESTAPIKey:      getEnv("POSTGREST_API_KEY", ""),
		DBType:               getEnv("DB_TYPE", "sqlite"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBDatabase:           getEnv("DB_DATABASE", "reportdesk.db"),
		DBUser:               getEnv("DB_USER", ""),
		DBPassword:           getEnv("DB_PASSWORD", ""),
		DBConnectionLimit:    getEnvAsInt("DB_CONNECTION_LIMIT", 5),
		IdentityProvider:     getEnv("IDENTITY_PROVIDER", IdentityLocal),
		GoTrueURL:            strings.TrimSuffix(getEnv("GOTRUE_URL", ""), "/"),
		GoTrueAPIKey:         getEnv("GOTRUE_API_KEY", ""),
		AuthzURL:             getEnv("AUTHZ_URL", ""),
		AuthzClientID:        getEnv("AUTHZ_CLIENT_ID", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		SessionTTL:           getEnvAsDuration("SESSION_TTL", 12*time.Hour),
		RecoveryTTL:          getEnvAsDuration("RECOVERY_TTL", time.Hour),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvAsInt("REDIS_DB", 0),
		EventsStream:         getEnv("EVENTS_STREAM", "reportdesk:changes"),
		ConfirmTTL:           getEnvAsDuration("CONFIRM_TTL", 5*time.Minute),
		AgentsConfig:         getEnv("AGENTS_CONFIG", ""),
		WebhookTimeout:       getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Minute),
		UploadMaxBytes:       getEnvAsInt("UPLOAD_MAX_BYTES", 50*1024*1024),
		BugReportURL:         getEnv("BUG_REPORT_URL", "https://gluagents.xyz/webhook/bug-report"),
		ConfirmationEmailURL: getEnv("CONFIRMATION_EMAIL_URL", "https://gluagents.xyz/webhook/send-confirmation"),
		ReportsPerPage:       getEnvAsInt("REPORTS_PER_PAGE", 10),
		UsersPerPage:         getEnvAsInt("USERS_PER_PAGE", 5),
	}

	agents, err := LoadAgents(cfg.AgentsConfig)
	if err != nil {
		return nil, err
	}
	cfg.Agents = agents

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the selected backend and identity provider have what they need
func (cfg *Config) Validate() error {
	switch cfg.BackendMode {
	case BackendDatabase:
		if cfg.DBDatabase == "" {
			return fmt.Errorf("DB_DATABASE is required")
		}
	case BackendPostgREST:
		if cfg.PostgRESTURL == "" {
			return fmt.Errorf("POSTGREST_URL is required")
		}
	default:
		return fmt.Errorf("unsupported backend mode: %s", cfg.BackendMode)
	}

	switch cfg.IdentityProvider {
	case IdentityLocal:
		if cfg.BackendMode != BackendDatabase {
			return fmt.Errorf("the local identity provider requires BACKEND_MODE=%s", BackendDatabase)
		}
		if cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required")
		}
	case IdentityGoTrue:
		if cfg.GoTrueURL == "" {
			return fmt.Errorf("GOTRUE_URL is required")
		}
	case IdentityAuthorizer:
		if cfg.AuthzURL == "" {
			return fmt.Errorf("AUTHZ_URL is required")
		}
		if cfg.AuthzClientID == "" {
			return fmt.Errorf("AUTHZ_CLIENT_ID is required")
		}
	default:
		return fmt.Errorf("unsupported identity provider: %s", cfg.IdentityProvider)
	}

	if cfg.ReportsPerPage <= 0 {
		return fmt.Errorf("REPORTS_PER_PAGE must be positive")
	}
	if cfg.UsersPerPage <= 0 {
		return fmt.Errorf("USERS_PER_PAGE must be positive")
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("90s") or whole seconds ("90")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
