// Package testenv starts throwaway Postgres and Redis containers for
// integration runs. It is used by the integration tests and by cmd/testcontainers.
// Expects environment variables to be loaded from .env files.
package testenv

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/localnerve/reportdesk/internal/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Containers are the running dependencies
type Containers struct {
	Network        *testcontainers.DockerNetwork
	DBContainer    testcontainers.Container
	RedisContainer testcontainers.Container

	// Host side addresses
	DBHost    string
	DBPort    string
	RedisAddr string
}

// Terminate stops every container and removes the network
func (tc *Containers) Terminate(t *testing.T) {
	ctx := context.Background()
	if tc.RedisContainer != nil {
		if err := tc.RedisContainer.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate Redis: %v", err)
		}
	}
	if tc.DBContainer != nil {
		if err := tc.DBContainer.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate Postgres: %v", err)
		}
	}
	if tc.Network != nil {
		if err := tc.Network.Remove(ctx); err != nil {
			logMessage(t, "Failed to remove network: %v", err)
		}
	}
}

// Config returns a database backend configuration pointing at the containers
func (tc *Containers) Config() *config.Config {
	return &config.Config{
		BackendMode:       config.BackendDatabase,
		DBType:            "postgres",
		DBHost:            tc.DBHost,
		DBPort:            tc.DBPort,
		DBDatabase:        getEnv("DB_DATABASE", "reportdesk"),
		DBUser:            getEnv("DB_USER", "reportdesk"),
		DBPassword:        getEnv("DB_PASSWORD", "reportdesk"),
		DBConnectionLimit: 5,
		RedisAddr:         tc.RedisAddr,
		EventsStream:      "reportdesk:changes",
		LogLevel:          "warn",
	}
}

// Start brings up Postgres and, unless SKIP_REDIS=true, Redis on a private network
func Start(t *testing.T) (*Containers, error) {
	ctx := context.Background()
	tc := &Containers{}

	nw, err := network.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}
	tc.Network = nw

	dbPort, err := nat.NewPort("tcp", "5432")
	if err != nil {
		tc.Terminate(t)
		return nil, fmt.Errorf("failed to create DB port: %w", err)
	}
	db, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        getEnv("DB_IMAGE", "postgres:16-alpine"),
			ExposedPorts: []string{string(dbPort)},
			Env: map[string]string{
				"POSTGRES_USER":     getEnv("DB_USER", "reportdesk"),
				"POSTGRES_PASSWORD": getEnv("DB_PASSWORD", "reportdesk"),
				"POSTGRES_DB":       getEnv("DB_DATABASE", "reportdesk"),
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
			Networks:       []string{nw.Name},
			NetworkAliases: map[string][]string{nw.Name: {"postgres"}},
		},
		Started: true,
	})
	if err != nil {
		tc.Terminate(t)
		return nil, fmt.Errorf("failed to start Postgres: %w", err)
	}
	tc.DBContainer = db

	if tc.DBHost, err = db.Host(ctx); err != nil {
		tc.Terminate(t)
		return nil, err
	}
	mapped, err := db.MappedPort(ctx, dbPort)
	if err != nil {
		tc.Terminate(t)
		return nil, err
	}
	tc.DBPort = mapped.Port()
	logMessage(t, "DB_HOST=%s DB_PORT=%s", tc.DBHost, tc.DBPort)

	if os.Getenv("SKIP_REDIS") == "true" {
		return tc, nil
	}

	redisPort, err := nat.NewPort("tcp", "6379")
	if err != nil {
		tc.Terminate(t)
		return nil, fmt.Errorf("failed to create Redis port: %w", err)
	}
	rc, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:          getEnv("REDIS_IMAGE", "redis:7-alpine"),
			ExposedPorts:   []string{string(redisPort)},
			WaitingFor:     wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
			Networks:       []string{nw.Name},
			NetworkAliases: map[string][]string{nw.Name: {"redis"}},
		},
		Started: true,
	})
	if err != nil {
		tc.Terminate(t)
		return nil, fmt.Errorf("failed to start Redis: %w", err)
	}
	tc.RedisContainer = rc

	redisHost, _ := rc.Host(ctx)
	redisMapped, err := rc.MappedPort(ctx, redisPort)
	if err != nil {
		tc.Terminate(t)
		return nil, err
	}
	tc.RedisAddr = fmt.Sprintf("%s:%s", redisHost, redisMapped.Port())
	logMessage(t, "REDIS_ADDR=%s", tc.RedisAddr)

	return tc, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func logMessage(t *testing.T, format string, args ...any) {
	if t != nil {
		t.Logf(format, args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}
