package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/localnerve/reportdesk/internal/config"
	"github.com/localnerve/reportdesk/internal/identity"
	"github.com/localnerve/reportdesk/internal/logging"
	"github.com/localnerve/reportdesk/internal/realtime"
	"github.com/localnerve/reportdesk/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type stubProvider struct {
	identity.Provider
	err error
}

func (stubProvider) Name() string { return "stub" }

func (p stubProvider) Ping(context.Context) error { return p.err }

// mockStore builds a GormStore over sqlmock so pings can be scripted
func mockStore(t *testing.T) (*store.GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return store.NewGormStore(db, realtime.NopPublisher{}, logging.Nop()), mock
}

func TestHealthCheck(t *testing.T) {
	cfg := &config.Config{BackendMode: config.BackendDatabase, DBType: "mysql"}
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		s, mock := mockStore(t)
		mock.ExpectPing()

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		result := HealthCheck(ctx, cfg, Checks{Store: s, Identity: stubProvider{}, Redis: client}, logging.Nop())
		assert.Equal(t, "healthy", result.Status)
		assert.Equal(t, "ok", result.Backend)
		assert.Equal(t, "ok", result.Identity)
		assert.Equal(t, "ok", result.Redis)
		assert.Equal(t, "mysql", result.Details["database_type"])
		assert.Equal(t, "stub", result.Details["identity_provider"])
		assert.Empty(t, result.ErrorMessage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("backend down", func(t *testing.T) {
		s, mock := mockStore(t)
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		result := HealthCheck(ctx, cfg, Checks{Store: s, Identity: stubProvider{}}, logging.Nop())
		assert.Equal(t, "unhealthy", result.Status)
		assert.Equal(t, "unreachable", result.Backend)
		assert.Equal(t, "ok", result.Identity)
		assert.Empty(t, result.Redis)
		assert.Contains(t, result.ErrorMessage, "backend ping failed")
		assert.Equal(t, "connection refused", result.Details["backend_error"])
	})

	t.Run("errors accumulate", func(t *testing.T) {
		s, mock := mockStore(t)
		mock.ExpectPing().WillReturnError(errors.New("db gone"))

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		mr.Close()

		result := HealthCheck(ctx, cfg, Checks{
			Store:    s,
			Identity: stubProvider{err: errors.New("auth gone")},
			Redis:    client,
		}, logging.Nop())
		assert.Equal(t, "unhealthy", result.Status)
		assert.Equal(t, "unreachable", result.Identity)
		assert.Equal(t, "unreachable", result.Redis)
		assert.Contains(t, result.ErrorMessage, "backend ping failed: db gone; identity ping failed: auth gone; redis ping failed")
	})
}
