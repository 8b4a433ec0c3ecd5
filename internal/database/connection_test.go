package database

import (
	"testing"

	"github.com/localnerve/reportdesk/internal/config"
	"github.com/localnerve/reportdesk/internal/logging"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestDialectorNames(t *testing.T) {
	cases := map[string]string{
		"mysql":         "mysql",
		"mariadb":       "mysql",
		"postgres":      "postgres",
		"sqlite":        "sqlite",
		"sqlite-purego": "sqlite",
		"sqlserver":     "sqlserver",
	}
	for dbType, want := range cases {
		d, err := Dialector(&config.Config{DBType: dbType, DBDatabase: "x"})
		require.NoError(t, err, dbType)
		assert.Equal(t, want, d.Name(), dbType)
	}

	_, err := Dialector(&config.Config{DBType: "oracle"})
	assert.EqualError(t, err, "unsupported database type: oracle")
}

func TestConnectAndMigratePureGo(t *testing.T) {
	cfg := &config.Config{DBType: "sqlite-purego", DBDatabase: ":memory:", DBConnectionLimit: 5}

	db, err := Connect(cfg, logging.Nop())
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, AutoMigrate(db))

	site := models.Site{Name: "north", DisplayName: "North Plant", IsActive: true}
	require.NoError(t, db.Create(&site).Error)
	assert.NotEmpty(t, site.ID)

	var count int64
	require.NoError(t, db.Model(&models.Site{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, gormLogLevel("debug"))
	assert.Equal(t, logger.Warn, gormLogLevel("info"))
	assert.Equal(t, logger.Error, gormLogLevel("error"))
	assert.Equal(t, logger.Silent, gormLogLevel("off"))
}
