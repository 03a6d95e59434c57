package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/relation-engine/relation-engine/internal/models"
	"github.com/relation-engine/relation-engine/internal/repository"
	"github.com/relation-engine/relation-engine/pkg/logger"
)

type testEngine struct {
	db          *gorm.DB
	identity    *IdentityService
	follows     *FollowService
	connections *ConnectionService
	blocks      *BlockService
	status      *StatusService
}

func setupEngine(t *testing.T) *testEngine {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// 内存库每个连接各自独立，收紧为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Follow{},
		&models.Connection{},
		&models.Block{},
		&models.FollowHistory{},
		&models.ConnectionHistory{},
		&models.BlockHistory{},
	))

	log := logger.NewLogger()
	identity := NewIdentityService(repository.NewUserRepository(db))

	return &testEngine{
		db:          db,
		identity:    identity,
		follows:     NewFollowService(db, identity, nil, log),
		connections: NewConnectionService(db, identity, nil, log),
		blocks:      NewBlockService(db, identity, nil, log),
		status:      NewStatusService(db, identity, nil, log),
	}
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Password: "secret",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&count).Error)
	return count
}
