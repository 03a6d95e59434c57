package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/relation-engine/relation-engine/internal/models"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Follow{},
		&models.Connection{},
		&models.Block{},
	))
	return db
}

func TestFollowUniquePair(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewFollowRepository(db)
	a, b := uuid.New(), uuid.New()

	require.NoError(t, repo.Create(ctx, &models.Follow{FollowerID: a, FollowedID: b}))

	// 唯一索引兜底并发插入
	err := repo.Create(ctx, &models.Follow{FollowerID: a, FollowedID: b})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// 反方向是另一行
	require.NoError(t, repo.Create(ctx, &models.Follow{FollowerID: b, FollowedID: a}))
}

func TestConnectionUniquePairKey(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewConnectionRepository(db)
	a, b := uuid.New(), uuid.New()

	require.NoError(t, repo.Create(ctx, &models.Connection{
		RequesterID: a,
		RecipientID: b,
		Status:      models.ConnectionStatusPending,
		PairKey:     models.ConnectionPairKey(a, b),
	}))

	// pair_key 不分方向，反向插入同样撞唯一索引
	err := repo.Create(ctx, &models.Connection{
		RequesterID: b,
		RecipientID: a,
		Status:      models.ConnectionStatusPending,
		PairKey:     models.ConnectionPairKey(b, a),
	})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestConnectionPairKeyCanonical(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, models.ConnectionPairKey(a, b), models.ConnectionPairKey(b, a))

	low, high := models.OrderedPair(a, b)
	low2, high2 := models.OrderedPair(b, a)
	assert.Equal(t, low, low2)
	assert.Equal(t, high, high2)
}

func TestFollowDeleteBetween(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewFollowRepository(db)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, repo.Create(ctx, &models.Follow{FollowerID: a, FollowedID: b}))
	require.NoError(t, repo.Create(ctx, &models.Follow{FollowerID: b, FollowedID: a}))
	require.NoError(t, repo.Create(ctx, &models.Follow{FollowerID: a, FollowedID: c}))

	deleted, err := repo.DeleteBetween(ctx, a, b)
	require.NoError(t, err)
	assert.Len(t, deleted, 2)

	// 无关的第三方不受影响
	ok, err := repo.IsFollowing(ctx, a, c)
	require.NoError(t, err)
	assert.True(t, ok)
}
