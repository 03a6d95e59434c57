package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/relation-engine/relation-engine/internal/models"
	"gorm.io/gorm"
)

// FollowRepository 关注表的读写
// 只包一层 *gorm.DB，事务内用 NewFollowRepository(tx) 绑定事务句柄
type FollowRepository struct {
	db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) *FollowRepository {
	return &FollowRepository{db: db}
}

func (r *FollowRepository) Create(ctx context.Context, follow *models.Follow) error {
	if err := r.db.WithContext(ctx).Create(follow).Error; err != nil {
		// 唯一键冲突原样上抛，由 service 翻译成领域错误
		return err
	}
	return nil
}

func (r *FollowRepository) Delete(ctx context.Context, followerID, followedID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&models.Follow{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete follow: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteBetween 删除两人之间任意方向的关注，返回被删的行（拉黑级联要为每行补历史）
func (r *FollowRepository) DeleteBetween(ctx context.Context, a, b uuid.UUID) ([]*models.Follow, error) {
	var follows []*models.Follow
	if err := r.db.WithContext(ctx).
		Where("(follower_id = ? AND followed_id = ?) OR (follower_id = ? AND followed_id = ?)", a, b, b, a).
		Find(&follows).Error; err != nil {
		return nil, fmt.Errorf("failed to find follows between users: %w", err)
	}
	if len(follows) == 0 {
		return nil, nil
	}
	if err := r.db.WithContext(ctx).
		Where("(follower_id = ? AND followed_id = ?) OR (follower_id = ? AND followed_id = ?)", a, b, b, a).
		Delete(&models.Follow{}).Error; err != nil {
		return nil, fmt.Errorf("failed to delete follows between users: %w", err)
	}
	return follows, nil
}

func (r *FollowRepository) Get(ctx context.Context, followerID, followedID uuid.UUID) (*models.Follow, error) {
	var follow models.Follow
	if err := r.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		First(&follow).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get follow: %w", err)
	}
	return &follow, nil
}

func (r *FollowRepository) IsFollowing(ctx context.Context, followerID, followedID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check follow status: %w", err)
	}
	return count > 0, nil
}

func (r *FollowRepository) ListFollowers(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Follow, error) {
	var follows []*models.Follow
	if err := r.db.WithContext(ctx).
		Where("followed_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&follows).Error; err != nil {
		return nil, fmt.Errorf("failed to list followers: %w", err)
	}
	return follows, nil
}

func (r *FollowRepository) ListFollowing(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Follow, error) {
	var follows []*models.Follow
	if err := r.db.WithContext(ctx).
		Where("follower_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&follows).Error; err != nil {
		return nil, fmt.Errorf("failed to list following: %w", err)
	}
	return follows, nil
}

func (r *FollowRepository) CountFollowers(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("followed_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count followers: %w", err)
	}
	return count, nil
}

func (r *FollowRepository) CountFollowing(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count following: %w", err)
	}
	return count, nil
}

func (r *FollowRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count follows: %w", err)
	}
	return count, nil
}
