package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/relation-engine/relation-engine/internal/models"
	"gorm.io/gorm"
)

// HistoryRepository 三张历史表的只插入写入与按对查询
// 历史行一旦写入不再更新或删除
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) AppendFollow(ctx context.Context, followerID, followedID uuid.UUID, action string, actorID uuid.UUID) error {
	entry := &models.FollowHistory{
		FollowerID: followerID,
		FollowedID: followedID,
		Action:     action,
		ActorID:    actorID,
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append follow history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) AppendConnection(ctx context.Context, a, b uuid.UUID, action string, actorID uuid.UUID) error {
	// 参与双方规范排序，查两人之间的全部记录不用按方向分支
	low, high := models.OrderedPair(a, b)
	entry := &models.ConnectionHistory{
		UserLowID:  low,
		UserHighID: high,
		Action:     action,
		ActorID:    actorID,
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append connection history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) AppendBlock(ctx context.Context, blockerID, blockedID uuid.UUID, action string, actorID uuid.UUID) error {
	entry := &models.BlockHistory{
		BlockerID: blockerID,
		BlockedID: blockedID,
		Action:    action,
		ActorID:   actorID,
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append block history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) ListFollowBetween(ctx context.Context, a, b uuid.UUID, offset, limit int) ([]*models.FollowHistory, error) {
	var entries []*models.FollowHistory
	if err := r.db.WithContext(ctx).
		Where("(follower_id = ? AND followed_id = ?) OR (follower_id = ? AND followed_id = ?)", a, b, b, a).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list follow history: %w", err)
	}
	return entries, nil
}

func (r *HistoryRepository) ListConnectionBetween(ctx context.Context, a, b uuid.UUID, offset, limit int) ([]*models.ConnectionHistory, error) {
	low, high := models.OrderedPair(a, b)
	var entries []*models.ConnectionHistory
	if err := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list connection history: %w", err)
	}
	return entries, nil
}

func (r *HistoryRepository) ListBlockBetween(ctx context.Context, a, b uuid.UUID, offset, limit int) ([]*models.BlockHistory, error) {
	var entries []*models.BlockHistory
	if err := r.db.WithContext(ctx).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list block history: %w", err)
	}
	return entries, nil
}
