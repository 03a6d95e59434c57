package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/relation-engine/relation-engine/internal/models"
	"gorm.io/gorm"
)

type BlockRepository struct {
	db *gorm.DB
}

func NewBlockRepository(db *gorm.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

func (r *BlockRepository) Create(ctx context.Context, block *models.Block) error {
	// 唯一键冲突原样上抛
	return r.db.WithContext(ctx).Create(block).Error
}

func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&models.Block{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete block: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *BlockRepository) Get(ctx context.Context, blockerID, blockedID uuid.UUID) (*models.Block, error) {
	var block models.Block
	if err := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		First(&block).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return &block, nil
}

func (r *BlockRepository) IsBlocked(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Block{}).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check block status: %w", err)
	}
	return count > 0, nil
}

// AnyBetween 两个方向任一存在拉黑即为 true
func (r *BlockRepository) AnyBetween(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check blocks between users: %w", err)
	}
	return count > 0, nil
}

func (r *BlockRepository) ListBlocked(ctx context.Context, blockerID uuid.UUID, offset, limit int) ([]*models.Block, error) {
	var blocks []*models.Block
	if err := r.db.WithContext(ctx).
		Where("blocker_id = ?", blockerID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&blocks).Error; err != nil {
		return nil, fmt.Errorf("failed to list blocked users: %w", err)
	}
	return blocks, nil
}

func (r *BlockRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Block{}).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count blocks: %w", err)
	}
	return count, nil
}
