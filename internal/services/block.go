package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/relation-engine/relation-engine/internal/models"
	"github.com/relation-engine/relation-engine/internal/repository"
	"github.com/relation-engine/relation-engine/pkg/logger"
	"github.com/relation-engine/relation-engine/pkg/queue"
	"gorm.io/gorm"
)

// BlockService 单向拉黑与级联清理
type BlockService struct {
	db       *gorm.DB
	identity *IdentityService
	producer *queue.KafkaProducer
	logger   *logger.Logger
}

func NewBlockService(db *gorm.DB, identity *IdentityService, producer *queue.KafkaProducer, logger *logger.Logger) *BlockService {
	return &BlockService{
		db:       db,
		identity: identity,
		producer: producer,
		logger:   logger,
	}
}

// Block 拉黑对方，并在同一个事务里级联清理：
//  1. 删掉两个方向的关注，每删一行补一条 unfollow 历史
//  2. 删掉两人之间的连接（pending 或 accepted），补一条 removed 历史，发起人记为拉黑方
//  3. 插入拉黑行并写 block 历史
//
// 三步全部提交或全部回滚
func (s *BlockService) Block(ctx context.Context, blockerRef, blockedRef, reason string) error {
	blocker, blocked, err := s.identity.ResolvePair(ctx, blockerRef, blockedRef)
	if err != nil {
		return err
	}
	if blocker == blocked {
		return ErrSelfReference
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		blockRepo := repository.NewBlockRepository(tx)
		historyRepo := repository.NewHistoryRepository(tx)

		existing, err := blockRepo.Get(ctx, blocker, blocked)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyBlocked
		}

		follows, err := repository.NewFollowRepository(tx).DeleteBetween(ctx, blocker, blocked)
		if err != nil {
			return err
		}
		for _, f := range follows {
			if err := historyRepo.AppendFollow(ctx, f.FollowerID, f.FollowedID, models.FollowActionUnfollow, blocker); err != nil {
				return err
			}
		}

		conn, err := repository.NewConnectionRepository(tx).DeleteByPair(ctx, blocker, blocked)
		if err != nil {
			return err
		}
		if conn != nil {
			if err := historyRepo.AppendConnection(ctx, blocker, blocked, models.ConnectionActionRemoved, blocker); err != nil {
				return err
			}
		}

		block := &models.Block{BlockerID: blocker, BlockedID: blocked, Reason: reason}
		if err := blockRepo.Create(ctx, block); err != nil {
			return translateDuplicate(err, ErrAlreadyBlocked)
		}
		return historyRepo.AppendBlock(ctx, blocker, blocked, models.BlockActionBlock, blocker)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, queue.EventBlockCreated, blocker, blocked)

	s.logger.WithFields(map[string]interface{}{
		"blocker_id": blocker,
		"blocked_id": blocked,
	}).Info("User blocked successfully")
	return nil
}

// Unblock 解除拉黑，不会恢复拉黑时被级联删除的关系
func (s *BlockService) Unblock(ctx context.Context, blockerRef, blockedRef string) error {
	blocker, blocked, err := s.identity.ResolvePair(ctx, blockerRef, blockedRef)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := repository.NewBlockRepository(tx).Delete(ctx, blocker, blocked)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return ErrNotBlocked
		}
		return repository.NewHistoryRepository(tx).AppendBlock(ctx, blocker, blocked, models.BlockActionUnblock, blocker)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, queue.EventBlockDeleted, blocker, blocked)

	s.logger.WithFields(map[string]interface{}{
		"blocker_id": blocker,
		"blocked_id": blocked,
	}).Info("User unblocked successfully")
	return nil
}

func (s *BlockService) IsBlocked(ctx context.Context, blockerRef, blockedRef string) (bool, error) {
	blocker, blocked, err := s.identity.ResolvePair(ctx, blockerRef, blockedRef)
	if err != nil {
		return false, err
	}
	return repository.NewBlockRepository(s.db).IsBlocked(ctx, blocker, blocked)
}

// IsBlockedBy 反向查询：对方是否拉黑了自己
func (s *BlockService) IsBlockedBy(ctx context.Context, userRef, otherRef string) (bool, error) {
	user, other, err := s.identity.ResolvePair(ctx, userRef, otherRef)
	if err != nil {
		return false, err
	}
	return repository.NewBlockRepository(s.db).IsBlocked(ctx, other, user)
}

// CanInteract 两个方向都没有拉黑才允许互动
func (s *BlockService) CanInteract(ctx context.Context, aRef, bRef string) (bool, error) {
	a, b, err := s.identity.ResolvePair(ctx, aRef, bRef)
	if err != nil {
		return false, err
	}
	blocked, err := repository.NewBlockRepository(s.db).AnyBetween(ctx, a, b)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}

func (s *BlockService) ListBlocked(ctx context.Context, userRef string, offset, limit int) ([]*models.Block, error) {
	userID, err := s.identity.Resolve(ctx, userRef)
	if err != nil {
		return nil, err
	}
	return repository.NewBlockRepository(s.db).ListBlocked(ctx, userID, offset, limit)
}

func (s *BlockService) HistoryBetween(ctx context.Context, aRef, bRef string, offset, limit int) ([]*models.BlockHistory, error) {
	a, b, err := s.identity.ResolvePair(ctx, aRef, bRef)
	if err != nil {
		return nil, err
	}
	return repository.NewHistoryRepository(s.db).ListBlockBetween(ctx, a, b, offset, limit)
}

func (s *BlockService) publish(ctx context.Context, eventType queue.EventType, actor, target uuid.UUID) {
	if s.producer == nil {
		return
	}
	event := queue.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data: queue.RelationEventData{
			ActorID:  actor.String(),
			TargetID: target.String(),
		},
	}
	if err := s.producer.Publish(ctx, actor.String(), event); err != nil {
		s.logger.WithError(err).Error("Failed to publish block event")
	}
}
