package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relation-engine/relation-engine/internal/models"
	"github.com/relation-engine/relation-engine/internal/repository"
	"github.com/relation-engine/relation-engine/pkg/logger"
	"github.com/relation-engine/relation-engine/pkg/queue"
	"gorm.io/gorm"
)

// FollowService 单向关注操作
// 每个写操作都是一个事务：当前表与历史表要么一起落库要么一起回滚
type FollowService struct {
	db       *gorm.DB
	identity *IdentityService
	producer *queue.KafkaProducer
	logger   *logger.Logger
}

func NewFollowService(db *gorm.DB, identity *IdentityService, producer *queue.KafkaProducer, logger *logger.Logger) *FollowService {
	return &FollowService{
		db:       db,
		identity: identity,
		producer: producer,
		logger:   logger,
	}
}

func (s *FollowService) Follow(ctx context.Context, followerRef, followedRef string) error {
	follower, followed, err := s.identity.ResolvePair(ctx, followerRef, followedRef)
	if err != nil {
		return err
	}
	if follower == followed {
		return ErrSelfReference
	}

	blocked, err := repository.NewBlockRepository(s.db).AnyBetween(ctx, follower, followed)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlocked
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := repository.NewFollowRepository(tx).Get(ctx, follower, followed)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyFollowing
		}

		follow := &models.Follow{FollowerID: follower, FollowedID: followed}
		if err := repository.NewFollowRepository(tx).Create(ctx, follow); err != nil {
			// 并发重复插入由唯一索引兜底
			return translateDuplicate(err, ErrAlreadyFollowing)
		}
		return repository.NewHistoryRepository(tx).AppendFollow(ctx, follower, followed, models.FollowActionFollow, follower)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, queue.EventFollowCreated, follower, followed)

	s.logger.WithFields(map[string]interface{}{
		"follower_id": follower,
		"followed_id": followed,
	}).Info("User followed successfully")
	return nil
}

func (s *FollowService) Unfollow(ctx context.Context, followerRef, followedRef string) error {
	follower, followed, err := s.identity.ResolvePair(ctx, followerRef, followedRef)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := repository.NewFollowRepository(tx).Delete(ctx, follower, followed)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return ErrNotFollowing
		}
		return repository.NewHistoryRepository(tx).AppendFollow(ctx, follower, followed, models.FollowActionUnfollow, follower)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, queue.EventFollowDeleted, follower, followed)

	s.logger.WithFields(map[string]interface{}{
		"follower_id": follower,
		"followed_id": followed,
	}).Info("User unfollowed successfully")
	return nil
}

func (s *FollowService) IsFollowing(ctx context.Context, followerRef, followedRef string) (bool, error) {
	follower, followed, err := s.identity.ResolvePair(ctx, followerRef, followedRef)
	if err != nil {
		return false, err
	}
	return repository.NewFollowRepository(s.db).IsFollowing(ctx, follower, followed)
}

func (s *FollowService) ListFollowers(ctx context.Context, userRef string, offset, limit int) ([]*models.Follow, error) {
	userID, err := s.identity.Resolve(ctx, userRef)
	if err != nil {
		return nil, err
	}
	follows, err := repository.NewFollowRepository(s.db).ListFollowers(ctx, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list followers: %w", err)
	}
	return follows, nil
}

func (s *FollowService) ListFollowing(ctx context.Context, userRef string, offset, limit int) ([]*models.Follow, error) {
	userID, err := s.identity.Resolve(ctx, userRef)
	if err != nil {
		return nil, err
	}
	follows, err := repository.NewFollowRepository(s.db).ListFollowing(ctx, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list following: %w", err)
	}
	return follows, nil
}

func (s *FollowService) CountFollowers(ctx context.Context, userRef string) (int64, error) {
	userID, err := s.identity.Resolve(ctx, userRef)
	if err != nil {
		return 0, err
	}
	return repository.NewFollowRepository(s.db).CountFollowers(ctx, userID)
}

func (s *FollowService) CountFollowing(ctx context.Context, userRef string) (int64, error) {
	userID, err := s.identity.Resolve(ctx, userRef)
	if err != nil {
		return 0, err
	}
	return repository.NewFollowRepository(s.db).CountFollowing(ctx, userID)
}

// Profiles 补全关注行里出现的用户摘要，列表接口随行返回
func (s *FollowService) Profiles(ctx context.Context, follows []*models.Follow) ([]*models.User, error) {
	seen := make(map[uuid.UUID]bool, len(follows)*2)
	ids := make([]uuid.UUID, 0, len(follows)*2)
	for _, f := range follows {
		for _, id := range []uuid.UUID{f.FollowerID, f.FollowedID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	users, err := repository.NewUserRepository(s.db).ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load user profiles: %w", err)
	}
	return users, nil
}

// HistoryBetween 两人之间的关注历史，最近在前
func (s *FollowService) HistoryBetween(ctx context.Context, aRef, bRef string, offset, limit int) ([]*models.FollowHistory, error) {
	a, b, err := s.identity.ResolvePair(ctx, aRef, bRef)
	if err != nil {
		return nil, err
	}
	return repository.NewHistoryRepository(s.db).ListFollowBetween(ctx, a, b, offset, limit)
}

func (s *FollowService) publish(ctx context.Context, eventType queue.EventType, actor, target uuid.UUID) {
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
		s.logger.WithError(err).Error("Failed to publish follow event")
	}
}
