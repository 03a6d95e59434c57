package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/relation-engine/relation-engine/internal/models"
	"github.com/relation-engine/relation-engine/internal/repository"
	"github.com/relation-engine/relation-engine/pkg/cache"
	"github.com/relation-engine/relation-engine/pkg/logger"
	"gorm.io/gorm"
)

// 合并状态里 pending 的方向
const (
	PendingSent     = "sent"
	PendingReceived = "received"
	PendingNone     = "none"
)

// RelationshipStatus a 视角下与 b 的全量关系快照
type RelationshipStatus struct {
	Following         bool   `json:"following"`
	FollowedBy        bool   `json:"followed_by"`
	Connected         bool   `json:"connected"`
	ConnectionPending string `json:"connection_pending"`
	Blocked           bool   `json:"blocked"`
	BlockedBy         bool   `json:"blocked_by"`
}

// EngineStats 全局聚合计数，给外部面板消费
type EngineStats struct {
	TotalFollows             int64 `json:"total_follows"`
	TotalAcceptedConnections int64 `json:"total_accepted_connections"`
	TotalPendingConnections  int64 `json:"total_pending_connections"`
	TotalBlocks              int64 `json:"total_blocks"`
}

// StatusService 只读投影：合并关系状态与聚合计数
// 直接读当前表，从不读历史
type StatusService struct {
	db       *gorm.DB
	identity *IdentityService
	cache    *cache.RedisClient
	logger   *logger.Logger
}

const statsCacheTTL = time.Minute

func NewStatusService(db *gorm.DB, identity *IdentityService, cache *cache.RedisClient, logger *logger.Logger) *StatusService {
	return &StatusService{
		db:       db,
		identity: identity,
		cache:    cache,
		logger:   logger,
	}
}

// GetRelationship 组合既有查询，无独立不变量
// connected 为真时 pending 一定是 none：两者派生自同一行的状态
func (s *StatusService) GetRelationship(ctx context.Context, aRef, bRef string) (*RelationshipStatus, error) {
	a, b, err := s.identity.ResolvePair(ctx, aRef, bRef)
	if err != nil {
		return nil, err
	}

	followRepo := repository.NewFollowRepository(s.db)
	blockRepo := repository.NewBlockRepository(s.db)

	status := &RelationshipStatus{ConnectionPending: PendingNone}

	if status.Following, err = followRepo.IsFollowing(ctx, a, b); err != nil {
		return nil, err
	}
	if status.FollowedBy, err = followRepo.IsFollowing(ctx, b, a); err != nil {
		return nil, err
	}

	conn, err := repository.NewConnectionRepository(s.db).GetByPair(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if conn != nil {
		switch conn.Status {
		case models.ConnectionStatusAccepted:
			status.Connected = true
		case models.ConnectionStatusPending:
			if conn.RequesterID == a {
				status.ConnectionPending = PendingSent
			} else {
				status.ConnectionPending = PendingReceived
			}
		}
	}

	if status.Blocked, err = blockRepo.IsBlocked(ctx, a, b); err != nil {
		return nil, err
	}
	if status.BlockedBy, err = blockRepo.IsBlocked(ctx, b, a); err != nil {
		return nil, err
	}

	return status, nil
}

// GetStats 聚合计数，redis 短 TTL 缓存，写操作后由 worker 失效
func (s *StatusService) GetStats(ctx context.Context) (*EngineStats, error) {
	if s.cache != nil {
		var cached EngineStats
		if err := s.cache.GetJSON(ctx, cache.KeyEngineStats, &cached); err == nil {
			return &cached, nil
		}
	}

	stats := &EngineStats{}
	var err error
	if stats.TotalFollows, err = repository.NewFollowRepository(s.db).CountAll(ctx); err != nil {
		return nil, err
	}
	connRepo := repository.NewConnectionRepository(s.db)
	if stats.TotalAcceptedConnections, err = connRepo.CountAllByStatus(ctx, models.ConnectionStatusAccepted); err != nil {
		return nil, err
	}
	if stats.TotalPendingConnections, err = connRepo.CountAllByStatus(ctx, models.ConnectionStatusPending); err != nil {
		return nil, err
	}
	if stats.TotalBlocks, err = repository.NewBlockRepository(s.db).CountAll(ctx); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cache.KeyEngineStats, stats, statsCacheTTL); err != nil {
			s.logger.WithError(err).Error("Failed to cache engine stats")
		}
	}
	return stats, nil
}

// GetUserCounts 单个用户的关系计数，同样走缓存
func (s *StatusService) GetUserCounts(ctx context.Context, userRef string) (map[string]int64, error) {
	userID, err := s.identity.Resolve(ctx, userRef)
	if err != nil {
		return nil, err
	}

	cacheKey := cache.UserCountsKey(userID.String())
	if s.cache != nil {
		if cached, err := s.cache.HGetAll(ctx, cacheKey); err == nil && len(cached) > 0 {
			counts := make(map[string]int64, len(cached))
			for k, v := range cached {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					counts[k] = n
				}
			}
			return counts, nil
		}
	}

	followRepo := repository.NewFollowRepository(s.db)
	connRepo := repository.NewConnectionRepository(s.db)

	counts := make(map[string]int64, 4)
	if counts["followers"], err = followRepo.CountFollowers(ctx, userID); err != nil {
		return nil, err
	}
	if counts["following"], err = followRepo.CountFollowing(ctx, userID); err != nil {
		return nil, err
	}
	if counts["connections"], err = connRepo.CountAccepted(ctx, userID); err != nil {
		return nil, err
	}
	if counts["pending_requests"], err = connRepo.CountPendingReceived(ctx, userID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		fields := make([]interface{}, 0, len(counts)*2)
		for k, v := range counts {
			fields = append(fields, k, fmt.Sprintf("%d", v))
		}
		if err := s.cache.HSet(ctx, cacheKey, fields...); err != nil {
			s.logger.WithError(err).Error("Failed to cache user counts")
		} else if err := s.cache.Expire(ctx, cacheKey, statsCacheTTL); err != nil {
			s.logger.WithError(err).Error("Failed to expire user counts cache")
		}
	}
	return counts, nil
}
