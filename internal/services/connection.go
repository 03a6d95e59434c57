package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/relation-engine/relation-engine/internal/models"
	"github.com/relation-engine/relation-engine/internal/repository"
	"github.com/relation-engine/relation-engine/pkg/logger"
	"github.com/relation-engine/relation-engine/pkg/queue"
	"gorm.io/gorm"
)

// ConnectionService 双向连接的状态机
//
// NONE -(request)-> PENDING -(accept/合并)-> ACCEPTED
//                      |-(reject)-> NONE           ACCEPTED -(remove)-> NONE
//
// 任意无序对最多一行，由 pair_key 唯一索引保证；
// 相向的两个 pending 请求必须合并成一个 accepted，不允许出现两行
type ConnectionService struct {
	db       *gorm.DB
	identity *IdentityService
	producer *queue.KafkaProducer
	logger   *logger.Logger
}

func NewConnectionService(db *gorm.DB, identity *IdentityService, producer *queue.KafkaProducer, logger *logger.Logger) *ConnectionService {
	return &ConnectionService{
		db:       db,
		identity: identity,
		producer: producer,
		logger:   logger,
	}
}

// RequestConnection 发起连接请求
// 对方此前已发过反向 pending 请求时直接把那一行转成 accepted（合并），
// 不会创建第二行；当前调用者记为接受动作的发起人
func (s *ConnectionService) RequestConnection(ctx context.Context, requesterRef, recipientRef string) (*models.Connection, error) {
	requester, recipient, err := s.identity.ResolvePair(ctx, requesterRef, recipientRef)
	if err != nil {
		return nil, err
	}
	if requester == recipient {
		return nil, ErrSelfReference
	}

	blocked, err := repository.NewBlockRepository(s.db).AnyBetween(ctx, requester, recipient)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrBlocked
	}

	var result *models.Connection
	var merged bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		connRepo := repository.NewConnectionRepository(tx)

		// 判定期间持有行锁，相向并发请求在这里串行化
		existing, err := connRepo.GetByPairForUpdate(ctx, requester, recipient)
		if err != nil {
			return err
		}

		if existing != nil {
			if existing.Status == models.ConnectionStatusAccepted {
				return ErrAlreadyConnected
			}
			if existing.RequesterID == requester {
				// 同方向重复请求
				return ErrPendingRequestExists
			}

			// 反向 pending 存在，合并为 accepted
			now := time.Now()
			existing.Status = models.ConnectionStatusAccepted
			existing.RespondedAt = &now
			if err := connRepo.Update(ctx, existing); err != nil {
				return err
			}
			if err := repository.NewHistoryRepository(tx).AppendConnection(
				ctx, requester, recipient, models.ConnectionActionAccepted, requester); err != nil {
				return err
			}
			result = existing
			merged = true
			return nil
		}

		conn := &models.Connection{
			RequesterID: requester,
			RecipientID: recipient,
			Status:      models.ConnectionStatusPending,
			PairKey:     models.ConnectionPairKey(requester, recipient),
			RequestedAt: time.Now(),
		}
		if err := connRepo.Create(ctx, conn); err != nil {
			return err
		}
		if err := repository.NewHistoryRepository(tx).AppendConnection(
			ctx, requester, recipient, models.ConnectionActionRequested, requester); err != nil {
			return err
		}
		result = conn
		return nil
	})
	if err != nil {
		// 双发竞态的败者在插入时撞唯一索引；
		// 重新读一次当前行，若对方已合并成 accepted 则按已连接报告
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			current, readErr := repository.NewConnectionRepository(s.db).GetByPair(ctx, requester, recipient)
			if readErr == nil && current != nil && current.Status == models.ConnectionStatusAccepted {
				return nil, ErrAlreadyConnected
			}
			return nil, ErrPendingRequestExists
		}
		return nil, err
	}

	if merged {
		s.publish(ctx, queue.EventConnectionAccepted, requester, recipient)
	} else {
		s.publish(ctx, queue.EventConnectionRequested, requester, recipient)
	}

	s.logger.WithFields(map[string]interface{}{
		"requester_id": requester,
		"recipient_id": recipient,
		"status":       result.Status,
	}).Info("Connection request processed")
	return result, nil
}

// AcceptConnection 接受待处理请求，只允许从 pending 转移
func (s *ConnectionService) AcceptConnection(ctx context.Context, connectionID uuid.UUID, actorRef string) (*models.Connection, error) {
	actor, err := s.identity.Resolve(ctx, actorRef)
	if err != nil {
		return nil, err
	}

	var result *models.Connection
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		connRepo := repository.NewConnectionRepository(tx)

		conn, err := connRepo.GetByID(ctx, connectionID)
		if err != nil {
			return err
		}
		// 非参与者一律按不存在处理，不暴露他人的连接
		if conn == nil || (conn.RequesterID != actor && conn.RecipientID != actor) {
			return ErrConnectionNotFound
		}

		// 状态判定在行锁下重做，避免与并发的 reject/合并交错
		conn, err = connRepo.GetByPairForUpdate(ctx, conn.RequesterID, conn.RecipientID)
		if err != nil {
			return err
		}
		if conn == nil || conn.ID != connectionID {
			return ErrConnectionNotFound
		}
		if conn.Status != models.ConnectionStatusPending {
			return ErrNotPending
		}

		now := time.Now()
		conn.Status = models.ConnectionStatusAccepted
		conn.RespondedAt = &now
		if err := connRepo.Update(ctx, conn); err != nil {
			return err
		}
		if err := repository.NewHistoryRepository(tx).AppendConnection(
			ctx, conn.RequesterID, conn.RecipientID, models.ConnectionActionAccepted, actor); err != nil {
			return err
		}
		result = conn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, queue.EventConnectionAccepted, result.RequesterID, result.RecipientID)

	s.logger.WithField("connection_id", connectionID).Info("Connection accepted")
	return result, nil
}

// RejectConnection 拒绝待处理请求
// rejected 不留状态行：先写历史再删行，历史在行删除后仍然可查
func (s *ConnectionService) RejectConnection(ctx context.Context, connectionID uuid.UUID, actorRef string) error {
	actor, err := s.identity.Resolve(ctx, actorRef)
	if err != nil {
		return err
	}

	var requester, recipient uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		connRepo := repository.NewConnectionRepository(tx)

		conn, err := connRepo.GetByID(ctx, connectionID)
		if err != nil {
			return err
		}
		// 与 accept 同样：非参与者按不存在处理
		if conn == nil || (conn.RequesterID != actor && conn.RecipientID != actor) {
			return ErrConnectionNotFound
		}

		conn, err = connRepo.GetByPairForUpdate(ctx, conn.RequesterID, conn.RecipientID)
		if err != nil {
			return err
		}
		if conn == nil || conn.ID != connectionID {
			return ErrConnectionNotFound
		}
		if conn.Status != models.ConnectionStatusPending {
			return ErrNotPending
		}

		if err := repository.NewHistoryRepository(tx).AppendConnection(
			ctx, conn.RequesterID, conn.RecipientID, models.ConnectionActionRejected, actor); err != nil {
			return err
		}
		if _, err := connRepo.Delete(ctx, conn.ID); err != nil {
			return err
		}
		requester, recipient = conn.RequesterID, conn.RecipientID
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, queue.EventConnectionRejected, requester, recipient)

	s.logger.WithField("connection_id", connectionID).Info("Connection rejected")
	return nil
}

// RemoveConnection 解除已建立的连接，双方任一侧都可以发起
func (s *ConnectionService) RemoveConnection(ctx context.Context, actorRef, otherRef string) error {
	actor, other, err := s.identity.ResolvePair(ctx, actorRef, otherRef)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		connRepo := repository.NewConnectionRepository(tx)

		conn, err := connRepo.GetByPairForUpdate(ctx, actor, other)
		if err != nil {
			return err
		}
		if conn == nil || conn.Status != models.ConnectionStatusAccepted {
			return ErrNotConnected
		}

		if err := repository.NewHistoryRepository(tx).AppendConnection(
			ctx, actor, other, models.ConnectionActionRemoved, actor); err != nil {
			return err
		}
		_, err = connRepo.Delete(ctx, conn.ID)
		return err
	})
	if err != nil {
		return err
	}

	s.publish(ctx, queue.EventConnectionRemoved, actor, other)

	s.logger.WithFields(map[string]interface{}{
		"actor_id": actor,
		"other_id": other,
	}).Info("Connection removed")
	return nil
}

func (s *ConnectionService) GetConnection(ctx context.Context, connectionID uuid.UUID) (*models.Connection, error) {
	conn, err := repository.NewConnectionRepository(s.db).GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

func (s *ConnectionService) IsConnected(ctx context.Context, aRef, bRef string) (bool, error) {
	a, b, err := s.identity.ResolvePair(ctx, aRef, bRef)
	if err != nil {
		return false, err
	}
	return repository.NewConnectionRepository(s.db).IsConnected(ctx, a, b)
}

func (s *ConnectionService) ListConnections(ctx context.Context, userRef string, offset, limit int) ([]*models.Connection, error) {
	userID, err := s.identity.Resolve(ctx, userRef)
	if err != nil {
		return nil, err
	}
	return repository.NewConnectionRepository(s.db).ListAccepted(ctx, userID, offset, limit)
}

func (s *ConnectionService) ListPendingRequests(ctx context.Context, userRef string, offset, limit int) ([]*models.Connection, error) {
	userID, err := s.identity.Resolve(ctx, userRef)
	if err != nil {
		return nil, err
	}
	return repository.NewConnectionRepository(s.db).ListPendingReceived(ctx, userID, offset, limit)
}

func (s *ConnectionService) ListSentRequests(ctx context.Context, userRef string, offset, limit int) ([]*models.Connection, error) {
	userID, err := s.identity.Resolve(ctx, userRef)
	if err != nil {
		return nil, err
	}
	return repository.NewConnectionRepository(s.db).ListPendingSent(ctx, userID, offset, limit)
}

func (s *ConnectionService) CountConnections(ctx context.Context, userRef string) (int64, error) {
	userID, err := s.identity.Resolve(ctx, userRef)
	if err != nil {
		return 0, err
	}
	return repository.NewConnectionRepository(s.db).CountAccepted(ctx, userID)
}

func (s *ConnectionService) CountPendingRequests(ctx context.Context, userRef string) (int64, error) {
	userID, err := s.identity.Resolve(ctx, userRef)
	if err != nil {
		return 0, err
	}
	return repository.NewConnectionRepository(s.db).CountPendingReceived(ctx, userID)
}

// HistoryBetween 两人之间的连接历史；历史表按规范对存储，无需按方向分支
func (s *ConnectionService) HistoryBetween(ctx context.Context, aRef, bRef string, offset, limit int) ([]*models.ConnectionHistory, error) {
	a, b, err := s.identity.ResolvePair(ctx, aRef, bRef)
	if err != nil {
		return nil, err
	}
	return repository.NewHistoryRepository(s.db).ListConnectionBetween(ctx, a, b, offset, limit)
}

func (s *ConnectionService) publish(ctx context.Context, eventType queue.EventType, actor, target uuid.UUID) {
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
		s.logger.WithError(err).Error("Failed to publish connection event")
	}
}
