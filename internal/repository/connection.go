package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/relation-engine/relation-engine/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func (r *ConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	// pair_key 唯一索引兜底并发重复请求，冲突原样上抛
	return r.db.WithContext(ctx).Create(conn).Error
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	var conn models.Connection
	if err := r.db.WithContext(ctx).First(&conn, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &conn, nil
}

// GetByPair 查无序对的当前行，方向无关
func (r *ConnectionRepository) GetByPair(ctx context.Context, a, b uuid.UUID) (*models.Connection, error) {
	var conn models.Connection
	if err := r.db.WithContext(ctx).
		Where("pair_key = ?", models.ConnectionPairKey(a, b)).
		First(&conn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connection by pair: %w", err)
	}
	return &conn, nil
}

// GetByPairForUpdate 行锁版本，request/accept 的判定期间持有
// 对不存在的行返回 nil，此时靠 pair_key 唯一索引挡并发插入
// sqlite 整库单写，不支持也不需要 FOR UPDATE
func (r *ConnectionRepository) GetByPairForUpdate(ctx context.Context, a, b uuid.UUID) (*models.Connection, error) {
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var conn models.Connection
	if err := q.
		Where("pair_key = ?", models.ConnectionPairKey(a, b)).
		First(&conn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock connection by pair: %w", err)
	}
	return &conn, nil
}

func (r *ConnectionRepository) Update(ctx context.Context, conn *models.Connection) error {
	if err := r.db.WithContext(ctx).Save(conn).Error; err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}
	return nil
}

func (r *ConnectionRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.Connection{}, "id = ?", id)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete connection: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteByPair 删除两人之间的当前行（pending 或 accepted），拉黑级联用
func (r *ConnectionRepository) DeleteByPair(ctx context.Context, a, b uuid.UUID) (*models.Connection, error) {
	conn, err := r.GetByPair(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, nil
	}
	if err := r.db.WithContext(ctx).Delete(&models.Connection{}, "id = ?", conn.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to delete connection by pair: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepository) IsConnected(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("pair_key = ? AND status = ?", models.ConnectionPairKey(a, b), models.ConnectionStatusAccepted).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check connection status: %w", err)
	}
	return count > 0, nil
}

// ListAccepted 某用户的全部已建立连接，两个方向都算
func (r *ConnectionRepository) ListAccepted(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Connection, error) {
	var conns []*models.Connection
	if err := r.db.WithContext(ctx).
		Where("(requester_id = ? OR recipient_id = ?) AND status = ?", userID, userID, models.ConnectionStatusAccepted).
		Order("updated_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&conns).Error; err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

// ListPendingReceived 收到的待处理请求
func (r *ConnectionRepository) ListPendingReceived(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Connection, error) {
	var conns []*models.Connection
	if err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND status = ?", userID, models.ConnectionStatusPending).
		Order("requested_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&conns).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	return conns, nil
}

// ListPendingSent 发出的待处理请求
func (r *ConnectionRepository) ListPendingSent(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Connection, error) {
	var conns []*models.Connection
	if err := r.db.WithContext(ctx).
		Where("requester_id = ? AND status = ?", userID, models.ConnectionStatusPending).
		Order("requested_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&conns).Error; err != nil {
		return nil, fmt.Errorf("failed to list sent requests: %w", err)
	}
	return conns, nil
}

func (r *ConnectionRepository) CountAccepted(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("(requester_id = ? OR recipient_id = ?) AND status = ?", userID, userID, models.ConnectionStatusAccepted).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count connections: %w", err)
	}
	return count, nil
}

func (r *ConnectionRepository) CountPendingReceived(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("recipient_id = ? AND status = ?", userID, models.ConnectionStatusPending).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count pending requests: %w", err)
	}
	return count, nil
}

func (r *ConnectionRepository) CountAllByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count connections by status: %w", err)
	}
	return count, nil
}
