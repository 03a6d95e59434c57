package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 连接状态：pending 等待确认，accepted 已建立
// rejected 不落库，拒绝即删行（历史表保留 rejected 记录）
const (
	ConnectionStatusPending  = "pending"
	ConnectionStatusAccepted = "accepted"
)

// 历史动作常量，三张历史表共用命名风格
const (
	FollowActionFollow   = "follow"
	FollowActionUnfollow = "unfollow"

	ConnectionActionRequested = "requested"
	ConnectionActionAccepted  = "accepted"
	ConnectionActionRejected  = "rejected"
	ConnectionActionRemoved   = "removed"

	BlockActionBlock   = "block"
	BlockActionUnblock = "unblock"
)

// Follow 单向关注，无需对方确认
// 复合唯一索引保证同一对 (follower, followed) 只有一行，并发插入由约束兜底
type Follow struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	FollowerID uuid.UUID `json:"follower_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_follow_pair"`
	FollowedID uuid.UUID `json:"followed_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_follow_pair"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Follow) TableName() string {
	return "follows"
}

// Connection 双向关系，需要对方接受
// PairKey 取两个 uuid 字符串的有序拼接，唯一索引保证无序对只有一行：
// A→B 与 B→A 不可能同时存在，反向请求走合并逻辑
type Connection struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	RequesterID uuid.UUID  `json:"requester_id" gorm:"type:uuid;not null;index"`
	RecipientID uuid.UUID  `json:"recipient_id" gorm:"type:uuid;not null;index"`
	Status      string     `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	PairKey     string     `json:"-" gorm:"type:varchar(80);not null;uniqueIndex:idx_connection_pair"`
	RequestedAt time.Time  `json:"requested_at"`
	RespondedAt *time.Time `json:"responded_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Connection) TableName() string {
	return "connections"
}

// Block 单向拉黑，A 拉黑 B 不代表 B 拉黑 A
type Block struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	BlockerID uuid.UUID `json:"blocker_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_block_pair"`
	BlockedID uuid.UUID `json:"blocked_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_block_pair"`
	Reason    string    `json:"reason,omitempty" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`
}

func (Block) TableName() string {
	return "blocks"
}

// FollowHistory 关注历史，只插入不更新不删除
type FollowHistory struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	FollowerID uuid.UUID `json:"follower_id" gorm:"type:uuid;not null;index"`
	FollowedID uuid.UUID `json:"followed_id" gorm:"type:uuid;not null;index"`
	Action     string    `json:"action" gorm:"type:varchar(20);not null"`
	ActorID    uuid.UUID `json:"actor_id" gorm:"type:uuid;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (FollowHistory) TableName() string {
	return "follow_histories"
}

// ConnectionHistory 连接历史
// 参与双方按 uuid 字符串升序写入 (UserLowID, UserHighID)，
// 查询两人之间全部记录时无需按方向分支；ActorID 单独记录操作发起人
type ConnectionHistory struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	UserLowID  uuid.UUID `json:"user_low_id" gorm:"type:uuid;not null;index:idx_connection_history_pair"`
	UserHighID uuid.UUID `json:"user_high_id" gorm:"type:uuid;not null;index:idx_connection_history_pair"`
	Action     string    `json:"action" gorm:"type:varchar(20);not null"`
	ActorID    uuid.UUID `json:"actor_id" gorm:"type:uuid;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ConnectionHistory) TableName() string {
	return "connection_histories"
}

// BlockHistory 拉黑历史，方向固有，不做规范化
type BlockHistory struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	BlockerID uuid.UUID `json:"blocker_id" gorm:"type:uuid;not null;index"`
	BlockedID uuid.UUID `json:"blocked_id" gorm:"type:uuid;not null;index"`
	Action    string    `json:"action" gorm:"type:varchar(20);not null"`
	ActorID   uuid.UUID `json:"actor_id" gorm:"type:uuid;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (BlockHistory) TableName() string {
	return "block_histories"
}

// 主键在应用侧生成，postgres 与测试用的 sqlite 行为一致

func (f *Follow) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

func (c *Connection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (b *Block) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (h *FollowHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

func (h *ConnectionHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

func (h *BlockHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// ConnectionPairKey 无序对的规范键，uuid 字符串小 | 大
func ConnectionPairKey(a, b uuid.UUID) string {
	low, high := OrderedPair(a, b)
	return low.String() + "|" + high.String()
}

// OrderedPair 按 uuid 字符串升序返回两个标识
func OrderedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if strings.Compare(a.String(), b.String()) <= 0 {
		return a, b
	}
	return b, a
}
