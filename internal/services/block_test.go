package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relation-engine/relation-engine/internal/models"
)

func TestBlock(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	require.NoError(t, eng.blocks.Block(ctx, alice.ID.String(), bob.ID.String(), "spam"))

	blocked, err := eng.blocks.IsBlocked(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
	assert.True(t, blocked)

	// 拉黑是单向的
	blocked, err = eng.blocks.IsBlocked(ctx, bob.ID.String(), alice.ID.String())
	require.NoError(t, err)
	assert.False(t, blocked)

	blockedBy, err := eng.blocks.IsBlockedBy(ctx, bob.ID.String(), alice.ID.String())
	require.NoError(t, err)
	assert.True(t, blockedBy)

	canInteract, err := eng.blocks.CanInteract(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
	assert.False(t, canInteract)

	assert.EqualValues(t, 1, countRows(t, eng.db, &models.BlockHistory{}, "action = ?", models.BlockActionBlock))
}

func TestBlockSelfReference(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")

	err := eng.blocks.Block(ctx, alice.ID.String(), alice.ID.String(), "")
	assert.ErrorIs(t, err, ErrSelfReference)
}

func TestBlockAlreadyBlocked(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	require.NoError(t, eng.blocks.Block(ctx, alice.ID.String(), bob.ID.String(), ""))
	err := eng.blocks.Block(ctx, alice.ID.String(), bob.ID.String(), "")
	assert.ErrorIs(t, err, ErrAlreadyBlocked)
}

func TestBlockCascade(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	// 关系铺垫：双向关注 + 已建立的连接
	require.NoError(t, eng.follows.Follow(ctx, alice.ID.String(), bob.ID.String()))
	require.NoError(t, eng.follows.Follow(ctx, bob.ID.String(), alice.ID.String()))
	conn, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
	_, err = eng.connections.AcceptConnection(ctx, conn.ID, bob.ID.String())
	require.NoError(t, err)

	countBefore, err := eng.connections.CountConnections(ctx, alice.ID.String())
	require.NoError(t, err)
	require.EqualValues(t, 1, countBefore)

	require.NoError(t, eng.blocks.Block(ctx, alice.ID.String(), bob.ID.String(), ""))

	// 级联之后所有关系清空
	following, err := eng.follows.IsFollowing(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
	assert.False(t, following)
	following, err = eng.follows.IsFollowing(ctx, bob.ID.String(), alice.ID.String())
	require.NoError(t, err)
	assert.False(t, following)
	connected, err := eng.connections.IsConnected(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
	assert.False(t, connected)

	countAfter, err := eng.connections.CountConnections(ctx, alice.ID.String())
	require.NoError(t, err)
	assert.EqualValues(t, 0, countAfter)

	// 级联的每一步都有对应历史：unfollow x2、removed x1、block x1
	assert.EqualValues(t, 2, countRows(t, eng.db, &models.FollowHistory{},
		"action = ? AND actor_id = ?", models.FollowActionUnfollow, alice.ID))
	assert.EqualValues(t, 1, countRows(t, eng.db, &models.ConnectionHistory{},
		"action = ? AND actor_id = ?", models.ConnectionActionRemoved, alice.ID))
	assert.EqualValues(t, 1, countRows(t, eng.db, &models.BlockHistory{},
		"action = ?", models.BlockActionBlock))
}

func TestBlockCascadePendingConnection(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	// pending 的连接同样被级联删除
	_, err := eng.connections.RequestConnection(ctx, bob.ID.String(), alice.ID.String())
	require.NoError(t, err)

	require.NoError(t, eng.blocks.Block(ctx, alice.ID.String(), bob.ID.String(), ""))
	assert.EqualValues(t, 0, countRows(t, eng.db, &models.Connection{}, ""))
}

func TestBlockAtomicityOnHistoryFailure(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	require.NoError(t, eng.follows.Follow(ctx, alice.ID.String(), bob.ID.String()))

	// 拉黑历史写入失败时级联整体回滚：关注行不能丢
	require.NoError(t, eng.db.Migrator().DropTable(&models.BlockHistory{}))

	err := eng.blocks.Block(ctx, alice.ID.String(), bob.ID.String(), "")
	require.Error(t, err)
	assert.False(t, IsDomainError(err))
	assert.EqualValues(t, 0, countRows(t, eng.db, &models.Block{}, ""))
	assert.EqualValues(t, 1, countRows(t, eng.db, &models.Follow{}, ""))
}

func TestUnblock(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	require.NoError(t, eng.follows.Follow(ctx, alice.ID.String(), bob.ID.String()))
	require.NoError(t, eng.blocks.Block(ctx, alice.ID.String(), bob.ID.String(), ""))
	require.NoError(t, eng.blocks.Unblock(ctx, alice.ID.String(), bob.ID.String()))

	blocked, err := eng.blocks.IsBlocked(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
	assert.False(t, blocked)

	// 解除拉黑不恢复当初被级联删掉的关注
	following, err := eng.follows.IsFollowing(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
	assert.False(t, following)

	assert.EqualValues(t, 1, countRows(t, eng.db, &models.BlockHistory{}, "action = ?", models.BlockActionUnblock))
}

func TestUnblockNotBlocked(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	err := eng.blocks.Unblock(ctx, alice.ID.String(), bob.ID.String())
	assert.ErrorIs(t, err, ErrNotBlocked)
}

func TestListBlocked(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")
	carol := seedUser(t, eng.db, "carol")

	require.NoError(t, eng.blocks.Block(ctx, alice.ID.String(), bob.ID.String(), ""))
	require.NoError(t, eng.blocks.Block(ctx, alice.ID.String(), carol.ID.String(), "spam"))

	blocks, err := eng.blocks.ListBlocked(ctx, alice.ID.String(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
}
