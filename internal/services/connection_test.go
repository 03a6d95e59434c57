package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relation-engine/relation-engine/internal/models"
)

func TestRequestConnection(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	conn, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusPending, conn.Status)
	assert.Equal(t, alice.ID, conn.RequesterID)
	assert.Equal(t, bob.ID, conn.RecipientID)
	assert.Nil(t, conn.RespondedAt)

	assert.EqualValues(t, 1, countRows(t, eng.db, &models.ConnectionHistory{},
		"action = ? AND actor_id = ?", models.ConnectionActionRequested, alice.ID))
}

func TestRequestConnectionSelfReference(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")

	_, err := eng.connections.RequestConnection(ctx, alice.ID.String(), alice.ID.String())
	assert.ErrorIs(t, err, ErrSelfReference)
}

func TestRequestConnectionRepeatPending(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	_, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)

	_, err = eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	assert.ErrorIs(t, err, ErrPendingRequestExists)
	assert.EqualValues(t, 1, countRows(t, eng.db, &models.Connection{}, ""))
}

func TestRequestConnectionBlocked(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	require.NoError(t, eng.blocks.Block(ctx, bob.ID.String(), alice.ID.String(), ""))

	_, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestRequestConnectionMerge(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	first, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
	require.Equal(t, models.ConnectionStatusPending, first.Status)

	// 反向请求合并进同一行，不新建
	merged, err := eng.connections.RequestConnection(ctx, bob.ID.String(), alice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusAccepted, merged.Status)
	assert.Equal(t, first.ID, merged.ID)
	assert.NotNil(t, merged.RespondedAt)
	assert.EqualValues(t, 1, countRows(t, eng.db, &models.Connection{}, ""))

	// 接受动作记在后来的请求者名下
	assert.EqualValues(t, 1, countRows(t, eng.db, &models.ConnectionHistory{},
		"action = ? AND actor_id = ?", models.ConnectionActionAccepted, bob.ID))

	connected, err := eng.connections.IsConnected(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
	assert.True(t, connected)

	// 合并之后再请求报已连接
	_, err = eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	_, err = eng.connections.RequestConnection(ctx, bob.ID.String(), alice.ID.String())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.EqualValues(t, 1, countRows(t, eng.db, &models.Connection{}, ""))
}

func TestAcceptConnection(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	conn, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)

	accepted, err := eng.connections.AcceptConnection(ctx, conn.ID, bob.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusAccepted, accepted.Status)
	assert.NotNil(t, accepted.RespondedAt)

	// 已经不是 pending，重复接受报错
	_, err = eng.connections.AcceptConnection(ctx, conn.ID, bob.ID.String())
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestAcceptConnectionNonParticipant(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")
	carol := seedUser(t, eng.db, "carol")

	conn, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)

	// 局外人看不到也动不了别人的连接
	_, err = eng.connections.AcceptConnection(ctx, conn.ID, carol.ID.String())
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	// 行还是 pending，没有冒名的 accepted 历史
	current, err := eng.connections.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusPending, current.Status)
	assert.EqualValues(t, 0, countRows(t, eng.db, &models.ConnectionHistory{},
		"action = ?", models.ConnectionActionAccepted))

	// 参与方不受影响
	_, err = eng.connections.AcceptConnection(ctx, conn.ID, bob.ID.String())
	require.NoError(t, err)
}

func TestRejectConnectionNonParticipant(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")
	carol := seedUser(t, eng.db, "carol")

	conn, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)

	err = eng.connections.RejectConnection(ctx, conn.ID, carol.ID.String())
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	assert.EqualValues(t, 1, countRows(t, eng.db, &models.Connection{}, ""))
	assert.EqualValues(t, 0, countRows(t, eng.db, &models.ConnectionHistory{},
		"action = ?", models.ConnectionActionRejected))
}

func TestRejectConnection(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	conn, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)

	require.NoError(t, eng.connections.RejectConnection(ctx, conn.ID, bob.ID.String()))

	// 行删了，回到 NONE
	assert.EqualValues(t, 0, countRows(t, eng.db, &models.Connection{}, ""))
	_, err = eng.connections.GetConnection(ctx, conn.ID)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
	_, err = eng.connections.AcceptConnection(ctx, conn.ID, bob.ID.String())
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	// rejected 历史在行删除之前写入，仍然可查
	assert.EqualValues(t, 1, countRows(t, eng.db, &models.ConnectionHistory{},
		"action = ? AND actor_id = ?", models.ConnectionActionRejected, bob.ID))

	// 拒绝之后可以重新发起
	_, err = eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
}

func TestRemoveConnection(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	conn, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)

	// pending 状态不能 remove
	err = eng.connections.RemoveConnection(ctx, alice.ID.String(), bob.ID.String())
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = eng.connections.AcceptConnection(ctx, conn.ID, bob.ID.String())
	require.NoError(t, err)

	// 任一方都可以解除
	require.NoError(t, eng.connections.RemoveConnection(ctx, bob.ID.String(), alice.ID.String()))
	assert.EqualValues(t, 0, countRows(t, eng.db, &models.Connection{}, ""))
	assert.EqualValues(t, 1, countRows(t, eng.db, &models.ConnectionHistory{},
		"action = ? AND actor_id = ?", models.ConnectionActionRemoved, bob.ID))

	err = eng.connections.RemoveConnection(ctx, alice.ID.String(), bob.ID.String())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectionListsAndCounts(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")
	carol := seedUser(t, eng.db, "carol")

	conn, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
	_, err = eng.connections.AcceptConnection(ctx, conn.ID, bob.ID.String())
	require.NoError(t, err)

	_, err = eng.connections.RequestConnection(ctx, carol.ID.String(), alice.ID.String())
	require.NoError(t, err)

	conns, err := eng.connections.ListConnections(ctx, alice.ID.String(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, conns, 1)

	pending, err := eng.connections.ListPendingRequests(ctx, alice.ID.String(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	sent, err := eng.connections.ListSentRequests(ctx, carol.ID.String(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, sent, 1)

	count, err := eng.connections.CountConnections(ctx, alice.ID.String())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	count, err = eng.connections.CountPendingRequests(ctx, alice.ID.String())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestConnectionHistoryBetweenIgnoresDirection(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	first, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)
	require.NoError(t, eng.connections.RejectConnection(ctx, first.ID, bob.ID.String()))
	_, err = eng.connections.RequestConnection(ctx, bob.ID.String(), alice.ID.String())
	require.NoError(t, err)

	// 两个方向的事件都在同一个规范对下
	fromAlice, err := eng.connections.HistoryBetween(ctx, alice.ID.String(), bob.ID.String(), 0, 10)
	require.NoError(t, err)
	fromBob, err := eng.connections.HistoryBetween(ctx, bob.ID.String(), alice.ID.String(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, fromAlice, 3)
	assert.Len(t, fromBob, 3)
}

func TestRejectConnectionAtomicityOnHistoryFailure(t *testing.T) {
	eng := setupEngine(t)
	ctx := context.Background()
	alice := seedUser(t, eng.db, "alice")
	bob := seedUser(t, eng.db, "bob")

	conn, err := eng.connections.RequestConnection(ctx, alice.ID.String(), bob.ID.String())
	require.NoError(t, err)

	// 历史写不进去时整个拒绝操作回滚，行必须还在
	require.NoError(t, eng.db.Migrator().DropTable(&models.ConnectionHistory{}))

	err = eng.connections.RejectConnection(ctx, conn.ID, bob.ID.String())
	require.Error(t, err)
	assert.False(t, IsDomainError(err))
	assert.EqualValues(t, 1, countRows(t, eng.db, &models.Connection{}, ""))
}
