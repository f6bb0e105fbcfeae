package internel

import (
	"TCCTransaction/pkg"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_reservation_confirm(t *testing.T) {
	client, _ := newRedisClient(t)
	rc := NewReservationComponent("inventory", client)
	ctx := context.Background()
	tc := pkg.NewTransactionContext(pkg.NewBranchXid(pkg.NewRootXid().GlobalTransactionID), pkg.TRYING)

	ok, err := rc.Reserve(ctx, tc, "sku-1")
	require.NoError(t, err)
	assert.True(t, ok)
	//幂等
	ok, err = rc.Reserve(ctx, tc, "sku-1")
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := rc.DataStatusOf(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, DataFrozen.String(), status)

	//其他事务无法冻结同一数据
	other := pkg.NewTransactionContext(pkg.NewBranchXid(pkg.NewRootXid().GlobalTransactionID), pkg.TRYING)
	_, err = rc.Reserve(ctx, other, "sku-1")
	assert.ErrorIs(t, err, ErrResourceOccupied)

	for i := 0; i < 2; i++ {
		ok, err = rc.ConfirmReserve(ctx, pkg.NewTransactionContext(tc.Xid, pkg.CONFIRMING), "sku-1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	status, err = rc.DataStatusOf(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, DataSuccess.String(), status)

	_, err = rc.CancelReserve(ctx, pkg.NewTransactionContext(tc.Xid, pkg.CANCELLING), "sku-1")
	assert.ErrorIs(t, err, ErrBranchConfirmed)
}

func Test_reservation_cancel(t *testing.T) {
	client, _ := newRedisClient(t)
	rc := NewReservationComponent("inventory", client)
	ctx := context.Background()
	tc := pkg.NewTransactionContext(pkg.NewBranchXid(pkg.NewRootXid().GlobalTransactionID), pkg.TRYING)

	_, err := rc.Reserve(ctx, tc, "sku-2")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ok, err := rc.CancelReserve(ctx, pkg.NewTransactionContext(tc.Xid, pkg.CANCELLING), "sku-2")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	status, err := rc.DataStatusOf(ctx, "sku-2")
	require.NoError(t, err)
	assert.Empty(t, status)

	_, err = rc.ConfirmReserve(ctx, pkg.NewTransactionContext(tc.Xid, pkg.CONFIRMING), "sku-2")
	assert.ErrorIs(t, err, pkg.ErrSystem)
}

func Test_reservation_cancel_before_try(t *testing.T) {
	client, _ := newRedisClient(t)
	rc := NewReservationComponent("inventory", client)
	ctx := context.Background()
	xid := pkg.NewBranchXid(pkg.NewRootXid().GlobalTransactionID)

	//空回滚
	ok, err := rc.CancelReserve(ctx, pkg.NewTransactionContext(xid, pkg.CANCELLING), "sku-3")
	require.NoError(t, err)
	assert.True(t, ok)

	//迟到的try被拒绝
	_, err = rc.Reserve(ctx, pkg.NewTransactionContext(xid, pkg.TRYING), "sku-3")
	assert.ErrorIs(t, err, ErrBranchCancelled)

	status, err := rc.DataStatusOf(ctx, "sku-3")
	require.NoError(t, err)
	assert.Empty(t, status)

	_, err = rc.Reserve(ctx, nil, "sku-3")
	assert.ErrorIs(t, err, pkg.ErrSystem)
}
