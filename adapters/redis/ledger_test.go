package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardcore/core"
)

// newTestClient spins up a miniredis server and returns a client plus cleanup.
func newTestClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return client, cleanup
}

func TestLedger_AddXP(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	ledger := NewWithClient(client)
	ctx := context.Background()

	prog, err := ledger.AddXP(ctx, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), prog.XP)
	assert.Equal(t, int64(1), prog.Level)

	prog, err = ledger.AddXP(ctx, 1, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(110), prog.XP)
	assert.Equal(t, int64(2), prog.Level)
}

func TestLedger_AddXP_NonPositive(t *testing.T) {
	// validation rejects before touching Redis
	ledger := &Ledger{}
	_, err := ledger.AddXP(context.Background(), 1, 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestLedger_AdjustBalance(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	ledger := NewWithClient(client)
	ctx := context.Background()

	bal, err := ledger.AdjustBalance(ctx, 2, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), bal)

	_, err = ledger.AdjustBalance(ctx, 2, -100)
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)

	prog, err := ledger.Progress(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(50), prog.Balance, "failed adjustment leaves balance unchanged")
}

func TestLedger_RecordGrant(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	ledger := NewWithClient(client)
	ctx := context.Background()

	created, err := ledger.RecordGrant(ctx, 3, "ach_first_budget")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = ledger.RecordGrant(ctx, 3, "ach_first_budget")
	require.NoError(t, err)
	assert.False(t, created, "duplicate grant is a no-op")

	granted, err := ledger.HasGranted(ctx, 3, "ach_first_budget")
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = ledger.HasGranted(ctx, 3, "other")
	require.NoError(t, err)
	assert.False(t, granted)

	grants, err := ledger.Grants(ctx, 3)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, core.RewardID("ach_first_budget"), grants[0].RewardID)
}

func TestLedger_ProgressMissingUser(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	ledger := NewWithClient(client)
	prog, err := ledger.Progress(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, int64(0), prog.XP)
	assert.Equal(t, int64(1), prog.Level)
}
