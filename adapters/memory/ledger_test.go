package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardcore/core"
)

func TestAddXPRecomputesLevel(t *testing.T) {
	l := New()
	ctx := context.Background()

	prog, err := l.AddXP(ctx, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), prog.XP)
	assert.Equal(t, int64(1), prog.Level)

	prog, err = l.AddXP(ctx, 1, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(110), prog.XP)
	assert.Equal(t, int64(2), prog.Level)
}

func TestAddXPRejectsNonPositive(t *testing.T) {
	l := New()
	_, err := l.AddXP(context.Background(), 1, 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = l.AddXP(context.Background(), 1, -5)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestAdjustBalanceGuard(t *testing.T) {
	l := New()
	ctx := context.Background()

	bal, err := l.AdjustBalance(ctx, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), bal)

	_, err = l.AdjustBalance(ctx, 1, -100)
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)

	prog, err := l.Progress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50), prog.Balance, "failed adjustment leaves balance untouched")
}

func TestProgressDoesNotCreateRecords(t *testing.T) {
	l := New()
	ctx := context.Background()

	prog, err := l.Progress(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, core.Progress{UserID: 42, Level: 1}, prog)

	_, ok := l.users.Load(core.UserID(42))
	assert.False(t, ok, "a probe read must not store a record")
}

func TestRecordGrantIdempotent(t *testing.T) {
	l := New()
	ctx := context.Background()

	created, err := l.RecordGrant(ctx, 1, "ach_first")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = l.RecordGrant(ctx, 1, "ach_first")
	require.NoError(t, err)
	assert.False(t, created, "duplicate is success-no-op")

	granted, err := l.HasGranted(ctx, 1, "ach_first")
	require.NoError(t, err)
	assert.True(t, granted)

	grants, err := l.Grants(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestRecordGrantConcurrentDuplicates(t *testing.T) {
	l := New()
	ctx := context.Background()

	const writers = 32
	var wg sync.WaitGroup
	createdCount := int64(0)
	var mu sync.Mutex
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := l.RecordGrant(ctx, 7, "badge_once")
			if err != nil {
				t.Error(err)
				return
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), createdCount, "exactly one writer wins the grant")
}

func TestConcurrentAddXPNotLost(t *testing.T) {
	l := New()
	ctx := context.Background()

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.AddXP(ctx, 3, 10); err != nil && !errors.Is(err, core.ErrInvalidInput) {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	prog, err := l.Progress(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(writers*10), prog.XP)
	assert.Equal(t, core.LevelOf(prog.XP).Level, prog.Level)
}
