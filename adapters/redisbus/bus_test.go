package redisbus

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardcore/core"
)

func newTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client, "", nil), mr
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, stop, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer stop()

	sent := core.NewFact(core.FactGoalCompleted, 42, map[string]any{"xp_reward": 100})
	require.NoError(t, bus.Publish(ctx, sent))

	select {
	case got := <-stream:
		assert.Equal(t, core.FactGoalCompleted, got.Kind)
		assert.Equal(t, core.UserID(42), got.ActorID)
		assert.Equal(t, float64(100), got.Payload["xp_reward"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fact")
	}
}

func TestMalformedMessageIsDropped(t *testing.T) {
	bus, mr := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, stop, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer stop()

	// one malformed message, then a valid one: the valid one must arrive
	mr.Publish(DefaultChannel, "{not json")
	require.NoError(t, bus.Publish(ctx, core.NewFact(core.FactQuizCompleted, 7, nil)))

	select {
	case got := <-stream:
		assert.Equal(t, core.FactQuizCompleted, got.Kind)
		assert.Equal(t, core.UserID(7), got.ActorID)
	case <-time.After(2 * time.Second):
		t.Fatal("valid fact never arrived after malformed one")
	}
}

func TestPublishRejectsEmptyKind(t *testing.T) {
	bus, _ := newTestBus(t)
	err := bus.Publish(context.Background(), core.FactEvent{ActorID: 1})
	assert.Error(t, err)
}

func TestPublishDownstreamFailure(t *testing.T) {
	bus, mr := newTestBus(t)
	mr.Close()

	err := bus.Publish(context.Background(), core.NewFact(core.FactGoalCompleted, 1, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnavailable)
	// the transport detail stays in the message for the logs
	assert.NotEqual(t, "publish fact: "+core.ErrUnavailable.Error(), err.Error())
}

func TestStopClosesStream(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	stream, stop, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	stop()

	select {
	case _, open := <-stream:
		assert.False(t, open, "stream should close after stop")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close")
	}
}
