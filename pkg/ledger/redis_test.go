package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisNonceLedger_FirstUseThenReplay(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	l := NewRedisNonceLedger(client, 0)

	ok, err := l.CheckAndRecord(ctx, "n-1", 1_000)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.CheckAndRecord(ctx, "n-1", 2_000)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := l.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisNonceLedger_Retention(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	l := NewRedisNonceLedger(client, 10*time.Second)

	ok, err := l.CheckAndRecord(ctx, "n-1", 0)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(5 * time.Second)
	ok, _ = l.CheckAndRecord(ctx, "n-1", 5_000)
	assert.False(t, ok)

	mr.FastForward(6 * time.Second)
	ok, _ = l.CheckAndRecord(ctx, "n-1", 11_000)
	assert.True(t, ok, "nonce expires with the retention window")
}

func TestRedisNonceLedger_Concurrent(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisNonceLedger(client, 0)

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.CheckAndRecord(context.Background(), "shared", 1)
			if err == nil && ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins)
}

func TestRedisNonceLedger_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisNonceLedger(client, 0)
	mr.Close()

	ok, err := l.CheckAndRecord(context.Background(), "n", 1)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisFailureLedger_WindowedCount(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	l := NewRedisFailureLedger(client, time.Hour)
	hour := time.Hour.Milliseconds()

	for i := 1; i <= 3; i++ {
		n, err := l.RecordFailure(ctx, "fp", int64(i))
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err := l.RecordFailure(ctx, "other", 4)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = l.RecordFailure(ctx, "fp", 1+hour+1)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "count restarts after the window")

	tracked, err := l.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, tracked)
}

func TestRedisFailureLedger_KeyExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	l := NewRedisFailureLedger(client, time.Minute)

	_, _ = l.RecordFailure(ctx, "fp", 0)
	_, _ = l.RecordFailure(ctx, "fp", 1)
	mr.FastForward(2 * time.Minute)

	n, err := l.RecordFailure(ctx, "fp", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisFailureLedger_NoLostUpdates(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisFailureLedger(client, time.Hour)

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.RecordFailure(context.Background(), "fp", 1)
		}()
	}
	wg.Wait()

	n, err := l.RecordFailure(context.Background(), "fp", 1)
	require.NoError(t, err)
	assert.Equal(t, workers+1, n)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(mr.Addr(), "", 0)
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())
}
