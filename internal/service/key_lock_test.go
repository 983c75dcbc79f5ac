package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseLocker(t *testing.T, locker KeyLocker) {
	t.Helper()

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "job/s/q")
			if err != nil {
				t.Error(err)
				return
			}
			current := inside.Add(1)
			for {
				old := peak.Load()
				if current <= old || peak.CompareAndSwap(old, current) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), peak.Load())
}

func TestLocalKeyLockerMutualExclusion(t *testing.T) {
	exerciseLocker(t, NewLocalKeyLocker())
}

func TestLocalKeyLockerTimeoutAndIndependentKeys(t *testing.T) {
	locker := NewLocalKeyLocker()

	unlock, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)

	other, err := locker.Lock(context.Background(), "b")
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "a")
	require.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock()

	again, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	again()

	require.Empty(t, locker.(*localKeyLocker).slots)
}

func TestRedisKeyLocker(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	locker := NewRedisKeyLocker(client, "grader:lock:", time.Second)
	exerciseLocker(t, locker)

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, server.Exists("grader:lock:k"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	require.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	require.False(t, server.Exists("grader:lock:k"))
}

func TestRedisKeyLockerReleaseKeepsForeignToken(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	locker := NewRedisKeyLocker(client, "grader:lock:", time.Second)
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	server.FastForward(2 * time.Second)
	require.False(t, server.Exists("grader:lock:k"))

	second, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	unlock()
	require.True(t, server.Exists("grader:lock:k"))
	second()
	require.False(t, server.Exists("grader:lock:k"))
}
