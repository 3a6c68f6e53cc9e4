package memory

import (
	"context"
	"docsync-server/core"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestCache(t *testing.T) (*RoomCache, *quartz.Mock) {
	mClock := quartz.NewMock(t)
	return NewCache(WithClock(mClock)), mClock
}

func TestSetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	value := []byte(`{"content":"a"}`)
	require.NoError(t, c.Set(ctx, "doc1", value, 0))

	// the cache keeps its own copy
	value[0] = 'X'

	got, err := c.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, `{"content":"a"}`, string(got))

	got[0] = 'Y'
	again, err := c.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, `{"content":"a"}`, string(again))
}

func TestGet_Miss(t *testing.T) {
	c, _ := newTestCache(t)

	_, err := c.Get(context.Background(), "missing")
	require.ErrorIs(t, err, core.ErrCacheMiss)
}

func TestLastWriteWins(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "doc1", []byte("first"), 0))
	require.NoError(t, c.Set(ctx, "doc1", []byte("second"), 0))

	got, err := c.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestTTL(t *testing.T) {
	c, mClock := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "doc1", []byte("x"), time.Minute))

	mClock.Advance(59 * time.Second).MustWait(ctx)
	ok, err := c.Exists(ctx, "doc1")
	require.NoError(t, err)
	assert.True(t, ok)

	mClock.Advance(time.Second).MustWait(ctx)
	ok, err = c.Exists(ctx, "doc1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Get(ctx, "doc1")
	require.ErrorIs(t, err, core.ErrCacheMiss)
	assert.Empty(t, c.entries)
}

func TestExpire(t *testing.T) {
	c, mClock := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "doc1", []byte("x"), 0))
	require.NoError(t, c.Expire(ctx, "doc1", 10*time.Second))

	mClock.Advance(5 * time.Second).MustWait(ctx)
	require.NoError(t, c.Expire(ctx, "doc1", 0))

	mClock.Advance(time.Hour).MustWait(ctx)
	got, err := c.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))

	// expiring a missing key is a no-op
	require.NoError(t, c.Expire(ctx, "missing", time.Second))
	ok, err := c.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDel(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "doc1", []byte("x"), 0))
	require.NoError(t, c.Del(ctx, "doc1"))
	require.NoError(t, c.Del(ctx, "doc1"))

	_, err := c.Get(ctx, "doc1")
	require.ErrorIs(t, err, core.ErrCacheMiss)
}

func TestSweep(t *testing.T) {
	c, mClock := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, c.Set(ctx, "long", []byte("x"), time.Hour))
	require.NoError(t, c.Set(ctx, "forever", []byte("x"), 0))

	mClock.Advance(time.Minute).MustWait(ctx)
	assert.Equal(t, 1, c.sweep())
	assert.Len(t, c.entries, 2)
}

func TestRun_SweepsOnInterval(t *testing.T) {
	c, mClock := newTestCache(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	trap := mClock.Trap().TickerFunc("cache", "sweep")
	defer trap.Close()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		c.Run(runCtx)
		close(done)
	}()
	trap.MustWait(ctx).MustRelease(ctx)

	require.NoError(t, c.Set(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, c.Set(ctx, "forever", []byte("x"), 0))

	mClock.Advance(SweepInterval).MustWait(ctx)
	c.mu.RLock()
	_, short := c.entries["short"]
	remaining := len(c.entries)
	c.mu.RUnlock()
	assert.False(t, short)
	assert.Equal(t, 1, remaining)

	stop()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	c, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
