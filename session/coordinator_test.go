package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_RunsInOrder(t *testing.T) {
	t.Parallel()

	c := NewCoordinator()
	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		c.Async(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	require.NoError(t, c.Sync(context.Background(), func() {}))
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestCoordinator_SyncWaits(t *testing.T) {
	t.Parallel()

	c := NewCoordinator()
	defer c.Stop()

	ran := false
	require.NoError(t, c.Sync(context.Background(), func() {
		time.Sleep(10 * time.Millisecond)
		ran = true
	}))
	assert.True(t, ran)
}

func TestCoordinator_SyncHonoursContext(t *testing.T) {
	t.Parallel()

	c := NewCoordinator()
	defer c.Stop()

	release := make(chan struct{})
	c.Async(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Sync(ctx, func() {}), context.DeadlineExceeded)
	close(release)
}

func TestCoordinator_Stopped(t *testing.T) {
	t.Parallel()

	c := NewCoordinator()
	c.Stop()
	c.Stop()

	assert.ErrorIs(t, c.Sync(context.Background(), func() { t.Error("ran after stop") }), ErrStopped)
	c.Async(func() { t.Error("ran after stop") })
}

func TestQueue_DrainsBeforeClosing(t *testing.T) {
	t.Parallel()

	q := newQueue()
	n := 0
	for i := 0; i < 3; i++ {
		require.True(t, q.push(func() { n++ }))
	}
	q.close()
	assert.False(t, q.push(func() { n++ }))

	q.run()
	assert.Equal(t, 3, n)
}
