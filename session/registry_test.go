package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftps/trust"
)

type sessionCounter struct {
	mu             sync.Mutex
	opened, closed int
	decisions      []trust.Decision
}

func (c *sessionCounter) SessionOpened() {
	c.mu.Lock()
	c.opened++
	c.mu.Unlock()
}

func (c *sessionCounter) SessionClosed() {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
}

func (c *sessionCounter) TrustDecided(_ string, d trust.Decision) {
	c.mu.Lock()
	c.decisions = append(c.decisions, d)
	c.mu.Unlock()
}

func (c *sessionCounter) trustDecisions() []trust.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]trust.Decision(nil), c.decisions...)
}

func (c *sessionCounter) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened, c.closed
}

func TestRegistry_CloseAll(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	counter := &sessionCounter{}
	f.reg = NewRegistry(f.coord, WithMetrics(counter))

	var sessions []*Session
	for i := 0; i < 3; i++ {
		sessions = append(sessions, f.reg.Connect(f.config(), "/", f.rec))
	}
	waitCount[Connected](t, f.rec, 3)
	assert.Equal(t, 3, f.reg.Len())
	assert.Len(t, f.reg.Sessions(), 3)

	ids := map[string]bool{}
	for _, s := range sessions {
		ids[s.ID().String()] = true
	}
	assert.Len(t, ids, 3)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, f.reg.CloseAll(ctx))

	assert.Zero(t, f.reg.Len())
	for _, s := range sessions {
		select {
		case <-s.Done():
		default:
			t.Fatal("session not done after CloseAll")
		}
	}
	assert.Len(t, eventsOf[Disconnected](f.rec), 3)

	opened, closed := counter.counts()
	assert.Equal(t, 3, opened)
	assert.Equal(t, 3, closed)
}

func TestRegistry_CloseAllRespectsContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	release := make(chan struct{})
	// Park the coordinator so Disconnected cannot be delivered.
	f.coord.Async(func() { <-release })
	defer close(release)

	f.reg.Connect(f.config(), "/", f.rec)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.reg.CloseAll(ctx), context.DeadlineExceeded)
	assert.Zero(t, f.reg.Len())
}
