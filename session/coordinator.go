package session

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Coordinator.Sync once the coordinator stopped.
var ErrStopped = errors.New("session: coordinator stopped")

// queue is an unbounded FIFO of callbacks.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, fn)
	q.cond.Signal()
	return true
}

// pop blocks for the next callback. It returns false once the queue is
// closed and drained.
func (q *queue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fn, true
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *queue) run() {
	for {
		fn, ok := q.pop()
		if !ok {
			return
		}
		fn()
	}
}

// Coordinator is the single goroutine on which observers are notified and
// trust requests are handed out. Callbacks run in submission order.
type Coordinator struct {
	q    *queue
	done chan struct{}
	once sync.Once
}

// NewCoordinator starts a coordinator.
func NewCoordinator() *Coordinator {
	c := &Coordinator{q: newQueue(), done: make(chan struct{})}
	go func() {
		defer close(c.done)
		c.q.run()
	}()
	return c
}

// Async queues fn. It is dropped if the coordinator has stopped. Async
// matches trust.Dispatcher.
func (c *Coordinator) Async(fn func()) {
	c.q.push(fn)
}

// Sync runs fn on the coordinator and waits for it, or for ctx. It must not
// be called from the coordinator goroutine.
func (c *Coordinator) Sync(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !c.q.push(func() {
		defer close(ran)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop lets queued callbacks finish and ends the coordinator goroutine.
func (c *Coordinator) Stop() {
	c.once.Do(c.q.close)
	<-c.done
}
