package hub

import "sync"

const boardQueueSize = 64

// dispatcher runs state operations strictly FIFO per board id, so that all
// cache/store operations for one board are processed in the order their
// triggering messages arrived, even though the durable write suspends. One
// goroutine is started lazily per board id; different boards never wait on
// each other.
type dispatcher struct {
	mu     sync.Mutex
	queues map[string]chan func()
	closed bool
	wg     sync.WaitGroup
}

func newDispatcher() *dispatcher {
	return &dispatcher{queues: make(map[string]chan func())}
}

// Enqueue schedules op after every previously enqueued op for the same
// board. Blocks only if the board's queue is full, which backpressures the
// hub loop rather than reordering or dropping state operations. The send
// happens under the lock: Stop closes the queues under the same lock, so
// an enqueue can never hit a closed queue.
func (d *dispatcher) Enqueue(boardID string, op func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	q, ok := d.queues[boardID]
	if !ok {
		q = make(chan func(), boardQueueSize)
		d.queues[boardID] = q
		d.wg.Add(1)
		go d.run(q)
	}
	q <- op
}

func (d *dispatcher) run(q chan func()) {
	defer d.wg.Done()
	for op := range q {
		op()
	}
}

// Stop drains every queue and waits for in-flight operations to finish.
// Enqueue becomes a no-op afterwards.
func (d *dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
