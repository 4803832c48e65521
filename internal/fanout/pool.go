package fanout

import (
	"context"
	"errors"
	"sync"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/envelope"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/metrics"
)

// ErrPoolClosed is returned by Enqueue after Close.
var ErrPoolClosed = errors.New("fanout: pool closed")

// Pool decouples transport delivery from store writes with a bounded
// queue and a fixed set of workers. Enqueue blocks when the queue is
// full, which is the engine's only backpressure mechanism. Each worker
// processes one envelope at a time, so per-envelope store-write isolation
// is preserved.
type Pool struct {
	queue   chan *envelope.Envelope
	process func(ctx context.Context, env *envelope.Envelope)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool with the given queue size and worker count and
// starts its workers.
func NewPool(queueSize, workers int, process func(ctx context.Context, env *envelope.Envelope)) *Pool {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}

	p := &Pool{
		queue:   make(chan *envelope.Envelope, queueSize),
		process: process,
	}
	metrics.QueueCapacity.Set(float64(queueSize))

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Enqueue hands an envelope to the pool, blocking while the queue is
// full. It fails only when ctx is done or the pool is closing.
func (p *Pool) Enqueue(ctx context.Context, env *envelope.Envelope) error {
	// The read lock keeps Close from closing the queue mid-send; workers
	// keep draining until Close runs, so a blocked send always completes.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- env:
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits for queued envelopes to finish
// processing. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for env := range p.queue {
		metrics.QueueDepth.Set(float64(len(p.queue)))
		p.process(context.Background(), env)
	}
}
