package ovrecorder

import (
	"log/slog"
	"sync"
)

// Message is one framed RTP packet routed to the worker pool.
type Message struct {
	SSRC    uint32
	Seq     uint16
	Payload []byte
}

// WorkerPool fans incoming RTP messages out to a small number of
// workers, each draining its own bounded queue. Messages for a given
// SSRC always land on the same worker, so per-stream ordering is
// preserved without taking a global lock on every packet.
type WorkerPool struct {
	pipeline *Pipeline
	logger   *slog.Logger

	queues []chan Message
	wg     sync.WaitGroup

	dropped uint64
	mu      sync.Mutex

	onDrop func()
}

// NewWorkerPool starts numWorkers goroutines, each backed by a queue
// of capacity queueCapacity (defaulting to numWorkers*20 when 0 is
// passed).
func NewWorkerPool(pipeline *Pipeline, numWorkers, queueCapacity int, logger *slog.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueCapacity <= 0 {
		queueCapacity = numWorkers * 20
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &WorkerPool{
		pipeline: pipeline,
		logger:   logger,
		queues:   make([]chan Message, numWorkers),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Message, queueCapacity)
	}
	p.wg.Add(numWorkers)
	for i := range p.queues {
		go p.run(i)
	}
	return p
}

func (p *WorkerPool) run(idx int) {
	defer p.wg.Done()
	for msg := range p.queues[idx] {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("recorder pipeline panic", "ssrc", msg.SSRC, "panic", r)
				}
			}()
			if err := p.pipeline.ProcessFrame(msg.SSRC, msg.Payload, msg.Seq); err != nil {
				p.logger.Warn("recorder pipeline error", "ssrc", msg.SSRC, "err", err)
			}
		}()
	}
}

// OnDrop registers fn to be called, in addition to the dropped
// counter and warning log, every time Submit drops a frame for
// back-pressure. Typically wired to a metrics counter.
func (p *WorkerPool) OnDrop(fn func()) {
	p.onDrop = fn
}

// Submit routes msg to the worker owning its SSRC. If that worker's
// queue is full the message is dropped and a warning logged; the
// reactor goroutine delivering RTP frames must never block here.
func (p *WorkerPool) Submit(msg Message) {
	idx := int(msg.SSRC) % len(p.queues)
	select {
	case p.queues[idx] <- msg:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.logger.Warn("recorder worker queue full, dropping frame", "ssrc", msg.SSRC, "worker", idx)
		if p.onDrop != nil {
			p.onDrop()
		}
	}
}

// Dropped returns the number of frames dropped so far due to
// back-pressure.
func (p *WorkerPool) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close stops all workers after draining their current queues.
func (p *WorkerPool) Close() {
	for _, q := range p.queues {
		close(q)
	}
	p.wg.Wait()
}
