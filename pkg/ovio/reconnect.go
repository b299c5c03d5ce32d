package ovio

import (
	"sync"
	"time"
)

// reconnectItem is one pending outbound-client reconnect descriptor.
type reconnectItem struct {
	target        Target
	tlsClient     *TLSClientConfig
	handlers      Handlers
	autoReconnect bool
}

// reconnectWorker is a single background goroutine that drains a
// lock-protected, capacity-bounded FIFO of reconnect descriptors on a
// timer and re-enters the Reactor's connect path. The reactor's own
// goroutines append under a non-blocking (try-lock equivalent) send so
// a contended or full queue never blocks the reactor's forward
// progress; a dropped item is logged.
type reconnectWorker struct {
	r        *Reactor
	interval time.Duration

	mu    sync.Mutex
	queue []reconnectItem
	cap   int
}

func newReconnectWorker(r *Reactor, interval time.Duration, capacity int) *reconnectWorker {
	return &reconnectWorker{r: r, interval: interval, cap: capacity}
}

func (w *reconnectWorker) enqueue(item reconnectItem) {
	if !w.mu.TryLock() {
		w.r.log.Warn("reconnect queue contended, dropping item", "address", item.target.Address)
		return
	}
	defer w.mu.Unlock()

	if len(w.queue) >= w.cap {
		w.r.log.Warn("reconnect queue full, dropping item", "address", item.target.Address)
		return
	}
	w.queue = append(w.queue, item)
}

func (w *reconnectWorker) drain() []reconnectItem {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.queue) == 0 {
		return nil
	}
	items := w.queue
	w.queue = nil
	return items
}

func (w *reconnectWorker) run() {
	defer w.r.wg.Done()

	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-w.r.stopCh:
			return
		case <-t.C:
			for _, item := range w.drain() {
				select {
				case <-w.r.stopCh:
					return
				default:
				}
				_, err := w.r.Connect(item.target, item.tlsClient, item.handlers, item.autoReconnect)
				if err != nil && err != ErrPending {
					w.r.log.Debug("reconnect attempt failed", "address", item.target.Address, "error", err)
				}
			}
		}
	}
}
