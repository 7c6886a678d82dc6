package dispatch

import (
	"sync"

	"go.uber.org/zap"
)

const workerQueueSize = 64

// Handler consumes events for one endpoint. Calls for a given endpoint are
// serialized by its worker; calls for different endpoints run concurrently,
// so implementations must guard shared state.
type Handler interface {
	Handle(Event)
}

// Dispatcher routes events to one worker goroutine per endpoint.
type Dispatcher struct {
	handler Handler
	log     *zap.Logger

	mu      sync.Mutex
	workers map[string]chan Event
	closed  bool
	wg      sync.WaitGroup
}

// New returns a dispatcher delivering events to handler.
func New(handler Handler, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		handler: handler,
		log:     log,
		workers: make(map[string]chan Event),
	}
}

// Publish routes ev to its endpoint's worker, spawning one on first sight.
// When a worker's queue is full the event is dropped with a log entry
// rather than stalling the bus loop. EndpointVanished is never dropped: it
// is the event that retires the worker, so Publish waits for queue space
// and then closes the channel behind it.
func (d *Dispatcher) Publish(ev Event) {
	endpoint := ev.EventEndpoint()
	_, vanished := ev.(EndpointVanished)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	ch, ok := d.workers[endpoint]
	if !ok {
		if vanished {
			d.mu.Unlock()
			return
		}
		ch = make(chan Event, workerQueueSize)
		d.workers[endpoint] = ch
		d.wg.Add(1)
		go d.run(ch)
	}

	if vanished {
		// Removed from the map before the send: nothing can enqueue behind
		// the close, and the possibly-blocking send happens without the
		// lock, so a stalled worker delays only its own endpoint.
		delete(d.workers, endpoint)
		d.mu.Unlock()
		ch <- ev
		close(ch)
		return
	}

	select {
	case ch <- ev:
	default:
		d.log.Warn("event queue full, dropping event",
			zap.String("endpoint", endpoint),
			zap.String("event", eventName(ev)))
	}
	d.mu.Unlock()
}

// Close retires every worker after it drains its queue, then waits for them.
// Publish calls after Close are no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for endpoint, ch := range d.workers {
		close(ch)
		delete(d.workers, endpoint)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run(ch chan Event) {
	defer d.wg.Done()
	for ev := range ch {
		d.handler.Handle(ev)
	}
}

func eventName(ev Event) string {
	switch ev.(type) {
	case EndpointAppeared:
		return "appeared"
	case EndpointVanished:
		return "vanished"
	case TrackChanged:
		return "track-changed"
	case StatusChanged:
		return "status-changed"
	case Seeked:
		return "seeked"
	case PositionSampled:
		return "position"
	case VolumeChanged:
		return "volume"
	default:
		return "unknown"
	}
}
