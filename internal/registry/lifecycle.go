package registry

import "sync"

// State is the coarse lifecycle of the daemon.
type State int

const (
	Active State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Lifecycle tracks daemon state and carries the shutdown signal. Shutdown
// can be requested from several places (signal handler, idle timer) but
// fires exactly once.
type Lifecycle struct {
	mu    sync.Mutex
	state State

	once sync.Once
	done chan struct{}
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{done: make(chan struct{})}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// RequestShutdown moves the daemon to Draining and signals Done. Repeat
// calls are no-ops.
func (l *Lifecycle) RequestShutdown() {
	l.once.Do(func() {
		l.mu.Lock()
		if l.state == Active {
			l.state = Draining
		}
		l.mu.Unlock()
		close(l.done)
	})
}

// MarkStopped records that draining finished.
func (l *Lifecycle) MarkStopped() {
	l.mu.Lock()
	l.state = Stopped
	l.mu.Unlock()
}

// Done is closed once shutdown has been requested.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}
