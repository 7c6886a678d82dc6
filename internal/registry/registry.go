// Package registry tracks live MPRIS endpoints and drives their sessions.
// It is the single consumer of dispatched events: each event mutates at
// most one endpoint's session, and finalized sessions are handed to the
// store.
package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llehouerou/echoes/internal/config"
	"github.com/llehouerou/echoes/internal/dispatch"
	"github.com/llehouerou/echoes/internal/session"
	"github.com/llehouerou/echoes/internal/snapshot"
)

const mprisPrefix = "org.mpris.MediaPlayer2."

// Sink receives finalized sessions. *store.Store satisfies it.
type Sink interface {
	Enqueue(*session.Result)
}

type endpointState struct {
	player  string // well-known name
	session *session.Session
}

// Registry owns the endpoint table. Dispatch workers call Handle
// concurrently for different endpoints, so all state lives behind one
// mutex; per-event work is cheap enough that contention does not matter at
// desktop scale.
type Registry struct {
	cfg       *config.Config
	opts      session.Options
	sink      Sink
	lifecycle *Lifecycle
	log       *zap.Logger

	// captureEnv is swapped out in tests to avoid running desktop probes.
	captureEnv func() snapshot.Context

	mu        sync.Mutex
	endpoints map[string]*endpointState
	denied    map[string]struct{}
	idleTimer *time.Timer
}

// New builds a registry. The idle timer starts armed: a daemon that never
// sees a session shuts itself down after the configured timeout.
func New(cfg *config.Config, sink Sink, lc *Lifecycle, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		cfg: cfg,
		opts: session.Options{
			MinPlay:     cfg.MinPlay(),
			MinPercent:  cfg.Tracking.MinPlayPercent,
			LocalOnly:   cfg.Tracking.LocalOnly,
			TrackSeeks:  cfg.Tracking.TrackSeeks,
			TrackVolume: cfg.Tracking.TrackVolume,
		},
		sink:      sink,
		lifecycle: lc,
		log:       log,
		endpoints: make(map[string]*endpointState),
		denied:    make(map[string]struct{}),
	}
	if cfg.Tracking.TrackContext {
		r.captureEnv = func() snapshot.Context { return snapshot.Capture(context.Background()) }
	} else {
		r.captureEnv = func() snapshot.Context { return snapshot.At(time.Now()) }
	}
	r.armIdleTimer()
	return r
}

// Handle implements dispatch.Handler.
func (r *Registry) Handle(ev dispatch.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lifecycle.State() != Active {
		return
	}

	switch ev := ev.(type) {
	case dispatch.EndpointAppeared:
		r.appeared(ev)
	case dispatch.EndpointVanished:
		r.vanished(ev)
	case dispatch.TrackChanged:
		r.trackChanged(ev)
	case dispatch.StatusChanged:
		r.statusChanged(ev)
	case dispatch.Seeked:
		if st := r.tracked(ev.Endpoint); st != nil && st.session != nil {
			st.session.Seeked(ev.Position, ev.At)
		}
	case dispatch.PositionSampled:
		if st := r.tracked(ev.Endpoint); st != nil && st.session != nil {
			st.session.ObservePosition(ev.Position, ev.At)
		}
	case dispatch.VolumeChanged:
		if st := r.tracked(ev.Endpoint); st != nil && st.session != nil {
			st.session.ObserveVolume(ev.Level, ev.At)
		}
	}
}

// Playing reports the endpoints that currently have a session in the
// Playing phase. The MPRIS monitor polls positions only for these.
func (r *Registry) Playing() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for endpoint, st := range r.endpoints {
		if st.session != nil && st.session.Phase() == session.PhasePlaying {
			out = append(out, endpoint)
		}
	}
	return out
}

// Drain finalizes every live session with the shutdown reason and marks the
// lifecycle stopped. It is called after the dispatcher has been closed, so
// no Handle calls race with it.
func (r *Registry) Drain(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for endpoint, st := range r.endpoints {
		r.finalize(st, session.ReasonShutdown, at)
		delete(r.endpoints, endpoint)
	}
	r.stopIdleTimer()
	r.lifecycle.MarkStopped()
}

func (r *Registry) appeared(ev dispatch.EndpointAppeared) {
	if !r.admit(ev.Player) {
		if _, seen := r.denied[ev.Endpoint]; !seen {
			r.denied[ev.Endpoint] = struct{}{}
			r.log.Info("ignoring filtered player",
				zap.String("player", ev.Player),
				zap.String("endpoint", ev.Endpoint))
		}
		return
	}

	if _, ok := r.endpoints[ev.Endpoint]; ok {
		return
	}
	r.endpoints[ev.Endpoint] = &endpointState{player: ev.Player}
	r.log.Info("tracking player",
		zap.String("player", ev.Player),
		zap.String("endpoint", ev.Endpoint))
}

func (r *Registry) vanished(ev dispatch.EndpointVanished) {
	delete(r.denied, ev.Endpoint)

	st, ok := r.endpoints[ev.Endpoint]
	if !ok {
		return
	}
	r.finalize(st, session.ReasonVanished, ev.At)
	delete(r.endpoints, ev.Endpoint)
	r.log.Info("player vanished", zap.String("player", st.player))
}

func (r *Registry) trackChanged(ev dispatch.TrackChanged) {
	st := r.tracked(ev.Endpoint)
	if st == nil {
		return
	}

	wasPlaying := false
	if st.session != nil {
		// Same track identity means metadata noise, not a new play.
		if st.session.Track().ID() == ev.Track.ID() {
			return
		}
		wasPlaying = st.session.Phase() == session.PhasePlaying
		r.finalize(st, session.ReasonTrackChanged, ev.At)
	}

	local := ev.Track.IsLocalSource(r.cfg.Players.LocalOnly, st.player)
	st.session = session.New(ev.Endpoint, st.player, ev.Track, r.captureEnv(), local, ev.At, r.opts)
	if wasPlaying {
		st.session.Play(ev.At)
	}
	r.stopIdleTimer()
	r.log.Debug("session started",
		zap.String("artist", ev.Track.Artist),
		zap.String("title", ev.Track.Title),
		zap.String("player", st.player))
}

func (r *Registry) statusChanged(ev dispatch.StatusChanged) {
	st := r.tracked(ev.Endpoint)
	if st == nil || st.session == nil {
		return
	}

	switch ev.Status {
	case "Playing":
		st.session.Play(ev.At)
	case "Paused":
		st.session.Pause(ev.At)
	case "Stopped":
		r.finalize(st, session.ReasonStopped, ev.At)
	}
}

// finalize ends the session (if any) and hands the result to the sink.
// Caller holds r.mu.
func (r *Registry) finalize(st *endpointState, reason session.EndReason, at time.Time) {
	if st.session == nil {
		return
	}
	res := st.session.End(reason, at)
	st.session = nil
	if !r.anySession() {
		r.armIdleTimer()
	}
	if res == nil {
		return
	}
	r.log.Info("session finalized",
		zap.String("artist", res.Track.Artist),
		zap.String("title", res.Track.Title),
		zap.Duration("played", res.Played),
		zap.Bool("eligible", res.Eligible),
		zap.Stringer("reason", res.Reason))
	r.sink.Enqueue(res)
}

func (r *Registry) tracked(endpoint string) *endpointState {
	return r.endpoints[endpoint]
}

// anySession reports whether any endpoint has a live session. Caller holds
// r.mu.
func (r *Registry) anySession() bool {
	for _, st := range r.endpoints {
		if st.session != nil {
			return true
		}
	}
	return false
}

// admit applies the player filter to a well-known name. The blacklist wins
// over the whitelist; an empty whitelist admits everything.
func (r *Registry) admit(player string) bool {
	name := strings.ToLower(strings.TrimPrefix(player, mprisPrefix))
	for _, entry := range r.cfg.Players.Blacklist {
		if entry != "" && strings.Contains(name, strings.ToLower(entry)) {
			return false
		}
	}
	if len(r.cfg.Players.Whitelist) == 0 {
		return true
	}
	for _, entry := range r.cfg.Players.Whitelist {
		if entry != "" && strings.Contains(name, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}

// armIdleTimer schedules idle shutdown. Caller holds r.mu.
func (r *Registry) armIdleTimer() {
	timeout := r.cfg.IdleTimeout()
	if timeout <= 0 {
		return
	}
	r.stopIdleTimer()
	r.idleTimer = time.AfterFunc(timeout, func() {
		r.log.Info("nothing playing, idle shutdown", zap.Duration("timeout", timeout))
		r.lifecycle.RequestShutdown()
	})
}

func (r *Registry) stopIdleTimer() {
	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}
}
