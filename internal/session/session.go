// Package session implements the per-player track session state machine:
// listened-time accrual from position samples, seek classification, volume
// sampling and the scrobble-eligibility decision at track end.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/llehouerou/echoes/internal/metadata"
	"github.com/llehouerou/echoes/internal/snapshot"
)

// Phase is the session lifecycle state.
type Phase int

const (
	PhaseStarting Phase = iota
	PhasePlaying
	PhasePaused
	PhaseEnding
	PhaseFinalized
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "Starting"
	case PhasePlaying:
		return "Playing"
	case PhasePaused:
		return "Paused"
	case PhaseEnding:
		return "Ending"
	case PhaseFinalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// EndReason describes why a session ended.
type EndReason int

const (
	ReasonTrackChanged EndReason = iota
	ReasonStopped
	ReasonVanished
	ReasonShutdown
)

// String returns the reason name.
func (r EndReason) String() string {
	switch r {
	case ReasonTrackChanged:
		return "track-changed"
	case ReasonStopped:
		return "stopped"
	case ReasonVanished:
		return "player-vanished"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

const (
	// longPlayThreshold is the Last.fm 4-minute clause: a play this long is
	// always eligible regardless of track length.
	longPlayThreshold = 240 * time.Second

	// seekTolerance is how far an observed position may drift from the
	// position implied by uninterrupted playback before it counts as a seek.
	seekTolerance = 2 * time.Second

	// A backward seek landing at most introResetPosition into the track
	// within introResetWindow of session start is flagged as an intro skip.
	introResetPosition = 2 * time.Second
	introResetWindow   = 10 * time.Second
)

// Options configures eligibility thresholds and sampling detail.
type Options struct {
	MinPlay     time.Duration // absolute eligibility floor
	MinPercent  float64       // completion-fraction clause
	LocalOnly   bool          // disqualify non-local sources
	TrackSeeks  bool
	TrackVolume bool
}

// DefaultOptions returns the Last.fm-compatible defaults.
func DefaultOptions() Options {
	return Options{
		MinPlay:     30 * time.Second,
		MinPercent:  0.5,
		TrackSeeks:  true,
		TrackVolume: true,
	}
}

// PositionSample is one observed playback position.
type PositionSample struct {
	At       time.Time
	Position time.Duration
}

// VolumeSample is one observed volume level.
type VolumeSample struct {
	At    time.Time
	Level float64
}

// SeekSummary aggregates seek behavior over a session.
type SeekSummary struct {
	Count        int
	Forward      int
	Backward     int
	ForwardDist  time.Duration
	BackwardDist time.Duration
	IntroSkipped bool
}

// VolumeSummary is computed from the volume samples at finalize time.
type VolumeSummary struct {
	Samples int
	Min     float64
	Max     float64
	Mean    float64
}

// Session tracks one in-progress track on one endpoint. It is not safe for
// concurrent use; the registry serializes access per endpoint.
type Session struct {
	id        uuid.UUID
	endpoint  string
	player    string
	track     metadata.Track
	startedAt time.Time
	env       snapshot.Context
	local     bool
	opts      Options

	phase   Phase
	played  time.Duration
	lastPos time.Duration
	lastAt  time.Time
	samples []PositionSample
	seeks   SeekSummary
	volumes []VolumeSample
}

// New creates a session in the Starting phase for a freshly reported track.
func New(endpoint, player string, track metadata.Track, env snapshot.Context, local bool, at time.Time, opts Options) *Session {
	return &Session{
		id:        uuid.New(),
		endpoint:  endpoint,
		player:    player,
		track:     track,
		startedAt: at,
		env:       env,
		local:     local,
		opts:      opts,
		phase:     PhaseStarting,
		lastAt:    at,
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase { return s.phase }

// Track returns the track identity this session observes.
func (s *Session) Track() metadata.Track { return s.track }

// Played returns the accumulated listened time so far.
func (s *Session) Played() time.Duration { return s.played }

// Play transitions into the Playing phase. Time spent outside Playing never
// accrues, so the accrual baseline resets to the transition instant.
func (s *Session) Play(at time.Time) {
	if s.phase == PhasePlaying || s.ended() {
		return
	}
	s.phase = PhasePlaying
	s.lastAt = at
}

// Pause suspends accrual. The wall-clock span since the last sample counts
// as listened, since the player reported Playing for its entirety.
func (s *Session) Pause(at time.Time) {
	if s.ended() {
		return
	}
	if s.phase == PhasePlaying {
		if wall := at.Sub(s.lastAt); wall > 0 {
			s.played += wall
			s.lastPos += wall
		}
	}
	s.phase = PhasePaused
	s.lastAt = at
}

// ObservePosition records a position sample and accrues listened time.
// The per-interval increment is capped at the wall-clock delta, so a
// position jump larger than elapsed time is classified as a seek rather
// than miscounted as listened time. Samples older than the latest observed
// one are kept for the record but contribute no accrual: the newer sample
// already covers that span.
func (s *Session) ObservePosition(pos time.Duration, at time.Time) {
	if s.ended() {
		return
	}
	if at.Before(s.lastAt) {
		s.insertSample(PositionSample{At: at, Position: pos})
		return
	}

	wall := at.Sub(s.lastAt)
	if s.phase == PhasePlaying {
		implied := s.lastPos + wall
		drift := pos - implied
		if drift > seekTolerance || drift < -seekTolerance {
			s.recordSeek(pos, drift, at)
			s.played += wall
		} else {
			adv := pos - s.lastPos
			if adv < 0 {
				adv = 0
			}
			if adv > wall {
				adv = wall
			}
			s.played += adv
		}
	}

	s.samples = append(s.samples, PositionSample{At: at, Position: pos})
	s.lastPos = pos
	s.lastAt = at
}

// Seeked handles an explicit seek signal from the player.
func (s *Session) Seeked(pos time.Duration, at time.Time) {
	if s.ended() {
		return
	}
	if at.Before(s.lastAt) {
		s.insertSample(PositionSample{At: at, Position: pos})
		return
	}

	wall := at.Sub(s.lastAt)
	if s.phase == PhasePlaying {
		s.played += wall
	}
	s.recordSeek(pos, pos-(s.lastPos+wall), at)

	s.samples = append(s.samples, PositionSample{At: at, Position: pos})
	s.lastPos = pos
	s.lastAt = at
}

// ObserveVolume records a volume sample.
func (s *Session) ObserveVolume(level float64, at time.Time) {
	if s.ended() || !s.opts.TrackVolume {
		return
	}
	s.volumes = append(s.volumes, VolumeSample{At: at, Level: level})
}

// End finalizes the session: accrual stops, eligibility is evaluated once,
// and the outcome is returned. Returns nil if the session was already
// finalized. For a vanished player the last known sample is the cutoff, so
// no further time accrues.
func (s *Session) End(reason EndReason, at time.Time) *Result {
	if s.ended() {
		return nil
	}
	playing := s.phase == PhasePlaying
	s.phase = PhaseEnding

	// The player reported Playing right up to this instant; for a vanished
	// player the last known sample is the cutoff instead.
	if playing && reason != ReasonVanished && at.After(s.lastAt) {
		s.played += at.Sub(s.lastAt)
		s.lastAt = at
	}

	res := &Result{
		SessionID:  s.id,
		Endpoint:   s.endpoint,
		Player:     s.player,
		Track:      s.track,
		StartedAt:  s.startedAt,
		FinishedAt: s.lastAt,
		Played:     s.played,
		Completion: s.completion(),
		Eligible:   s.eligible(),
		Reason:     reason,
		Local:      s.local,
		Seeks:      s.seeks,
		Volume:     summarizeVolume(s.volumes),
		Env:        s.env,
	}
	s.phase = PhaseFinalized
	return res
}

func (s *Session) ended() bool {
	return s.phase == PhaseEnding || s.phase == PhaseFinalized
}

func (s *Session) completion() float64 {
	if !s.track.HasDuration() {
		return 0
	}
	c := s.played.Seconds() / s.track.Duration.Seconds()
	if c > 1 {
		c = 1
	}
	return c
}

// eligible implements the Last.fm-compatible threshold: the absolute floor
// always applies; with known duration either the completion fraction or the
// 4-minute clause must hold; with unknown duration the floor alone decides.
// local_only additionally disqualifies non-local sources.
func (s *Session) eligible() bool {
	if s.played < s.opts.MinPlay {
		return false
	}
	if s.opts.LocalOnly && !s.local {
		return false
	}
	if !s.track.HasDuration() {
		return true
	}
	if s.played >= longPlayThreshold {
		return true
	}
	return s.played.Seconds() >= s.track.Duration.Seconds()*s.opts.MinPercent
}

func (s *Session) recordSeek(pos time.Duration, drift time.Duration, at time.Time) {
	if !s.opts.TrackSeeks {
		return
	}
	s.seeks.Count++

	dist := pos - s.lastPos
	if dist < 0 {
		dist = -dist
	}
	if drift >= 0 {
		s.seeks.Forward++
		s.seeks.ForwardDist += dist
	} else {
		s.seeks.Backward++
		s.seeks.BackwardDist += dist
		if pos <= introResetPosition && at.Sub(s.startedAt) <= introResetWindow {
			s.seeks.IntroSkipped = true
		}
	}
}

// insertSample places an out-of-order sample at its timestamp position.
func (s *Session) insertSample(sample PositionSample) {
	i := len(s.samples)
	for i > 0 && s.samples[i-1].At.After(sample.At) {
		i--
	}
	s.samples = append(s.samples, PositionSample{})
	copy(s.samples[i+1:], s.samples[i:])
	s.samples[i] = sample
}

func summarizeVolume(samples []VolumeSample) VolumeSummary {
	if len(samples) == 0 {
		return VolumeSummary{}
	}
	sum := VolumeSummary{
		Samples: len(samples),
		Min:     samples[0].Level,
		Max:     samples[0].Level,
	}
	var total float64
	for _, v := range samples {
		if v.Level < sum.Min {
			sum.Min = v.Level
		}
		if v.Level > sum.Max {
			sum.Max = v.Level
		}
		total += v.Level
	}
	sum.Mean = total / float64(len(samples))
	return sum
}
