package session

import (
	"testing"
	"time"

	"github.com/llehouerou/echoes/internal/metadata"
	"github.com/llehouerou/echoes/internal/snapshot"
)

var t0 = time.Date(2024, time.March, 10, 21, 0, 0, 0, time.Local)

func newPlaying(t *testing.T, track metadata.Track, opts Options) *Session {
	t.Helper()
	s := New(":1.50", "mpv", track, snapshot.At(t0), true, t0, opts)
	s.Play(t0)
	return s
}

func trackWithDuration(d time.Duration) metadata.Track {
	return metadata.Track{Title: "Song", Artist: "Artist", Album: "Album", Duration: d}
}

func TestPhaseTransitions(t *testing.T) {
	s := New(":1.50", "mpv", trackWithDuration(0), snapshot.Context{}, true, t0, DefaultOptions())
	if s.Phase() != PhaseStarting {
		t.Fatalf("new session phase = %v, want Starting", s.Phase())
	}
	s.Play(t0)
	if s.Phase() != PhasePlaying {
		t.Fatalf("phase = %v, want Playing", s.Phase())
	}
	s.Pause(t0.Add(10 * time.Second))
	if s.Phase() != PhasePaused {
		t.Fatalf("phase = %v, want Paused", s.Phase())
	}
	s.Play(t0.Add(20 * time.Second))
	res := s.End(ReasonStopped, t0.Add(30*time.Second))
	if res == nil {
		t.Fatal("End returned nil on first call")
	}
	if s.Phase() != PhaseFinalized {
		t.Fatalf("phase = %v, want Finalized", s.Phase())
	}
	if s.End(ReasonStopped, t0.Add(31*time.Second)) != nil {
		t.Error("End after finalize must return nil")
	}
}

func TestAccrual_NeverExceedsWallClock(t *testing.T) {
	s := newPlaying(t, trackWithDuration(10*time.Minute), DefaultOptions())

	// Position advances exactly with wall clock for 60s, then a big jump.
	s.ObservePosition(30*time.Second, t0.Add(30*time.Second))
	s.ObservePosition(60*time.Second, t0.Add(60*time.Second))
	s.Seeked(5*time.Minute, t0.Add(61*time.Second))
	res := s.End(ReasonTrackChanged, t0.Add(70*time.Second))

	wall := 70 * time.Second
	if res.Played > wall {
		t.Errorf("played %v exceeds session wall clock %v", res.Played, wall)
	}
}

func TestAccrual_PauseSuspends(t *testing.T) {
	s := newPlaying(t, trackWithDuration(10*time.Minute), DefaultOptions())

	s.ObservePosition(40*time.Second, t0.Add(40*time.Second))
	s.Pause(t0.Add(60 * time.Second))
	// Two minutes paused: no accrual.
	s.Play(t0.Add(3 * time.Minute))
	s.ObservePosition(90*time.Second, t0.Add(3*time.Minute+30*time.Second))
	res := s.End(ReasonStopped, t0.Add(3*time.Minute+30*time.Second))

	want := 90 * time.Second // 40 sampled + 20 until pause + 30 after resume
	if res.Played != want {
		t.Errorf("played = %v, want %v", res.Played, want)
	}
}

func TestPositionJump_IsSeekNotListenedTime(t *testing.T) {
	s := newPlaying(t, trackWithDuration(4*time.Minute), DefaultOptions())

	s.ObservePosition(10*time.Second, t0.Add(10*time.Second))
	// Position jumps 10s -> 95s within one real second.
	s.ObservePosition(95*time.Second, t0.Add(11*time.Second))

	if got := s.Played(); got != 11*time.Second {
		t.Errorf("played = %v, want 11s (wall clock), not the 85s jump", got)
	}
	res := s.End(ReasonStopped, t0.Add(11*time.Second))
	if res.Seeks.Count != 1 || res.Seeks.Forward != 1 {
		t.Errorf("seeks = %+v, want one forward seek", res.Seeks)
	}
}

func TestSeekClassification(t *testing.T) {
	s := newPlaying(t, trackWithDuration(5*time.Minute), DefaultOptions())

	s.ObservePosition(60*time.Second, t0.Add(60*time.Second))
	s.Seeked(120*time.Second, t0.Add(61*time.Second))       // forward
	s.Seeked(30*time.Second, t0.Add(70*time.Second))        // backward
	res := s.End(ReasonStopped, t0.Add(80*time.Second))

	if res.Seeks.Count != 2 {
		t.Fatalf("seek count = %d, want 2", res.Seeks.Count)
	}
	if res.Seeks.Forward != 1 || res.Seeks.Backward != 1 {
		t.Errorf("forward/backward = %d/%d, want 1/1", res.Seeks.Forward, res.Seeks.Backward)
	}
	if res.Seeks.ForwardDist != 60*time.Second {
		t.Errorf("forward distance = %v, want 60s", res.Seeks.ForwardDist)
	}
	if res.Seeks.IntroSkipped {
		t.Error("mid-track backward seek must not flag intro skip")
	}
}

func TestIntroSkip_EarlyBackwardSeekToZero(t *testing.T) {
	s := newPlaying(t, trackWithDuration(5*time.Minute), DefaultOptions())

	// Player restarted the track right away: back to ~0 within seconds.
	s.ObservePosition(4*time.Second, t0.Add(4*time.Second))
	s.Seeked(0, t0.Add(5*time.Second))

	res := s.End(ReasonStopped, t0.Add(6*time.Second))
	if !res.Seeks.IntroSkipped {
		t.Error("early backward seek to 0 should flag intro skip")
	}
	// Intro skip alone never disqualifies; this session is ineligible only
	// because it is far too short.
	if res.Eligible {
		t.Error("6s session cannot be eligible")
	}
}

func TestOutOfOrderSamples_ResolvedByTimestamp(t *testing.T) {
	s := newPlaying(t, trackWithDuration(5*time.Minute), DefaultOptions())

	s.ObservePosition(30*time.Second, t0.Add(30*time.Second))
	// A delayed sample from 10s ago arrives late: no extra accrual.
	s.ObservePosition(20*time.Second, t0.Add(20*time.Second))

	if got := s.Played(); got != 30*time.Second {
		t.Errorf("played = %v, want 30s; stale sample must not accrue", got)
	}
}

func TestEligibility(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		played   time.Duration
		want     bool
	}{
		{"below absolute floor", 200 * time.Second, 25 * time.Second, false},
		{"75 percent of short track", 40 * time.Second, 30 * time.Second, true},
		{"24 percent but past 4 minutes", 1000 * time.Second, 241 * time.Second, true},
		{"33 percent under 4 minutes", 600 * time.Second, 200 * time.Second, false},
		{"unknown duration floor only", 0, 31 * time.Second, true},
		{"unknown duration below floor", 0, 29 * time.Second, false},
		{"exactly half", 100 * time.Second, 50 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newPlaying(t, trackWithDuration(tt.duration), DefaultOptions())
			s.ObservePosition(tt.played, t0.Add(tt.played))
			res := s.End(ReasonTrackChanged, t0.Add(tt.played))
			if res.Played != tt.played {
				t.Fatalf("played = %v, want %v", res.Played, tt.played)
			}
			if res.Eligible != tt.want {
				t.Errorf("eligible = %v, want %v", res.Eligible, tt.want)
			}
		})
	}
}

func TestLocalOnly_DisqualifiesStreaming(t *testing.T) {
	opts := DefaultOptions()
	opts.LocalOnly = true

	s := New(":1.60", "spotify", trackWithDuration(200*time.Second), snapshot.Context{}, false, t0, opts)
	s.Play(t0)
	s.ObservePosition(180*time.Second, t0.Add(180*time.Second))
	res := s.End(ReasonTrackChanged, t0.Add(180*time.Second))

	if res.Eligible {
		t.Error("non-local session must be ineligible under local_only")
	}

	local := New(":1.61", "mpv", trackWithDuration(200*time.Second), snapshot.Context{}, true, t0, opts)
	local.Play(t0)
	local.ObservePosition(180*time.Second, t0.Add(180*time.Second))
	if got := local.End(ReasonTrackChanged, t0.Add(180*time.Second)); !got.Eligible {
		t.Error("local session should stay eligible under local_only")
	}
}

func TestVanished_CutsOffAtLastSample(t *testing.T) {
	s := newPlaying(t, trackWithDuration(5*time.Minute), DefaultOptions())

	s.ObservePosition(45*time.Second, t0.Add(45*time.Second))
	// Player vanishes; the endpoint monitor notices a minute later.
	res := s.End(ReasonVanished, t0.Add(105*time.Second))

	if res.Played != 45*time.Second {
		t.Errorf("played = %v, want 45s (last sample is the cutoff)", res.Played)
	}
	if res.FinishedAt != t0.Add(45*time.Second) {
		t.Errorf("finished at %v, want the last sample time", res.FinishedAt)
	}
}

func TestVolumeSummary(t *testing.T) {
	s := newPlaying(t, trackWithDuration(5*time.Minute), DefaultOptions())

	s.ObserveVolume(0.4, t0.Add(1*time.Second))
	s.ObserveVolume(0.8, t0.Add(2*time.Second))
	s.ObserveVolume(0.6, t0.Add(3*time.Second))
	res := s.End(ReasonStopped, t0.Add(10*time.Second))

	if res.Volume.Samples != 3 {
		t.Fatalf("samples = %d, want 3", res.Volume.Samples)
	}
	if res.Volume.Min != 0.4 || res.Volume.Max != 0.8 {
		t.Errorf("min/max = %v/%v", res.Volume.Min, res.Volume.Max)
	}
	if diff := res.Volume.Mean - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("mean = %v, want 0.6", res.Volume.Mean)
	}
}

func TestVolumeTrackingDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.TrackVolume = false
	s := newPlaying(t, trackWithDuration(time.Minute), opts)
	s.ObserveVolume(0.5, t0.Add(time.Second))
	res := s.End(ReasonStopped, t0.Add(2*time.Second))
	if res.Volume.Samples != 0 {
		t.Error("volume sampling disabled but samples recorded")
	}
}

func TestSeekTrackingDisabled_AccrualStillCorrect(t *testing.T) {
	opts := DefaultOptions()
	opts.TrackSeeks = false
	s := newPlaying(t, trackWithDuration(10*time.Minute), opts)

	s.ObservePosition(10*time.Second, t0.Add(10*time.Second))
	s.ObservePosition(95*time.Second, t0.Add(11*time.Second))
	res := s.End(ReasonStopped, t0.Add(11*time.Second))

	if res.Seeks.Count != 0 {
		t.Error("seek stats recorded despite track_seeks=false")
	}
	if res.Played != 11*time.Second {
		t.Errorf("played = %v, want 11s; jump must still not accrue", res.Played)
	}
}

func TestCompletion(t *testing.T) {
	s := newPlaying(t, trackWithDuration(100*time.Second), DefaultOptions())
	s.ObservePosition(50*time.Second, t0.Add(50*time.Second))
	res := s.End(ReasonTrackChanged, t0.Add(50*time.Second))
	if res.Completion != 0.5 {
		t.Errorf("completion = %v, want 0.5", res.Completion)
	}

	unknown := newPlaying(t, trackWithDuration(0), DefaultOptions())
	unknown.ObservePosition(50*time.Second, t0.Add(50*time.Second))
	if got := unknown.End(ReasonTrackChanged, t0.Add(50*time.Second)); got.Completion != 0 {
		t.Errorf("completion with unknown duration = %v, want 0", got.Completion)
	}
}
