// Package dispatch fans player events out to per-endpoint workers. Events
// for one endpoint are handled strictly in arrival order; endpoints never
// block each other.
package dispatch

import (
	"time"

	"github.com/llehouerou/echoes/internal/metadata"
)

// Event is anything routed to an endpoint worker. Endpoint returns the
// unique bus name the event belongs to.
type Event interface {
	EventEndpoint() string
}

// EndpointAppeared reports a player claiming an MPRIS name on the bus.
type EndpointAppeared struct {
	Endpoint string // unique bus name, e.g. ":1.42"
	Player   string // well-known name, e.g. "org.mpris.MediaPlayer2.mpv"
	At       time.Time
}

// EndpointVanished reports a player leaving the bus.
type EndpointVanished struct {
	Endpoint string
	At       time.Time
}

// TrackChanged carries the normalized metadata of the track now loaded.
type TrackChanged struct {
	Endpoint string
	Track    metadata.Track
	At       time.Time
}

// StatusChanged reports a PlaybackStatus transition.
type StatusChanged struct {
	Endpoint string
	Status   string // "Playing", "Paused" or "Stopped"
	At       time.Time
}

// Seeked reports an explicit position jump announced by the player.
type Seeked struct {
	Endpoint string
	Position time.Duration
	At       time.Time
}

// PositionSampled carries a polled playback position.
type PositionSampled struct {
	Endpoint string
	Position time.Duration
	At       time.Time
}

// VolumeChanged reports a new player volume level.
type VolumeChanged struct {
	Endpoint string
	Level    float64
	At       time.Time
}

func (e EndpointAppeared) EventEndpoint() string { return e.Endpoint }
func (e EndpointVanished) EventEndpoint() string { return e.Endpoint }
func (e TrackChanged) EventEndpoint() string     { return e.Endpoint }
func (e StatusChanged) EventEndpoint() string    { return e.Endpoint }
func (e Seeked) EventEndpoint() string           { return e.Endpoint }
func (e PositionSampled) EventEndpoint() string  { return e.Endpoint }
func (e VolumeChanged) EventEndpoint() string    { return e.Endpoint }
