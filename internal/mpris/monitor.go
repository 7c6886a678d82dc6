//go:build linux

// Package mpris watches the D-Bus session bus for MPRIS players and turns
// their signals into dispatch events. It never controls playback; it only
// listens.
package mpris

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/llehouerou/echoes/internal/dispatch"
	"github.com/llehouerou/echoes/internal/metadata"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisPath       = "/org/mpris/MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"

	signalQueueSize = 64
	pollInterval    = 5 * time.Second
)

// Publisher receives the events the monitor extracts from the bus.
// *dispatch.Dispatcher satisfies it.
type Publisher interface {
	Publish(dispatch.Event)
}

// Monitor owns the bus connection and the signal loop.
type Monitor struct {
	conn *dbus.Conn
	pub  Publisher
	log  *zap.Logger

	// playing reports which endpoints need position polling.
	playing func() []string

	// owners maps unique bus names to well-known MPRIS names, maintained
	// from NameOwnerChanged. Only the signal loop touches it.
	owners map[string]string
}

// New connects to the session bus and subscribes to the MPRIS signal set.
func New(pub Publisher, playing func() []string, log *zap.Logger) (*Monitor, error) {
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}

	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchSender("org.freedesktop.DBus"),
			dbus.WithMatchInterface("org.freedesktop.DBus"),
			dbus.WithMatchMember("NameOwnerChanged"),
			dbus.WithMatchArg0Namespace("org.mpris.MediaPlayer2"),
		},
		{
			dbus.WithMatchObjectPath(mprisPath),
			dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
			dbus.WithMatchMember("PropertiesChanged"),
		},
		{
			dbus.WithMatchObjectPath(mprisPath),
			dbus.WithMatchInterface(playerInterface),
			dbus.WithMatchMember("Seeked"),
		},
	}
	for _, m := range matches {
		if err := conn.AddMatchSignal(m...); err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribing to bus signals: %w", err)
		}
	}

	return &Monitor{
		conn:    conn,
		pub:     pub,
		log:     log,
		playing: playing,
		owners:  make(map[string]string),
	}, nil
}

// Run discovers players already on the bus, then processes signals until
// the context is canceled. Position polling for playing endpoints runs on
// the same loop.
func (m *Monitor) Run(ctx context.Context) error {
	signals := make(chan *dbus.Signal, signalQueueSize)
	m.conn.Signal(signals)
	defer m.conn.RemoveSignal(signals)

	m.discover()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("bus connection lost")
			}
			m.handleSignal(sig)
		case <-ticker.C:
			m.pollPositions()
		}
	}
}

// Close releases the bus connection.
func (m *Monitor) Close() error {
	return m.conn.Close()
}

// discover finds players that were already running when the daemon
// started.
func (m *Monitor) discover() {
	var names []string
	if err := m.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		m.log.Warn("listing bus names failed", zap.Error(err))
		return
	}

	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		var owner string
		if err := m.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, name).Store(&owner); err != nil {
			continue
		}
		m.announce(owner, name)
	}
}

func (m *Monitor) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case "org.freedesktop.DBus.NameOwnerChanged":
		m.nameOwnerChanged(sig)
	case "org.freedesktop.DBus.Properties.PropertiesChanged":
		m.propertiesChanged(sig)
	case playerInterface + ".Seeked":
		if len(sig.Body) != 1 {
			return
		}
		if us, ok := sig.Body[0].(int64); ok {
			m.pub.Publish(dispatch.Seeked{
				Endpoint: string(sig.Sender),
				Position: time.Duration(us) * time.Microsecond,
				At:       time.Now(),
			})
		}
	}
}

func (m *Monitor) nameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) != 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)
	if !strings.HasPrefix(name, mprisPrefix) {
		return
	}

	if oldOwner != "" {
		delete(m.owners, oldOwner)
		m.pub.Publish(dispatch.EndpointVanished{Endpoint: oldOwner, At: time.Now()})
	}
	if newOwner != "" {
		m.announce(newOwner, name)
	}
}

// announce registers an endpoint and publishes its current state, so a
// track already playing at discovery time gets a session immediately.
func (m *Monitor) announce(endpoint, wellKnown string) {
	m.owners[endpoint] = wellKnown
	now := time.Now()
	m.pub.Publish(dispatch.EndpointAppeared{Endpoint: endpoint, Player: wellKnown, At: now})

	obj := m.conn.Object(endpoint, mprisPath)

	if v, err := obj.GetProperty(playerInterface + ".Metadata"); err == nil {
		if raw, ok := v.Value().(map[string]dbus.Variant); ok && len(raw) > 0 {
			m.pub.Publish(dispatch.TrackChanged{Endpoint: endpoint, Track: metadata.Normalize(raw), At: now})
		}
	}
	if v, err := obj.GetProperty(playerInterface + ".PlaybackStatus"); err == nil {
		if status, ok := v.Value().(string); ok {
			m.pub.Publish(dispatch.StatusChanged{Endpoint: endpoint, Status: status, At: now})
		}
	}
	if v, err := obj.GetProperty(playerInterface + ".Volume"); err == nil {
		if level, ok := v.Value().(float64); ok {
			m.pub.Publish(dispatch.VolumeChanged{Endpoint: endpoint, Level: level, At: now})
		}
	}
}

func (m *Monitor) propertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	iface, _ := sig.Body[0].(string)
	if iface != playerInterface {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	endpoint := string(sig.Sender)
	now := time.Now()

	if v, ok := changed["Metadata"]; ok {
		if raw, ok := v.Value().(map[string]dbus.Variant); ok && len(raw) > 0 {
			m.pub.Publish(dispatch.TrackChanged{Endpoint: endpoint, Track: metadata.Normalize(raw), At: now})
		}
	}
	if v, ok := changed["PlaybackStatus"]; ok {
		if status, ok := v.Value().(string); ok {
			m.pub.Publish(dispatch.StatusChanged{Endpoint: endpoint, Status: status, At: now})
		}
	}
	if v, ok := changed["Volume"]; ok {
		if level, ok := v.Value().(float64); ok {
			m.pub.Publish(dispatch.VolumeChanged{Endpoint: endpoint, Level: level, At: now})
		}
	}
}

// pollPositions samples the playback position of every endpoint with an
// active playing session. MPRIS has no position-change signal for normal
// playback, so polling is the only way to keep accrual honest.
func (m *Monitor) pollPositions() {
	for _, endpoint := range m.playing() {
		obj := m.conn.Object(endpoint, mprisPath)
		v, err := obj.GetProperty(playerInterface + ".Position")
		if err != nil {
			continue
		}
		if us, ok := v.Value().(int64); ok {
			m.pub.Publish(dispatch.PositionSampled{
				Endpoint: endpoint,
				Position: time.Duration(us) * time.Microsecond,
				At:       time.Now(),
			})
		}
	}
}
