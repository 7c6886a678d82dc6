//go:build !linux

package mpris

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/llehouerou/echoes/internal/dispatch"
)

// Publisher receives the events the monitor extracts from the bus.
type Publisher interface {
	Publish(dispatch.Event)
}

// Monitor is unavailable on non-Linux platforms; MPRIS lives on the
// session bus.
type Monitor struct{}

func New(_ Publisher, _ func() []string, _ *zap.Logger) (*Monitor, error) {
	return nil, errors.New("mpris monitoring requires a D-Bus session bus (linux only)")
}

func (m *Monitor) Run(_ context.Context) error { return nil }

func (m *Monitor) Close() error { return nil }
