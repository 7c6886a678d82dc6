// echoes is a personal listening telemetry daemon. It watches MPRIS players
// on the D-Bus session bus, tracks what actually gets listened to, and
// appends eligible plays to a local SQLite database. Statistics live in the
// echoes-stats command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/llehouerou/echoes/internal/config"
	"github.com/llehouerou/echoes/internal/dispatch"
	"github.com/llehouerou/echoes/internal/logging"
	"github.com/llehouerou/echoes/internal/mpris"
	"github.com/llehouerou/echoes/internal/registry"
	"github.com/llehouerou/echoes/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "echoes: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // stderr sync fails on some platforms

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolving data path: %w", err)
		}
	}

	st, err := store.Open(dbPath, log)
	if err != nil {
		return err
	}

	lc := registry.NewLifecycle()
	reg := registry.New(cfg, st, lc, log)
	disp := dispatch.New(reg, log)

	monitor, err := mpris.New(disp, reg.Playing, log)
	if err != nil {
		st.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monErr := make(chan error, 1)
	go func() { monErr <- monitor.Run(ctx) }()

	log.Info("listening for players",
		zap.String("database", dbPath),
		zap.Duration("idle_timeout", cfg.IdleTimeout()))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case <-lc.Done():
		// Idle timer fired.
	case err := <-monErr:
		if err != nil && ctx.Err() == nil {
			log.Error("bus monitor failed", zap.Error(err))
		}
	}
	lc.RequestShutdown()
	stop()

	// Ordered teardown: stop the event source, drain workers, finalize
	// sessions, then let the store flush everything it was handed.
	monitor.Close()
	disp.Close()
	reg.Drain(time.Now())
	if err := st.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}

	log.Info("stopped")
	return nil
}
