// Package store persists finalized listen records to a local SQLite
// database. Appends are durable before they return and idempotent per
// (track identity, start timestamp). Writes go through a single internal
// writer; reads may run concurrently.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	dbutil "github.com/llehouerou/echoes/internal/db"
	"github.com/llehouerou/echoes/internal/session"
)

const (
	appName    = "echoes"
	dbFileName = "listens.db"

	writeQueueSize = 64
	maxAttempts    = 3
	retryBackoff   = 100 * time.Millisecond
)

// Store owns the listens database.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	writeMu sync.Mutex // single-writer discipline for appends

	mu      sync.Mutex
	closed  bool
	queue   chan *session.Result
	pending []*session.Result // appends whose retries were exhausted
	wg      sync.WaitGroup
}

// DefaultPath returns the XDG data location of the listens database.
func DefaultPath() (string, error) {
	return xdg.DataFile(filepath.Join(appName, dbFileName))
}

// Open opens (creating if needed) the database at path and runs pending
// schema migrations. A database from a newer version of the program is
// refused: operating against an unknown schema risks silent corruption.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = FULL`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring database: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:    db,
		log:   log,
		queue: make(chan *session.Result, writeQueueSize),
	}
	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// Enqueue hands a finalized session to the write worker. It may block when
// the queue is full, which delays only the calling endpoint's finalize
// acknowledgment, never other endpoints. Results enqueued after Close are
// dropped with a log entry.
func (s *Store) Enqueue(res *session.Result) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		s.log.Warn("store closed, dropping finalized session",
			zap.String("track", res.Track.Title))
		return
	}
	s.queue <- res
}

// Append persists one finalized session synchronously: the attempt counter
// row always, the listen record only when eligible. On success the data has
// been committed; re-appending the same session or the same (track identity,
// start timestamp) is a no-op.
func (s *Store) Append(res *session.Result) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return dbutil.WithTx(s.db, func(tx *sql.Tx) error {
		if err := insertAttempt(tx, res); err != nil {
			return fmt.Errorf("recording attempt: %w", err)
		}
		if !res.Eligible {
			return nil
		}
		if err := insertListen(tx, res); err != nil {
			return fmt.Errorf("recording listen: %w", err)
		}
		return nil
	})
}

// Close drains the write queue, flushes any records still pending after
// failed retries, and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.queue)
	s.wg.Wait()
	s.flushPending()

	// Whatever is still pending now is lost with the process; say so per
	// record rather than dropping silently.
	s.mu.Lock()
	lost := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, res := range lost {
		s.log.Error("listen could not be persisted before shutdown",
			zap.String("artist", res.Track.Artist),
			zap.String("track", res.Track.Title),
			zap.Time("finished", res.FinishedAt))
	}
	if len(lost) > 0 {
		s.log.Error("unpersisted listens lost at shutdown", zap.Int("count", len(lost)))
	}

	return s.db.Close()
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for res := range s.queue {
		// Earlier failures get another chance whenever new work arrives.
		s.flushPending()
		if err := s.appendWithRetry(res); err != nil {
			s.mu.Lock()
			s.pending = append(s.pending, res)
			s.mu.Unlock()
			s.log.Error("persisting listen failed, will retry on next flush",
				zap.String("track", res.Track.Title),
				zap.String("artist", res.Track.Artist),
				zap.Error(err))
		}
	}
}

func (s *Store) appendWithRetry(res *session.Result) error {
	var err error
	backoff := retryBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = s.Append(res); err == nil {
			return nil
		}
		if attempt < maxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return err
}

func (s *Store) flushPending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, res := range pending {
		if err := s.Append(res); err != nil {
			s.mu.Lock()
			s.pending = append(s.pending, res)
			s.mu.Unlock()
		}
	}
}
