package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/llehouerou/echoes/internal/metadata"
	"github.com/llehouerou/echoes/internal/snapshot"
)

// Result is the immutable outcome of a finalized session. Eligible results
// become ListenRecords in the store; ineligible ones only bump the discard
// counter used for skip-rate analytics.
type Result struct {
	SessionID  uuid.UUID
	Endpoint   string
	Player     string
	Track      metadata.Track
	StartedAt  time.Time
	FinishedAt time.Time
	Played     time.Duration
	Completion float64
	Eligible   bool
	Reason     EndReason
	Local      bool
	Seeks      SeekSummary
	Volume     VolumeSummary
	Env        snapshot.Context
}
