package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/llehouerou/echoes/internal/metadata"
	"github.com/llehouerou/echoes/internal/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "listens.db"), nil)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testResult(title string, finishedAt time.Time) *session.Result {
	return &session.Result{
		SessionID: uuid.New(),
		Endpoint:  ":1.42",
		Player:    "org.mpris.MediaPlayer2.mpv",
		Track: metadata.Track{
			Title:    title,
			Artist:   "Boards of Canada",
			Album:    "Geogaddi",
			Duration: 4 * time.Minute,
		},
		StartedAt:  finishedAt.Add(-3 * time.Minute),
		FinishedAt: finishedAt,
		Played:     3 * time.Minute,
		Completion: 0.75,
		Eligible:   true,
		Reason:     session.ReasonTrackChanged,
		Local:      true,
	}
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func TestAppendIdempotent(t *testing.T) {
	s := newTestStore(t)
	res := testResult("Music Is Math", time.Now())

	for i := 0; i < 2; i++ {
		if err := s.Append(res); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if n := countRows(t, s, "listens"); n != 1 {
		t.Errorf("got %d listens, want 1", n)
	}
	if n := countRows(t, s, "attempts"); n != 1 {
		t.Errorf("got %d attempts, want 1", n)
	}
}

func TestAppendSameTrackDifferentStart(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	a := testResult("Music Is Math", now)
	b := testResult("Music Is Math", now.Add(5*time.Minute))
	for _, res := range []*session.Result{a, b} {
		if err := s.Append(res); err != nil {
			t.Fatal(err)
		}
	}

	if n := countRows(t, s, "listens"); n != 2 {
		t.Errorf("got %d listens, want 2", n)
	}
}

func TestAppendIneligible(t *testing.T) {
	s := newTestStore(t)
	res := testResult("Music Is Math", time.Now())
	res.Eligible = false

	if err := s.Append(res); err != nil {
		t.Fatal(err)
	}

	if n := countRows(t, s, "listens"); n != 0 {
		t.Errorf("ineligible session persisted a listen (%d rows)", n)
	}
	if n := countRows(t, s, "attempts"); n != 1 {
		t.Errorf("got %d attempts, want 1", n)
	}
}

func TestAppendRoundTrip(t *testing.T) {
	s := newTestStore(t)

	finished := time.Date(2026, time.March, 14, 22, 30, 0, 0, time.Local)
	res := testResult("Music Is Math", finished)
	res.Track.Genre = "IDM"
	res.Track.ReleaseDate = "2002-02-18"
	res.Seeks = session.SeekSummary{Count: 2, Forward: 1, Backward: 1, ForwardDist: 20 * time.Second, BackwardDist: 5 * time.Second}
	res.Volume = session.VolumeSummary{Samples: 3, Min: 0.4, Max: 0.9, Mean: 0.6}
	res.Env.Hour = 22
	res.Env.Weekday = 5
	res.Env.Weekend = true
	res.Env.Season = "spring"
	screenOn := true
	res.Env.ScreenOn = &screenOn

	if err := s.Append(res); err != nil {
		t.Fatal(err)
	}

	records, err := s.Query(AllTime())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Track.Title != "Music Is Math" || rec.Track.Genre != "IDM" {
		t.Errorf("track fields lost: %+v", rec.Track)
	}
	if !rec.FinishedAt.Equal(finished) {
		t.Errorf("finished_at = %v, want %v", rec.FinishedAt, finished)
	}
	if rec.Played != 3*time.Minute {
		t.Errorf("played = %v, want 3m", rec.Played)
	}
	if rec.Seeks.Forward != 1 || rec.Seeks.BackwardDist != 5*time.Second {
		t.Errorf("seek summary lost: %+v", rec.Seeks)
	}
	if rec.Volume.Samples != 3 || rec.Volume.Mean != 0.6 {
		t.Errorf("volume summary lost: %+v", rec.Volume)
	}
	if rec.Env.ScreenOn == nil || !*rec.Env.ScreenOn {
		t.Error("screen_on lost")
	}
	if rec.Env.OnBattery != nil {
		t.Error("unset on_battery came back non-nil")
	}
	if rec.EndReason != "track-changed" {
		t.Errorf("end_reason = %q", rec.EndReason)
	}
}

func TestQueryWindow(t *testing.T) {
	s := newTestStore(t)

	jan := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.Local)
	feb := time.Date(2026, time.February, 10, 12, 0, 0, 0, time.Local)
	mar := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.Local)
	for i, at := range []time.Time{mar, jan, feb} {
		if err := s.Append(testResult("Track "+string(rune('A'+i)), at)); err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.Query(MonthOf(feb))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records in February, want 1", len(records))
	}

	all, err := s.Query(AllTime())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d records, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].FinishedAt.Before(all[i-1].FinishedAt) {
			t.Errorf("records out of order at %d", i)
		}
	}
}

func TestCountAttempts(t *testing.T) {
	s := newTestStore(t)

	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.Local)
	eligible := testResult("A", now)
	skipped := testResult("B", now.Add(time.Minute))
	skipped.Eligible = false
	outside := testResult("C", now.AddDate(0, 2, 0))
	for _, res := range []*session.Result{eligible, skipped, outside} {
		if err := s.Append(res); err != nil {
			t.Fatal(err)
		}
	}

	total, elig, err := s.CountAttempts(MonthOf(now))
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || elig != 1 {
		t.Errorf("got total=%d eligible=%d, want 2/1", total, elig)
	}
}

func TestEnqueueSurvivesClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listens.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	s.Enqueue(testResult("Music Is Math", time.Now()))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	records, err := s2.Query(AllTime())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records after reopen, want 1", len(records))
	}
}

func TestCloseSurfacesUnpersistedRecords(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s, err := Open(filepath.Join(t.TempDir(), "listens.db"), zap.New(core))
	if err != nil {
		t.Fatal(err)
	}

	// Force every flush attempt to fail, then park a record in the pending
	// list as an exhausted-retries append would.
	if err := s.db.Close(); err != nil {
		t.Fatal(err)
	}
	res := testResult("Music Is Math", time.Now())
	s.mu.Lock()
	s.pending = append(s.pending, res)
	s.mu.Unlock()

	s.Close()

	var perRecord, summary int
	for _, entry := range logs.All() {
		switch entry.Message {
		case "listen could not be persisted before shutdown":
			perRecord++
			if got := entry.ContextMap()["track"]; got != "Music Is Math" {
				t.Errorf("logged track = %v", got)
			}
		case "unpersisted listens lost at shutdown":
			summary++
		}
	}
	if perRecord != 1 || summary != 1 {
		t.Errorf("got %d per-record and %d summary log entries, want 1 and 1", perRecord, summary)
	}
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listens.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(`UPDATE schema_version SET version = 99`); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	if _, err := Open(path, nil); err == nil {
		t.Fatal("opening a future-schema database did not fail")
	}
}

func TestWindowContains(t *testing.T) {
	ref := time.Date(2026, time.August, 12, 15, 0, 0, 0, time.Local) // a Wednesday

	tests := []struct {
		name string
		w    Window
		t    time.Time
		want bool
	}{
		{"all time", AllTime(), time.Date(1970, 1, 1, 0, 0, 0, 0, time.Local), true},
		{"week start inclusive", WeekOf(ref), time.Date(2026, time.August, 10, 0, 0, 0, 0, time.Local), true},
		{"week end exclusive", WeekOf(ref), time.Date(2026, time.August, 17, 0, 0, 0, 0, time.Local), false},
		{"before week", WeekOf(ref), time.Date(2026, time.August, 9, 23, 59, 59, 0, time.Local), false},
		{"in month", MonthOf(ref), time.Date(2026, time.August, 31, 23, 0, 0, 0, time.Local), true},
		{"next month", MonthOf(ref), time.Date(2026, time.September, 1, 0, 0, 0, 0, time.Local), false},
		{"in year", YearOf(2026), ref, true},
		{"other year", YearOf(2025), ref, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.Contains(tt.t); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}
