package store

import (
	"database/sql"
	"time"

	dbutil "github.com/llehouerou/echoes/internal/db"
	"github.com/llehouerou/echoes/internal/metadata"
	"github.com/llehouerou/echoes/internal/session"
	"github.com/llehouerou/echoes/internal/snapshot"
)

// ListenRecord is one persisted, eligible listening session as read back
// from the database. Timestamps are in local time.
type ListenRecord struct {
	ID         int64
	SessionID  string
	TrackID    string
	StartedAt  time.Time
	FinishedAt time.Time

	Track metadata.Track

	Played     time.Duration
	Completion float64
	Seeks      session.SeekSummary
	Volume     session.VolumeSummary
	Env        snapshot.Context
	Player     string
	Local      bool
	EndReason  string
}

func insertAttempt(tx *sql.Tx, res *session.Result) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO attempts (session_id, finished_at, eligible)
		VALUES (?, ?, ?)`,
		res.SessionID.String(),
		res.FinishedAt.Unix(),
		boolInt(res.Eligible),
	)
	return err
}

func insertListen(tx *sql.Tx, res *session.Result) error {
	t := res.Track
	var volMin, volMax, volMean any
	if res.Volume.Samples > 0 {
		volMin, volMax, volMean = res.Volume.Min, res.Volume.Max, res.Volume.Mean
	}

	_, err := tx.Exec(`
		INSERT OR IGNORE INTO listens (
			session_id, track_id, started_at, finished_at,
			title, artist, album, album_artist, genre,
			track_number, disc_number, release_date, art_url,
			bpm, musicbrainz_track_id, url, composer, user_rating,
			duration_ms, played_ms, completion,
			seek_count, seek_forward, seek_backward,
			seek_forward_ms, seek_backward_ms, intro_skipped,
			vol_samples, vol_min, vol_max, vol_mean,
			hour_of_day, day_of_week, is_weekend, season,
			active_window, screen_on, on_battery,
			player, is_local, end_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.SessionID.String(),
		t.ID(),
		res.StartedAt.Unix(),
		res.FinishedAt.Unix(),
		t.Title,
		t.Artist,
		t.Album,
		dbutil.NullString(t.AlbumArtist),
		dbutil.NullString(t.Genre),
		t.TrackNumber,
		t.DiscNumber,
		dbutil.NullString(t.ReleaseDate),
		dbutil.NullString(t.ArtURL),
		t.BPM,
		dbutil.NullString(t.MusicBrainzID),
		dbutil.NullString(t.URL),
		dbutil.NullString(t.Composer),
		t.UserRating,
		t.Duration.Milliseconds(),
		res.Played.Milliseconds(),
		res.Completion,
		res.Seeks.Count,
		res.Seeks.Forward,
		res.Seeks.Backward,
		res.Seeks.ForwardDist.Milliseconds(),
		res.Seeks.BackwardDist.Milliseconds(),
		boolInt(res.Seeks.IntroSkipped),
		res.Volume.Samples,
		volMin,
		volMax,
		volMean,
		res.Env.Hour,
		res.Env.Weekday,
		boolInt(res.Env.Weekend),
		dbutil.NullString(res.Env.Season),
		dbutil.NullString(res.Env.ActiveWindow),
		dbutil.NullBool(res.Env.ScreenOn),
		dbutil.NullBool(res.Env.OnBattery),
		dbutil.NullString(res.Player),
		boolInt(res.Local),
		res.Reason.String(),
	)
	return err
}

const listenColumns = `
	id, session_id, track_id, started_at, finished_at,
	title, artist, album, album_artist, genre,
	track_number, disc_number, release_date, art_url,
	bpm, musicbrainz_track_id, url, composer, user_rating,
	duration_ms, played_ms, completion,
	seek_count, seek_forward, seek_backward,
	seek_forward_ms, seek_backward_ms, intro_skipped,
	vol_samples, vol_min, vol_max, vol_mean,
	hour_of_day, day_of_week, is_weekend, season,
	active_window, screen_on, on_battery,
	player, is_local, end_reason`

func scanListen(rows *sql.Rows) (ListenRecord, error) {
	var (
		rec                                       ListenRecord
		startedAt, finishedAt                     int64
		albumArtist, genre, releaseDate, artURL   sql.NullString
		mbid, url, composer, season, activeWindow sql.NullString
		player, endReason                         sql.NullString
		durationMs, playedMs, fwdMs, backMs       int64
		introSkipped, weekend, local              int64
		volMin, volMax, volMean, userRating       sql.NullFloat64
		screenOn, onBattery                       sql.NullInt64
	)

	err := rows.Scan(
		&rec.ID, &rec.SessionID, &rec.TrackID, &startedAt, &finishedAt,
		&rec.Track.Title, &rec.Track.Artist, &rec.Track.Album, &albumArtist, &genre,
		&rec.Track.TrackNumber, &rec.Track.DiscNumber, &releaseDate, &artURL,
		&rec.Track.BPM, &mbid, &url, &composer, &userRating,
		&durationMs, &playedMs, &rec.Completion,
		&rec.Seeks.Count, &rec.Seeks.Forward, &rec.Seeks.Backward,
		&fwdMs, &backMs, &introSkipped,
		&rec.Volume.Samples, &volMin, &volMax, &volMean,
		&rec.Env.Hour, &rec.Env.Weekday, &weekend, &season,
		&activeWindow, &screenOn, &onBattery,
		&player, &local, &endReason,
	)
	if err != nil {
		return ListenRecord{}, err
	}

	rec.StartedAt = time.Unix(startedAt, 0).In(time.Local)
	rec.FinishedAt = time.Unix(finishedAt, 0).In(time.Local)
	rec.Track.AlbumArtist = albumArtist.String
	rec.Track.Genre = genre.String
	rec.Track.ReleaseDate = releaseDate.String
	rec.Track.ArtURL = artURL.String
	rec.Track.MusicBrainzID = mbid.String
	rec.Track.URL = url.String
	rec.Track.Composer = composer.String
	rec.Track.UserRating = userRating.Float64
	rec.Track.Duration = time.Duration(durationMs) * time.Millisecond
	rec.Played = time.Duration(playedMs) * time.Millisecond
	rec.Seeks.ForwardDist = time.Duration(fwdMs) * time.Millisecond
	rec.Seeks.BackwardDist = time.Duration(backMs) * time.Millisecond
	rec.Seeks.IntroSkipped = introSkipped != 0
	if volMin.Valid {
		rec.Volume.Min = volMin.Float64
		rec.Volume.Max = volMax.Float64
		rec.Volume.Mean = volMean.Float64
	}
	rec.Env.Weekend = weekend != 0
	rec.Env.Season = season.String
	rec.Env.ActiveWindow = activeWindow.String
	rec.Env.ScreenOn = dbutil.BoolPtr(screenOn)
	rec.Env.OnBattery = dbutil.BoolPtr(onBattery)
	rec.Player = player.String
	rec.Local = local != 0
	rec.EndReason = endReason.String

	return rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
