// Package analytics derives listening statistics from persisted listen
// records. Every function is pure: records in, numbers out, no database
// access and no clock reads except where a reference "now" is passed in.
package analytics

import (
	"sort"
	"strconv"
	"time"

	"github.com/llehouerou/echoes/internal/store"
)

// RankedEntry is one row of a top-N chart.
type RankedEntry struct {
	Name   string
	Plays  int
	Played time.Duration
}

// Overview summarizes a set of records.
type Overview struct {
	Plays         int
	Played        time.Duration
	UniqueTracks  int
	UniqueArtists int
	UniqueAlbums  int
	FirstListen   time.Time
	LastListen    time.Time
}

// Summarize computes the overview for the given records.
func Summarize(records []store.ListenRecord) Overview {
	ov := Overview{Plays: len(records)}
	tracks := make(map[string]struct{})
	artists := make(map[string]struct{})
	albums := make(map[string]struct{})

	for _, rec := range records {
		ov.Played += rec.Played
		tracks[rec.TrackID] = struct{}{}
		artists[rec.Track.Artist] = struct{}{}
		albums[rec.Track.Artist+"\x00"+rec.Track.Album] = struct{}{}
		if ov.FirstListen.IsZero() || rec.FinishedAt.Before(ov.FirstListen) {
			ov.FirstListen = rec.FinishedAt
		}
		if rec.FinishedAt.After(ov.LastListen) {
			ov.LastListen = rec.FinishedAt
		}
	}

	ov.UniqueTracks = len(tracks)
	ov.UniqueArtists = len(artists)
	ov.UniqueAlbums = len(albums)
	return ov
}

// TopArtists ranks artists by play count. Ties break by listened time, then
// by name, so the ordering is deterministic.
func TopArtists(records []store.ListenRecord, limit int) []RankedEntry {
	return rank(records, limit, func(rec store.ListenRecord) string {
		return rec.Track.Artist
	})
}

// TopAlbums ranks albums by play count. The key includes the artist so two
// albums with the same title stay separate.
func TopAlbums(records []store.ListenRecord, limit int) []RankedEntry {
	return rank(records, limit, func(rec store.ListenRecord) string {
		return rec.Track.Artist + " - " + rec.Track.Album
	})
}

// TopTracks ranks tracks by play count.
func TopTracks(records []store.ListenRecord, limit int) []RankedEntry {
	return rank(records, limit, func(rec store.ListenRecord) string {
		return rec.Track.Artist + " - " + rec.Track.Title
	})
}

// GenreBreakdown ranks genres by play count. Records without a genre fall
// into an "unknown" bucket.
func GenreBreakdown(records []store.ListenRecord, limit int) []RankedEntry {
	return rank(records, limit, func(rec store.ListenRecord) string {
		if rec.Track.Genre == "" {
			return "unknown"
		}
		return rec.Track.Genre
	})
}

// DecadeBreakdown ranks release decades by play count. Records without a
// parseable release year fall into an "unknown" bucket.
func DecadeBreakdown(records []store.ListenRecord, limit int) []RankedEntry {
	return rank(records, limit, func(rec store.ListenRecord) string {
		year := rec.Track.ReleaseYear()
		if year == 0 {
			return "unknown"
		}
		return strconv.Itoa(year/10*10) + "s"
	})
}

func rank(records []store.ListenRecord, limit int, key func(store.ListenRecord) string) []RankedEntry {
	counts := make(map[string]*RankedEntry)
	for _, rec := range records {
		k := key(rec)
		e, ok := counts[k]
		if !ok {
			e = &RankedEntry{Name: k}
			counts[k] = e
		}
		e.Plays++
		e.Played += rec.Played
	}

	entries := make([]RankedEntry, 0, len(counts))
	for _, e := range counts {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Plays != entries[j].Plays {
			return entries[i].Plays > entries[j].Plays
		}
		if entries[i].Played != entries[j].Played {
			return entries[i].Played > entries[j].Played
		}
		return entries[i].Name < entries[j].Name
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
