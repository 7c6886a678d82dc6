// Package metadata normalizes raw MPRIS track metadata into a canonical
// track identity. Input is the untyped key/value payload a player publishes;
// fields may be missing, empty, or carry unexpected D-Bus types. Normalize
// never fails, it degrades to documented placeholders instead.
package metadata

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// Placeholders used when a player omits core fields.
const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
	UnknownTitle  = "Unknown Title"
)

// Track is the canonical description of one playback instance.
// Duration of zero means unknown.
type Track struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Duration    time.Duration

	Genre         string
	TrackNumber   int
	DiscNumber    int
	ReleaseDate   string
	ArtURL        string
	UserRating    float64
	BPM           int
	Composer      string
	MusicBrainzID string
	URL           string
}

// Normalize parses a raw MPRIS metadata map into a Track. Missing or
// malformed fields fall back to placeholders or zero values.
func Normalize(raw map[string]dbus.Variant) Track {
	t := Track{
		Title:         asString(raw["xesam:title"]),
		Artist:        firstString(raw["xesam:artist"]),
		Album:         asString(raw["xesam:album"]),
		AlbumArtist:   firstString(raw["xesam:albumArtist"]),
		Genre:         joinStrings(raw["xesam:genre"]),
		TrackNumber:   asInt(raw["xesam:trackNumber"]),
		DiscNumber:    asInt(raw["xesam:discNumber"]),
		ReleaseDate:   asString(raw["xesam:contentCreated"]),
		ArtURL:        asString(raw["mpris:artUrl"]),
		UserRating:    asFloat(raw["xesam:userRating"]),
		BPM:           asInt(raw["xesam:audioBPM"]),
		Composer:      joinStrings(raw["xesam:composer"]),
		MusicBrainzID: asString(raw["xesam:musicBrainzTrackID"]),
		URL:           asString(raw["xesam:url"]),
	}

	if us := asInt64(raw["mpris:length"]); us > 0 {
		t.Duration = time.Duration(us) * time.Microsecond
	}

	if t.Title == "" {
		t.Title = UnknownTitle
	}
	if t.Artist == "" {
		t.Artist = UnknownArtist
	}
	if t.Album == "" {
		t.Album = UnknownAlbum
	}

	return t
}

// ID returns a stable identifier for the track: the MusicBrainz track ID
// when the player supplies one, otherwise a hash of artist, title and
// duration so repeated plays of the same derived track still deduplicate.
func (t Track) ID() string {
	if t.MusicBrainzID != "" {
		return t.MusicBrainzID
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%d", t.Artist, t.Title, t.Duration/time.Millisecond)
	return fmt.Sprintf("%016x", h.Sum64())
}

// HasDuration reports whether the track's length is known.
func (t Track) HasDuration() bool {
	return t.Duration > 0
}

// ReleaseYear parses the year out of the release date, which players supply
// either as a bare year or an ISO 8601 date. Returns 0 when unknown.
func (t Track) ReleaseYear() int {
	s := t.ReleaseDate
	if len(s) > 4 {
		s = s[:4]
	}
	var year int
	if _, err := fmt.Sscanf(s, "%d", &year); err != nil || year < 1000 {
		return 0
	}
	return year
}

// IsLocalSource classifies the track's origin. Known local-only players are
// always local; otherwise the URL scheme decides. No URL means the player
// gave us nothing to classify on, which counts as non-local.
func (t Track) IsLocalSource(localPlayers []string, playerName string) bool {
	if playerName != "" {
		short := strings.TrimPrefix(playerName, "org.mpris.MediaPlayer2.")
		for _, p := range localPlayers {
			if p != "" && strings.Contains(short, p) {
				return true
			}
		}
	}

	if t.URL != "" {
		if strings.HasPrefix(t.URL, "file://") || strings.HasPrefix(t.URL, "/") {
			return true
		}
		for _, scheme := range []string{"http://", "https://", "spotify:", "deezer:", "tidal:"} {
			if strings.HasPrefix(t.URL, scheme) {
				return false
			}
		}
	}

	return false
}
