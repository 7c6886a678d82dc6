package analytics

import (
	"sort"
	"time"

	"github.com/llehouerou/echoes/internal/store"
)

// Streaks describes runs of consecutive local calendar days with at least
// one listen. Current stays non-zero only while the run is still alive,
// meaning the most recent listening day is today or yesterday relative to
// the reference time.
type Streaks struct {
	Current int
	Longest int
}

// DayStreaks computes listening streaks from the records, using now to
// decide whether the latest run is still current.
func DayStreaks(records []store.ListenRecord, now time.Time) Streaks {
	if len(records) == 0 {
		return Streaks{}
	}

	seen := make(map[string]struct{})
	var days []time.Time
	for _, rec := range records {
		d := dayOf(rec.FinishedAt)
		key := d.Format("2006-01-02")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var st Streaks
	run := 1
	for i := 1; i <= len(days); i++ {
		// AddDate, not a 24h offset: the run must survive DST days.
		if i < len(days) && days[i].Equal(days[i-1].AddDate(0, 0, 1)) {
			run++
			continue
		}
		if run > st.Longest {
			st.Longest = run
		}
		if i < len(days) {
			run = 1
		}
	}

	last := days[len(days)-1]
	today := dayOf(now)
	if last.Equal(today) || last.Equal(today.AddDate(0, 0, -1)) {
		st.Current = run
	}
	return st
}

// NightOwl returns the fraction of listened time falling in the hours
// [0, 6), using the hour-of-day captured when each session started.
func NightOwl(records []store.ListenRecord) float64 {
	var total, night time.Duration
	for _, rec := range records {
		total += rec.Played
		if rec.Env.Hour < 6 {
			night += rec.Played
		}
	}
	if total == 0 {
		return 0
	}
	return night.Seconds() / total.Seconds()
}

// SkipRate returns the fraction of finalized sessions that did not meet the
// eligibility rule. With no attempts at all the rate is zero.
func SkipRate(total, eligible int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(total-eligible) / float64(total)
}

// Heatmap buckets listened time by hour of day. Every record's full played
// duration lands in the hour its session started, so the buckets always sum
// to the total listened time.
func Heatmap(records []store.ListenRecord) [24]time.Duration {
	var buckets [24]time.Duration
	for _, rec := range records {
		h := rec.Env.Hour
		if h < 0 || h > 23 {
			h = 0
		}
		buckets[h] += rec.Played
	}
	return buckets
}

// Contributions holds per-day play counts for a contribution grid.
type Contributions struct {
	Days  map[string]int // "2006-01-02" in local time
	Max   int            // most plays on a single day
	Total int
}

// DailyContributions counts plays per local calendar day.
func DailyContributions(records []store.ListenRecord) Contributions {
	c := Contributions{Days: make(map[string]int)}
	for _, rec := range records {
		key := rec.FinishedAt.Local().Format("2006-01-02")
		c.Days[key]++
		if c.Days[key] > c.Max {
			c.Max = c.Days[key]
		}
		c.Total++
	}
	return c
}

func dayOf(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}
