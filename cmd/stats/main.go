// echoes-stats reads the listens database written by the echoes daemon and
// prints listening statistics. It never writes records.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/llehouerou/echoes/internal/analytics"
	"github.com/llehouerou/echoes/internal/config"
	"github.com/llehouerou/echoes/internal/store"
)

var (
	flagWindow string
	flagYear   int
	flagLimit  int
	flagDB     string
)

func main() {
	root := &cobra.Command{
		Use:           "echoes-stats",
		Short:         "Listening statistics from your echoes database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagWindow, "window", "w", "all", "time window: week, month, year or all")
	root.PersistentFlags().IntVar(&flagYear, "year", 0, "year for --window year (default: current)")
	root.PersistentFlags().IntVarP(&flagLimit, "limit", "n", 10, "number of chart entries")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: the daemon's)")

	root.AddCommand(
		overviewCmd(),
		topCmd(),
		streakCmd(),
		heatmapCmd(),
		nightOwlCmd(),
		contributionsCmd(),
		skipRateCmd(),
		genresCmd(),
		decadesCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "echoes-stats: %v\n", err)
		os.Exit(1)
	}
}

func openStore() (*store.Store, error) {
	path := flagDB
	if path == "" {
		if cfg, err := config.Load(); err == nil && cfg.Database.Path != "" {
			path = cfg.Database.Path
		}
	}
	if path == "" {
		var err error
		path, err = store.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no listens database at %s (has the daemon run?)", path)
	}
	return store.Open(path, nil)
}

func window() (store.Window, error) {
	now := time.Now()
	switch flagWindow {
	case "week":
		return store.WeekOf(now), nil
	case "month":
		return store.MonthOf(now), nil
	case "year":
		year := flagYear
		if year == 0 {
			year = now.Year()
		}
		return store.YearOf(year), nil
	case "all":
		return store.AllTime(), nil
	default:
		return store.Window{}, fmt.Errorf("unknown window %q (want week, month, year or all)", flagWindow)
	}
}

// withRecords handles the boilerplate shared by every subcommand: open the
// store, resolve the window, load its records.
func withRecords(fn func(w store.Window, s *store.Store, records []store.ListenRecord) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, _ []string) error {
		w, err := window()
		if err != nil {
			return err
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		records, err := s.Query(w)
		if err != nil {
			return err
		}
		return fn(w, s, records)
	}
}

func overviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Totals for the window",
		RunE: withRecords(func(w store.Window, s *store.Store, records []store.ListenRecord) error {
			ov := analytics.Summarize(records)
			total, eligible, err := s.CountAttempts(w)
			if err != nil {
				return err
			}

			fmt.Printf("Listening overview (%s)\n\n", w.Label)
			fmt.Printf("  plays          %s\n", humanize.Comma(int64(ov.Plays)))
			fmt.Printf("  time listened  %s\n", formatDuration(ov.Played))
			fmt.Printf("  tracks         %s\n", humanize.Comma(int64(ov.UniqueTracks)))
			fmt.Printf("  artists        %s\n", humanize.Comma(int64(ov.UniqueArtists)))
			fmt.Printf("  albums         %s\n", humanize.Comma(int64(ov.UniqueAlbums)))
			if !ov.LastListen.IsZero() {
				fmt.Printf("  last listen    %s\n", humanize.Time(ov.LastListen))
			}
			if total > 0 {
				fmt.Printf("  skip rate      %.0f%% (%d of %d sessions)\n",
					analytics.SkipRate(total, eligible)*100, total-eligible, total)
			}
			return nil
		}),
	}
}

func topCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "top [artists|albums|tracks]",
		Short:     "Most played artists, albums or tracks",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"artists", "albums", "tracks"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecords(func(w store.Window, _ *store.Store, records []store.ListenRecord) error {
				var entries []analytics.RankedEntry
				switch args[0] {
				case "artists":
					entries = analytics.TopArtists(records, flagLimit)
				case "albums":
					entries = analytics.TopAlbums(records, flagLimit)
				case "tracks":
					entries = analytics.TopTracks(records, flagLimit)
				default:
					return fmt.Errorf("unknown chart %q", args[0])
				}
				fmt.Printf("Top %s (%s)\n\n", args[0], w.Label)
				printChart(entries)
				return nil
			})(cmd, args)
		},
	}
}

func streakCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "streak",
		Short: "Consecutive listening days",
		RunE: withRecords(func(w store.Window, _ *store.Store, records []store.ListenRecord) error {
			st := analytics.DayStreaks(records, time.Now())
			fmt.Printf("Listening streaks (%s)\n\n", w.Label)
			fmt.Printf("  current  %s\n", days(st.Current))
			fmt.Printf("  longest  %s\n", days(st.Longest))
			return nil
		}),
	}
}

func heatmapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heatmap",
		Short: "Listening time by hour of day",
		RunE: withRecords(func(w store.Window, _ *store.Store, records []store.ListenRecord) error {
			buckets := analytics.Heatmap(records)
			var max time.Duration
			for _, b := range buckets {
				if b > max {
					max = b
				}
			}

			fmt.Printf("Listening by hour (%s)\n\n", w.Label)
			for hour, b := range buckets {
				bar := ""
				if max > 0 {
					bar = strings.Repeat("█", int(40*b/max))
				}
				fmt.Printf("  %02d:00  %-40s %s\n", hour, bar, formatDuration(b))
			}
			return nil
		}),
	}
}

func nightOwlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nightowl",
		Short: "Share of listening between midnight and 6am",
		RunE: withRecords(func(w store.Window, _ *store.Store, records []store.ListenRecord) error {
			frac := analytics.NightOwl(records)
			fmt.Printf("Night listening (%s): %.1f%% of listened time falls between 00:00 and 06:00\n",
				w.Label, frac*100)
			return nil
		}),
	}
}

func contributionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contributions",
		Short: "Plays per day",
		RunE: withRecords(func(w store.Window, _ *store.Store, records []store.ListenRecord) error {
			c := analytics.DailyContributions(records)
			fmt.Printf("Daily plays (%s): %d plays, busiest day %d\n\n", w.Label, c.Total, c.Max)
			if c.Total == 0 {
				return nil
			}

			days := make([]string, 0, len(c.Days))
			for day := range c.Days {
				days = append(days, day)
			}
			sort.Strings(days)
			for _, day := range days {
				n := c.Days[day]
				bar := ""
				if c.Max > 0 {
					bar = strings.Repeat("█", 1+30*n/c.Max)
				}
				fmt.Printf("  %s  %-31s %d\n", day, bar, n)
			}
			return nil
		}),
	}
}

func skipRateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skiprate",
		Short: "Share of sessions too short to count",
		RunE: func(_ *cobra.Command, _ []string) error {
			w, err := window()
			if err != nil {
				return err
			}
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			total, eligible, err := s.CountAttempts(w)
			if err != nil {
				return err
			}
			if total == 0 {
				fmt.Printf("No sessions recorded (%s)\n", w.Label)
				return nil
			}
			fmt.Printf("Skip rate (%s): %.1f%% (%d skipped of %d sessions)\n",
				w.Label, analytics.SkipRate(total, eligible)*100, total-eligible, total)
			return nil
		},
	}
}

func genresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genres",
		Short: "Plays by genre",
		RunE: withRecords(func(w store.Window, _ *store.Store, records []store.ListenRecord) error {
			fmt.Printf("Genres (%s)\n\n", w.Label)
			printChart(analytics.GenreBreakdown(records, flagLimit))
			return nil
		}),
	}
}

func decadesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decades",
		Short: "Plays by release decade",
		RunE: withRecords(func(w store.Window, _ *store.Store, records []store.ListenRecord) error {
			fmt.Printf("Release decades (%s)\n\n", w.Label)
			printChart(analytics.DecadeBreakdown(records, flagLimit))
			return nil
		}),
	}
}

func printChart(entries []analytics.RankedEntry) {
	if len(entries) == 0 {
		fmt.Println("  nothing recorded")
		return
	}
	for i, e := range entries {
		fmt.Printf("  %2d. %-50s %4d plays  %s\n", i+1, e.Name, e.Plays, formatDuration(e.Played))
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	default:
		return fmt.Sprintf("%dm", m)
	}
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
