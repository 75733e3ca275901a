package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/timecalc"
)

// rangeFlags selects a span of days. The resolved end is exclusive.
type rangeFlags struct {
	from  string
	to    string
	date  string
	today bool
	week  bool
}

func (r *rangeFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&r.from, "from", "", "Start date (YYYY-MM-DD); required when --to is specified")
	c.Flags().StringVar(&r.to, "to", "", "End date (YYYY-MM-DD); defaults to today")
	c.Flags().StringVar(&r.date, "date", "", "A single date (YYYY-MM-DD)")
	c.Flags().BoolVar(&r.today, "today", false, "Only today")
	c.Flags().BoolVar(&r.week, "week", false, "This week")
}

// resolve returns [from, to) in loc. Without flags it covers today, or
// the current week when defaultWeek is set.
func (r rangeFlags) resolve(now time.Time, loc *time.Location, defaultWeek bool) (time.Time, time.Time, error) {
	now = now.In(loc)
	parse := func(flag, v string) (time.Time, error) {
		d, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --%s value %q: %w", flag, v, err)
		}
		return d, nil
	}
	dayAfter := func(t time.Time) time.Time { return timecalc.StartOfDay(t).AddDate(0, 0, 1) }

	switch {
	case r.date != "":
		d, err := parse("date", r.date)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return d, dayAfter(d), nil

	case r.from != "" || r.to != "":
		if r.from == "" {
			return time.Time{}, time.Time{}, fmt.Errorf("--from is required when --to is specified")
		}
		from, err := parse("from", r.from)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end := now
		if r.to != "" {
			if end, err = parse("to", r.to); err != nil {
				return time.Time{}, time.Time{}, err
			}
		}
		if end.Before(from) {
			return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", end.Format("2006-01-02"), r.from)
		}
		return from, dayAfter(end), nil

	case r.today:
		return timecalc.StartOfDay(now), dayAfter(now), nil

	case r.week || defaultWeek:
		mon, sun := timecalc.WeekRange(now)
		return mon, dayAfter(sun), nil

	default:
		return timecalc.StartOfDay(now), dayAfter(now), nil
	}
}

// parseDuration accepts Go durations ("1h30m") and decimal hours ("1.5").
func parseDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("duration must be positive, got %s", s)
		}
		return int64(d.Seconds()), nil
	}
	h, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use 1h30m or 1.5)", s)
	}
	if h <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return int64(h * 3600), nil
}
