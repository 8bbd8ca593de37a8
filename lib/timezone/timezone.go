package timezone

import "time"

// Location is the zone dates given on the command line are read in. Wordbook timestamps are
// epoch milliseconds so only the filter bounds depend on it.
var Location = time.UTC

const DateLayout = "2006-01-02"

// ParseDate reads a YYYY-MM-DD date as midnight in Location.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, Location)
}

// EndOfDay returns the last instant of the day t falls on.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location()).Add(-time.Nanosecond)
}

func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).In(Location)
}
