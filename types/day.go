package types

import "time"

// DayLayout is the compact trading day format used by prediction files and snapshots.
const DayLayout = "20060102"

func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, time.UTC)
}

func FormatDay(day time.Time) string {
	return day.Format(DayLayout)
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
