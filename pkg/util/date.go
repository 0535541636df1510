package util

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for panel dates.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns the UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Day(t), nil
	}
	return time.Time{}, fmt.Errorf("parse date %q: want %s or RFC3339", s, DateLayout)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// BusinessDays lists weekdays in [start, end], both ends inclusive.
func BusinessDays(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)*5/7+2)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}
