package util

import "time"

// InMarketHours reports whether t falls inside the high-frequency collection
// window: Monday-Friday, 09:00-18:00 local time. This deliberately brackets
// the regular US session rather than tracking exchange holidays; an extra
// refresh cycle on a holiday is harmless.
func InMarketHours(t time.Time) bool {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return t.Hour() >= 9 && t.Hour() < 18
}

// MostRecentWeekday returns the latest weekday strictly before today,
// truncated to midnight. Today itself never counts: its session may not have
// completed yet.
func MostRecentWeekday(today time.Time) time.Time {
	d := today.AddDate(0, 0, -1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}

// Midnight truncates t to the start of its calendar day.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
