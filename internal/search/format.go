package search

import (
	"time"

	"github.com/TobiSchelling/eventminer/internal/model"
)

// Published-date window lengths, measured from the window start.
const (
	dayWindowDays   = 7
	monthWindowDays = 37
)

// FormatQuery appends a date token to the base query: YYYY-MM-DD, or YYYY-MM
// for a full-month search.
func FormatQuery(base string, date time.Time, fullMonth bool) string {
	layout := model.DateLayout
	if fullMonth {
		layout = model.MonthLayout
	}
	return base + " date:" + date.Format(layout)
}

// PublishedWindow returns the publication window searched for a date. It
// starts on the date (or the first of its month) and spans 7 days, or 37 for
// a full month.
func PublishedWindow(date time.Time, fullMonth bool) (start, end time.Time) {
	start = model.DayStart(date)
	days := dayWindowDays
	if fullMonth {
		start = model.MonthStart(date)
		days = monthWindowDays
	}
	return start, start.AddDate(0, 0, days)
}
