package model

import (
	"math"
	"sort"
	"time"
)

func rankKey(e *Event) int {
	if e.Rank == nil {
		return math.MaxInt
	}
	return *e.Rank
}

// SortByRank orders events by ascending rank, unranked last, keeping the
// input order among equal keys.
func SortByRank(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return rankKey(&events[i]) < rankKey(&events[j])
	})
}

// SortByRelevance orders events by descending relevance score, unscored last.
func SortByRelevance(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].RelevanceScore, events[j].RelevanceScore
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
}

// TopEvents returns up to n events by rank without modifying the input.
func TopEvents(events []Event, n int) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	SortByRank(out)
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// EventSummaryLine is a condensed view of a top event.
type EventSummaryLine struct {
	Title string
	Date  string
	Rank  *int
	Score *int
}

// EventsSummary describes a set of events.
type EventsSummary struct {
	Count     int
	Start     string
	End       string
	TopEvents []EventSummaryLine
}

// SummarizeEvents reports the count, date span and top five events.
func SummarizeEvents(events []Event) EventsSummary {
	if len(events) == 0 {
		return EventsSummary{}
	}
	var minDate, maxDate time.Time
	for i, e := range events {
		if i == 0 || e.EventDate.Before(minDate) {
			minDate = e.EventDate
		}
		if i == 0 || e.EventDate.After(maxDate) {
			maxDate = e.EventDate
		}
	}
	s := EventsSummary{
		Count: len(events),
		Start: FormatDate(minDate),
		End:   FormatDate(maxDate),
	}
	for _, e := range TopEvents(events, 5) {
		s.TopEvents = append(s.TopEvents, EventSummaryLine{
			Title: e.Title,
			Date:  FormatDate(e.EventDate),
			Rank:  e.Rank,
			Score: e.RelevanceScore,
		})
	}
	return s
}
