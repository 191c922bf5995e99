// Package assemble turns judge candidates into event records.
package assemble

import (
	"log/slog"
	"strings"
	"time"

	"github.com/TobiSchelling/eventminer/internal/judge"
	"github.com/TobiSchelling/eventminer/internal/model"
)

// Assembler converts candidates into events. It never drops a candidate and
// never deduplicates; ranking handles duplicates later.
type Assembler struct {
	log *slog.Logger
}

// New creates an Assembler. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{log: logger}
}

// Assemble builds one event per candidate. A claimed date that is not
// YYYY-MM-DD is replaced by searchDate.
func (a *Assembler) Assemble(sr *model.SearchResult, searchDate time.Time, candidates []judge.Candidate) []model.Event {
	hitTitles := make(map[string]string, len(sr.Results))
	for _, h := range sr.Results {
		if h.URL != "" && h.Title != "" {
			hitTitles[h.URL] = h.Title
		}
	}

	var srID *string
	if sr.ID != "" {
		id := sr.ID
		srID = &id
	}

	events := make([]model.Event, 0, len(candidates))
	for _, c := range candidates {
		eventDate, err := model.ParseDate(strings.TrimSpace(c.Date))
		if err != nil {
			a.log.Warn("invalid event date, using search date", "date", c.Date, "search_date", model.FormatDate(searchDate))
			eventDate = model.DayStart(searchDate)
		}

		score := c.Score
		reasoning := c.Reasoning
		url := strings.TrimSpace(c.URL)
		e := model.Event{
			EventDate:          eventDate,
			Title:              strings.TrimSpace(c.Title),
			Description:        strings.TrimSpace(c.Description),
			SourceURL:          url,
			SearchResultID:     srID,
			Provider:           sr.Provider,
			RelevanceScore:     &score,
			RelevanceReasoning: &reasoning,
		}
		if title, ok := hitTitles[url]; ok {
			e.SourceTitle = &title
		}
		events = append(events, e)
	}
	return events
}
