// Package model holds the search result and event records shared by the
// sourcing and ranking pipelines and the stores that persist them.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider identifies the search backend that produced a result.
type Provider string

const (
	ProviderExa     Provider = "exa"
	ProviderTavily  Provider = "tavily"
	ProviderNewsAPI Provider = "newsapi"
	ProviderFeed    Provider = "feed"
)

// Store errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrMissingID = errors.New("record has no id")
)

// Hit is a single raw search hit as returned by a provider.
type Hit struct {
	Title         string     `json:"title" bson:"title"`
	URL           string     `json:"url" bson:"url"`
	Content       string     `json:"content,omitempty" bson:"content,omitempty"`
	Highlights    []string   `json:"highlights,omitempty" bson:"highlights,omitempty"`
	Summary       string     `json:"summary,omitempty" bson:"summary,omitempty"`
	Score         *float64   `json:"score,omitempty" bson:"score,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty" bson:"published_date,omitempty"`
}

// SearchResult records one query execution against a search backend.
// Results keep the provider's return order.
type SearchResult struct {
	ID         string
	Query      string
	SearchDate time.Time
	Provider   Provider
	Params     map[string]any
	Results    []Hit
	Summary    *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FormatForPrompt renders the hits as numbered news items for the relevance judge.
func (sr *SearchResult) FormatForPrompt() string {
	var b strings.Builder
	for i, h := range sr.Results {
		fmt.Fprintf(&b, "News Item %d:\n", i+1)
		fmt.Fprintf(&b, "Title: %s\n", orDefault(h.Title, "No title"))
		published := "No published date"
		if h.PublishedDate != nil {
			published = FormatDate(*h.PublishedDate)
		}
		fmt.Fprintf(&b, "Published date: %s\n", published)
		fmt.Fprintf(&b, "URL: %s\n", orDefault(h.URL, "No URL"))
		highlights := strings.Join(h.Highlights, " ... ")
		if highlights == "" {
			highlights = orDefault(h.Summary, "No highlights")
		}
		fmt.Fprintf(&b, "Highlights: %s\n", highlights)
		fmt.Fprintf(&b, "Content: %s\n\n---\n", orDefault(h.Content, "No content"))
	}
	return b.String()
}

// Event is a dated claim about a real-world occurrence derived from search hits.
type Event struct {
	ID                 string
	EventDate          time.Time
	Title              string
	Description        string
	SourceURL          string
	SourceTitle        *string
	SearchResultID     *string
	Provider           Provider
	RelevanceScore     *int
	RelevanceReasoning *string
	Rank               *int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate checks the fields every stored event must carry.
func (e *Event) Validate() error {
	if e.EventDate.IsZero() {
		return errors.New("event date is required")
	}
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("event title is required")
	}
	if e.Rank != nil && *e.Rank < 1 {
		return fmt.Errorf("event rank must be positive, got %d", *e.Rank)
	}
	return nil
}

// Score returns the relevance score, treating a missing score as zero.
func (e *Event) Score() int {
	if e.RelevanceScore == nil {
		return 0
	}
	return *e.RelevanceScore
}

// EventSummary is the lightweight view of an event handed to the ranking oracle.
type EventSummary struct {
	Title       string
	Description string
	URL         string
}

// Summary returns the ranking view of the event.
func (e *Event) Summary() EventSummary {
	return EventSummary{Title: e.Title, Description: e.Description, URL: e.SourceURL}
}

// Summaries maps events to their ranking views, preserving order.
func Summaries(events []Event) []EventSummary {
	out := make([]EventSummary, len(events))
	for i := range events {
		out[i] = events[i].Summary()
	}
	return out
}

// Stats holds record counts for a store.
type Stats struct {
	SearchResults  int
	Events         int
	RankedEvents   int
	DaysWithEvents int
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
