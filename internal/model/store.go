package model

import (
	"context"
	"time"
)

// Store persists search results and events.
//
// Events reference search results by id only; removing a search result never
// removes its events.
type Store interface {
	SaveSearchResult(ctx context.Context, sr *SearchResult) (string, error)
	GetSearchResult(ctx context.Context, id string) (*SearchResult, error)
	// GetSearchResultsByQueryAndDate matches query as a case-insensitive
	// substring among results searched on date's calendar day.
	GetSearchResultsByQueryAndDate(ctx context.Context, query string, date time.Time) ([]SearchResult, error)

	SaveEvent(ctx context.Context, e *Event) (string, error)
	// UpdateEvent replaces the stored event with the same id.
	UpdateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	// GetEventsByDate returns events dated within date's calendar day, by rank
	// (unranked last) when sortedByRank is set, else by descending relevance.
	GetEventsByDate(ctx context.Context, date time.Time, sortedByRank bool) ([]Event, error)
	GetEventsBySearchResult(ctx context.Context, searchResultID string) ([]Event, error)
	// SearchEvents runs a full-text search over event titles and descriptions.
	SearchEvents(ctx context.Context, text string, limit int) ([]Event, error)

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
