package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/eventminer/internal/model"
)

var ctx = context.Background()

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

func saveEvent(t *testing.T, db *DB, e model.Event) string {
	t.Helper()
	id, err := db.SaveEvent(ctx, &e)
	if err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	return id
}

func TestSaveAndGetSearchResult(t *testing.T) {
	db := openTestDB(t)
	published := time.Date(2021, 6, 9, 14, 30, 0, 0, time.UTC)
	sr := &model.SearchResult{
		Query:      "Bitcoin news date:2021-06-09",
		SearchDate: model.Date(2021, 6, 9),
		Provider:   model.ProviderExa,
		Params:     map[string]any{"num_results": 15},
		Results: []model.Hit{
			{Title: "First", URL: "https://a.example", Highlights: []string{"h"}, Score: ptr(0.5), PublishedDate: &published},
			{Title: "Second", URL: "https://b.example"},
		},
		Summary: ptr("answer"),
	}

	id, err := db.SaveSearchResult(ctx, sr)
	if err != nil {
		t.Fatalf("SaveSearchResult: %v", err)
	}
	if id == "" {
		t.Fatal("expected an id")
	}
	if sr.ID != "" {
		t.Error("input must not be modified")
	}

	got, err := db.GetSearchResult(ctx, id)
	if err != nil {
		t.Fatalf("GetSearchResult: %v", err)
	}
	if got.Query != sr.Query || got.Provider != model.ProviderExa || !got.SearchDate.Equal(sr.SearchDate) {
		t.Errorf("unexpected header: %+v", got)
	}
	if len(got.Results) != 2 || got.Results[0].Title != "First" || got.Results[1].Title != "Second" {
		t.Errorf("expected hits in provider order, got %+v", got.Results)
	}
	if got.Results[0].PublishedDate == nil || !got.Results[0].PublishedDate.Equal(published) {
		t.Errorf("published date not preserved: %v", got.Results[0].PublishedDate)
	}
	if got.Summary == nil || *got.Summary != "answer" {
		t.Errorf("summary not preserved: %v", got.Summary)
	}
	if got.Params["num_results"] != float64(15) {
		t.Errorf("params not preserved: %v", got.Params)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestGetSearchResultNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetSearchResult(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetSearchResultsByQueryAndDate(t *testing.T) {
	db := openTestDB(t)
	save := func(q string, d time.Time) {
		if _, err := db.SaveSearchResult(ctx, &model.SearchResult{Query: q, SearchDate: d, Provider: model.ProviderExa}); err != nil {
			t.Fatalf("SaveSearchResult: %v", err)
		}
	}
	save("Bitcoin news date:2021-06-09", model.Date(2021, 6, 9))
	save("Ethereum news date:2021-06-09", model.Date(2021, 6, 9))
	save("Bitcoin news date:2021-06-10", model.Date(2021, 6, 10))
	save("BITCOIN regulation", time.Date(2021, 6, 9, 23, 59, 0, 0, time.Local))

	got, err := db.GetSearchResultsByQueryAndDate(ctx, "bitcoin", model.Date(2021, 6, 9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(got), got)
	}
	if got[0].Query != "Bitcoin news date:2021-06-09" || got[1].Query != "BITCOIN regulation" {
		t.Errorf("unexpected matches: %q, %q", got[0].Query, got[1].Query)
	}
}

func TestSaveEventValidates(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.SaveEvent(ctx, &model.Event{Title: "no date"}); err == nil {
		t.Error("expected error for event without date")
	}
}

func TestSaveAndGetEvent(t *testing.T) {
	db := openTestDB(t)
	id := saveEvent(t, db, model.Event{
		EventDate:          model.Date(2021, 6, 9),
		Title:              "El Salvador adopts Bitcoin",
		Description:        "Legal tender law passed",
		SourceURL:          "https://example.com",
		SourceTitle:        ptr("Headline"),
		SearchResultID:     ptr("sr-1"),
		Provider:           model.ProviderTavily,
		RelevanceScore:     ptr(9),
		RelevanceReasoning: ptr("clear date"),
	})

	got, err := db.GetEvent(ctx, id)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if !got.EventDate.Equal(model.Date(2021, 6, 9)) {
		t.Errorf("event date not preserved: %v", got.EventDate)
	}
	if *got.SourceTitle != "Headline" || *got.SearchResultID != "sr-1" || *got.RelevanceScore != 9 {
		t.Errorf("optional fields not preserved: %+v", got)
	}
	if got.Rank != nil {
		t.Error("expected new event to be unranked")
	}
}

func TestGetEventNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetEvent(ctx, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateEvent(t *testing.T) {
	db := openTestDB(t)
	id := saveEvent(t, db, model.Event{EventDate: model.Date(2021, 6, 9), Title: "t", Provider: model.ProviderExa})

	e, _ := db.GetEvent(ctx, id)
	e.Rank = ptr(1)
	if err := db.UpdateEvent(ctx, e); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	got, _ := db.GetEvent(ctx, id)
	if got.Rank == nil || *got.Rank != 1 {
		t.Errorf("expected rank 1, got %v", got.Rank)
	}

	if err := db.UpdateEvent(ctx, &model.Event{EventDate: model.Date(2021, 6, 9), Title: "t"}); !errors.Is(err, model.ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
	ghost := *e
	ghost.ID = "ghost"
	if err := db.UpdateEvent(ctx, &ghost); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEventsByDate(t *testing.T) {
	db := openTestDB(t)
	day := model.Date(2021, 6, 9)
	saveEvent(t, db, model.Event{EventDate: day, Title: "unranked low", RelevanceScore: ptr(2)})
	saveEvent(t, db, model.Event{EventDate: day, Title: "rank 2", RelevanceScore: ptr(9), Rank: ptr(2)})
	saveEvent(t, db, model.Event{EventDate: day, Title: "rank 1 unscored", Rank: ptr(1)})
	saveEvent(t, db, model.Event{EventDate: day.Add(23 * time.Hour), Title: "late", RelevanceScore: ptr(5)})
	saveEvent(t, db, model.Event{EventDate: day.AddDate(0, 0, 1), Title: "next day"})
	saveEvent(t, db, model.Event{EventDate: day.Add(-time.Second), Title: "previous day"})

	byRank, err := db.GetEventsByDate(ctx, day, true)
	if err != nil {
		t.Fatalf("GetEventsByDate: %v", err)
	}
	want := []string{"rank 1 unscored", "rank 2", "unranked low", "late"}
	assertTitles(t, byRank, want)

	byScore, err := db.GetEventsByDate(ctx, day.Add(12*time.Hour), false)
	if err != nil {
		t.Fatalf("GetEventsByDate: %v", err)
	}
	assertTitles(t, byScore, []string{"rank 2", "late", "unranked low", "rank 1 unscored"})
}

func TestGetEventsByDateEmpty(t *testing.T) {
	db := openTestDB(t)
	events, err := db.GetEventsByDate(ctx, model.Date(2030, 1, 1), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", events)
	}
}

func TestGetEventsBySearchResult(t *testing.T) {
	db := openTestDB(t)
	day := model.Date(2021, 6, 9)
	saveEvent(t, db, model.Event{EventDate: day, Title: "a", SearchResultID: ptr("sr-1")})
	saveEvent(t, db, model.Event{EventDate: day, Title: "b", SearchResultID: ptr("sr-2")})
	saveEvent(t, db, model.Event{EventDate: day, Title: "c", SearchResultID: ptr("sr-1")})

	events, err := db.GetEventsBySearchResult(ctx, "sr-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertTitles(t, events, []string{"a", "c"})
}

func TestSearchEvents(t *testing.T) {
	db := openTestDB(t)
	day := model.Date(2021, 6, 9)
	saveEvent(t, db, model.Event{EventDate: day, Title: "El Salvador adopts Bitcoin", Description: "Legal tender law"})
	saveEvent(t, db, model.Event{EventDate: day, Title: "China mining ban", Description: "Miners relocate"})
	id := saveEvent(t, db, model.Event{EventDate: day, Title: "Taproot locks in", Description: "Soft fork"})

	events, err := db.SearchEvents(ctx, "legal tender", 10)
	if err != nil {
		t.Fatalf("SearchEvents: %v", err)
	}
	assertTitles(t, events, []string{"El Salvador adopts Bitcoin"})

	// Updating title keeps the index in sync.
	e, _ := db.GetEvent(ctx, id)
	e.Title = "Taproot activation"
	if err := db.UpdateEvent(ctx, e); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	if events, _ := db.SearchEvents(ctx, "locks", 10); len(events) != 0 {
		t.Errorf("expected stale title to be gone from index, got %+v", events)
	}
	if events, _ := db.SearchEvents(ctx, "activation", 10); len(events) != 1 {
		t.Errorf("expected updated title to be indexed, got %+v", events)
	}

	// Query syntax is treated as text.
	if _, err := db.SearchEvents(ctx, `"unbalanced AND (`, 10); err != nil {
		t.Errorf("expected quoted query to be safe, got %v", err)
	}
	if events, _ := db.SearchEvents(ctx, "  ", 10); len(events) != 0 {
		t.Error("expected no results for blank query")
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	db.SaveSearchResult(ctx, &model.SearchResult{Query: "q", SearchDate: model.Date(2021, 6, 9), Provider: model.ProviderExa})
	saveEvent(t, db, model.Event{EventDate: model.Date(2021, 6, 9), Title: "a", Rank: ptr(1)})
	saveEvent(t, db, model.Event{EventDate: model.Date(2021, 6, 9), Title: "b"})
	saveEvent(t, db, model.Event{EventDate: model.Date(2021, 6, 10), Title: "c"})

	s, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.SearchResults != 1 || s.Events != 3 || s.RankedEvents != 1 || s.DaysWithEvents != 2 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestConcurrentWrites(t *testing.T) {
	db := openTestDB(t)
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.SaveEvent(ctx, &model.Event{EventDate: model.Date(2021, 6, 9), Title: "concurrent"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent SaveEvent: %v", err)
		}
	}
	s, _ := db.Stats(ctx)
	if s.Events != 40 {
		t.Errorf("expected 40 events, got %d", s.Events)
	}
}

func assertTitles(t *testing.T, events []model.Event, want []string) {
	t.Helper()
	if len(events) != len(want) {
		t.Fatalf("expected %d events %v, got %d", len(want), want, len(events))
	}
	for i, w := range want {
		if events[i].Title != w {
			t.Errorf("position %d: expected %q, got %q", i, w, events[i].Title)
		}
	}
}
