package assemble

import (
	"testing"

	"github.com/TobiSchelling/eventminer/internal/judge"
	"github.com/TobiSchelling/eventminer/internal/model"
)

func TestAssemble(t *testing.T) {
	sr := &model.SearchResult{
		ID:       "sr-1",
		Provider: model.ProviderTavily,
		Results:  []model.Hit{{Title: "Source headline", URL: "https://example.com/a"}},
	}
	searchDate := model.Date(2021, 6, 9)
	candidates := []judge.Candidate{
		{Title: " First ", Description: "d1", Date: "2021-06-08", Score: 8, URL: "https://example.com/a ", Reasoning: "r1"},
		{Title: "Second", Description: "d2", Date: "June 9th", Score: 3, URL: "https://example.com/b", Reasoning: "r2"},
		{Title: "Second", Description: "d2", Date: "2021-06-09", Score: 3, URL: "https://example.com/b", Reasoning: "r2"},
	}

	events := New(nil).Assemble(sr, searchDate, candidates)
	if len(events) != 3 {
		t.Fatalf("expected 3 events (no dedup), got %d", len(events))
	}

	first := events[0]
	if !first.EventDate.Equal(model.Date(2021, 6, 8)) {
		t.Errorf("expected claimed date, got %v", first.EventDate)
	}
	if first.Title != "First" || first.SourceURL != "https://example.com/a" {
		t.Errorf("expected trimmed fields, got %+v", first)
	}
	if first.SourceTitle == nil || *first.SourceTitle != "Source headline" {
		t.Errorf("expected source title from matching hit, got %v", first.SourceTitle)
	}
	if first.Provider != model.ProviderTavily {
		t.Errorf("expected provider copied from search result, got %q", first.Provider)
	}
	if first.SearchResultID == nil || *first.SearchResultID != "sr-1" {
		t.Errorf("expected search result back-reference, got %v", first.SearchResultID)
	}
	if *first.RelevanceScore != 8 || *first.RelevanceReasoning != "r1" {
		t.Errorf("expected score and reasoning copied, got %d %q", *first.RelevanceScore, *first.RelevanceReasoning)
	}
	if first.Rank != nil {
		t.Error("new events must be unranked")
	}

	if !events[1].EventDate.Equal(searchDate) {
		t.Errorf("expected search date fallback, got %v", events[1].EventDate)
	}
	if events[1].SourceTitle != nil {
		t.Error("expected no source title without a matching hit")
	}
}

func TestAssembleUnsavedSearchResult(t *testing.T) {
	sr := &model.SearchResult{Provider: model.ProviderExa}
	events := New(nil).Assemble(sr, model.Date(2021, 6, 9), []judge.Candidate{{Title: "t", Date: "2021-06-09"}})
	if events[0].SearchResultID != nil {
		t.Error("expected no back-reference for an unsaved search result")
	}
}

func TestAssembleEmpty(t *testing.T) {
	events := New(nil).Assemble(&model.SearchResult{}, model.Date(2021, 6, 9), nil)
	if events == nil || len(events) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", events)
	}
}
