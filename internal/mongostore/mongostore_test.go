package mongostore

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/TobiSchelling/eventminer/internal/model"
)

func TestNewOrParseID(t *testing.T) {
	id, err := newOrParseID("")
	if err != nil || id.IsZero() {
		t.Fatalf("expected a fresh id, got %v, %v", id, err)
	}

	want := primitive.NewObjectID()
	got, err := newOrParseID(want.Hex())
	if err != nil || got != want {
		t.Errorf("expected %v, got %v (%v)", want, got, err)
	}

	if _, err := newOrParseID("not-hex"); err == nil {
		t.Error("expected error for invalid id")
	}
}

func TestEventDocConversion(t *testing.T) {
	rank, score := 2, 8
	title := "Headline"
	e := &model.Event{
		EventDate:      model.Date(2021, 6, 9),
		Title:          "El Salvador adopts Bitcoin",
		SourceURL:      "https://example.com",
		SourceTitle:    &title,
		Provider:       model.ProviderExa,
		RelevanceScore: &score,
		Rank:           &rank,
	}
	id := primitive.NewObjectID()
	doc := fromEvent(e, id)
	if doc.EventDate.Location() != time.UTC {
		t.Errorf("expected UTC event date, got %v", doc.EventDate.Location())
	}

	back := doc.toModel()
	if back.ID != id.Hex() {
		t.Errorf("expected id %s, got %s", id.Hex(), back.ID)
	}
	if !back.EventDate.Equal(e.EventDate) {
		t.Errorf("event date changed: %v vs %v", back.EventDate, e.EventDate)
	}
	if *back.Rank != 2 || *back.RelevanceScore != 8 || *back.SourceTitle != "Headline" {
		t.Errorf("fields not preserved: %+v", back)
	}
}

func TestTimestamps(t *testing.T) {
	created, updated := timestamps(time.Time{}, time.Time{})
	if created.IsZero() || !updated.Equal(created) {
		t.Errorf("expected filled timestamps, got %v %v", created, updated)
	}
	if created.Nanosecond()%int(time.Millisecond) != 0 {
		t.Errorf("expected millisecond precision, got %v", created)
	}
}
