package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/eventminer/internal/model"
)

const eventColumns = `id, event_date, title, description, source_url, source_title, search_result_id,
	provider, relevance_score, relevance_reasoning, rank, created_at, updated_at`

const defaultSearchLimit = 20

// SaveEvent validates and inserts e, returning its id. An empty e.ID gets a
// new UUID; e itself is not modified.
func (db *DB) SaveEvent(ctx context.Context, e *model.Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}

	created, updated := timestamps(e.CreatedAt, e.UpdatedAt)
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, formatTime(e.EventDate), e.Title, e.Description, e.SourceURL, e.SourceTitle,
		e.SearchResultID, string(e.Provider), e.RelevanceScore, e.RelevanceReasoning, e.Rank,
		formatTime(created), formatTime(updated),
	)
	if err != nil {
		return "", fmt.Errorf("inserting event: %w", err)
	}
	return id, nil
}

// UpdateEvent replaces every mutable field of the stored event with e's and
// bumps updated_at. It is a single-row write.
func (db *DB) UpdateEvent(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		return model.ErrMissingID
	}
	if err := e.Validate(); err != nil {
		return err
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE events SET event_date = ?, title = ?, description = ?, source_url = ?,
			source_title = ?, search_result_id = ?, provider = ?, relevance_score = ?,
			relevance_reasoning = ?, rank = ?, updated_at = ?
		WHERE id = ?`,
		formatTime(e.EventDate), e.Title, e.Description, e.SourceURL, e.SourceTitle,
		e.SearchResultID, string(e.Provider), e.RelevanceScore, e.RelevanceReasoning, e.Rank,
		formatTime(now()), e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating event %s: %w", e.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating event %s: %w", e.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("event %s: %w", e.ID, model.ErrNotFound)
	}
	return nil
}

// GetEvent returns the event with the given id, or model.ErrNotFound.
func (db *DB) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, model.ErrNotFound)
	}
	return e, err
}

// GetEventsByDate returns the events dated within date's calendar day.
func (db *DB) GetEventsByDate(ctx context.Context, date time.Time, sortedByRank bool) ([]model.Event, error) {
	start, end := model.DayWindow(date)
	order := `relevance_score IS NULL, relevance_score DESC, pk`
	if sortedByRank {
		order = `rank IS NULL, rank, pk`
	}
	return db.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE event_date >= ? AND event_date < ?
		ORDER BY `+order,
		formatTime(start), formatTime(end),
	)
}

// GetEventsBySearchResult returns the events derived from a search result in
// insertion order.
func (db *DB) GetEventsBySearchResult(ctx context.Context, searchResultID string) ([]model.Event, error) {
	return db.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE search_result_id = ? ORDER BY pk`,
		searchResultID,
	)
}

// SearchEvents matches text as a phrase against event titles and
// descriptions, best matches first.
func (db *DB) SearchEvents(ctx context.Context, text string, limit int) ([]model.Event, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []model.Event{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return db.queryEvents(ctx,
		`SELECT `+prefixed("e.", eventColumns)+`
		FROM events_fts JOIN events e ON e.pk = events_fts.rowid
		WHERE events_fts MATCH ?
		ORDER BY bm25(events_fts), e.pk
		LIMIT ?`,
		ftsPhrase(text), limit,
	)
}

// ftsPhrase quotes text as a single FTS5 phrase so user input cannot inject
// query syntax.
func ftsPhrase(text string) string {
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func (db *DB) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func scanEvent(s scanner) (*model.Event, error) {
	var (
		e                       model.Event
		eventDate, created, upd string
		provider                string
		score, rank             *int64
	)
	err := s.Scan(&e.ID, &eventDate, &e.Title, &e.Description, &e.SourceURL, &e.SourceTitle,
		&e.SearchResultID, &provider, &score, &e.RelevanceReasoning, &rank, &created, &upd)
	if err != nil {
		return nil, err
	}
	e.Provider = model.Provider(provider)
	e.RelevanceScore = intPtr(score)
	e.Rank = intPtr(rank)

	if e.EventDate, err = parseTime(eventDate); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(upd); err != nil {
		return nil, err
	}
	return &e, nil
}

func intPtr(v *int64) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}
