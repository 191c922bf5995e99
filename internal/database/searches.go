package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/eventminer/internal/model"
)

const searchResultColumns = `id, query, search_date, provider, params, results, summary, created_at, updated_at`

// SaveSearchResult inserts sr and returns its id. An empty sr.ID gets a new
// UUID; sr itself is not modified.
func (db *DB) SaveSearchResult(ctx context.Context, sr *model.SearchResult) (string, error) {
	id := sr.ID
	if id == "" {
		id = uuid.NewString()
	}

	params := sr.Params
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encoding search params: %w", err)
	}
	hits := sr.Results
	if hits == nil {
		hits = []model.Hit{}
	}
	resultsJSON, err := json.Marshal(hits)
	if err != nil {
		return "", fmt.Errorf("encoding search hits: %w", err)
	}

	created, updated := timestamps(sr.CreatedAt, sr.UpdatedAt)
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO search_results (`+searchResultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sr.Query, formatTime(sr.SearchDate), string(sr.Provider),
		string(paramsJSON), string(resultsJSON), sr.Summary,
		formatTime(created), formatTime(updated),
	)
	if err != nil {
		return "", fmt.Errorf("inserting search result: %w", err)
	}
	return id, nil
}

// GetSearchResult returns the search result with the given id, or
// model.ErrNotFound.
func (db *DB) GetSearchResult(ctx context.Context, id string) (*model.SearchResult, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+searchResultColumns+` FROM search_results WHERE id = ?`, id)
	sr, err := scanSearchResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("search result %s: %w", id, model.ErrNotFound)
	}
	return sr, err
}

// GetSearchResultsByQueryAndDate returns results searched on date's calendar
// day whose query contains query, ignoring ASCII case.
func (db *DB) GetSearchResultsByQueryAndDate(ctx context.Context, query string, date time.Time) ([]model.SearchResult, error) {
	start, end := model.DayWindow(date)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+searchResultColumns+` FROM search_results
		WHERE search_date >= ? AND search_date < ? AND instr(lower(query), lower(?)) > 0
		ORDER BY pk`,
		formatTime(start), formatTime(end), query,
	)
	if err != nil {
		return nil, fmt.Errorf("querying search results: %w", err)
	}
	defer rows.Close()

	results := []model.SearchResult{}
	for rows.Next() {
		sr, err := scanSearchResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *sr)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSearchResult(s scanner) (*model.SearchResult, error) {
	var (
		sr                       model.SearchResult
		provider                 string
		searchDate, created, upd string
		paramsJSON, resultsJSON  string
	)
	err := s.Scan(&sr.ID, &sr.Query, &searchDate, &provider, &paramsJSON, &resultsJSON,
		&sr.Summary, &created, &upd)
	if err != nil {
		return nil, err
	}
	sr.Provider = model.Provider(provider)

	if sr.SearchDate, err = parseTime(searchDate); err != nil {
		return nil, err
	}
	if sr.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if sr.UpdatedAt, err = parseTime(upd); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(paramsJSON), &sr.Params); err != nil {
		return nil, fmt.Errorf("decoding search params: %w", err)
	}
	if err := json.Unmarshal([]byte(resultsJSON), &sr.Results); err != nil {
		return nil, fmt.Errorf("decoding search hits: %w", err)
	}
	return &sr, nil
}

// timestamps fills zero creation and update times with the current time.
func timestamps(created, updated time.Time) (time.Time, time.Time) {
	if created.IsZero() {
		created = now()
	}
	if updated.IsZero() {
		updated = created
	}
	return created, updated
}
