package database

import (
	"context"
	"fmt"

	"github.com/TobiSchelling/eventminer/internal/model"
)

// Stats returns record counts.
func (db *DB) Stats(ctx context.Context) (*model.Stats, error) {
	var s model.Stats
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM search_results").Scan(&s.SearchResults); err != nil {
		return nil, fmt.Errorf("counting search results: %w", err)
	}
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(rank), COUNT(DISTINCT event_date) FROM events`,
	).Scan(&s.Events, &s.RankedEvents, &s.DaysWithEvents)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	return &s, nil
}
