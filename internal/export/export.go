// Package export flattens the top ranked events of each date into rows and
// writes them as CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/TobiSchelling/eventminer/internal/model"
)

// DefaultTopN is the number of events exported per date.
const DefaultTopN = 5

// Header is the CSV column order.
var Header = []string{"date", "rank", "title", "description", "url", "relevance_score", "relevance_reasoning"}

// Row is one exported event.
type Row struct {
	Date               string
	Rank               *int
	Title              string
	Description        string
	URL                string
	RelevanceScore     *int
	RelevanceReasoning string
}

// Collect returns the top topN events of each day from start to end
// inclusive, days in order and events by rank. A non-positive topN means
// DefaultTopN.
func Collect(ctx context.Context, store model.Store, start, end time.Time, topN int) ([]Row, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}
	rows := []Row{}
	for _, day := range model.DateRange(start, end) {
		events, err := store.GetEventsByDate(ctx, day, true)
		if err != nil {
			return nil, fmt.Errorf("loading events for %s: %w", model.FormatDate(day), err)
		}
		for _, e := range model.TopEvents(events, topN) {
			row := Row{
				Date:           model.FormatDate(day),
				Rank:           e.Rank,
				Title:          e.Title,
				Description:    e.Description,
				URL:            e.SourceURL,
				RelevanceScore: e.RelevanceScore,
			}
			if e.RelevanceReasoning != nil {
				row.RelevanceReasoning = *e.RelevanceReasoning
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// WriteCSV writes the header and rows. Missing ranks and scores are empty
// cells.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Date,
			optInt(r.Rank),
			r.Title,
			r.Description,
			r.URL,
			optInt(r.RelevanceScore),
			r.RelevanceReasoning,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
