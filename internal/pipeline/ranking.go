package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/TobiSchelling/eventminer/internal/metrics"
	"github.com/TobiSchelling/eventminer/internal/model"
	"github.com/TobiSchelling/eventminer/internal/ranker"
)

// Ranking orders stored events per date and writes the ranks back.
type Ranking struct {
	store    model.Store
	ranker   *ranker.Ranker
	settings Settings
}

// NewRanking creates a ranking pipeline.
func NewRanking(store model.Store, r *ranker.Ranker, settings Settings) *Ranking {
	return &Ranking{store: store, ranker: r, settings: settings.withDefaults()}
}

// RankEventsForDate ranks the events of date scoring at least minScore
// (a missing score counts as zero). With a non-empty query only events from
// search results whose query contains it on that day are ranked. Ranks are
// dense from 1 and persisted before the ranked events are returned.
func (p *Ranking) RankEventsForDate(ctx context.Context, date time.Time, query string, minScore int) ([]model.Event, error) {
	log := p.settings.Logger.With("date", model.FormatDate(date))

	events, err := p.store.GetEventsByDate(ctx, date, true)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}

	if query != "" {
		results, err := p.store.GetSearchResultsByQueryAndDate(ctx, query, date)
		if err != nil {
			return nil, fmt.Errorf("loading search results: %w", err)
		}
		ids := make(map[string]struct{}, len(results))
		for _, sr := range results {
			ids[sr.ID] = struct{}{}
		}
		events = filterEvents(events, func(e *model.Event) bool {
			if e.SearchResultID == nil {
				return false
			}
			_, ok := ids[*e.SearchResultID]
			return ok
		})
		log.Info("filtered events by query", "query", query, "events", len(events))
	}

	events = filterEvents(events, func(e *model.Event) bool { return e.Score() >= minScore })
	if len(events) == 0 {
		log.Warn("no events to rank", "min_score", minScore)
		return []model.Event{}, nil
	}

	log.Info("ranking events", "count", len(events))
	result := p.ranker.Rank(ctx, model.Summaries(events), date)
	if result.Fallback {
		p.settings.Metrics.IncFallback(metrics.OracleRanker)
	}
	ranked := ranker.ApplyRankings(events, result)

	for i := range ranked {
		if err := p.store.UpdateEvent(ctx, &ranked[i]); err != nil {
			return nil, fmt.Errorf("saving rank of event %s: %w", ranked[i].ID, err)
		}
	}
	p.settings.Metrics.AddEventsRanked(len(ranked))

	log.Info("ranking complete", "reasoning", result.Reasoning)
	for _, e := range model.TopEvents(ranked, 5) {
		log.Debug("top event", "rank", *e.Rank, "title", e.Title)
	}
	return ranked, nil
}

// RankEventsForDateRange ranks each day from start to end inclusive, keyed
// by YYYY-MM-DD. A failing day maps to an empty list.
func (p *Ranking) RankEventsForDateRange(ctx context.Context, start, end time.Time, query string, minScore int) map[string][]model.Event {
	dates := model.DateRange(start, end)
	lists := make([][]model.Event, len(dates))
	runUnits(ctx, p.settings.Concurrency, len(dates), func(ctx context.Context, i int) {
		lists[i] = p.rankUnit(ctx, dates[i], query, minScore)
	})

	out := make(map[string][]model.Event, len(dates))
	for i, d := range dates {
		out[model.FormatDate(d)] = lists[i]
	}
	return out
}

// RankEventsForQueries ranks date once per query, keyed by query. A failing
// query maps to an empty list. Queries run one after another in the given
// order: overlapping queries share events, and each run must write a
// complete ranking before the next one reads it.
func (p *Ranking) RankEventsForQueries(ctx context.Context, date time.Time, queries []string, minScore int) map[string][]model.Event {
	out := make(map[string][]model.Event, len(queries))
	for _, q := range queries {
		out[q] = p.rankUnit(ctx, date, q, minScore)
	}
	return out
}

func (p *Ranking) rankUnit(ctx context.Context, date time.Time, query string, minScore int) []model.Event {
	if err := ctx.Err(); err != nil {
		p.settings.Logger.Warn("ranking skipped", "date", model.FormatDate(date), "query", query, "error", err)
		return []model.Event{}
	}
	began := time.Now()
	events, err := p.RankEventsForDate(ctx, date, query, minScore)
	p.settings.Metrics.ObserveUnit(metrics.PipelineRanking, outcome(err), time.Since(began).Seconds())
	if err != nil {
		p.settings.Logger.Error("ranking failed", "date", model.FormatDate(date), "query", query, "error", err)
		return []model.Event{}
	}
	return events
}

func filterEvents(events []model.Event, keep func(*model.Event) bool) []model.Event {
	out := events[:0:0]
	for i := range events {
		if keep(&events[i]) {
			out = append(out, events[i])
		}
	}
	return out
}
