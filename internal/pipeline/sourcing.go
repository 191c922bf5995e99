package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TobiSchelling/eventminer/internal/assemble"
	"github.com/TobiSchelling/eventminer/internal/fetch"
	"github.com/TobiSchelling/eventminer/internal/judge"
	"github.com/TobiSchelling/eventminer/internal/metrics"
	"github.com/TobiSchelling/eventminer/internal/model"
	"github.com/TobiSchelling/eventminer/internal/search"
)

var errNoStore = errors.New("persisting requires a store")

// Options controls one sourcing call. Empty JudgeModel and JudgePrompt use
// the judge's configured defaults.
type Options struct {
	BaseQuery   string
	FullMonth   bool
	MaxResults  int
	Persist     bool
	JudgeModel  string
	JudgePrompt string
}

// DateResult is the outcome of sourcing one date within a batch. A failed
// date has Err set and no events.
type DateResult struct {
	Date         time.Time
	SearchResult *model.SearchResult
	Events       []model.Event
	Err          error
}

// Sourcing searches, judges and stores the events of one date at a time.
type Sourcing struct {
	gateway   search.Gateway
	judge     judge.Judge
	assembler *assemble.Assembler
	store     model.Store
	enricher  *fetch.Enricher
	settings  Settings
}

// NewSourcing creates a sourcing pipeline. store may be nil when no call
// persists; enricher may be nil to judge hits as the backend returned them.
func NewSourcing(gw search.Gateway, j judge.Judge, store model.Store, enricher *fetch.Enricher, settings Settings) *Sourcing {
	settings = settings.withDefaults()
	return &Sourcing{
		gateway:   gw,
		judge:     j,
		assembler: assemble.New(settings.Logger),
		store:     store,
		enricher:  enricher,
		settings:  settings,
	}
}

// ProcessDate runs search, judge and assembly for date. A judge failure is
// logged and yields no events. Only search and store failures are returned.
func (s *Sourcing) ProcessDate(ctx context.Context, date time.Time, opts Options) (*model.SearchResult, []model.Event, error) {
	log := s.settings.Logger.With("date", model.FormatDate(date))
	if opts.Persist && s.store == nil {
		return nil, nil, errNoStore
	}

	query := search.FormatQuery(opts.BaseQuery, date, opts.FullMonth)
	start, end := search.PublishedWindow(date, opts.FullMonth)
	log.Info("processing date", "query", query)

	sr, err := s.gateway.Search(ctx, search.Request{
		Query:       query,
		SearchDate:  date,
		WindowStart: start,
		WindowEnd:   end,
		MaxResults:  opts.MaxResults,
	})
	provider := string(s.gateway.Name())
	if err != nil {
		s.settings.Metrics.IncSearch(provider, metrics.OutcomeFailure)
		return nil, nil, fmt.Errorf("searching %q: %w", query, err)
	}
	if len(sr.Results) == 0 {
		s.settings.Metrics.IncSearch(provider, metrics.OutcomeEmpty)
	} else {
		s.settings.Metrics.IncSearch(provider, metrics.OutcomeSuccess)
	}

	if s.enricher != nil {
		fr := s.enricher.Enrich(ctx, sr)
		log.Debug("enriched hits", "fetched", fr.Fetched, "failed", fr.Failed)
	}

	if opts.Persist {
		id, err := s.store.SaveSearchResult(ctx, sr)
		if err != nil {
			return nil, nil, fmt.Errorf("saving search result: %w", err)
		}
		sr.ID = id
		log.Info("saved search result", "id", id, "hits", len(sr.Results))
	}

	out := s.judge.Evaluate(ctx, judge.Request{
		SearchResult: sr,
		Query:        query,
		Date:         date,
		Model:        opts.JudgeModel,
		Prompt:       opts.JudgePrompt,
	})
	jm := out.Or(func(err error) judge.Judgement {
		log.Warn("relevance judge failed, no events for this date", "error", err)
		s.settings.Metrics.IncFallback(metrics.OracleJudge)
		return judge.Judgement{Reasoning: "Error during evaluation: " + err.Error()}
	})
	log.Debug("judge reasoning", "reasoning", jm.Reasoning, "candidates", len(jm.Events))

	events := s.assembler.Assemble(sr, date, jm.Events)

	if opts.Persist {
		for i := range events {
			id, err := s.store.SaveEvent(ctx, &events[i])
			if err != nil {
				return sr, nil, fmt.Errorf("saving event %q: %w", events[i].Title, err)
			}
			events[i].ID = id
		}
		s.settings.Metrics.AddEventsSaved(len(events))
		log.Info("saved events", "count", len(events))
	}
	return sr, events, nil
}

// ProcessDateRange sources every day from start to end inclusive. Results
// are in date order; a failing date is logged and does not stop the others.
func (s *Sourcing) ProcessDateRange(ctx context.Context, start, end time.Time, opts Options) []DateResult {
	dates := model.DateRange(start, end)
	s.settings.Logger.Info("processing date range",
		"start", model.FormatDate(start), "end", model.FormatDate(end), "dates", len(dates))

	results := make([]DateResult, len(dates))
	runUnits(ctx, s.settings.Concurrency, len(dates), func(ctx context.Context, i int) {
		results[i] = s.processUnit(ctx, dates[i], opts)
	})
	return results
}

// ProcessMonth sources the whole month containing month with one query.
func (s *Sourcing) ProcessMonth(ctx context.Context, month time.Time, opts Options) DateResult {
	opts.FullMonth = true
	return s.processUnit(ctx, model.MonthStart(month), opts)
}

func (s *Sourcing) processUnit(ctx context.Context, date time.Time, opts Options) DateResult {
	r := DateResult{Date: date, Events: []model.Event{}}
	if err := ctx.Err(); err != nil {
		r.Err = err
		return r
	}

	began := time.Now()
	sr, events, err := s.ProcessDate(ctx, date, opts)
	s.settings.Metrics.ObserveUnit(metrics.PipelineSourcing, outcome(err), time.Since(began).Seconds())
	r.SearchResult = sr
	if err != nil {
		r.Err = err
		s.settings.Logger.Error("date failed", "date", model.FormatDate(date), "error", err)
		return r
	}
	r.Events = events
	return r
}

// Summary returns a one-line description of a batch run.
func Summary(results []DateResult) string {
	var events, failed int
	for _, r := range results {
		events += len(r.Events)
		if r.Err != nil {
			failed++
		}
	}
	return fmt.Sprintf("%d dates, %d events, %d failed", len(results), events, failed)
}

func (r DateResult) logAttrs() []any {
	attrs := []any{"date", model.FormatDate(r.Date), "events", len(r.Events)}
	if r.Err != nil {
		attrs = append(attrs, "error", r.Err)
	}
	return attrs
}

// LogResults writes one line per date result.
func LogResults(logger *slog.Logger, results []DateResult) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("date result", r.logAttrs()...)
			continue
		}
		logger.Info("date result", r.logAttrs()...)
	}
}
