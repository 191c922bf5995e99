// Package pipeline drives the sourcing and ranking runs over dates and
// queries.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/eventminer/internal/config"
	"github.com/TobiSchelling/eventminer/internal/fetch"
	"github.com/TobiSchelling/eventminer/internal/judge"
	"github.com/TobiSchelling/eventminer/internal/llm"
	"github.com/TobiSchelling/eventminer/internal/metrics"
	"github.com/TobiSchelling/eventminer/internal/model"
	"github.com/TobiSchelling/eventminer/internal/ranker"
	"github.com/TobiSchelling/eventminer/internal/search"
)

// DefaultConcurrency bounds batch fan-out when no limit is configured.
const DefaultConcurrency = 4

// Settings carries what both pipelines share.
type Settings struct {
	// Concurrency is the number of dates or queries processed at once.
	Concurrency int
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

func (s Settings) withDefaults() Settings {
	if s.Concurrency < 1 {
		s.Concurrency = DefaultConcurrency
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	return s
}

// Pipeline holds both pipelines built from one configuration.
type Pipeline struct {
	Sourcing *Sourcing
	Ranking  *Ranking
}

// New builds the sourcing and ranking pipelines from cfg. Missing
// credentials for the search backend or the LLM fail here.
func New(cfg *config.Config, store model.Store, m *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	gw, err := search.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	settings := settingsFromConfig(cfg, m, logger)
	j := judge.New(provider, judge.Options{
		Model:     cfg.LLM.JudgeModel,
		Prompt:    cfg.LLM.JudgePrompt,
		MaxTokens: cfg.LLM.MaxTokens,
		Logger:    logger,
	})
	var enricher *fetch.Enricher
	if cfg.Pipeline.FetchMissingContent {
		enricher = fetch.NewEnricher(15*time.Second, logger)
	}

	return &Pipeline{
		Sourcing: NewSourcing(gw, j, store, enricher, settings),
		Ranking:  NewRanking(store, newRanker(cfg, provider, logger), settings),
	}, nil
}

// NewRankingFromConfig builds only the ranking pipeline, which needs no
// search backend.
func NewRankingFromConfig(cfg *config.Config, store model.Store, m *metrics.Metrics, logger *slog.Logger) (*Ranking, error) {
	if logger == nil {
		logger = slog.Default()
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewRanking(store, newRanker(cfg, provider, logger), settingsFromConfig(cfg, m, logger)), nil
}

func newProvider(cfg *config.Config) (llm.Provider, error) {
	return llm.CreateProvider(llm.Options{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		OllamaURL:   cfg.LLM.OllamaURL,
		OpenAIModel: cfg.LLM.OpenAIModel,
		OpenAIURL:   cfg.LLM.OpenAIURL,
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
	})
}

func newRanker(cfg *config.Config, provider llm.Provider, logger *slog.Logger) *ranker.Ranker {
	oracle := ranker.NewLLMOracle(provider, cfg.LLM.RankModel, cfg.LLM.RankPrompt, 0, logger)
	return ranker.New(oracle, logger)
}

func settingsFromConfig(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) Settings {
	return Settings{Concurrency: cfg.Pipeline.Concurrency, Metrics: m, Logger: logger}
}

// runUnits calls fn for units 0..n-1 with at most limit running at once and
// waits for all of them. Units report their own failures; a unit that has
// not started when ctx is done still runs and is expected to check ctx.
func runUnits(ctx context.Context, limit, n int, fn func(ctx context.Context, i int)) {
	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

func outcome(err error) string {
	if err != nil {
		return metrics.OutcomeFailure
	}
	return metrics.OutcomeSuccess
}
