// Package search runs dated queries against web search backends and returns
// the raw hits as a model.SearchResult.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/TobiSchelling/eventminer/internal/config"
	"github.com/TobiSchelling/eventminer/internal/model"
)

// ErrMissingAPIKey is returned when a gateway's API key env var is empty.
var ErrMissingAPIKey = errors.New("search API key not set")

// Request describes one search call.
type Request struct {
	Query       string
	SearchDate  time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	MaxResults  int
}

// Gateway executes searches against one backend.
//
// A search that finds nothing returns a SearchResult with no hits, not an
// error. Failures to reach the backend are returned as *TransportError.
type Gateway interface {
	Name() model.Provider
	Search(ctx context.Context, req Request) (*model.SearchResult, error)
}

// TransportError wraps a failure to get a usable response from a backend.
type TransportError struct {
	Provider model.Provider
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s search: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func transportErr(p model.Provider, err error) error {
	return &TransportError{Provider: p, Err: err}
}

// New builds the gateway selected by cfg.Search.Provider. Missing
// credentials fail here rather than on the first search. A nil logger uses
// slog.Default().
func New(cfg *config.Config, logger *slog.Logger) (Gateway, error) {
	s := cfg.Search
	switch model.Provider(s.Provider) {
	case model.ProviderExa:
		key, err := apiKey(s.Exa.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		g := NewExa(key, s.Exa.BaseURL)
		g.Logger = logger
		g.TextMaxChars = s.Exa.TextMaxChars
		g.UseAutoprompt = s.Exa.UseAutoprompt
		return g, nil
	case model.ProviderTavily:
		key, err := apiKey(s.Tavily.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		g := NewTavily(key, s.Tavily.BaseURL)
		g.Logger = logger
		g.Topic = s.Tavily.Topic
		g.IncludeDomains = s.Tavily.IncludeDomains
		g.ExcludeDomains = s.Tavily.ExcludeDomains
		return g, nil
	case model.ProviderNewsAPI:
		key, err := apiKey(s.NewsAPI.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		g := NewNewsAPI(key, s.NewsAPI.BaseURL)
		g.Logger = logger
		return g, nil
	case model.ProviderFeed:
		if len(s.Feeds) == 0 {
			return nil, errors.New("feed search requires at least one configured feed")
		}
		feeds := make([]Feed, len(s.Feeds))
		for i, f := range s.Feeds {
			feeds[i] = Feed{URL: f.URL, Name: f.Name}
		}
		g := NewFeedGateway(feeds)
		g.Logger = logger
		return g, nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", s.Provider)
	}
}

func defaultLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func apiKey(env string) (string, error) {
	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingAPIKey, env)
	}
	return key, nil
}

func newResult(p model.Provider, req Request, params map[string]any, hits []model.Hit) *model.SearchResult {
	if hits == nil {
		hits = []model.Hit{}
	}
	return &model.SearchResult{
		Query:      req.Query,
		SearchDate: req.SearchDate,
		Provider:   p,
		Params:     params,
		Results:    hits,
	}
}

// parsePublished accepts the date formats the backends emit.
func parsePublished(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z", time.RFC1123, time.RFC1123Z, model.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
