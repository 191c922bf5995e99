package search

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/TobiSchelling/eventminer/internal/httpx"
	"github.com/TobiSchelling/eventminer/internal/model"
)

// DefaultExaURL is the Exa API base URL.
const DefaultExaURL = "https://api.exa.ai"

// ExaGateway searches with the Exa neural search API, requesting page text
// and highlights for each hit.
type ExaGateway struct {
	BaseURL       string
	TextMaxChars  int
	UseAutoprompt bool
	Logger        *slog.Logger

	apiKey string
	client *http.Client
}

// NewExa creates an Exa gateway. An empty baseURL selects DefaultExaURL.
func NewExa(apiKey, baseURL string) *ExaGateway {
	if baseURL == "" {
		baseURL = DefaultExaURL
	}
	return &ExaGateway{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		TextMaxChars:  1000,
		UseAutoprompt: true,
		apiKey:        apiKey,
		client:        httpx.NewClient(requestTimeout),
	}
}

func (g *ExaGateway) Name() model.Provider { return model.ProviderExa }

type exaResponse struct {
	Results []struct {
		Title         string   `json:"title"`
		URL           string   `json:"url"`
		PublishedDate string   `json:"publishedDate"`
		Score         *float64 `json:"score"`
		Text          string   `json:"text"`
		Highlights    []string `json:"highlights"`
		Summary       string   `json:"summary"`
	} `json:"results"`
}

func (g *ExaGateway) Search(ctx context.Context, req Request) (*model.SearchResult, error) {
	params := map[string]any{
		"num_results":    req.MaxResults,
		"use_autoprompt": g.UseAutoprompt,
		"text": map[string]any{
			"max_characters":    g.TextMaxChars,
			"highlight_results": true,
		},
	}
	body := map[string]any{
		"query":         req.Query,
		"numResults":    req.MaxResults,
		"useAutoprompt": g.UseAutoprompt,
		"contents": map[string]any{
			"text":       map[string]any{"maxCharacters": g.TextMaxChars},
			"highlights": map[string]any{},
		},
	}
	if !req.WindowStart.IsZero() {
		body["startPublishedDate"] = req.WindowStart.Format(model.DateLayout)
		params["start_published_date"] = req.WindowStart.Format(model.DateLayout)
	}
	if !req.WindowEnd.IsZero() {
		body["endPublishedDate"] = req.WindowEnd.Format(model.DateLayout)
		params["end_published_date"] = req.WindowEnd.Format(model.DateLayout)
	}

	defaultLogger(g.Logger).Info("executing Exa search", "query", req.Query)
	var resp exaResponse
	headers := map[string]string{"x-api-key": g.apiKey}
	if err := doJSON(ctx, g.client, http.MethodPost, g.BaseURL+"/search", headers, body, &resp); err != nil {
		return nil, transportErr(model.ProviderExa, err)
	}

	hits := make([]model.Hit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, model.Hit{
			Title:         strings.TrimSpace(r.Title),
			URL:           r.URL,
			Content:       r.Text,
			Highlights:    r.Highlights,
			Summary:       r.Summary,
			Score:         r.Score,
			PublishedDate: parsePublished(r.PublishedDate),
		})
	}
	return newResult(model.ProviderExa, req, params, hits), nil
}
