package search

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/TobiSchelling/eventminer/internal/httpx"
	"github.com/TobiSchelling/eventminer/internal/model"
)

// DefaultTavilyURL is the Tavily API base URL.
const DefaultTavilyURL = "https://api.tavily.com"

// TavilyGateway searches with the Tavily API. The raw page content becomes the
// hit content, the snippet its summary, and Tavily's answer the result summary.
type TavilyGateway struct {
	BaseURL        string
	Topic          string
	IncludeDomains []string
	ExcludeDomains []string
	Logger         *slog.Logger

	apiKey string
	client *http.Client
}

// NewTavily creates a Tavily gateway. An empty baseURL selects DefaultTavilyURL.
func NewTavily(apiKey, baseURL string) *TavilyGateway {
	if baseURL == "" {
		baseURL = DefaultTavilyURL
	}
	return &TavilyGateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpx.NewClient(requestTimeout),
	}
}

func (g *TavilyGateway) Name() model.Provider { return model.ProviderTavily }

type tavilyResponse struct {
	Answer  *string `json:"answer"`
	Results []struct {
		Title         string   `json:"title"`
		URL           string   `json:"url"`
		Content       string   `json:"content"`
		RawContent    string   `json:"raw_content"`
		Score         *float64 `json:"score"`
		PublishedDate string   `json:"published_date"`
	} `json:"results"`
}

func (g *TavilyGateway) Search(ctx context.Context, req Request) (*model.SearchResult, error) {
	params := map[string]any{
		"max_results":         req.MaxResults,
		"include_raw_content": true,
	}
	if g.Topic != "" {
		params["topic"] = g.Topic
	}
	if len(g.IncludeDomains) > 0 {
		params["include_domains"] = g.IncludeDomains
	}
	if len(g.ExcludeDomains) > 0 {
		params["exclude_domains"] = g.ExcludeDomains
	}
	if !req.WindowStart.IsZero() {
		params["start_date"] = req.WindowStart.Format(model.DateLayout)
	}
	if !req.WindowEnd.IsZero() {
		params["end_date"] = req.WindowEnd.Format(model.DateLayout)
	}

	body := map[string]any{"query": req.Query, "include_answer": true}
	for k, v := range params {
		body[k] = v
	}

	defaultLogger(g.Logger).Info("executing Tavily search", "query", req.Query)
	var resp tavilyResponse
	headers := map[string]string{"Authorization": "Bearer " + g.apiKey}
	if err := doJSON(ctx, g.client, http.MethodPost, g.BaseURL+"/search", headers, body, &resp); err != nil {
		return nil, transportErr(model.ProviderTavily, err)
	}

	hits := make([]model.Hit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, model.Hit{
			Title:         strings.TrimSpace(r.Title),
			URL:           r.URL,
			Content:       r.RawContent,
			Summary:       r.Content,
			Score:         r.Score,
			PublishedDate: parsePublished(r.PublishedDate),
		})
	}
	sr := newResult(model.ProviderTavily, req, params, hits)
	if resp.Answer != nil && *resp.Answer != "" {
		sr.Summary = resp.Answer
	}
	return sr, nil
}
