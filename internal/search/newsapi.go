package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/eventminer/internal/httpx"
	"github.com/TobiSchelling/eventminer/internal/model"
)

// DefaultNewsAPIURL is the NewsAPI base URL.
const DefaultNewsAPIURL = "https://newsapi.org/v2"

const newsAPIMaxPageSize = 100

// NewsAPIGateway searches the NewsAPI "everything" endpoint.
type NewsAPIGateway struct {
	BaseURL string
	Logger  *slog.Logger

	apiKey string
	client *http.Client
}

// NewNewsAPI creates a NewsAPI gateway. An empty baseURL selects DefaultNewsAPIURL.
func NewNewsAPI(apiKey, baseURL string) *NewsAPIGateway {
	if baseURL == "" {
		baseURL = DefaultNewsAPIURL
	}
	return &NewsAPIGateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpx.NewClient(30 * time.Second),
	}
}

func (g *NewsAPIGateway) Name() model.Provider { return model.ProviderNewsAPI }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		PublishedAt string `json:"publishedAt"`
		Content     string `json:"content"`
		Description string `json:"description"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (g *NewsAPIGateway) Search(ctx context.Context, req Request) (*model.SearchResult, error) {
	pageSize := req.MaxResults
	if pageSize <= 0 || pageSize > newsAPIMaxPageSize {
		pageSize = newsAPIMaxPageSize
	}

	params := url.Values{
		"q":        {req.Query},
		"language": {"en"},
		"pageSize": {fmt.Sprintf("%d", pageSize)},
		"sortBy":   {"relevancy"},
	}
	if !req.WindowStart.IsZero() {
		params.Set("from", req.WindowStart.Format(model.DateLayout))
	}
	if !req.WindowEnd.IsZero() {
		params.Set("to", req.WindowEnd.Format(model.DateLayout))
	}

	defaultLogger(g.Logger).Info("executing NewsAPI search", "query", req.Query)
	var resp newsAPIResponse
	headers := map[string]string{"X-Api-Key": g.apiKey}
	if err := doJSON(ctx, g.client, http.MethodGet, g.BaseURL+"/everything?"+params.Encode(), headers, nil, &resp); err != nil {
		return nil, transportErr(model.ProviderNewsAPI, err)
	}
	if resp.Status != "ok" {
		return nil, transportErr(model.ProviderNewsAPI, errors.New("status "+resp.Status+": "+resp.Message))
	}

	var hits []model.Hit
	for _, a := range resp.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}
		hits = append(hits, model.Hit{
			URL:           a.URL,
			Title:         strings.TrimSpace(a.Title),
			Content:       strings.TrimSpace(a.Content),
			Summary:       strings.TrimSpace(a.Description),
			PublishedDate: parsePublished(a.PublishedAt),
		})
	}

	defaultLogger(g.Logger).Debug("fetched NewsAPI articles", "count", len(hits), "query", req.Query)
	record := map[string]any{}
	for k := range params {
		record[k] = params.Get(k)
	}
	return newResult(model.ProviderNewsAPI, req, record, hits), nil
}
