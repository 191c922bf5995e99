// Package fetch fills in page text for search hits that arrived without any,
// using readability extraction.
package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/eventminer/internal/model"
)

const (
	minContentLen = 100
	maxBodyBytes  = 5 << 20
	maxContentLen = 4000
)

// Result counts the outcome of an enrichment pass.
type Result struct {
	Fetched           int
	AlreadyHadContent int
	Failed            int
}

// Enricher fetches article text for hits with empty content.
type Enricher struct {
	client *http.Client
	log    *slog.Logger
}

// NewEnricher creates an Enricher. A zero timeout means 15 seconds.
func NewEnricher(timeout time.Duration, logger *slog.Logger) *Enricher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		log: logger,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Enrich fills Content in place for hits of sr that have none. After an HTTP
// error status, remaining hits from the same domain are skipped.
func (e *Enricher) Enrich(ctx context.Context, sr *model.SearchResult) *Result {
	result := &Result{}
	failedDomains := make(map[string]struct{})

	for i := range sr.Results {
		hit := &sr.Results[i]
		if strings.TrimSpace(hit.Content) != "" {
			result.AlreadyHadContent++
			continue
		}
		if ctx.Err() != nil {
			result.Failed++
			continue
		}

		domain := ""
		if u, err := url.Parse(hit.URL); err == nil {
			domain = strings.ToLower(u.Host)
		}
		if _, failed := failedDomains[domain]; failed {
			result.Failed++
			continue
		}

		content, httpErr := e.fetchArticleContent(ctx, hit.URL)
		if httpErr != nil {
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			e.log.Debug("HTTP error, skipping remaining hits from domain", "url", hit.URL, "domain", domain, "error", httpErr)
			continue
		}
		if content == "" {
			result.Failed++
			e.log.Debug("no extractable content", "url", hit.URL)
			continue
		}

		hit.Content = content
		result.Fetched++
	}

	if result.Fetched > 0 || result.Failed > 0 {
		e.log.Info("content fetch complete", "fetched", result.Fetched, "failed", result.Failed)
	}
	return result
}

func (e *Enricher) fetchArticleContent(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", nil
	}
	req.Header.Set("User-Agent", "eventminer/1.0 (event research)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) <= minContentLen {
		return "", nil
	}
	if len(text) > maxContentLen {
		text = strings.ToValidUTF8(text[:maxContentLen], "")
	}
	return text, nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
