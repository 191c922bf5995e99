package search

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/eventminer/internal/httpx"
	"github.com/TobiSchelling/eventminer/internal/model"
)

const maxPerFeed = 20

// Feed is a single RSS/Atom source.
type Feed struct {
	URL  string
	Name string
}

// FeedGateway searches a fixed set of RSS/Atom feeds. Items are kept when
// their publication date falls inside the request window and their text
// mentions at least one query term.
type FeedGateway struct {
	Logger *slog.Logger

	feeds  []Feed
	parser *gofeed.Parser
}

// NewFeedGateway creates a gateway over feeds.
func NewFeedGateway(feeds []Feed) *FeedGateway {
	parser := gofeed.NewParser()
	parser.Client = httpx.NewClient(requestTimeout)
	return &FeedGateway{feeds: feeds, parser: parser}
}

func (g *FeedGateway) Name() model.Provider { return model.ProviderFeed }

func (g *FeedGateway) Search(ctx context.Context, req Request) (*model.SearchResult, error) {
	terms := queryTerms(req.Query)
	var hits []model.Hit
	var errs []error

	for _, fc := range g.feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}
		feed, err := g.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			defaultLogger(g.Logger).Warn("failed to parse feed", "url", fc.URL, "error", err)
			errs = append(errs, err)
			continue
		}

		n := 0
		for _, item := range feed.Items {
			if n >= maxPerFeed {
				break
			}
			hit, ok := parseItem(item)
			if !ok || !inWindow(hit.PublishedDate, req.WindowStart, req.WindowEnd) || !mentions(hit, terms) {
				continue
			}
			hits = append(hits, hit)
			n++
		}
		defaultLogger(g.Logger).Debug("parsed feed", "source", name, "matches", n)
	}

	if len(errs) == len(g.feeds) && len(errs) > 0 {
		return nil, transportErr(model.ProviderFeed, errors.Join(errs...))
	}
	if req.MaxResults > 0 && len(hits) > req.MaxResults {
		hits = hits[:req.MaxResults]
	}

	feedURLs := make([]string, len(g.feeds))
	for i, f := range g.feeds {
		feedURLs[i] = f.URL
	}
	params := map[string]any{"feeds": feedURLs, "max_results": req.MaxResults}
	return newResult(model.ProviderFeed, req, params, hits), nil
}

func parseItem(item *gofeed.Item) (model.Hit, bool) {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if itemURL == "" || title == "" {
		return model.Hit{}, false
	}

	var published *time.Time
	if item.PublishedParsed != nil {
		published = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed
	}

	hit := model.Hit{Title: title, URL: itemURL, PublishedDate: published}
	if item.Content != "" {
		hit.Content = stripHTML(item.Content)
	}
	if item.Description != "" {
		hit.Summary = stripHTML(item.Description)
	}
	return hit, true
}

// inWindow keeps undated items.
func inWindow(published *time.Time, start, end time.Time) bool {
	if published == nil {
		return true
	}
	if !start.IsZero() && published.Before(start) {
		return false
	}
	return end.IsZero() || published.Before(end)
}

// queryTerms lowercases the query words, dropping date tokens and short words.
func queryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if strings.HasPrefix(w, "date:") || len(w) < 4 {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

func mentions(h model.Hit, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	text := strings.ToLower(h.Title + " " + h.Summary + " " + h.Content)
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
			result.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			result.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(html.UnescapeString(result.String())), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
