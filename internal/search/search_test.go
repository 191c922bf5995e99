package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TobiSchelling/eventminer/internal/config"
	"github.com/TobiSchelling/eventminer/internal/model"
)

func TestFormatQuery(t *testing.T) {
	date := model.Date(2021, 6, 9)
	if got := FormatQuery("Bitcoin news", date, false); got != "Bitcoin news date:2021-06-09" {
		t.Errorf("unexpected day query %q", got)
	}
	if got := FormatQuery("Bitcoin news", date, true); got != "Bitcoin news date:2021-06" {
		t.Errorf("unexpected month query %q", got)
	}
}

func TestPublishedWindow(t *testing.T) {
	date := model.Date(2021, 6, 9)

	start, end := PublishedWindow(date, false)
	if !start.Equal(date) || !end.Equal(model.Date(2021, 6, 16)) {
		t.Errorf("unexpected day window %v - %v", start, end)
	}

	start, end = PublishedWindow(date, true)
	if !start.Equal(model.Date(2021, 6, 1)) || !end.Equal(model.Date(2021, 7, 8)) {
		t.Errorf("unexpected month window %v - %v", start, end)
	}
}

func TestExaSearch(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.Header.Get("x-api-key") != "k" {
			t.Errorf("unexpected request %s key=%q", r.URL.Path, r.Header.Get("x-api-key"))
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"results":[
			{"title":" First ","url":"https://a.example/1","publishedDate":"2021-06-09T10:00:00.000Z","score":0.9,"text":"body one","highlights":["h1","h2"]},
			{"title":"Second","url":"https://a.example/2","text":"body two"}
		]}`))
	}))
	defer srv.Close()

	date := model.Date(2021, 6, 9)
	start, end := PublishedWindow(date, false)
	g := NewExa("k", srv.URL)
	sr, err := g.Search(context.Background(), Request{
		Query: "btc date:2021-06-09", SearchDate: date, WindowStart: start, WindowEnd: end, MaxResults: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["startPublishedDate"] != "2021-06-09" || body["endPublishedDate"] != "2021-06-16" {
		t.Errorf("unexpected window in request: %v %v", body["startPublishedDate"], body["endPublishedDate"])
	}
	if sr.Provider != model.ProviderExa || sr.Query != "btc date:2021-06-09" {
		t.Errorf("unexpected result header: %+v", sr)
	}
	if len(sr.Results) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(sr.Results))
	}
	first := sr.Results[0]
	if first.Title != "First" || len(first.Highlights) != 2 || first.Score == nil || first.PublishedDate == nil {
		t.Errorf("unexpected first hit: %+v", first)
	}
	if sr.Results[1].URL != "https://a.example/2" {
		t.Errorf("provider order not preserved")
	}
}

func TestExaSearchEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	sr, err := NewExa("k", srv.URL).Search(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sr == nil || sr.Results == nil || len(sr.Results) != 0 {
		t.Errorf("expected empty non-nil results, got %+v", sr)
	}
}

func TestExaSearchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewExa("k", srv.URL).Search(context.Background(), Request{Query: "q"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Provider != model.ProviderExa {
		t.Errorf("unexpected provider %q", te.Provider)
	}
}

func TestTavilySearch(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"answer":"it happened","results":[
			{"title":"T","url":"https://t.example","content":"snippet","raw_content":"full text","score":0.5,"published_date":"Wed, 09 Jun 2021 12:00:00 GMT"}
		]}`))
	}))
	defer srv.Close()

	date := model.Date(2021, 6, 9)
	start, end := PublishedWindow(date, true)
	sr, err := NewTavily("k", srv.URL).Search(context.Background(), Request{
		Query: "q", SearchDate: date, WindowStart: start, WindowEnd: end, MaxResults: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["start_date"] != "2021-06-01" || body["include_raw_content"] != true {
		t.Errorf("unexpected request body: %v", body)
	}
	if sr.Summary == nil || *sr.Summary != "it happened" {
		t.Errorf("expected answer as summary, got %v", sr.Summary)
	}
	h := sr.Results[0]
	if h.Content != "full text" || h.Summary != "snippet" || h.PublishedDate == nil {
		t.Errorf("unexpected hit: %+v", h)
	}
	if sr.Params["max_results"] != 3 {
		t.Errorf("expected params to be recorded, got %v", sr.Params)
	}
}

func TestNewsAPISearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/everything" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("from") != "2021-06-09" {
			t.Errorf("unexpected from %q", r.URL.Query().Get("from"))
		}
		w.Write([]byte(`{"status":"ok","articles":[
			{"url":"https://n.example/1","title":"Kept","publishedAt":"2021-06-09T08:00:00Z","content":"c","description":"d"},
			{"url":"https://removed.com","title":"[Removed]"},
			{"url":"","title":"no url"}
		]}`))
	}))
	defer srv.Close()

	date := model.Date(2021, 6, 9)
	start, end := PublishedWindow(date, false)
	sr, err := NewNewsAPI("k", srv.URL).Search(context.Background(), Request{
		Query: "q", SearchDate: date, WindowStart: start, WindowEnd: end,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sr.Results) != 1 || sr.Results[0].Title != "Kept" {
		t.Errorf("expected only the valid article, got %+v", sr.Results)
	}
}

func TestNewsAPIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"rate limited"}`))
	}))
	defer srv.Close()

	_, err := NewNewsAPI("k", srv.URL).Search(context.Background(), Request{Query: "q"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Errorf("expected TransportError, got %v", err)
	}
}

const testFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Test</title>
<item><title>Bitcoin hits record</title><link>https://f.example/1</link>
<pubDate>Wed, 09 Jun 2021 12:00:00 GMT</pubDate><description>&lt;p&gt;Bitcoin &amp;amp; friends&lt;/p&gt;</description></item>
<item><title>Bitcoin old news</title><link>https://f.example/2</link>
<pubDate>Mon, 01 Mar 2021 10:00:00 GMT</pubDate></item>
<item><title>Gardening tips</title><link>https://f.example/3</link>
<pubDate>Wed, 09 Jun 2021 11:00:00 GMT</pubDate></item>
</channel></rss>`

func TestFeedGatewayFiltersWindowAndTerms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	date := model.Date(2021, 6, 9)
	start, end := PublishedWindow(date, false)
	g := NewFeedGateway([]Feed{{URL: srv.URL}})
	sr, err := g.Search(context.Background(), Request{
		Query: "bitcoin date:2021-06-09", SearchDate: date, WindowStart: start.UTC(), WindowEnd: end.UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sr.Results) != 1 {
		t.Fatalf("expected 1 hit, got %d: %+v", len(sr.Results), sr.Results)
	}
	if s := sr.Results[0].Summary; !strings.Contains(s, "Bitcoin") || strings.Contains(s, "<p>") {
		t.Errorf("expected stripped summary, got %q", s)
	}
}

func TestFeedGatewayAllFeedsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := NewFeedGateway([]Feed{{URL: srv.URL}}).Search(context.Background(), Request{Query: "q"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Errorf("expected TransportError, got %v", err)
	}
}

func TestQueryTerms(t *testing.T) {
	got := queryTerms("Bitcoin news and developments date:2021-06")
	want := []string{"bitcoin", "news", "developments"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("term %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestExtractSourceName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://www.coindesk.com/rss", "Coindesk"},
		{"https://blog.example.org/feed", "Example"},
		{"http://localhost:8080/feed.xml", "Localhost"},
	}
	for _, tt := range tests {
		if got := extractSourceName(tt.in); got != tt.want {
			t.Errorf("extractSourceName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewMissingKey(t *testing.T) {
	t.Setenv("TEST_EXA_KEY", "")
	cfg := &config.Config{}
	cfg.Search.Provider = "exa"
	cfg.Search.Exa.APIKeyEnv = "TEST_EXA_KEY"
	if _, err := New(cfg, nil); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Provider = "bing"
	if _, err := New(cfg, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewPicksProvider(t *testing.T) {
	t.Setenv("TEST_TAVILY_KEY", "secret")
	cfg := &config.Config{}
	cfg.Search.Provider = "tavily"
	cfg.Search.Tavily.APIKeyEnv = "TEST_TAVILY_KEY"
	g, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Name() != model.ProviderTavily {
		t.Errorf("expected tavily gateway, got %q", g.Name())
	}
}

func TestNewInjectsLogger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_EXA_KEY", "secret")
	cfg := &config.Config{}
	cfg.Search.Provider = "exa"
	cfg.Search.Exa.APIKeyEnv = "TEST_EXA_KEY"
	cfg.Search.Exa.BaseURL = srv.URL

	var buf bytes.Buffer
	g, err := New(cfg, slog.New(slog.NewTextHandler(&buf, nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.Search(context.Background(), Request{Query: "bitcoin"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !strings.Contains(buf.String(), "executing Exa search") {
		t.Errorf("expected gateway logs on the injected logger, got %q", buf.String())
	}
}
