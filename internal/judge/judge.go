// Package judge asks an LLM which search hits describe real events on a
// target date, returning scored candidate events.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/TobiSchelling/eventminer/internal/llm"
	"github.com/TobiSchelling/eventminer/internal/model"
)

const (
	dateFormat       = "January 02, 2006"
	noReasoning      = "No reasoning provided"
	defaultMaxTokens = 4096
)

// Candidate is one event proposed by the judge. Date is the claimed event
// date as the model wrote it; it is not validated here.
type Candidate struct {
	Reasoning     string
	Title         string
	Description   string
	Date          string
	PublishedDate *string
	Score         int
	URL           string
}

// Judgement is the judge's overall verdict for one search result.
type Judgement struct {
	Reasoning string
	Events    []Candidate
}

// Request is one evaluation. Model and Prompt override the judge defaults
// when set.
type Request struct {
	SearchResult *model.SearchResult
	Query        string
	Date         time.Time
	Model        string
	Prompt       string
}

// Judge evaluates search results.
type Judge interface {
	Evaluate(ctx context.Context, req Request) llm.Outcome[Judgement]
}

// Options configures an LLMJudge.
type Options struct {
	Model     string
	Prompt    string
	MaxTokens int
	Logger    *slog.Logger
}

// LLMJudge implements Judge with a chat completion provider.
type LLMJudge struct {
	provider  llm.Provider
	model     string
	prompt    string
	maxTokens int
	log       *slog.Logger
}

// New creates an LLM-backed judge. Empty options fall back to the provider's
// model and DefaultPrompt.
func New(provider llm.Provider, opts Options) *LLMJudge {
	j := &LLMJudge{
		provider:  provider,
		model:     opts.Model,
		prompt:    opts.Prompt,
		maxTokens: opts.MaxTokens,
		log:       opts.Logger,
	}
	if j.prompt == "" {
		j.prompt = DefaultPrompt
	}
	if j.maxTokens <= 0 {
		j.maxTokens = defaultMaxTokens
	}
	if j.log == nil {
		j.log = slog.Default()
	}
	return j
}

// Evaluate renders the prompt for req.Date, sends the formatted hits and
// validates the reply. Transport and schema problems become a failure outcome.
func (j *LLMJudge) Evaluate(ctx context.Context, req Request) llm.Outcome[Judgement] {
	if j.provider == nil {
		return llm.Failure[Judgement](llm.ErrNoProvider)
	}
	if req.SearchResult == nil {
		return llm.Failure[Judgement](errors.New("no search result to evaluate"))
	}

	formattedDate := req.Date.Format(dateFormat)
	prompt := req.Prompt
	if prompt == "" {
		prompt = j.prompt
	}
	modelName := req.Model
	if modelName == "" {
		modelName = j.model
	}

	j.log.Info("evaluating relevance", "date", formattedDate, "hits", len(req.SearchResult.Results))

	text, err := j.provider.Generate(ctx, llm.Request{
		System:    RenderPrompt(prompt, req.Date),
		Prompt:    userMessage(req.Query, formattedDate, req.SearchResult.FormatForPrompt()),
		Model:     modelName,
		MaxTokens: j.maxTokens,
		JSON:      true,
	})
	if err != nil {
		return llm.Failure[Judgement](fmt.Errorf("judge call: %w", err))
	}

	jm, err := j.parse(text)
	if err != nil {
		return llm.Failure[Judgement](err)
	}
	return llm.Success(jm)
}

// RenderPrompt substitutes the target date into a prompt template.
func RenderPrompt(template string, date time.Time) string {
	return strings.ReplaceAll(template, "{{formatted_date}}", date.Format(dateFormat))
}

func userMessage(query, formattedDate, combined string) string {
	return fmt.Sprintf(
		"Please evaluate search results of this query: %s focused on %s.\nSearch results:\n------\n%s\n------\n",
		query, formattedDate, combined,
	)
}

type rawJudgement struct {
	Reasoning *string           `json:"reasoning"`
	Events    []json.RawMessage `json:"events"`
	EventData []json.RawMessage `json:"event_data"`
}

type rawCandidate struct {
	Reasoning     *string     `json:"reasoning"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Date          string      `json:"date"`
	PublishedDate *string     `json:"published_date"`
	Score         json.Number `json:"score"`
	URL           string      `json:"url"`
}

// parse validates the reply. Individual malformed events are dropped with a
// warning; a reply that is not a JSON object fails as a whole.
func (j *LLMJudge) parse(text string) (Judgement, error) {
	var raw rawJudgement
	if err := llm.DecodeJSON(text, &raw); err != nil {
		return Judgement{}, fmt.Errorf("judge response: %w", err)
	}

	jm := Judgement{Reasoning: noReasoning, Events: []Candidate{}}
	if raw.Reasoning != nil {
		jm.Reasoning = *raw.Reasoning
	}

	events := raw.Events
	if events == nil {
		events = raw.EventData
	}
	for i, msg := range events {
		c, err := parseCandidate(msg)
		if err != nil {
			j.log.Warn("dropping malformed judge event", "index", i, "error", err)
			continue
		}
		jm.Events = append(jm.Events, c)
	}
	return jm, nil
}

func parseCandidate(msg json.RawMessage) (Candidate, error) {
	var rc rawCandidate
	if err := json.Unmarshal(msg, &rc); err != nil {
		return Candidate{}, err
	}
	if strings.TrimSpace(rc.Title) == "" {
		return Candidate{}, errors.New("missing title")
	}
	score, err := parseScore(rc.Score)
	if err != nil {
		return Candidate{}, err
	}

	c := Candidate{
		Reasoning:     noReasoning,
		Title:         rc.Title,
		Description:   rc.Description,
		Date:          strings.TrimSpace(rc.Date),
		PublishedDate: rc.PublishedDate,
		Score:         score,
		URL:           rc.URL,
	}
	if rc.Reasoning != nil {
		c.Reasoning = *rc.Reasoning
	}
	return c, nil
}

// parseScore accepts integers and integral floats.
func parseScore(n json.Number) (int, error) {
	if n == "" {
		return 0, errors.New("missing score")
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("score %q is not an integer", n)
	}
	return int(f), nil
}
