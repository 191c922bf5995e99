package ranker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/eventminer/internal/llm"
	"github.com/TobiSchelling/eventminer/internal/model"
)

// DefaultPrompt is the ranking system prompt. {{formatted_date}} and
// {{count}} are substituted before sending.
const DefaultPrompt = `Your task is to rank the following events from {{formatted_date}} by their historical significance and impact on the cryptocurrency world.

Consider these factors:
- Long-term impact on Bitcoin/cryptocurrency
- Market impact or price movements
- Technical innovation or milestone
- Regulatory significance
- Mainstream adoption implications

Prioritize reputable sources, such as Wikipedia, bitcoinwiki.org, coindesk.com, cointelegraph.com, blockchain.com, bitcoin.com.
Deduplicate the same events and return the IDs of the same events only once. Skip any duplicates.

Output a list of IDs of the events in the order of importance, starting from the most significant (1) to the least significant ({{count}}).

Respond with ONLY this JSON:
{
    "reasoning": "short explanation of the ordering",
    "ranking": [3, 1, 2]
}`

const (
	dateFormat     = "January 02, 2006"
	eventSeparator = "\n--------------\n"
)

// Ordering is the oracle's raw reply: 1-based event numbers, most
// significant first. It may skip, repeat or exceed the valid range.
type Ordering struct {
	Reasoning string `json:"reasoning"`
	Ranking   []int  `json:"ranking"`
}

// Oracle orders a numbered list of events.
type Oracle interface {
	Order(ctx context.Context, text string, date time.Time, count int) llm.Outcome[Ordering]
}

// LLMOracle implements Oracle with a chat completion provider.
type LLMOracle struct {
	provider  llm.Provider
	model     string
	prompt    string
	maxTokens int
	log       *slog.Logger
}

// NewLLMOracle creates an oracle. Empty model and prompt fall back to the
// provider default and DefaultPrompt.
func NewLLMOracle(provider llm.Provider, model, prompt string, maxTokens int, logger *slog.Logger) *LLMOracle {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMOracle{provider: provider, model: model, prompt: prompt, maxTokens: maxTokens, log: logger}
}

func (o *LLMOracle) Order(ctx context.Context, text string, date time.Time, count int) llm.Outcome[Ordering] {
	if o.provider == nil {
		return llm.Failure[Ordering](llm.ErrNoProvider)
	}
	formattedDate := date.Format(dateFormat)
	system := strings.NewReplacer(
		"{{formatted_date}}", formattedDate,
		"{{count}}", strconv.Itoa(count),
	).Replace(o.prompt)
	user := fmt.Sprintf(
		"Here are the events to rank:\n\n%s\n\n\n\nPlease analyze each event and rank them from most significant (1) to least significant (%d).",
		text, count,
	)

	o.log.Info("ranking events", "date", formattedDate, "count", count)
	reply, err := o.provider.Generate(ctx, llm.Request{
		System:    system,
		Prompt:    user,
		Model:     o.model,
		MaxTokens: o.maxTokens,
		JSON:      true,
	})
	if err != nil {
		return llm.Failure[Ordering](fmt.Errorf("ranking call: %w", err))
	}

	var ord Ordering
	if err := llm.DecodeJSON(reply, &ord); err != nil {
		return llm.Failure[Ordering](fmt.Errorf("ranking response: %w", err))
	}
	if ord.Ranking == nil {
		return llm.Failure[Ordering](errors.New("ranking response: missing ranking"))
	}
	return llm.Success(ord)
}

// FormatEvents renders summaries as numbered "Event i" blocks.
func FormatEvents(summaries []model.EventSummary) string {
	blocks := make([]string, len(summaries))
	for i, s := range summaries {
		blocks[i] = fmt.Sprintf("Event %d:\nTitle: %s\nDescription: %s\nURL: %s", i+1, s.Title, s.Description, s.URL)
	}
	return strings.Join(blocks, eventSeparator)
}
