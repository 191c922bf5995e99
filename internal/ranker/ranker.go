// Package ranker orders the events of one date by significance and turns
// the oracle's ordering into dense ranks.
package ranker

import (
	"context"
	"log/slog"
	"time"

	"github.com/TobiSchelling/eventminer/internal/model"
)

// Result is a ranking outcome. Ordering holds 1-based positions into the
// ranked input, possibly with gaps or repeats when it came from the oracle.
type Result struct {
	Ordering  []int
	Reasoning string
	// Fallback is set when the oracle failed and Ordering is the identity.
	Fallback bool
}

// Ranker ranks event summaries with an Oracle.
type Ranker struct {
	oracle Oracle
	log    *slog.Logger
}

// New creates a Ranker.
func New(oracle Oracle, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{oracle: oracle, log: logger}
}

// Rank asks the oracle to order summaries. It never fails: zero or one
// summary needs no oracle call, and an oracle failure yields the identity
// ordering.
func (r *Ranker) Rank(ctx context.Context, summaries []model.EventSummary, date time.Time) Result {
	switch len(summaries) {
	case 0:
		return Result{Ordering: []int{}, Reasoning: "No events to rank"}
	case 1:
		return Result{Ordering: []int{1}, Reasoning: "Only one event to rank"}
	}

	out := r.oracle.Order(ctx, FormatEvents(summaries), date, len(summaries))
	if !out.OK() {
		r.log.Warn("ranking failed, keeping source order", "date", model.FormatDate(date), "error", out.Err())
		return Result{
			Ordering:  identity(len(summaries)),
			Reasoning: "Error during ranking: " + out.Err().Error(),
			Fallback:  true,
		}
	}
	ord := out.Value()
	return Result{Ordering: ord.Ranking, Reasoning: ord.Reasoning}
}

func identity(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

// ApplyRankings returns a copy of events reordered by result and ranked
// 1..N. Positions out of range or already used are skipped; events the
// ordering never names follow in their original order. Every input event
// appears exactly once.
func ApplyRankings(events []model.Event, result Result) []model.Event {
	out := make([]model.Event, 0, len(events))
	used := make([]bool, len(events))

	for _, pos := range result.Ordering {
		idx := pos - 1
		if idx < 0 || idx >= len(events) || used[idx] {
			continue
		}
		used[idx] = true
		out = append(out, events[idx])
	}
	for i := range events {
		if !used[i] {
			out = append(out, events[i])
		}
	}

	for i := range out {
		rank := i + 1
		out[i].Rank = &rank
	}
	return out
}
