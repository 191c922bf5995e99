package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/eventminer/internal/export"
	"github.com/TobiSchelling/eventminer/internal/model"
	"github.com/TobiSchelling/eventminer/internal/pipeline"
)

// dateFlags is the shared --date/--start/--end selection.
type dateFlags struct {
	date, start, end string
}

func (f *dateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "Single day (YYYY-MM-DD), default today")
	cmd.Flags().StringVar(&f.start, "start", "", "First day of a range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "Last day of a range, inclusive (YYYY-MM-DD)")
}

// resolve returns the selected inclusive day range.
func (f *dateFlags) resolve() (time.Time, time.Time, error) {
	if f.start != "" || f.end != "" {
		if f.date != "" {
			return time.Time{}, time.Time{}, fmt.Errorf("use either --date or --start/--end")
		}
		start, err := model.ParseDate(f.start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start %q", f.start)
		}
		end := start
		if f.end != "" {
			if end, err = model.ParseDate(f.end); err != nil {
				return time.Time{}, time.Time{}, fmt.Errorf("invalid --end %q", f.end)
			}
		}
		if end.Before(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("--end %s is before --start %s", f.end, f.start)
		}
		return start, end, nil
	}

	if f.date == "" {
		today := model.DayStart(time.Now())
		return today, today, nil
	}
	d, err := model.ParseDate(f.date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --date %q", f.date)
	}
	return d, d, nil
}

// --- source command ---

var (
	sourceDates      dateFlags
	sourceMonth      string
	sourceQuery      string
	sourceMaxResults int
	sourceNoSave     bool
	sourceJudgeModel string
	sourcePromptFile string
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Search each day and store the events the judge extracts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(); err != nil {
			return err
		}
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		pipe, err := pipeline.New(cfg, store, mets, slog.Default())
		if err != nil {
			return err
		}
		opts, err := sourceOptions()
		if err != nil {
			return err
		}

		if sourceMonth != "" {
			month, err := time.ParseInLocation(model.MonthLayout, sourceMonth, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --month %q, expected YYYY-MM", sourceMonth)
			}
			r := pipe.Sourcing.ProcessMonth(ctx, month, opts)
			printDateResults([]pipeline.DateResult{r})
			return r.Err
		}

		start, end, err := sourceDates.resolve()
		if err != nil {
			return err
		}
		results := pipe.Sourcing.ProcessDateRange(ctx, start, end, opts)
		printDateResults(results)
		logMetrics()
		return nil
	},
}

func init() {
	sourceDates.register(sourceCmd)
	sourceCmd.Flags().StringVar(&sourceMonth, "month", "", "Source a whole month (YYYY-MM) with one query")
	sourceCmd.Flags().StringVarP(&sourceQuery, "query", "q", "", "Base query (default search.base_query)")
	sourceCmd.Flags().IntVar(&sourceMaxResults, "max-results", 0, "Hits per search (default search.max_results)")
	sourceCmd.Flags().BoolVar(&sourceNoSave, "no-save", false, "Print events without storing anything")
	sourceCmd.Flags().StringVar(&sourceJudgeModel, "judge-model", "", "Override the judge model")
	sourceCmd.Flags().StringVar(&sourcePromptFile, "judge-prompt", "", "File with a judge system prompt template")
}

func sourceOptions() (pipeline.Options, error) {
	opts := pipeline.Options{
		BaseQuery:  cfg.Search.BaseQuery,
		FullMonth:  cfg.Search.FullMonth,
		MaxResults: cfg.Search.MaxResults,
		Persist:    !sourceNoSave,
		JudgeModel: sourceJudgeModel,
	}
	if sourceQuery != "" {
		opts.BaseQuery = sourceQuery
	}
	if sourceMaxResults > 0 {
		opts.MaxResults = sourceMaxResults
	}
	if sourcePromptFile != "" {
		data, err := os.ReadFile(sourcePromptFile)
		if err != nil {
			return opts, fmt.Errorf("reading judge prompt: %w", err)
		}
		opts.JudgePrompt = string(data)
	}
	return opts, nil
}

func printDateResults(results []pipeline.DateResult) {
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("%s  error: %v\n", model.FormatDate(r.Date), r.Err)
			continue
		}
		fmt.Printf("%s  %d events\n", model.FormatDate(r.Date), len(r.Events))
		for _, e := range r.Events {
			fmt.Printf("    [%s] %s  %s\n", optInt(e.RelevanceScore), model.FormatDate(e.EventDate), e.Title)
		}
	}
	fmt.Printf("\n%s\n", pipeline.Summary(results))
}

// --- rank command ---

var (
	rankDates    dateFlags
	rankQueries  []string
	rankMinScore int
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank the stored events of each day",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		ranking, err := pipeline.NewRankingFromConfig(cfg, store, mets, slog.Default())
		if err != nil {
			return err
		}
		start, end, err := rankDates.resolve()
		if err != nil {
			return err
		}
		minScore := rankMinScore
		if !cmd.Flags().Changed("min-score") {
			minScore = cfg.Pipeline.MinScore
		}

		if len(rankQueries) > 1 {
			if !start.Equal(end) {
				return fmt.Errorf("several --query values need a single --date")
			}
			printRanked(ranking.RankEventsForQueries(ctx, start, rankQueries, minScore))
			return nil
		}

		query := ""
		if len(rankQueries) == 1 {
			query = rankQueries[0]
		}
		printRanked(ranking.RankEventsForDateRange(ctx, start, end, query, minScore))
		logMetrics()
		return nil
	},
}

func init() {
	rankDates.register(rankCmd)
	rankCmd.Flags().StringArrayVarP(&rankQueries, "query", "q", nil, "Only rank events sourced by queries containing this text (repeatable)")
	rankCmd.Flags().IntVar(&rankMinScore, "min-score", 0, "Skip events scored below this (default pipeline.min_score)")
}

func printRanked(byKey map[string][]model.Event) {
	for _, key := range sortedKeys(byKey) {
		events := byKey[key]
		fmt.Printf("%s  %d ranked\n", key, len(events))
		for _, e := range model.TopEvents(events, cfg.Pipeline.TopN) {
			fmt.Printf("  %3s  %s\n", optInt(e.Rank), e.Title)
		}
	}
}

// --- run command ---

var (
	runDates     dateFlags
	runWithMonth bool
	runOutput    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Source, rank and export a date range end to end",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(); err != nil {
			return err
		}
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		pipe, err := pipeline.New(cfg, store, mets, slog.Default())
		if err != nil {
			return err
		}
		start, end, err := runDates.resolve()
		if err != nil {
			return err
		}
		opts := pipeline.Options{
			BaseQuery:  cfg.Search.BaseQuery,
			MaxResults: cfg.Search.MaxResults,
			Persist:    true,
		}

		fmt.Println("Step 1/3: Sourcing events...")
		results := pipe.Sourcing.ProcessDateRange(ctx, start, end, opts)
		pipeline.LogResults(slog.Default(), results)
		fmt.Printf("  %s\n", pipeline.Summary(results))
		if runWithMonth {
			r := pipe.Sourcing.ProcessMonth(ctx, start, opts)
			if r.Err != nil {
				fmt.Printf("  Monthly sourcing failed: %v\n", r.Err)
			} else {
				fmt.Printf("  Monthly sourcing: %d events\n", len(r.Events))
			}
		}

		fmt.Println("Step 2/3: Ranking events...")
		ranked := pipe.Ranking.RankEventsForDateRange(ctx, start, end, "", cfg.Pipeline.MinScore)
		total := 0
		for _, events := range ranked {
			total += len(events)
		}
		fmt.Printf("  Ranked %d events over %d dates\n", total, len(ranked))

		fmt.Println("Step 3/3: Exporting top events...")
		rows, err := export.Collect(ctx, store, start, end, cfg.Pipeline.TopN)
		if err != nil {
			return err
		}
		if err := writeRows(rows, runOutput); err != nil {
			return err
		}
		logMetrics()
		return nil
	},
}

func init() {
	runDates.register(runCmd)
	runCmd.Flags().BoolVar(&runWithMonth, "with-month", false, "Also source the month of the first date")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "CSV output file (default stdout)")
}

// --- export command ---

var (
	exportDates  dateFlags
	exportTopN   int
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the top ranked events of each day as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		start, end, err := exportDates.resolve()
		if err != nil {
			return err
		}
		topN := exportTopN
		if topN <= 0 {
			topN = cfg.Pipeline.TopN
		}
		rows, err := export.Collect(ctx, store, start, end, topN)
		if err != nil {
			return err
		}
		return writeRows(rows, exportOutput)
	},
}

func init() {
	exportDates.register(exportCmd)
	exportCmd.Flags().IntVarP(&exportTopN, "top", "n", 0, "Events per day (default pipeline.top_n)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "CSV output file (default stdout)")
}

func writeRows(rows []export.Row, path string) error {
	if len(rows) == 0 {
		slog.Warn("no events to export")
	}
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	if err := export.WriteCSV(w, rows); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}
	if path != "" {
		fmt.Fprintf(os.Stderr, "Exported %d events to %s\n", len(rows), path)
	}
	return nil
}
