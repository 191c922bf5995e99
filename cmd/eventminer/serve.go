package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/eventminer/internal/model"
	"github.com/TobiSchelling/eventminer/internal/server"
)

var findLimit int

var findCmd = &cobra.Command{
	Use:   "find <text>",
	Short: "Full-text search over stored events",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		events, err := store.SearchEvents(ctx, strings.Join(args, " "), findLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No matching events.")
			return nil
		}
		for _, e := range events {
			fmt.Printf("%s  %3s  %s\n", model.FormatDate(e.EventDate), optInt(e.Rank), e.Title)
			if e.SourceURL != "" {
				fmt.Printf("                 %s\n", e.SourceURL)
			}
		}
		return nil
	},
}

func init() {
	findCmd.Flags().IntVarP(&findLimit, "limit", "n", 20, "Maximum results")
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an event, or a search result with the events it produced",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		id := args[0]
		e, err := store.GetEvent(ctx, id)
		if err == nil {
			printEvent(e)
			return nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}

		sr, err := store.GetSearchResult(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("no event or search result with id %s", id)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Search result %s\n", sr.ID)
		fmt.Printf("  Query:    %s\n", sr.Query)
		fmt.Printf("  Date:     %s\n", model.FormatDate(sr.SearchDate))
		fmt.Printf("  Provider: %s\n", sr.Provider)
		fmt.Printf("  Hits:     %d\n", len(sr.Results))

		events, err := store.GetEventsBySearchResult(ctx, sr.ID)
		if err != nil {
			return err
		}
		fmt.Printf("\n%d events:\n", len(events))
		for _, e := range events {
			fmt.Printf("  %s  [%s] %s  (%s)\n", model.FormatDate(e.EventDate), optInt(e.RelevanceScore), e.Title, e.ID)
		}
		return nil
	},
}

func printEvent(e *model.Event) {
	fmt.Printf("%s\n", e.Title)
	fmt.Printf("  Date:      %s\n", model.FormatDate(e.EventDate))
	fmt.Printf("  Rank:      %s\n", optInt(e.Rank))
	fmt.Printf("  Score:     %s\n", optInt(e.RelevanceScore))
	fmt.Printf("  Provider:  %s\n", e.Provider)
	if e.SourceURL != "" {
		fmt.Printf("  Source:    %s\n", e.SourceURL)
	}
	if e.SearchResultID != nil {
		fmt.Printf("  Search:    %s\n", *e.SearchResultID)
	}
	if e.Description != "" {
		fmt.Printf("\n%s\n", e.Description)
	}
	if e.RelevanceReasoning != nil {
		fmt.Printf("\nReasoning: %s\n", *e.RelevanceReasoning)
	}
}

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		host := cfg.Server.Host
		if serveHost != "" {
			host = serveHost
		}
		port := cfg.Server.Port
		if servePort > 0 {
			port = servePort
		}
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		fmt.Printf("Starting server at http://%s\n", addr)
		return server.Serve(ctx, addr, store, registry, slog.Default())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Address to bind (default server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default server.port)")
}

// logMetrics reports the counters this run touched at debug level.
func logMetrics() {
	families, err := registry.Gather()
	if err != nil {
		slog.Debug("gathering metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{"metric", mf.GetName()}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, "value", m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				attrs = append(attrs, "count", m.GetHistogram().GetSampleCount(), "sum", m.GetHistogram().GetSampleSum())
			}
			slog.Debug("metric", attrs...)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
