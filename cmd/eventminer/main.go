package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/eventminer/internal/config"
	"github.com/TobiSchelling/eventminer/internal/database"
	"github.com/TobiSchelling/eventminer/internal/metrics"
	"github.com/TobiSchelling/eventminer/internal/model"
	"github.com/TobiSchelling/eventminer/internal/mongostore"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	registry   = prometheus.NewRegistry()
	mets       = metrics.NewMetrics()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mets.Register(registry); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "eventminer",
	Short:   "Source and rank dated events from web search",
	Long:    "eventminer searches the web for each date, has an LLM judge extract dated events, and ranks the events of each day by significance.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		// A missing .env is fine; keys may come from the environment.
		_ = godotenv.Load()

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		setupLogging(cfg.Logging.Level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(serveCmd)
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("eventminer", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/eventminer/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to pick the search provider, LLM and storage backend.")
		fmt.Println("API keys are read from the environment or a .env file.")
		return nil
	},
}

var statusDate string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store counts and, with --date, that day's events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Storage: %s\n\n", storageLabel())
		fmt.Println("Search results:")
		fmt.Printf("  Total: %d\n", stats.SearchResults)
		fmt.Println("\nEvents:")
		fmt.Printf("  Total: %d\n", stats.Events)
		fmt.Printf("  Ranked: %d\n", stats.RankedEvents)
		fmt.Printf("  Distinct dates: %d\n", stats.DaysWithEvents)

		if statusDate == "" {
			return nil
		}
		date, err := model.ParseDate(statusDate)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", statusDate, err)
		}
		events, err := store.GetEventsByDate(ctx, date, true)
		if err != nil {
			return err
		}
		printSummary(model.SummarizeEvents(events))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusDate, "date", "", "Summarize the events of this day (YYYY-MM-DD)")
}

func printSummary(s model.EventsSummary) {
	if s.Count == 0 {
		fmt.Println("\nNo events.")
		return
	}
	fmt.Printf("\n%d events (%s to %s)\n", s.Count, s.Start, s.End)
	for _, e := range s.TopEvents {
		fmt.Printf("  %3s  %s  %s\n", optInt(e.Rank), e.Date, e.Title)
	}
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func storageLabel() string {
	if cfg.Storage.Backend == "mongo" {
		return "mongo (" + cfg.Storage.MongoDB + ")"
	}
	return filepath.Join(cfg.GetDataDir(), database.FileName)
}

// openStore opens the backend selected by storage.backend.
func openStore(ctx context.Context) (model.Store, error) {
	switch cfg.Storage.Backend {
	case "mongo":
		uri := cfg.MongoURI()
		if uri == "" {
			return nil, fmt.Errorf("%w: %s", config.ErrMissingMongoURI, cfg.Storage.MongoURIEnv)
		}
		return mongostore.Open(ctx, uri, cfg.Storage.MongoDB, slog.Default())
	case "sqlite", "":
		dataDir := cfg.GetDataDir()
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return database.Open(filepath.Join(dataDir, database.FileName))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
