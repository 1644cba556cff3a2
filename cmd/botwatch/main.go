package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsilvela/botwatch/internal/classify"
	"github.com/jsilvela/botwatch/internal/config"
	"github.com/jsilvela/botwatch/internal/database"
	"github.com/jsilvela/botwatch/internal/ingest"
	"github.com/jsilvela/botwatch/internal/llm"
	"github.com/jsilvela/botwatch/internal/reddit"
	"github.com/jsilvela/botwatch/internal/report"
	"github.com/jsilvela/botwatch/internal/scheduler"
	"github.com/jsilvela/botwatch/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "botwatch",
	Short:   "Track humanoid robot mentions on Reddit",
	Long:    "Botwatch ingests subreddit posts, classifies which robot model they discuss, and publishes weekly engagement reports.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("botwatch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/botwatch/",
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
		fmt.Println("Edit it to configure subreddits, tracked models, and the LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and pipeline status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Store:")
		fmt.Printf("  Posts: %d\n", stats.TotalPosts)
		fmt.Printf("  Comments: %d\n", stats.TotalComments)
		fmt.Printf("  Classified: %d (%d tracked)\n", stats.ClassifiedPosts, stats.TrackedPosts)
		fmt.Printf("  Summaries: %d\n", stats.Summaries)
		fmt.Printf("  Weekly reports: %d\n", stats.WeeklyReports)

		fmt.Println("\nRuns:")
		fmt.Printf("  Total: %d (%d succeeded)\n", stats.TotalRuns, stats.SucceededRuns)

		cursor, ok, err := db.LastSucceededWindowEnd()
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("  Ingested through: %s\n", cursor.Format(time.RFC3339))
		} else {
			fmt.Println("  Ingested through: never (next run starts at the epoch)")
		}

		marker, ok, err := db.GetMarker(database.MarkerAggregatedThrough)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("  Aggregated through: %s\n", marker.Format("2006-01-02"))
		} else {
			fmt.Println("  Aggregated through: never")
		}

		for _, run := range mustRecentRuns(db, 3) {
			detail := ""
			if run.ErrorDetail != nil && *run.ErrorDetail != "" {
				detail = " (" + *run.ErrorDetail + ")"
			}
			fmt.Printf("  %s: %s, %d posts%s\n",
				run.WindowEnd.Format("2006-01-02 15:04"), run.Status, run.PostsIngested, detail)
		}
		return nil
	},
}

func mustRecentRuns(db *database.DB, n int) []database.RunRecord {
	runs, err := db.RecentRuns(n)
	if err != nil {
		return nil
	}
	return runs
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full cycle: ingest -> enrich -> classify -> aggregate closed weeks",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := buildPipeline(db)
		if err != nil {
			return err
		}

		result, err := pipe.RunCycle(context.Background(), time.Now())
		if err != nil {
			return err
		}

		printCycle(result)
		return nil
	},
}

func printCycle(result *scheduler.CycleResult) {
	if result.Ingest != nil {
		fmt.Printf("Ingestion: %s, %d new posts [%s - %s)\n",
			result.Ingest.Status, result.Ingest.PostsIngested,
			result.Ingest.WindowStart.Format("2006-01-02 15:04"),
			result.Ingest.WindowEnd.Format("2006-01-02 15:04"))
		for _, f := range result.Ingest.Failures {
			fmt.Printf("  failed: %s\n", f)
		}
	} else {
		fmt.Println("Ingestion: window empty, skipped")
	}

	if result.Content != nil {
		fmt.Printf("Content: %d fetched, %d skipped, %d failed\n",
			result.Content.Fetched, result.Content.Skipped, result.Content.Failed)
	}
	if result.Classify != nil {
		fmt.Printf("Classification: %d processed (%d rule, %d model), %d errors\n",
			result.Classify.Processed, result.Classify.RuleBased,
			result.Classify.ModelBased, result.Classify.Errors)
	}

	if len(result.PeriodsAggregated) == 0 {
		fmt.Println("Aggregation: no closed weeks pending")
	} else {
		for _, p := range result.PeriodsAggregated {
			fmt.Printf("Aggregation: published week %s\n", database.PeriodID(p))
		}
	}
}

// --- ingest command ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest new posts without classifying or aggregating",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctrl, err := newIngestController(db)
		if err != nil {
			return err
		}

		result, err := ctrl.Run(context.Background(), time.Now())
		if err != nil {
			return err
		}
		if result == nil {
			fmt.Println("Window empty, nothing to ingest.")
			return nil
		}
		fmt.Printf("Ingestion %s: %d new posts\n", result.Status, result.PostsIngested)
		for _, f := range result.Failures {
			fmt.Printf("  failed: %s\n", f)
		}
		return nil
	},
}

// --- classify command ---

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify stored posts that have no current classification",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		provider := buildProvider()
		classifier := classify.New(db, provider, cfg)
		result := classifier.ClassifyBacklog(context.Background())

		fmt.Printf("Classified %d posts (%d rule, %d model, %d unclassified), %d errors\n",
			result.Processed, result.RuleBased, result.ModelBased,
			result.Unclassified, result.Errors)
		return nil
	},
}

// --- aggregate command ---

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Summarize and publish reports for closed weekly periods",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := buildPipeline(db)
		if err != nil {
			return err
		}

		periods, err := pipe.Aggregate(context.Background(), time.Now())
		if err != nil {
			return err
		}
		if len(periods) == 0 {
			fmt.Println("No closed weeks pending aggregation.")
			return nil
		}
		for _, p := range periods {
			fmt.Printf("Published week %s\n", database.PeriodID(p))
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- wiring helpers ---

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "botwatch.db")
	return database.Open(dbPath)
}

func buildProvider() llm.Provider {
	return llm.CreateProvider(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.OllamaURL,
		cfg.LLM.OpenAIModel, cfg.LLM.AnthropicModel, cfg.LLM.APIKeyEnv)
}

func newIngestController(db *database.DB) (*ingest.Controller, error) {
	client := reddit.NewHTTPClient(cfg.Reddit.UserAgent, cfg.Reddit.PageSize)
	return ingest.New(db, client, cfg)
}

func buildPipeline(db *database.DB) (*scheduler.Pipeline, error) {
	client := reddit.NewHTTPClient(cfg.Reddit.UserAgent, cfg.Reddit.PageSize)
	provider := buildProvider()
	sink := report.NewFileSink(cfg.GetDataDir())
	return scheduler.New(db, client, provider, sink, cfg)
}
