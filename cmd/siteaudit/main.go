package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"siteaudit/internal/cache"
	"siteaudit/internal/collect"
	"siteaudit/internal/config"
	"siteaudit/internal/llm"
	"siteaudit/internal/orchestrator"
)

const version = "1.0.0"

var (
	// Global flags
	verbose    bool
	configPath string

	// run flags
	pdpURL        string
	depth         string
	visualMode    string
	securityScope string
	noCache       bool
	cacheDB       string
	quietEvents   bool
	outPath       string
	privatePath   string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "siteaudit",
	Short: "siteaudit - layered website audit pipeline",
	Long: `siteaudit runs a four-layer audit against a public website:

  1. Collection: parallel probes (fetch, DNS, TLS, sitemaps, screenshots, ...)
  2. Extraction: deterministic signal extraction from the raw evidence
  3. Micro-audits: crawl, technical, security, performance, visual, SERP
  4. Synthesis: merged findings, scores, action plan, narrative

The public report is written as JSON; operator-only flags go to a
separate private document that is never embedded in the report.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run [url]",
	Short: "Audit a website and write the report as JSON",
	Long: `Runs the full pipeline against the given URL.

The public report goes to stdout (or --out). Progress events stream to
stderr as JSON lines unless --quiet is set. Private flags, when any are
detected, are written to --private-out and never to the public report.

Example:
  siteaudit run https://shop.example --depth shallow --out report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the siteaudit version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("siteaudit %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	runCmd.Flags().StringVar(&pdpURL, "pdp", "", "product detail page URL to include in the audit")
	runCmd.Flags().StringVar(&depth, "depth", "", "crawl depth: surface, shallow, or deep")
	runCmd.Flags().StringVar(&visualMode, "visual", "", "visual audit mode: rendered, url_context, both, or none")
	runCmd.Flags().StringVar(&securityScope, "security", "", "security scope: headers_only or full")
	runCmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the snapshot and report cache")
	runCmd.Flags().StringVar(&cacheDB, "cache-db", "", "SQLite file backing the cache; empty keeps the cache in memory")
	runCmd.Flags().BoolVarP(&quietEvents, "quiet", "q", false, "suppress the progress event stream")
	runCmd.Flags().StringVar(&outPath, "out", "", "write the public report to this file instead of stdout")
	runCmd.Flags().StringVar(&privatePath, "private-out", "", "write private flags to this file when any are detected")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(&cfg)

	registry := buildRegistry(cfg)
	shots, closeShots := buildScreenshotter(cfg)
	if closeShots != nil {
		defer closeShots()
	}

	var store cache.Store
	switch {
	case noCache:
	case cacheDB != "":
		db, err := cache.NewSQLite(cacheDB)
		if err != nil {
			return fmt.Errorf("opening cache database: %w", err)
		}
		defer db.Close()
		if dropped, err := db.Sweep(); err == nil && dropped > 0 {
			logger.Debug("swept expired cache entries", zap.Int64("dropped", dropped))
		}
		store = db
	default:
		mem := cache.NewMemory()
		defer mem.Stop()
		store = mem
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o := orchestrator.New(cfg, registry, shots, store, logger)

	events := make(chan orchestrator.Event, 64)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		enc := json.NewEncoder(os.Stderr)
		for e := range events {
			if !quietEvents {
				_ = enc.Encode(e)
			}
		}
	}()

	res, runErr := o.Run(ctx, args[0], pdpURL, events)
	close(events)
	<-streamDone
	if runErr != nil {
		return runErr
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := res.Report.Write(out); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if len(res.Private.Flags) > 0 {
		if privatePath == "" {
			logger.Warn("private flags detected but --private-out not set; flags discarded",
				zap.Int("count", len(res.Private.Flags)))
			return nil
		}
		f, err := os.OpenFile(privatePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("creating private flags file: %w", err)
		}
		defer f.Close()
		if err := res.Private.Write(f); err != nil {
			return fmt.Errorf("writing private flags: %w", err)
		}
		logger.Info("private flags written",
			zap.String("path", privatePath), zap.Int("count", len(res.Private.Flags)))
	}
	return nil
}

// applyFlagOverrides layers CLI flags over the loaded config.
func applyFlagOverrides(cfg *config.Config) {
	if depth != "" {
		cfg.CrawlDepth = config.CrawlDepth(depth)
	}
	if visualMode != "" {
		cfg.VisualMode = config.VisualMode(visualMode)
	}
	if securityScope != "" {
		cfg.SecurityScope = config.SecurityScope(securityScope)
	}
	if pdpURL != "" {
		cfg.EnablePDP = true
	}
}

// buildRegistry registers every provider with a configured key. No keys
// means no registry; LLM audits then degrade to explicit gaps.
func buildRegistry(cfg config.Config) *llm.Registry {
	registry := llm.NewRegistry()
	registered := 0
	if cfg.Providers.Gemini.APIKey != "" {
		registry.Register(llm.NewGeminiClient(cfg.Providers.Gemini.APIKey), cfg.Providers.Gemini.MaxConcurrent)
		registered++
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		registry.Register(llm.NewOpenAIClient(cfg.Providers.OpenAI.APIKey), cfg.Providers.OpenAI.MaxConcurrent)
		registered++
	}
	if registered == 0 {
		logger.Warn("no LLM provider configured; visual, SERP, and synthesis run degraded")
		return nil
	}
	return registry
}

// buildScreenshotter prefers the hosted service and falls back to a
// local headless browser. Returns nil when the visual mode needs no
// rendering or no backend is available.
func buildScreenshotter(cfg config.Config) (collect.Screenshotter, func()) {
	if cfg.VisualMode == config.VisualNone || cfg.VisualMode == config.VisualURLContext {
		return nil, nil
	}
	if cfg.Keys.ScreenshotOne != "" {
		return collect.NewScreenshotOneBackend(cfg.Keys.ScreenshotOne), nil
	}
	backend, err := collect.NewRodBackend()
	if err != nil {
		logger.Warn("headless browser unavailable; screenshots degrade to a gap", zap.Error(err))
		return nil, nil
	}
	return backend, func() {
		if err := backend.Close(); err != nil {
			logger.Warn("closing headless browser", zap.Error(err))
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
