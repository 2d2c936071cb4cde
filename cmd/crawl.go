package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/seedcrawl/internal/config"
	"github.com/JakeFAU/seedcrawl/internal/crawler"
	"github.com/JakeFAU/seedcrawl/internal/engine"
	"github.com/JakeFAU/seedcrawl/internal/extract"
	collyfetcher "github.com/JakeFAU/seedcrawl/internal/fetcher/colly"
	"github.com/JakeFAU/seedcrawl/internal/logging"
	"github.com/JakeFAU/seedcrawl/internal/metrics"
	"github.com/JakeFAU/seedcrawl/internal/progress"
	progresssinks "github.com/JakeFAU/seedcrawl/internal/progress/sinks"
	"github.com/JakeFAU/seedcrawl/internal/seeds"
	"github.com/JakeFAU/seedcrawl/internal/sink"
	csvsink "github.com/JakeFAU/seedcrawl/internal/sink/csv"
	jsonlsink "github.com/JakeFAU/seedcrawl/internal/sink/jsonl"
	pgsink "github.com/JakeFAU/seedcrawl/internal/sink/postgres"
	"github.com/JakeFAU/seedcrawl/internal/storage/gcs"
)

const shutdownTimeout = 10 * time.Second

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every URL in the seed list",
		Long: `Reads the seed list, fetches each URL once with a fixed pool of workers
and writes one result row per URL. Discovered links are recorded in extended
mode but never followed.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}

	flags := cmd.Flags()
	flags.StringP("input", "i", "data/urls.txt", "seed list, one URL per line")
	flags.StringP("output", "o", "data/results.csv", "primary output file")
	flags.IntP("threads", "t", 4, "number of concurrent workers")
	flags.BoolP("extended", "e", false, "also record links, images and headings")
	flags.Duration("timeout", 30*time.Second, "per-request timeout")
	flags.String("format", config.FormatCSV, "output format: csv, jsonl or postgres")

	return cmd
}

// outputSink is a result sink together with the files it writes.
type outputSink struct {
	crawler.ResultSink
	paths []string
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	urls, err := seeds.Load(cfg.Input.Path)
	if err != nil {
		return fmt.Errorf("load seeds: %w", err)
	}

	out := cmd.OutOrStdout()
	printConfig(out, cfg, urls)

	runID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}

	results, err := buildSink(ctx, cfg, runID, logger)
	if err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		server := metrics.NewServer(cfg.Metrics.Addr, logger.Named("metrics"))
		addr, err := server.Start()
		if err != nil {
			_ = results.Close()
			return fmt.Errorf("start metrics server: %w", err)
		}
		logger.Info("metrics server listening", zap.String("addr", addr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", zap.Error(err))
			}
		}()
	}

	progressSinks := []progress.Sink{progresssinks.NewLogSink(logger.Named("progress"))}
	if cfg.Progress.Bar {
		progressSinks = append(progressSinks, progresssinks.NewBarSink(cmd.ErrOrStderr()))
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")}, progressSinks...)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.Crawler.RequestTimeout,
		MaxRedirects: cfg.Crawler.MaxRedirects,
		MaxBodyBytes: int(cfg.Crawler.MaxBodyBytes),
	}, nil)
	extractor := extract.New(cfg.Crawler.Extended, extract.WithLogger(logger.Named("extract")))

	eng, err := engine.New(
		engine.Config{Threads: cfg.Crawler.Threads},
		urls,
		fetcher,
		extractor,
		results,
		logger,
		engine.WithEmitter(hub),
		engine.WithRunID(runID),
	)
	if err != nil {
		_ = results.Close()
		closeHub(hub, logger)
		return fmt.Errorf("init engine: %w", err)
	}

	summary, runErr := eng.Run(ctx)
	closeHub(hub, logger)

	uploaded, uploadErr := uploadArtifacts(ctx, cfg, runID, results.paths, logger)
	printSummary(out, cfg, summary, results.paths, uploaded)

	if runErr != nil {
		return fmt.Errorf("run crawler: %w", runErr)
	}
	return uploadErr
}

func buildSink(ctx context.Context, cfg config.Config, runID uuid.UUID, logger *zap.Logger) (outputSink, error) {
	switch cfg.Output.Format {
	case config.FormatCSV:
		s, err := csvsink.New(cfg.Output.Path, cfg.Crawler.Extended)
		if err != nil {
			return outputSink{}, fmt.Errorf("init csv sink: %w", err)
		}
		return outputSink{ResultSink: s, paths: s.Paths()}, nil
	case config.FormatJSONL:
		s, err := jsonlsink.New(cfg.Output.Path, cfg.Crawler.Extended)
		if err != nil {
			return outputSink{}, fmt.Errorf("init jsonl sink: %w", err)
		}
		return outputSink{ResultSink: s, paths: s.Paths()}, nil
	case config.FormatPostgres:
		s, err := pgsink.New(ctx, pgsink.Config{
			DSN:         cfg.DB.DSN,
			TablePrefix: cfg.DB.TablePrefix,
			MaxConns:    cfg.DB.MaxConns,
			RunID:       runID.String(),
			Extended:    cfg.Crawler.Extended,
		})
		if err != nil {
			return outputSink{}, fmt.Errorf("init postgres sink: %w", err)
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return outputSink{}, fmt.Errorf("init postgres sink: %w", err)
		}
		retrying := sink.NewRetrying(s,
			crawler.NewExponentialRetryPolicy(cfg.Sink.WriteAttempts),
			sink.WithRetryLogger(logger.Named("sink")),
		)
		return outputSink{ResultSink: retrying}, nil
	default:
		return outputSink{}, &crawler.ConfigError{Key: "output.format", Reason: fmt.Sprintf("unknown format %q", cfg.Output.Format)}
	}
}

func closeHub(hub *progress.Hub, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hub.Close(ctx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	if dropped := hub.Dropped(); dropped > 0 {
		logger.Warn("progress events dropped", zap.Int64("count", dropped))
	}
}

func uploadArtifacts(
	ctx context.Context,
	cfg config.Config,
	runID uuid.UUID,
	paths []string,
	logger *zap.Logger,
) ([]string, error) {
	if cfg.Output.GCSBucket == "" || len(paths) == 0 {
		return nil, nil
	}
	// the run context may already be canceled; the files are complete either way
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
	defer cancel()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	uploader, err := gcs.New(client, gcs.Config{Bucket: cfg.Output.GCSBucket, Prefix: cfg.Output.GCSPrefix})
	if err != nil {
		return nil, fmt.Errorf("init uploader: %w", err)
	}
	uris, err := uploader.UploadFiles(ctx, runID.String(), paths)
	if err != nil {
		logger.Error("artifact upload failed", zap.Error(err))
		return uris, fmt.Errorf("upload results: %w", err)
	}
	logger.Info("artifacts uploaded", zap.Strings("uris", uris))
	return uris, nil
}

func printConfig(w io.Writer, cfg config.Config, urls []string) {
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  input:    %s\n", cfg.Input.Path)
	fmt.Fprintf(w, "  output:   %s (%s)\n", outputTarget(cfg), cfg.Output.Format)
	fmt.Fprintf(w, "  threads:  %d\n", cfg.Crawler.Threads)
	fmt.Fprintf(w, "  extended: %t\n", cfg.Crawler.Extended)
	fmt.Fprintf(w, "  timeout:  %s\n", cfg.Crawler.RequestTimeout)
	fmt.Fprintf(w, "Loaded %d URL(s):\n", len(urls))
	for i, u := range urls {
		fmt.Fprintf(w, "  %d. %s\n", i+1, u)
	}
}

func printSummary(w io.Writer, cfg config.Config, summary engine.Summary, paths, uploaded []string) {
	fmt.Fprintf(w, "Crawled %d of %d URL(s) in %.2f seconds (run %s)\n",
		summary.Recorded(), summary.Total, summary.Elapsed.Seconds(), summary.RunID)
	fmt.Fprintf(w, "  ok: %d  http errors: %d  failed: %d\n", summary.Succeeded, summary.HTTPErrors, summary.Failed)
	fmt.Fprintf(w, "Results saved to %s\n", outputTarget(cfg))
	if cfg.Crawler.Extended && len(paths) > 1 {
		names := make([]string, 0, len(paths)-1)
		for _, p := range paths[1:] {
			names = append(names, filepath.Base(p))
		}
		fmt.Fprintf(w, "Extended data saved to %v\n", names)
	}
	for _, uri := range uploaded {
		fmt.Fprintf(w, "Uploaded %s\n", uri)
	}
}

func outputTarget(cfg config.Config) string {
	if cfg.Output.Format == config.FormatPostgres {
		return cfg.DB.TablePrefix + "* tables"
	}
	return cfg.Output.Path
}

