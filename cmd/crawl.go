package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harvestkit/harvestkit/internal/api"
	"github.com/harvestkit/harvestkit/internal/checkpoint"
	"github.com/harvestkit/harvestkit/internal/config"
	"github.com/harvestkit/harvestkit/internal/corpus"
	"github.com/harvestkit/harvestkit/internal/crawler"
	"github.com/harvestkit/harvestkit/internal/dedup"
	"github.com/harvestkit/harvestkit/internal/engine"
	collyfetcher "github.com/harvestkit/harvestkit/internal/fetcher/colly"
	"github.com/harvestkit/harvestkit/internal/frontier"
	"github.com/harvestkit/harvestkit/internal/logging"
	"github.com/harvestkit/harvestkit/internal/metastore"
	"github.com/harvestkit/harvestkit/internal/progress"
	"github.com/harvestkit/harvestkit/internal/progress/sinks"
	pubsubpub "github.com/harvestkit/harvestkit/internal/publisher/pubsub"
	"github.com/harvestkit/harvestkit/internal/quality"
	"github.com/harvestkit/harvestkit/internal/robots"
	"github.com/harvestkit/harvestkit/internal/state"
	"github.com/harvestkit/harvestkit/internal/urlfilter"
)

const defaultConfigFile = "harvestkit.yaml"

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run a crawl over the configured sources",
		RunE:  runCrawl,
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := config.LoadSources(cfg.Sources, logger)
	if err != nil {
		return err
	}

	dedupStore := dedup.Open(cfg.Dedup.Path, dedup.Options{
		TitleThreshold:  cfg.Dedup.TitleThreshold,
		HammingDistance: cfg.Dedup.HammingDistance,
	}, logger)

	politeness := robots.New(robots.Options{
		CachePath:    cfg.Robots.CachePath,
		TTL:          cfg.Robots.TTL(),
		Timeout:      cfg.Robots.Timeout(),
		UserAgent:    cfg.Crawler.UserAgent,
		SitemapQuota: cfg.Robots.SitemapQuota,
		SitemapDepth: cfg.Robots.SitemapDepth,
	}, logger)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.Crawler.Timeout(),
	})

	corpusSink, err := corpus.NewJSONLWriter(cfg.Corpus.Path, logger)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}

	var meta crawler.MetadataStore
	if cfg.DB.DSN != "" {
		meta, err = metastore.NewPostgresStore(ctx, metastore.PostgresConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: int32(cfg.DB.MaxConns),
			MinConns: int32(cfg.DB.MinConns),
		})
		if err != nil {
			return fmt.Errorf("connect metadata store: %w", err)
		}
	} else {
		meta = metastore.NewMemoryStore()
	}
	defer meta.Close()

	var publisher crawler.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicID != "" {
		pub, err := pubsubpub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if err != nil {
			return fmt.Errorf("connect pubsub: %w", err)
		}
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn("pubsub close failed", zap.Error(err))
			}
		}()
		publisher = pub
	}

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	hub := progress.NewHub(progress.HubConfig{Logger: logger},
		sinks.NewLogSink(logger), promSink)

	st := state.New(frontier.NewClassifier(cfg.Lanes.High, cfg.Lanes.Medium))
	ckpt := checkpoint.NewManager(cfg.Checkpoint.Path, cfg.Checkpoint.Interval(), logger)
	if doc, err := ckpt.Load(); err == nil && doc != nil {
		st.Restore(doc.Snapshot)
	}

	orch, err := engine.New(engine.Params{
		Sources: sources,
		State:   st,
		Fetcher: fetcher,
		Robots:  politeness,
		NewEvaluator: func(src crawler.CrawlSource) crawler.Evaluator {
			return quality.NewAnalyzer(quality.Options{
				Threshold: src.QualityThreshold,
				MinChars:  cfg.Quality.MinChars,
				MinWords:  cfg.Quality.MinWords,
				Language:  cfg.Quality.Language,
			}, dedupStore, logger)
		},
		Corpus:     corpusSink,
		Meta:       meta,
		Publisher:  publisher,
		Emitter:    hub,
		Checkpoint: ckpt,
		Logger:     logger,
		Config: engine.Config{
			MaxConcurrent:   cfg.Crawler.MaxConcurrent,
			Tick:            cfg.Crawler.Tick(),
			MaxNoWorkCycles: cfg.Crawler.MaxNoWorkCycles,
			SitemapSeeding:  cfg.Crawler.SitemapSeeding,
			Worker: engine.WorkerConfig{
				BaseDelayMin:  cfg.Crawler.BaseDelayMin(),
				BaseDelayMax:  cfg.Crawler.BaseDelayMax(),
				LatencyFactor: cfg.Crawler.LatencyFactor,
				MaxFailures:   cfg.Crawler.MaxFailures,
				BufferLimit:   cfg.Crawler.BufferLimit,
			},
			FilterPolicy: urlfilter.Config{
				BadExtensions:    cfg.Filter.BadExtensions,
				NegativeKeywords: cfg.Filter.NegativeKeywords,
				PositiveKeywords: cfg.Filter.PositiveKeywords,
				GenericKeywords:  cfg.Filter.GenericKeywords,
			},
		},
	})
	if err != nil {
		return err
	}

	if cfg.Server.Enabled {
		server := api.NewServer(st, sources, orch.RunID().String(), registry, logger)
		go func() {
			if err := server.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
				logger.Error("monitoring server failed", zap.Error(err))
			}
		}()
	}

	runErr := orch.Run(ctx)

	if err := dedupStore.Flush(); err != nil {
		logger.Error("dedup flush failed", zap.Error(err))
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hub.Close(closeCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	if err := corpusSink.Close(closeCtx); err != nil {
		logger.Error("corpus close failed", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
