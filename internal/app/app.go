// Package app assembles configuration, stores, transports and the run
// pipeline into one container the commands share.
package app

import (
	"context"
	"fmt"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/merchwatch/crawler/internal/clock/system"
	"github.com/merchwatch/crawler/internal/config"
	"github.com/merchwatch/crawler/internal/crawlstate"
	"github.com/merchwatch/crawler/internal/discover"
	"github.com/merchwatch/crawler/internal/extract"
	"github.com/merchwatch/crawler/internal/fetch"
	"github.com/merchwatch/crawler/internal/hash/sha256"
	"github.com/merchwatch/crawler/internal/merch"
	"github.com/merchwatch/crawler/internal/pipeline"
	pubsubpublisher "github.com/merchwatch/crawler/internal/publisher/pubsub"
	"github.com/merchwatch/crawler/internal/scoring"
	"github.com/merchwatch/crawler/internal/serp"
	"github.com/merchwatch/crawler/internal/storage/gcs"
	"github.com/merchwatch/crawler/internal/storage/local"
	memorystore "github.com/merchwatch/crawler/internal/store/memory"
	"github.com/merchwatch/crawler/internal/store/postgres"
)

// App holds every long-lived service. Commands build it once, run the
// pipeline entry points they need, then Close it.
type App struct {
	Config   config.Config
	Settings merch.Settings
	Logger   *zap.Logger
	Pipeline *pipeline.Pipeline

	Products merch.ProductStore
	Serp     merch.SerpStore
	Metrics  merch.MetricsStore

	pool         *pgxpool.Pool
	gcsClient    *gcstorage.Client
	pubsubClient *pubsubv2.Client
}

// New builds the container. A missing db.dsn switches every store to
// the in-memory implementations, which is only useful for local
// dry-runs; the log says so loudly.
func New(ctx context.Context, cfg config.Config, v *viper.Viper, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	stores, err := a.buildStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	stored, err := stores.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings, overridden := config.MergeSettings(v, stored)
	a.Settings = settings
	for key := range overridden {
		logger.Info("settings field overridden from environment", zap.String("key", key))
	}

	blobs, err := a.buildBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	publisher, err := a.buildPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent:      cfg.Fetch.UserAgent,
		Timeout:        cfg.Fetch.FetchTimeout(),
		AcceptLanguage: cfg.Fetch.AcceptLanguage,
	})
	limiter := fetch.NewLimiter(fetch.LimiterConfig{
		DefaultRPS:   cfg.Crawler.RatePerHost,
		DefaultBurst: cfg.Crawler.RateBurst,
	})
	pauser := &fetch.TimerPauser{}
	delays := fetch.NewJitterDelay()
	clock := system.New()

	policy := crawlstate.DefaultPolicy()
	if len(settings.RecrawlHoursByTier) > 0 {
		policy.RecrawlHoursByTier = settings.RecrawlHoursByTier
	}
	if cfg.Crawler.UnchangedThreshold > 0 {
		policy.UnchangedThreshold = cfg.Crawler.UnchangedThreshold
	}
	if cfg.Crawler.MaxFailures > 0 {
		policy.MaxFailures = cfg.Crawler.MaxFailures
	}

	tracker := crawlstate.New(stores.crawl, policy, clock, logger)
	discoverer := discover.New(fetcher, limiter, pauser, delays, settings, cfg.Crawler.BaseURL, logger)
	collector := serp.New(stores.serp, fetcher, limiter, pauser, delays, settings, clock, logger)
	trends := scoring.NewTrendEngine(stores.products, stores.metrics, clock, logger)
	keywords := scoring.NewKeywordEngine(stores.serp, stores.products, stores.metrics, clock, settings.Weights, logger)

	a.Products = stores.products
	a.Serp = stores.serp
	a.Metrics = stores.metrics
	a.Pipeline = pipeline.New(pipeline.Options{
		Discoverer: discoverer,
		Tracker:    tracker,
		Collector:  collector,
		Trends:     trends,
		Keywords:   keywords,
		Fetcher:    fetcher,
		Limiter:    limiter,
		Pauser:     pauser,
		Delays:     delays,
		Extractor:  extract.New(logger),
		Products:   stores.products,
		SerpStore:  stores.serp,
		Blobs:      blobs,
		Publisher:  publisher,
		Hasher:     sha256.New(),
		Clock:      clock,
		Settings:   settings,
		BaseURL:    cfg.Crawler.BaseURL,
		Alias:      cfg.Crawler.Alias,

		ArchivePrefix:      cfg.Storage.Prefix,
		ArchiveContentType: cfg.Storage.ContentType,

		Logger: logger,
	})
	return a, nil
}

type storeSet struct {
	products merch.ProductStore
	crawl    merch.CrawlStateStore
	serp     merch.SerpStore
	metrics  merch.MetricsStore
	settings merch.SettingsStore
}

func (a *App) buildStores(ctx context.Context, cfg config.Config) (storeSet, error) {
	if cfg.DB.DSN == "" {
		a.Logger.Warn("db.dsn is empty, using in-memory stores; nothing will persist")
		return storeSet{
			products: memorystore.NewProductStore(),
			crawl:    memorystore.NewCrawlStateStore(),
			serp:     memorystore.NewSerpStore(),
			metrics:  memorystore.NewMetricsStore(),
			settings: memorystore.NewSettingsStore(merch.DefaultSettings()),
		}, nil
	}

	pool, err := postgres.Connect(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return storeSet{}, fmt.Errorf("connect postgres: %w", err)
	}
	a.pool = pool
	a.Logger.Info("connected to postgres")
	return storeSet{
		products: postgres.NewProductStore(pool),
		crawl:    postgres.NewCrawlStateStore(pool),
		serp:     postgres.NewSerpStore(pool),
		metrics:  postgres.NewMetricsStore(pool),
		settings: postgres.NewSettingsStore(pool),
	}, nil
}

func (a *App) buildBlobStore(ctx context.Context, cfg config.Config) (merch.BlobStore, error) {
	switch {
	case cfg.Storage.GCSBucket != "":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.gcsClient = client
		a.Logger.Info("archiving pages to gcs", zap.String("bucket", cfg.Storage.GCSBucket))
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	case cfg.Storage.LocalDir != "":
		a.Logger.Info("archiving pages to local disk", zap.String("dir", cfg.Storage.LocalDir))
		return local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
	default:
		a.Logger.Info("page archiving disabled")
		return nil, nil
	}
}

func (a *App) buildPublisher(ctx context.Context, cfg config.Config) (merch.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		a.Logger.Info("discovery events disabled, pubsub not configured")
		return nil, nil
	}
	client, err := pubsubv2.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	a.pubsubClient = client
	a.Logger.Info("publishing discovery events",
		zap.String("project", cfg.PubSub.ProjectID),
		zap.String("topic", cfg.PubSub.TopicName))
	return pubsubpublisher.New(client.Publisher(cfg.PubSub.TopicName)), nil
}

// Close releases every client the container owns. Safe to call on a
// partially constructed App.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.Logger.Warn("close gcs client", zap.Error(err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("close pubsub client", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
