package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cinephage/cinephage/internal/config"
	"github.com/cinephage/cinephage/internal/database"
	"github.com/cinephage/cinephage/internal/decisioning"
	"github.com/cinephage/cinephage/internal/download"
	downloadermock "github.com/cinephage/cinephage/internal/downloader/mock"
	"github.com/cinephage/cinephage/internal/downloader/qbittorrent"
	downloadertypes "github.com/cinephage/cinephage/internal/downloader/types"
	"github.com/cinephage/cinephage/internal/importer"
	indexermock "github.com/cinephage/cinephage/internal/indexer/mock"
	"github.com/cinephage/cinephage/internal/logger"
	"github.com/cinephage/cinephage/internal/metadata"
	metadatamock "github.com/cinephage/cinephage/internal/metadata/mock"
	"github.com/cinephage/cinephage/internal/metadata/tmdb"
	"github.com/cinephage/cinephage/internal/monitor"
	"github.com/cinephage/cinephage/internal/scoring"
	"github.com/cinephage/cinephage/internal/search"
	"github.com/cinephage/cinephage/internal/search/ratelimit"
	"github.com/cinephage/cinephage/internal/service"
	"github.com/cinephage/cinephage/internal/store"
	"github.com/cinephage/cinephage/internal/worker"
)

// workerGCInterval is how often finished workers are collected.
const workerGCInterval = 15 * time.Minute

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Log)
	defer log.Close()

	log.Info().
		Str("logLevel", cfg.Log.Level).
		Str("database", cfg.Database.Path).
		Msg("Starting cinephage")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	ctx := context.Background()
	st := store.New(db.Conn(), log.Logger)

	if err := st.SeedBuiltins(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed built-in profiles")
	}

	// Stored settings win over the config file.
	if level, err := st.GetSetting(ctx, "log_level", ""); err == nil && level != "" && level != cfg.Log.Level {
		cfg.Log.Level = level
		log.SetLevel(level)
		log.Info().Str("level", level).Msg("Loaded log level from database")
	}

	registry, err := scoring.NewRegistry(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build scoring registry")
	}
	if err := st.LoadRegistry(ctx, registry); err != nil {
		log.Fatal().Err(err).Msg("Failed to load scoring profiles")
	}
	scorer := scoring.NewScorer(registry, log.Logger)

	limiter := ratelimit.NewLimiter(
		ratelimit.Config{Limit: cfg.Search.IndexerRateLimit, Burst: cfg.Search.IndexerRateBurst, Window: time.Minute},
		ratelimit.Config{Limit: cfg.Search.HostRateLimit, Burst: cfg.Search.HostRateBurst, Window: time.Minute},
		log.Logger,
	)
	cache := search.NewResultCache(search.CacheConfig{
		MaxEntries: 1024,
		ResultTTL:  cfg.Search.CacheTTL,
		EmptyTTL:   cfg.Search.EmptyCacheTTL,
	})
	health := search.NewHealthTracker(search.DefaultBackoffConfig(), st, log.Logger)
	if err := health.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to restore indexer statuses")
	}

	orchestrator := search.NewOrchestrator(scorer, limiter, cache, health, log.Logger)
	orchestrator.SetConcurrency(cfg.Search.MaxConcurrentIndexers)
	registerIndexers(ctx, orchestrator, st, log)

	client := buildDownloadClient(cfg.Download.Client, log)
	if err := client.Test(ctx); err != nil {
		log.Warn().Err(err).Str("client", string(client.Type())).Msg("Download client unreachable, grabs will fail until it recovers")
	}

	meta := buildMetadataProvider(cfg.Metadata, log)
	log.Info().Str("provider", meta.Name()).Bool("configured", meta.IsConfigured()).Msg("Metadata provider ready")

	blocklist := download.NewBlocklist(st, log.Logger)
	delays := decisioning.DelaySpec{Provider: delayProvider{store: st}}
	grabs := download.NewGrabService(st, st, client, delays, limiter, cfg.Download.Client.Category, log.Logger)
	imp := importer.New(importer.Config{
		MoviePath:    cfg.Download.MoviePath,
		TVPath:       cfg.Download.TVPath,
		UseHardlinks: cfg.Download.UseHardlinks,
	}, st, log.Logger)
	poller := download.NewQueuePoller(st, client, imp, blocklist, log.Logger)
	pendingProc := download.NewPendingProcessor(st, grabs, blocklist, st, log.Logger)

	itemSpecs := decisioning.NewPipeline(log.Logger,
		decisioning.MonitoredSpec{},
		decisioning.SearchCooldownSpec{Checker: st},
	)
	releaseSpecs := decisioning.NewPipeline(log.Logger,
		decisioning.ProtocolAllowedSpec{},
		decisioning.SizeSpec{},
		decisioning.MinScoreSpec{},
		decisioning.ReplacementSpec{Scorer: scorer},
		decisioning.BlocklistSpec{Checker: blocklist},
	)

	searcher := monitor.NewSearcher(orchestrator, grabs, st, st, st, itemSpecs, releaseSpecs, log.Logger)
	tasks := monitor.NewTasks(cfg.Monitoring.TaskConfig(), st, searcher, pendingProc, blocklist, st, log.Logger)

	sched, err := monitor.NewScheduler(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	if err := tasks.Register(sched); err != nil {
		log.Fatal().Err(err).Msg("Failed to register monitoring tasks")
	}

	workers := worker.NewManager(map[worker.Type]int{typeQueuePoll: 1}, log.Logger)

	pollInterval := cfg.Download.PollInterval
	if pollInterval <= 0 {
		pollInterval = download.PollInterval
	}

	services := service.NewManager(log.Logger)
	mustRegister(services, newWorkerGCService(workers), log)
	mustRegister(services, newQueuePollService(poller, workers, pollInterval, log.Logger), log)
	mustRegister(services, newSchedulerService(sched), log)

	if err := services.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Msg("cinephage running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Received shutdown signal")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	services.Stop(stopCtx)

	log.Info().Msg("cinephage stopped")
}

func mustRegister(m *service.Manager, svc service.BackgroundService, log *logger.Logger) {
	if err := m.Register(svc); err != nil {
		log.Fatal().Err(err).Str("service", svc.Name()).Msg("Failed to register service")
	}
}

// registerIndexers loads the enabled indexer definitions and attaches a
// client for each supported definition id.
func registerIndexers(ctx context.Context, orchestrator *search.Orchestrator, st *store.Store, log *logger.Logger) {
	defs, err := st.ListEnabledIndexers(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load indexers")
	}
	for _, def := range defs {
		switch def.DefinitionID {
		case "mock":
			orchestrator.Register(indexermock.NewClient(def))
		default:
			log.Warn().
				Str("indexer", def.Name).
				Str("definition", def.DefinitionID).
				Msg("No client implementation for indexer definition")
		}
	}
	log.Info().Int("count", len(defs)).Msg("Indexers loaded")
}

func buildDownloadClient(cfg config.ClientConfig, log *logger.Logger) downloadertypes.Client {
	switch cfg.Type {
	case "", "mock":
		return downloadermock.New()
	case "qbittorrent":
		return qbittorrent.NewFromConfig(downloadertypes.ClientConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			UseSSL:   cfg.UseSSL,
			Category: cfg.Category,
		})
	default:
		log.Fatal().Str("type", cfg.Type).Msg("Unknown download client type")
		return nil
	}
}

func buildMetadataProvider(cfg config.MetadataConfig, log *logger.Logger) metadata.Provider {
	if cfg.TMDBAPIKey == "" {
		return metadatamock.NewProvider()
	}
	return tmdb.NewClient(tmdb.Config{APIKey: cfg.TMDBAPIKey, BaseURL: cfg.TMDBBaseURL}, log.Logger)
}

// delayProvider adapts the store's delay profiles to the decisioning
// provider contract.
type delayProvider struct {
	store *store.Store
}

func (p delayProvider) DelayProfiles(evalCtx *decisioning.EvalContext) ([]*decisioning.DelayProfile, error) {
	ctx := evalCtx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return p.store.ListDelayProfiles(ctx)
}
