// Package app is the composition root: it builds the store, the embedder
// chain, the repository and the services from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tonydantona/practice-routines-api/internal/config"
	"github.com/tonydantona/practice-routines-api/internal/db"
	dbqdrant "github.com/tonydantona/practice-routines-api/internal/db/qdrant"
	dbredis "github.com/tonydantona/practice-routines-api/internal/db/redis"
	dbsqlite "github.com/tonydantona/practice-routines-api/internal/db/sqlite"
	"github.com/tonydantona/practice-routines-api/internal/domain"
	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
	"github.com/tonydantona/practice-routines-api/internal/metrics"
	"github.com/tonydantona/practice-routines-api/internal/repository/embcache"
	routinerepo "github.com/tonydantona/practice-routines-api/internal/repository/routine"
	"github.com/tonydantona/practice-routines-api/internal/repository/routinefile"
	chiTransport "github.com/tonydantona/practice-routines-api/internal/transport/chi"
	"github.com/tonydantona/practice-routines-api/internal/transport/cli"
	openaiEmb "github.com/tonydantona/practice-routines-api/internal/transport/openai"
	builduc "github.com/tonydantona/practice-routines-api/internal/usecase/build"
	embeddinguc "github.com/tonydantona/practice-routines-api/internal/usecase/embedding"
	healthuc "github.com/tonydantona/practice-routines-api/internal/usecase/health"
	routineuc "github.com/tonydantona/practice-routines-api/internal/usecase/routine"
)

// tagFields are the metadata keys every backend indexes for filtering.
var tagFields = []string{domroutine.KeyCategory, domroutine.KeyState}

// App holds the wired services. Close releases the store.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    db.Store
	repo     *routinerepo.Repo
	routines *routineuc.Service
	builder  *builduc.Service
	health   *healthuc.Service
}

// New connects to the configured store and wires every service.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	store, err := NewStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
	}

	timeout := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database",
		zap.String("driver", cfg.Database.Driver),
		zap.String("collection", cfg.Database.Collection))

	// Register metrics explicitly (no init())
	metrics.RegisterHTTPMetrics()
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRoutineMetrics()

	embedder := buildEmbedder(cfg, store, logger)

	repo := routinerepo.New(store).WithDurationMetric(metrics.StoreOperationDuration)
	if !repo.SupportsConditionalUpdate() {
		logger.Warn("Store has no compare-and-swap; concurrent state updates may overwrite each other",
			zap.String("driver", cfg.Database.Driver))
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		repo:   repo,
		routines: routineuc.New(repo, embedder).
			WithTransitionMetric(metrics.StateTransitionsTotal),
		builder: builduc.New(repo, embedder).
			WithChunking(cfg.Embedding.MaxBatchSize, cfg.Embedding.BatchConcurrency).
			WithLoadedMetric(metrics.RoutinesLoadedTotal),
		health: healthuc.New(store, embedder).WithRoutineCounter(repo),
	}
	return a, nil
}

// NewStore creates the vector store selected by cfg.Driver.
func NewStore(cfg config.DatabaseConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverRedis, config.DriverValkey:
		s, err := dbredis.NewStore(dbredis.Config{
			Addrs:           cfg.Addrs,
			Password:        cfg.Password,
			KeyPrefix:       cfg.KeyPrefix,
			Collection:      cfg.Collection,
			TagFields:       tagFields,
			ListByScan:      cfg.Driver == config.DriverValkey,
			HNSWM:           cfg.HNSWM,
			HNSWEFConstruct: cfg.HNSWEFConstruct,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return s, nil
	case config.DriverQdrant:
		s, err := dbqdrant.NewStore(dbqdrant.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Collection,
			TagFields:  tagFields,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		return s, nil
	case config.DriverSQLite:
		s, err := dbsqlite.NewStore(dbsqlite.Config{Path: cfg.Path, Collection: cfg.Collection})
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
// The cache is used only when enabled and the store is Redis/Valkey.
func buildEmbedder(cfg config.Config, store db.Store, logger *zap.Logger) *embeddinguc.InstrumentedEmbedder {
	ec := cfg.Embedding

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:            ec.APIKey,
		BaseURL:           ec.BaseURL,
		Model:             ec.Model,
		Dimensions:        ec.Dimensions,
		Provider:          ec.Provider,
		RequestsPerSecond: ec.RequestsPerSecond,
		Logger:            logger,
	})

	var embedder domain.Embedder = base
	if rs, ok := store.(*dbredis.Store); ok && ec.Cache.Enabled {
		kv := rs.KV().WithTTL(time.Duration(ec.Cache.TTLSec) * time.Second)
		namespace := cfg.Database.KeyPrefix + "emb_cache:" + ec.Model + ":"
		embedder = embcache.New(base, kv, namespace, metrics.EmbeddingCacheTotal, logger)
		logger.Info("Embedding cache enabled", zap.String("namespace", namespace))
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, ec.Provider, ec.Model, ec.Dimensions, logger).
		WithMaxBatchSize(ec.MaxBatchSize)
}

// Routines returns the routine query and state service.
func (a *App) Routines() *routineuc.Service { return a.routines }

// Builder returns the database build service.
func (a *App) Builder() *builduc.Service { return a.builder }

// Health returns the health service.
func (a *App) Health() *healthuc.Service { return a.health }

// LoadRoutines reads the configured routines file.
func (a *App) LoadRoutines() ([]domroutine.Routine, error) {
	return a.LoadRoutinesFrom(a.cfg.Routines.File)
}

// LoadRoutinesFrom reads routines from path, or the configured file when path is empty.
func (a *App) LoadRoutinesFrom(path string) ([]domroutine.Routine, error) {
	if path == "" {
		path = a.cfg.Routines.File
	}
	routines, err := routinefile.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load routines: %w", err)
	}
	a.logger.Info("Loaded routines", zap.String("file", path), zap.Int("count", len(routines)))
	return routines, nil
}

// HTTPHandler returns the API router.
func (a *App) HTTPHandler() http.Handler {
	server := chiTransport.NewServer(a.routines, a.health).
		WithSearchDefaults(a.cfg.Search.DefaultTopN, a.cfg.Search.DefaultMinScore)
	return chiTransport.NewRouter(server, chiTransport.Options{
		Logger:      a.logger,
		APIKeys:     a.cfg.Auth.APIKeys,
		CORSOrigins: a.cfg.HTTP.CORSOrigins,
	})
}

// Menu returns the interactive menu bound to in and out.
func (a *App) Menu(in io.Reader, out io.Writer) *cli.Menu {
	return cli.NewMenu(in, out, a.routines, a.builder, a.LoadRoutines).
		WithSearch(a.cfg.CLI.TopN, a.cfg.CLI.MinScore)
}

// Close releases the store connection.
func (a *App) Close() {
	a.store.Close()
}
