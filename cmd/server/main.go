package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/leafscan-api/internal/auth"
	"github.com/Brownie44l1/leafscan-api/internal/config"
	"github.com/Brownie44l1/leafscan-api/internal/database"
	"github.com/Brownie44l1/leafscan-api/internal/diagnosis"
	"github.com/Brownie44l1/leafscan-api/internal/handlers"
	"github.com/Brownie44l1/leafscan-api/internal/history"
	"github.com/Brownie44l1/leafscan-api/internal/imagestore"
	"github.com/Brownie44l1/leafscan-api/internal/inference"
	"github.com/Brownie44l1/leafscan-api/internal/logging"
	"github.com/Brownie44l1/leafscan-api/internal/model"
	"github.com/Brownie44l1/leafscan-api/internal/pipeline"
	"github.com/Brownie44l1/leafscan-api/internal/prediction"
	"github.com/Brownie44l1/leafscan-api/internal/preprocess"
	"github.com/Brownie44l1/leafscan-api/internal/server"
	"github.com/Brownie44l1/leafscan-api/internal/stats"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Server.Env, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logging.SetHashSalt(cfg.Logging.HashSalt)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	catalog, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	resolver := diagnosis.NewResolver(catalog)

	metadata, err := model.LoadMetadata(cfg.Model.MetadataPath)
	if err != nil {
		logger.Warn("Using default model metadata",
			zap.String("path", cfg.Model.MetadataPath),
			zap.Error(err))
		metadata = model.DefaultMetadata(resolver.Classes())
	}
	labels := metadata.Classes
	if len(labels) == 0 {
		labels = catalog.Labels()
	}

	modelServer := model.NewServer(model.Config{
		ModelPath:         cfg.Model.Path,
		SharedLibraryPath: cfg.Model.SharedLibraryPath,
		Sessions:          cfg.Model.Workers,
	}, metadata, logger)
	defer modelServer.Close()

	if cfg.Model.WarmOnStart {
		go func() {
			if err := modelServer.Warm(ctx); err != nil {
				logger.Warn("Model not loaded at startup, will retry on first prediction", zap.Error(err))
			}
		}()
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		invalidator history.Invalidator
		statsCache  stats.Cache
	)
	if cfg.Redis.Enabled() {
		rdb, err := stats.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, stats will not be cached", zap.Error(err))
		} else {
			cache := stats.NewRedisCache(rdb, cfg.Redis.StatsTTL)
			defer cache.Close()
			invalidator = cache
			statsCache = cache
			logger.Info("Stats cache enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}

	hist := history.NewAdapter(store, invalidator, logger)
	aggregator := stats.NewAggregator(store, statsCache, logger)

	var archiver pipeline.Archiver
	images, err := imagestore.New(ctx, imagestore.Config{
		Backend:         cfg.ImageStore.Backend,
		Bucket:          cfg.ImageStore.Bucket,
		PublicBaseURL:   cfg.ImageStore.PublicBaseURL,
		CredentialsFile: cfg.Store.Firestore.CredentialsFile,
		CredentialsJSON: cfg.Store.Firestore.CredentialsJSON,
		Region:          cfg.ImageStore.Region,
		Endpoint:        cfg.ImageStore.Endpoint,
		UsePathStyle:    cfg.ImageStore.UsePathStyle,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize image store: %w", err)
	}
	if images != nil {
		defer images.Close()
		archiver = images
	}

	predictor := pipeline.New(pipeline.Config{Workers: cfg.Model.Workers},
		preprocess.NewNormalizer(metadata.ImageSize, metadata.Layout),
		inference.NewAdapter(modelServer, labels, logger),
		resolver,
		prediction.NewBuilder(),
		hist,
		archiver,
		logger)

	verifier, err := auth.NewFirebaseVerifier(auth.Config{
		ProjectID:          cfg.Auth.ProjectID,
		JWKSURL:            cfg.Auth.JWKSURL,
		EnableVerification: cfg.Auth.EnableVerification,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}
	defer verifier.Close()
	if !cfg.Auth.EnableVerification {
		logger.Warn("Token verification is disabled, do not run this configuration in production")
	}

	router := server.NewRouter(server.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Verifier:       verifier,
		Logger:         logger,
		HealthHandler:  handlers.NewHealthHandler(version, modelServer, hist),
		PredictionHandler: handlers.NewHandler(predictor, hist, aggregator, resolver, handlers.Options{
			MaxUploadBytes:   cfg.Server.MaxUploadBytes,
			AdmissionTimeout: cfg.Server.AdmissionTimeout,
		}, logger),
		UserHandler: handlers.NewUserHandler(hist, logger),
	})

	logger.Info("Starting server",
		zap.String("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Env),
		zap.String("store", cfg.Store.Backend),
		zap.String("image_store", cfg.ImageStore.Backend),
		zap.String("model", cfg.Model.Path),
		zap.Int("workers", cfg.Model.Workers),
		zap.String("version", version))

	srv := server.New(":"+cfg.Server.Port, router, logger)
	if err := srv.Run(ctx, cfg.Server.ShutdownTimeout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func loadCatalog(path string) (*diagnosis.Catalog, error) {
	if path == "" {
		return diagnosis.DefaultCatalog()
	}
	c, err := diagnosis.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	return c, nil
}

// openStore returns the history store for the configured backend. Remote
// stores connect lazily so the service starts, and reports not ready, while
// the database is down.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (history.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		logger.Warn("Using in-memory history store, predictions are lost on restart")
		return history.NewMemoryStore(), func() {}, nil

	case config.StoreFirestore:
		fc := history.FirestoreConfig{
			ProjectID:       cfg.Store.Firestore.ProjectID,
			CredentialsFile: cfg.Store.Firestore.CredentialsFile,
			CredentialsJSON: cfg.Store.Firestore.CredentialsJSON,
		}
		store := history.NewLazyStore(func(ctx context.Context) (history.Store, error) {
			s, err := history.NewFirestoreStore(ctx, fc)
			if err != nil {
				logger.Error("Failed to connect to Firestore", zap.Error(err))
				return nil, err
			}
			logger.Info("Connected to Firestore", zap.String("project_id", fc.ProjectID))
			return s, nil
		})
		warmStore(ctx, store, logger)
		return store, func() { _ = store.Close() }, nil

	case config.StorePostgres:
		store := history.NewLazyStore(func(ctx context.Context) (history.Store, error) {
			conn, err := database.NewConnection(ctx, &database.Config{
				URL:            cfg.Store.Postgres.URL,
				MaxConnections: cfg.Store.Postgres.MaxConnections,
			})
			if err != nil {
				logger.Error("Failed to connect to PostgreSQL", zap.Error(err))
				return nil, err
			}
			if err := database.RunMigrations(conn, cfg.Store.Postgres.MigrationsPath, logger); err != nil {
				conn.Close()
				return nil, err
			}
			logger.Info("Connected to PostgreSQL")
			return pgStore{PostgresStore: history.NewPostgresStore(conn.Pool), db: conn}, nil
		})
		warmStore(ctx, store, logger)
		return store, func() { _ = store.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// pgStore closes the pool it was opened with.
type pgStore struct {
	*history.PostgresStore
	db *database.DB
}

func (s pgStore) Close() error {
	s.db.Close()
	return nil
}

func warmStore(ctx context.Context, store *history.LazyStore, logger *zap.Logger) {
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			logger.Warn("History store not reachable at startup", zap.Error(err))
		}
	}()
}
